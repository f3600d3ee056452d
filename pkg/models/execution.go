package models

import "time"

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running" // Nodes are being processed
	ExecutionStatusWaiting ExecutionStatus = "waiting" // Suspended, resumable
	ExecutionStatusSuccess ExecutionStatus = "success" // Terminal
	ExecutionStatusFailed  ExecutionStatus = "failed"  // Terminal
)

func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to ExecutionStatus) bool {
	switch from {
	case ExecutionStatusRunning:
		return to == ExecutionStatusRunning || to == ExecutionStatusWaiting ||
			to == ExecutionStatusSuccess || to == ExecutionStatusFailed
	case ExecutionStatusWaiting:
		return to == ExecutionStatusRunning || to == ExecutionStatusFailed
	default:
		return false
	}
}

// ActionOrigin records what started an execution.
type ActionOrigin string

const (
	ActionOriginWebhook ActionOrigin = "webhook"
	ActionOriginCare    ActionOrigin = "care"
	ActionOriginManual  ActionOrigin = "manual"
)

// WaitKind distinguishes timer suspensions from correlation suspensions.
type WaitKind string

const (
	WaitKindTimer   WaitKind = "timer"
	WaitKindWebhook WaitKind = "webhook"
)

// MatchField names the correlation key of a wait_for_webhook node.
type MatchField string

const (
	MatchFieldCallID    MatchField = "call_id"
	MatchFieldMessageID MatchField = "message_id"
	MatchFieldLeadID    MatchField = "lead_id"
	MatchFieldContactID MatchField = "contact_id"
	MatchFieldCustom    MatchField = "custom"
)

// MatchFields lists the correlation keys in the order inbound payloads are inspected.
func MatchFields() []MatchField {
	return []MatchField{MatchFieldCallID, MatchFieldMessageID, MatchFieldLeadID, MatchFieldContactID, MatchFieldCustom}
}

// PayloadKey is the inbound webhook key carrying the correlation value.
func (f MatchField) PayloadKey() string {
	if f == MatchFieldCustom {
		return "correlation_id"
	}

	return string(f)
}

// Wait describes a persisted suspension.
type Wait struct {
	Kind       WaitKind   `json:"kind"`
	ResumeAt   *time.Time `json:"resume_at,omitempty"`
	MatchField MatchField `json:"match_field,omitempty"`
	MatchValue string     `json:"match_value,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

// ErrorKind classifies why an execution failed.
type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation_error"
	ErrorKindAction         ErrorKind = "action_error"
	ErrorKindWebhookTimeout ErrorKind = "webhook_timeout"
	ErrorKindInternal       ErrorKind = "internal_error"
)

// ExecutionError is the human-readable failure cause stored on an execution.
type ExecutionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// StepStatus is the outcome of a single node attempt.
type StepStatus string

const (
	StepStatusSuccess   StepStatus = "success"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSuspended StepStatus = "suspended"
)

// Step records one node attempt.
type Step struct {
	NodeID     string         `json:"node_id"`
	NodeType   NodeType       `json:"node_type"`
	Status     StepStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Shadow     bool           `json:"shadow,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Execution is one run of a workflow.
type Execution struct {
	ID              string           `json:"id"`
	WorkflowID      string           `json:"workflow_id"`
	TenantID        string           `json:"tenant_id"`
	Status          ExecutionStatus  `json:"status"`
	TriggerData     map[string]any   `json:"trigger_data"`
	ActionOrigin    ActionOrigin     `json:"action_origin"`
	Shadow          bool             `json:"shadow"`
	CurrentNodeID   string           `json:"current_node_id,omitempty"`
	ContextSnapshot ExecutionContext `json:"context_snapshot"`
	Wait            *Wait            `json:"wait,omitempty"`
	FailedNodeID    string           `json:"failed_node_id,omitempty"`
	Error           *ExecutionError  `json:"error,omitempty"`
	Steps           []Step           `json:"steps"`
	CallPolicy      *CallPolicy      `json:"call_policy,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// CallPolicy bounds outbound calls made on behalf of an execution.
type CallPolicy struct {
	TimeoutMS  int `json:"timeout_ms"`
	MaxRetries int `json:"max_retries"`
}

// Timeout converts TimeoutMS, returning zero when unset.
func (p *CallPolicy) Timeout() time.Duration {
	if p == nil || p.TimeoutMS <= 0 {
		return 0
	}

	return time.Duration(p.TimeoutMS) * time.Millisecond
}
