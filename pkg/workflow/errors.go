package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
)

var (
	ErrWorkflowInactive = errors.New("workflow is not active")
	ErrNoTriggerNode    = errors.New("workflow has no trigger node")
	ErrStepLimit        = errors.New("execution exceeded the step limit")
)

// ValidationError reports a graph or node configuration problem. An empty
// NodeID means the problem concerns the workflow as a whole.
type ValidationError struct {
	NodeID string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.NodeID == "" {
		return e.Err.Error()
	}

	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ActionError reports a failed action handler. Retryable marks transient
// transport failures; the engine never retries business failures.
type ActionError struct {
	NodeID    string
	NodeType  models.NodeType
	Retryable bool
	Err       error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.NodeType, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// TenantMismatchError is returned by the CARE adapter when an event belongs
// to another tenant than the trigger is configured for. It never creates an execution.
type TenantMismatchError struct {
	WorkflowID       string
	EventTenantID    string
	ExpectedTenantID string
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("workflow %s: event tenant %q does not match trigger tenant %q",
		e.WorkflowID, e.EventTenantID, e.ExpectedTenantID)
}

// WebhookTimeoutError reports a wait_for_webhook deadline that elapsed unmatched.
type WebhookTimeoutError struct {
	NodeID     string
	MatchField models.MatchField
	MatchValue string
	Deadline   time.Time
}

func (e *WebhookTimeoutError) Error() string {
	return fmt.Sprintf("no webhook matched %s=%s before %s", e.MatchField, e.MatchValue, e.Deadline.Format(time.RFC3339))
}

// failureOf classifies err into the kind and node recorded on a failed execution.
func failureOf(err error, currentNodeID string) (models.ErrorKind, string) {
	var (
		validationErr *ValidationError
		actionErr     *ActionError
		timeoutErr    *WebhookTimeoutError
	)

	switch {
	case errors.As(err, &validationErr):
		return models.ErrorKindValidation, validationErr.NodeID
	case errors.As(err, &actionErr):
		return models.ErrorKindAction, actionErr.NodeID
	case errors.As(err, &timeoutErr):
		return models.ErrorKindWebhookTimeout, timeoutErr.NodeID
	default:
		return models.ErrorKindInternal, currentNodeID
	}
}
