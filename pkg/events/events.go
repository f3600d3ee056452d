// Package events defines the execution lifecycle notifications and the CARE
// event envelope carried on the event bus.
package events

import (
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const (
	Topic     = "crmflow.events"      // Execution lifecycle events
	CareTopic = "crmflow.care.events" // CARE events produced by the customer-care subsystem
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionWaitingEvent   EventType = "execution.waiting"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionSucceededEvent EventType = "execution.succeeded"
	ExecutionFailedEvent    EventType = "execution.failed"

	CareEventReceivedEvent EventType = "care.event"
)

// TopicFor returns the topic events of eventType are published to.
func TopicFor(eventType EventType) string {
	if eventType == CareEventReceivedEvent {
		return CareTopic
	}

	return Topic
}

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	TenantID    string    `json:"tenant_id,omitempty"`
	ExecutionID string    `json:"execution_id,omitempty"`
}

func NewBaseEvent(eventType EventType, execution *models.Execution) BaseEvent {
	base := BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}

	if execution != nil {
		base.WorkflowID = execution.WorkflowID
		base.TenantID = execution.TenantID
		base.ExecutionID = execution.ID
	}

	return base
}

type ExecutionStarted struct {
	BaseEvent

	ActionOrigin models.ActionOrigin `json:"action_origin"`
	Shadow       bool                `json:"shadow,omitempty"`
	TriggerData  map[string]any      `json:"trigger_data,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionWaiting struct {
	BaseEvent

	NodeID string       `json:"node_id"`
	Wait   *models.Wait `json:"wait"`
}

func (e ExecutionWaiting) GetType() EventType {
	return ExecutionWaitingEvent
}

type ExecutionResumed struct {
	BaseEvent

	NodeID string          `json:"node_id"`
	Kind   models.WaitKind `json:"kind"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionSucceeded struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e ExecutionSucceeded) GetType() EventType {
	return ExecutionSucceededEvent
}

type ExecutionFailed struct {
	BaseEvent

	NodeID string           `json:"node_id,omitempty"`
	Kind   models.ErrorKind `json:"kind"`
	Error  string           `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// CareEventReceived wraps an inbound CARE event. Producers outside this
// service may publish the bare models.CareEvent JSON to CareTopic.
type CareEventReceived struct {
	models.CareEvent
}

func (e CareEventReceived) GetType() EventType {
	return CareEventReceivedEvent
}

// New returns an empty event value for eventType, ready to be unmarshalled into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case ExecutionStartedEvent:
		return &ExecutionStarted{}, true
	case ExecutionWaitingEvent:
		return &ExecutionWaiting{}, true
	case ExecutionResumedEvent:
		return &ExecutionResumed{}, true
	case ExecutionSucceededEvent:
		return &ExecutionSucceeded{}, true
	case ExecutionFailedEvent:
		return &ExecutionFailed{}, true
	case CareEventReceivedEvent:
		return &CareEventReceived{}, true
	default:
		return nil, false
	}
}
