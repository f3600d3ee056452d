package models

// CareEvent is emitted by the customer-care subsystem when an entity needs attention.
type CareEvent struct {
	EntityID           string         `json:"entity_id"           validate:"required"`
	EntityType         EntityType     `json:"entity_type"         validate:"required,oneof=lead contact account opportunity activity"`
	TenantID           string         `json:"tenant_id"           validate:"required"`
	TriggerType        string         `json:"trigger_type"`
	Reason             string         `json:"reason"`
	EscalationDetected bool           `json:"escalation_detected"`
	Meta               map[string]any `json:"meta,omitempty"`
}

// Payload is the trigger data injected into a CARE-started execution.
func (e CareEvent) Payload(email string) map[string]any {
	payload := map[string]any{
		"entity_id":           e.EntityID,
		"entity_type":         string(e.EntityType),
		"tenant_id":           e.TenantID,
		"trigger_type":        e.TriggerType,
		"reason":              e.Reason,
		"escalation_detected": e.EscalationDetected,
		"email":               email,
	}

	if e.Meta != nil {
		payload["meta"] = e.Meta
	}

	return payload
}
