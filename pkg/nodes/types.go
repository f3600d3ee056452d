package nodes

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
)

const (
	MaxWebhookTimeoutMinutes = 10080
	defaultHTTPTimeout       = 30
)

// WebhookTriggerConfig configures a workflow started by an HTTP POST.
type WebhookTriggerConfig struct {
	PayloadSchema map[string]any `mapstructure:"payload_schema"`
}

func (*WebhookTriggerConfig) Kind() models.NodeType { return models.NodeTypeWebhookTrigger }
func (*WebhookTriggerConfig) sealed()               {}

// CareTriggerConfig configures a workflow started by customer-care events.
type CareTriggerConfig struct {
	TenantID          string `mapstructure:"tenant_id"           validate:"required"`
	IsEnabled         *bool  `mapstructure:"is_enabled"`
	ShadowMode        bool   `mapstructure:"shadow_mode"`
	WebhookTimeoutMS  int    `mapstructure:"webhook_timeout_ms"  validate:"gte=0,lte=300000"`
	WebhookMaxRetries int    `mapstructure:"webhook_max_retries" validate:"gte=0,lte=10"`
}

func (*CareTriggerConfig) Kind() models.NodeType { return models.NodeTypeCareTrigger }
func (*CareTriggerConfig) sealed()               {}

// Enabled defaults to true when is_enabled is absent.
func (c *CareTriggerConfig) Enabled() bool {
	return c.IsEnabled == nil || *c.IsEnabled
}

// CallPolicy returns the outbound call bounds configured on the trigger, or nil.
func (c *CareTriggerConfig) CallPolicy() *models.CallPolicy {
	if c.WebhookTimeoutMS == 0 && c.WebhookMaxRetries == 0 {
		return nil
	}

	return &models.CallPolicy{TimeoutMS: c.WebhookTimeoutMS, MaxRetries: c.WebhookMaxRetries}
}

// FindRecordConfig looks a CRM record up by a single field.
type FindRecordConfig struct {
	Entity      models.EntityType `mapstructure:"-"`
	SearchField string            `mapstructure:"search_field" validate:"required"`
	SearchValue string            `mapstructure:"search_value" validate:"required"`
}

func (c *FindRecordConfig) Kind() models.NodeType { return models.NodeType("find_" + string(c.Entity)) }
func (*FindRecordConfig) sealed()                 {}

// CreateRecordConfig creates a CRM record from mapped fields.
type CreateRecordConfig struct {
	Entity        models.EntityType `mapstructure:"-"`
	FieldMappings map[string]any    `mapstructure:"field_mappings"`
	Fields        map[string]any    `mapstructure:"fields"`
}

func (c *CreateRecordConfig) Kind() models.NodeType {
	return models.NodeType("create_" + string(c.Entity))
}
func (*CreateRecordConfig) sealed() {}

func (c *CreateRecordConfig) check() error {
	if len(c.FieldMappings) == 0 && len(c.Fields) == 0 {
		return errors.New("missing required field 'field_mappings'")
	}

	return nil
}

// Values merges fields and field mappings, mappings taking precedence.
func (c *CreateRecordConfig) Values() map[string]any {
	return mergeFields(c.Fields, c.FieldMappings)
}

// UpdateRecordConfig updates an existing CRM record.
type UpdateRecordConfig struct {
	Entity        models.EntityType `mapstructure:"-"`
	RecordID      string            `mapstructure:"record_id"      validate:"required"`
	FieldMappings map[string]any    `mapstructure:"field_mappings"`
	Fields        map[string]any    `mapstructure:"fields"`
}

func (c *UpdateRecordConfig) Kind() models.NodeType {
	return models.NodeType("update_" + string(c.Entity))
}
func (*UpdateRecordConfig) sealed() {}

func (c *UpdateRecordConfig) check() error {
	if len(c.FieldMappings) == 0 && len(c.Fields) == 0 {
		return errors.New("missing required field 'field_mappings'")
	}

	return nil
}

func (c *UpdateRecordConfig) Values() map[string]any {
	return mergeFields(c.Fields, c.FieldMappings)
}

// CreateNoteConfig attaches a note to a CRM record.
type CreateNoteConfig struct {
	RelatedType string `mapstructure:"related_type" validate:"required,oneof=lead contact account opportunity activity"`
	RelatedID   string `mapstructure:"related_id"   validate:"required"`
	Title       string `mapstructure:"title"`
	Content     string `mapstructure:"content"      validate:"required"`
}

func (*CreateNoteConfig) Kind() models.NodeType { return models.NodeTypeCreateNote }
func (*CreateNoteConfig) sealed()               {}

// AssignmentMethod selects how assign_record picks a user.
type AssignmentMethod string

const (
	AssignSpecificUser  AssignmentMethod = "specific_user"
	AssignRoundRobin    AssignmentMethod = "round_robin"
	AssignLeastAssigned AssignmentMethod = "least_assigned"
	AssignRecordOwner   AssignmentMethod = "record_owner"
)

// AssignRecordConfig assigns a CRM record to a user.
type AssignRecordConfig struct {
	Method     AssignmentMethod `mapstructure:"method"      validate:"required,oneof=specific_user round_robin least_assigned record_owner"`
	UserID     string           `mapstructure:"user_id"     validate:"required_if=Method specific_user"`
	EntityType string           `mapstructure:"entity_type" validate:"required,oneof=lead contact account opportunity activity"`
	RecordID   string           `mapstructure:"record_id"   validate:"required"`
	Team       string           `mapstructure:"team"`
}

func (*AssignRecordConfig) Kind() models.NodeType { return models.NodeTypeAssignRecord }
func (*AssignRecordConfig) sealed()               {}

// HTTPRequestConfig configures an arbitrary outbound HTTP call.
type HTTPRequestConfig struct {
	Method         string            `mapstructure:"method"          validate:"oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	URL            string            `mapstructure:"url"             validate:"required"`
	Headers        map[string]string `mapstructure:"headers"`
	BodyType       string            `mapstructure:"body_type"       validate:"omitempty,oneof=raw mappings"`
	Body           any               `mapstructure:"body"`
	BodyMappings   map[string]any    `mapstructure:"body_mappings"`
	ResponseQuery  string            `mapstructure:"response_query"`
	TimeoutSeconds int               `mapstructure:"timeout"         validate:"gte=0,lte=300"`
}

func (*HTTPRequestConfig) Kind() models.NodeType { return models.NodeTypeHTTPRequest }
func (*HTTPRequestConfig) sealed()               {}

func (c *HTTPRequestConfig) applyDefaults() {
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = http.MethodGet
	}

	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = defaultHTTPTimeout
	}

	if c.BodyType == "" {
		c.BodyType = "raw"
		if len(c.BodyMappings) > 0 {
			c.BodyType = "mappings"
		}
	}
}

func (c *HTTPRequestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SendEmailConfig sends an email through the messaging provider.
type SendEmailConfig struct {
	To       string `mapstructure:"to"       validate:"required"`
	From     string `mapstructure:"from"`
	Subject  string `mapstructure:"subject"  validate:"required"`
	Body     string `mapstructure:"body"     validate:"required"`
	Provider string `mapstructure:"provider"`
}

func (*SendEmailConfig) Kind() models.NodeType { return models.NodeTypeSendEmail }
func (*SendEmailConfig) sealed()               {}

// SendSMSConfig sends a text message.
type SendSMSConfig struct {
	To       string `mapstructure:"to"       validate:"required"`
	Message  string `mapstructure:"message"  validate:"required"`
	Provider string `mapstructure:"provider"`
}

func (*SendSMSConfig) Kind() models.NodeType { return models.NodeTypeSendSMS }
func (*SendSMSConfig) sealed()               {}

// InitiateCallConfig starts an outbound AI voice call.
type InitiateCallConfig struct {
	To       string         `mapstructure:"to"       validate:"required"`
	Script   string         `mapstructure:"script"`
	AgentID  string         `mapstructure:"agent_id"`
	Provider string         `mapstructure:"provider"`
	Context  map[string]any `mapstructure:"context"`
}

func (*InitiateCallConfig) Kind() models.NodeType { return models.NodeTypeInitiateCall }
func (*InitiateCallConfig) sealed()               {}

// AgentMessageConfig sends a message through a conversational agent
// (thoughtly_message, callfluent_message).
type AgentMessageConfig struct {
	Channel models.NodeType `mapstructure:"-"`
	To      string          `mapstructure:"to"       validate:"required"`
	Message string          `mapstructure:"message"  validate:"required"`
	AgentID string          `mapstructure:"agent_id"`
}

func (c *AgentMessageConfig) Kind() models.NodeType { return c.Channel }
func (*AgentMessageConfig) sealed()                 {}

// AIConfig invokes an AI provider for one of the four AI capabilities.
type AIConfig struct {
	Capability models.NodeType `mapstructure:"-"`
	Provider   string          `mapstructure:"provider"`
	Model      string          `mapstructure:"model"`
	Prompt     string          `mapstructure:"prompt"`
	Input      map[string]any  `mapstructure:"input"`
	Tone       string          `mapstructure:"tone"`
}

func (c *AIConfig) Kind() models.NodeType { return c.Capability }
func (*AIConfig) sealed()                 {}

// Namespace is where the AI result is written in the execution context.
func (c *AIConfig) Namespace() string {
	switch c.Capability {
	case models.NodeTypeAIClassifyStage:
		return models.NamespaceAIStage
	case models.NodeTypeAIGenerateEmail:
		return models.NamespaceAIEmail
	case models.NodeTypeAIEnrichAccount:
		return models.NamespaceAIEnrichment
	default:
		return models.NamespaceAIRoute
	}
}

// Operator is a condition comparison.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorExists      Operator = "exists"
	OperatorNotExists   Operator = "not_exists"
)

// ConditionConfig compares a context field with a value.
type ConditionConfig struct {
	Field    string   `mapstructure:"field"    validate:"required"`
	Operator Operator `mapstructure:"operator" validate:"required,oneof=equals not_equals contains greater_than less_than exists not_exists"`
	Value    any      `mapstructure:"value"`
}

func (*ConditionConfig) Kind() models.NodeType { return models.NodeTypeCondition }
func (*ConditionConfig) sealed()               {}

// DurationUnit is the unit of a wait node.
type DurationUnit string

const (
	UnitSeconds DurationUnit = "seconds"
	UnitMinutes DurationUnit = "minutes"
	UnitHours   DurationUnit = "hours"
	UnitDays    DurationUnit = "days"
)

// WaitConfig suspends an execution for a fixed duration. A zero duration is rejected.
type WaitConfig struct {
	DurationValue int          `mapstructure:"duration_value" validate:"required,min=1"`
	DurationUnit  DurationUnit `mapstructure:"duration_unit"  validate:"required,oneof=seconds minutes hours days"`
}

func (*WaitConfig) Kind() models.NodeType { return models.NodeTypeWait }
func (*WaitConfig) sealed()               {}

func (c *WaitConfig) Duration() time.Duration {
	value := time.Duration(c.DurationValue)

	switch c.DurationUnit {
	case UnitSeconds:
		return value * time.Second
	case UnitMinutes:
		return value * time.Minute
	case UnitHours:
		return value * time.Hour
	default:
		return value * 24 * time.Hour
	}
}

// WaitForWebhookConfig suspends until a correlated inbound webhook arrives.
type WaitForWebhookConfig struct {
	MatchField     models.MatchField `mapstructure:"match_field"     validate:"required,oneof=call_id message_id lead_id contact_id custom"`
	MatchValue     string            `mapstructure:"match_value"`
	TimeoutMinutes int               `mapstructure:"timeout_minutes" validate:"required,min=1,max=10080"`
}

func (*WaitForWebhookConfig) Kind() models.NodeType { return models.NodeTypeWaitForWebhook }
func (*WaitForWebhookConfig) sealed()               {}

func (c *WaitForWebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// DefaultMatchPaths lists where a correlation value is looked up when
// match_value is not configured.
func (c *WaitForWebhookConfig) DefaultMatchPaths() []string {
	paths := []string{string(c.MatchField)}

	switch c.MatchField {
	case models.MatchFieldCallID:
		paths = append(paths, models.NamespaceCallDispatch+".call_id")
	case models.MatchFieldMessageID:
		paths = append(paths,
			models.NamespaceMessageDispatch+".message_id",
			models.NamespaceSMSDispatch+".message_id",
			models.NamespaceEmailDispatch+".message_id")
	case models.MatchFieldLeadID:
		paths = append(paths, "lead.id")
	case models.MatchFieldContactID:
		paths = append(paths, "contact.id")
	case models.MatchFieldCustom:
		paths = append(paths, "correlation_id")
	}

	return paths
}

func mergeFields(fields, mappings map[string]any) map[string]any {
	merged := make(map[string]any, len(fields)+len(mappings))

	for key, value := range fields {
		merged[key] = value
	}

	for key, value := range mappings {
		merged[key] = value
	}

	return merged
}
