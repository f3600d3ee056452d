package models

// NodeType identifies the behavior of a node. The set is closed.
type NodeType string

const (
	NodeTypeWebhookTrigger NodeType = "webhook_trigger"
	NodeTypeCareTrigger    NodeType = "care_trigger"

	NodeTypeFindLead        NodeType = "find_lead"
	NodeTypeFindContact     NodeType = "find_contact"
	NodeTypeFindAccount     NodeType = "find_account"
	NodeTypeFindOpportunity NodeType = "find_opportunity"

	NodeTypeCreateLead        NodeType = "create_lead"
	NodeTypeCreateContact     NodeType = "create_contact"
	NodeTypeCreateAccount     NodeType = "create_account"
	NodeTypeCreateOpportunity NodeType = "create_opportunity"

	NodeTypeUpdateLead        NodeType = "update_lead"
	NodeTypeUpdateContact     NodeType = "update_contact"
	NodeTypeUpdateAccount     NodeType = "update_account"
	NodeTypeUpdateOpportunity NodeType = "update_opportunity"

	NodeTypeCreateNote   NodeType = "create_note"
	NodeTypeAssignRecord NodeType = "assign_record"

	NodeTypeHTTPRequest       NodeType = "http_request"
	NodeTypeSendEmail         NodeType = "send_email"
	NodeTypeSendSMS           NodeType = "send_sms"
	NodeTypeInitiateCall      NodeType = "initiate_call"
	NodeTypeThoughtlyMessage  NodeType = "thoughtly_message"
	NodeTypeCallfluentMessage NodeType = "callfluent_message"

	NodeTypeAIClassifyStage NodeType = "ai_classify_opportunity_stage"
	NodeTypeAIGenerateEmail NodeType = "ai_generate_email"
	NodeTypeAIEnrichAccount NodeType = "ai_enrich_account"
	NodeTypeAIRouteActivity NodeType = "ai_route_activity"

	NodeTypeCondition      NodeType = "condition"
	NodeTypeWait           NodeType = "wait"
	NodeTypeWaitForWebhook NodeType = "wait_for_webhook"
)

// EntityType is a CRM entity kind.
type EntityType string

const (
	EntityLead        EntityType = "lead"
	EntityContact     EntityType = "contact"
	EntityAccount     EntityType = "account"
	EntityOpportunity EntityType = "opportunity"
	EntityActivity    EntityType = "activity"
	EntityNote        EntityType = "note"
)

var nodeEntities = map[NodeType]EntityType{
	NodeTypeFindLead:          EntityLead,
	NodeTypeFindContact:       EntityContact,
	NodeTypeFindAccount:       EntityAccount,
	NodeTypeFindOpportunity:   EntityOpportunity,
	NodeTypeCreateLead:        EntityLead,
	NodeTypeCreateContact:     EntityContact,
	NodeTypeCreateAccount:     EntityAccount,
	NodeTypeCreateOpportunity: EntityOpportunity,
	NodeTypeUpdateLead:        EntityLead,
	NodeTypeUpdateContact:     EntityContact,
	NodeTypeUpdateAccount:     EntityAccount,
	NodeTypeUpdateOpportunity: EntityOpportunity,
	NodeTypeCreateNote:        EntityNote,
}

// AllNodeTypes lists every known node type.
func AllNodeTypes() []NodeType {
	return []NodeType{
		NodeTypeWebhookTrigger, NodeTypeCareTrigger,
		NodeTypeFindLead, NodeTypeFindContact, NodeTypeFindAccount, NodeTypeFindOpportunity,
		NodeTypeCreateLead, NodeTypeCreateContact, NodeTypeCreateAccount, NodeTypeCreateOpportunity,
		NodeTypeUpdateLead, NodeTypeUpdateContact, NodeTypeUpdateAccount, NodeTypeUpdateOpportunity,
		NodeTypeCreateNote, NodeTypeAssignRecord,
		NodeTypeHTTPRequest, NodeTypeSendEmail, NodeTypeSendSMS, NodeTypeInitiateCall,
		NodeTypeThoughtlyMessage, NodeTypeCallfluentMessage,
		NodeTypeAIClassifyStage, NodeTypeAIGenerateEmail, NodeTypeAIEnrichAccount, NodeTypeAIRouteActivity,
		NodeTypeCondition, NodeTypeWait, NodeTypeWaitForWebhook,
	}
}

// Known reports whether t is part of the node type enumeration.
func (t NodeType) Known() bool {
	for _, known := range AllNodeTypes() {
		if t == known {
			return true
		}
	}

	return false
}

func (t NodeType) IsTrigger() bool {
	return t == NodeTypeWebhookTrigger || t == NodeTypeCareTrigger
}

// Entity returns the CRM entity a CRM node operates on.
func (t NodeType) Entity() (EntityType, bool) {
	entity, ok := nodeEntities[t]

	return entity, ok
}

// Position is the canvas location of a node. Execution ignores it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a single step in a workflow graph.
type Node struct {
	ID       string         `json:"id"       yaml:"id"     validate:"required"`
	Type     NodeType       `json:"type"     yaml:"type"   validate:"required"`
	Config   map[string]any `json:"config"   yaml:"config"`
	Position Position       `json:"position" yaml:"position"`
}

// Branch labels a condition node's outgoing edge.
type Branch string

const (
	BranchTrue  Branch = "true"
	BranchFalse Branch = "false"
)

func (b Branch) Valid() bool {
	return b == BranchTrue || b == BranchFalse
}

// BranchOf maps an evaluated condition result to its branch label.
func BranchOf(result bool) Branch {
	if result {
		return BranchTrue
	}

	return BranchFalse
}

// Connection is a directed edge between two nodes.
type Connection struct {
	From   string `json:"from"             yaml:"from"   validate:"required"`
	To     string `json:"to"               yaml:"to"     validate:"required"`
	Branch Branch `json:"branch,omitempty" yaml:"branch" validate:"omitempty,oneof=true false"`
}
