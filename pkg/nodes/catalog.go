package nodes

import "github.com/andreibyf/aishacrm-2-sub004/pkg/models"

// Category groups node types in the builder palette.
type Category string

const (
	CategoryTrigger  Category = "trigger"
	CategoryCRM      Category = "crm"
	CategoryOutbound Category = "outbound"
	CategoryAI       Category = "ai"
	CategoryControl  Category = "control"
)

// Descriptor documents a node type for API consumers.
type Descriptor struct {
	Type        models.NodeType `json:"type"`
	Category    Category        `json:"category"`
	Description string          `json:"description"`
	Required    []string        `json:"required,omitempty"`
}

// Catalog returns a descriptor for every node type.
func Catalog() []Descriptor {
	descriptors := make([]Descriptor, 0, len(models.AllNodeTypes()))

	for _, nodeType := range models.AllNodeTypes() {
		descriptors = append(descriptors, describeType(nodeType))
	}

	return descriptors
}

func describeType(t models.NodeType) Descriptor {
	switch t {
	case models.NodeTypeWebhookTrigger:
		return Descriptor{t, CategoryTrigger, "Starts the workflow when JSON is posted to its webhook URL.", nil}
	case models.NodeTypeCareTrigger:
		return Descriptor{t, CategoryTrigger, "Starts the workflow from customer-care events of the configured tenant.", []string{"tenant_id"}}
	case models.NodeTypeFindLead, models.NodeTypeFindContact, models.NodeTypeFindAccount, models.NodeTypeFindOpportunity:
		return Descriptor{t, CategoryCRM, "Looks up a record by one field and stores it under the entity namespace.", []string{"search_field", "search_value"}}
	case models.NodeTypeCreateLead, models.NodeTypeCreateContact, models.NodeTypeCreateAccount, models.NodeTypeCreateOpportunity:
		return Descriptor{t, CategoryCRM, "Creates a record from field mappings.", []string{"field_mappings"}}
	case models.NodeTypeUpdateLead, models.NodeTypeUpdateContact, models.NodeTypeUpdateAccount, models.NodeTypeUpdateOpportunity:
		return Descriptor{t, CategoryCRM, "Updates a record, defaulting to the record found earlier in the run.", []string{"field_mappings"}}
	case models.NodeTypeCreateNote:
		return Descriptor{t, CategoryCRM, "Attaches a note to a record.", []string{"related_type", "related_id", "content"}}
	case models.NodeTypeAssignRecord:
		return Descriptor{t, CategoryCRM, "Assigns a record to a user.", []string{"method", "entity_type"}}
	case models.NodeTypeHTTPRequest:
		return Descriptor{t, CategoryOutbound, "Calls an HTTP endpoint and stores the response.", []string{"url"}}
	case models.NodeTypeSendEmail:
		return Descriptor{t, CategoryOutbound, "Sends an email.", []string{"to", "subject", "body"}}
	case models.NodeTypeSendSMS:
		return Descriptor{t, CategoryOutbound, "Sends a text message.", []string{"to", "message"}}
	case models.NodeTypeInitiateCall:
		return Descriptor{t, CategoryOutbound, "Starts an AI voice call.", []string{"to"}}
	case models.NodeTypeThoughtlyMessage, models.NodeTypeCallfluentMessage:
		return Descriptor{t, CategoryOutbound, "Sends a message through a conversational agent.", []string{"to", "message"}}
	case models.NodeTypeAIClassifyStage:
		return Descriptor{t, CategoryAI, "Classifies the opportunity stage into ai_stage.", nil}
	case models.NodeTypeAIGenerateEmail:
		return Descriptor{t, CategoryAI, "Drafts an email into ai_email.", nil}
	case models.NodeTypeAIEnrichAccount:
		return Descriptor{t, CategoryAI, "Enriches account data into ai_enrichment.", nil}
	case models.NodeTypeAIRouteActivity:
		return Descriptor{t, CategoryAI, "Routes an activity into ai_route.", nil}
	case models.NodeTypeCondition:
		return Descriptor{t, CategoryControl, "Branches on a comparison; first edge is TRUE, second is FALSE.", []string{"field", "operator"}}
	case models.NodeTypeWait:
		return Descriptor{t, CategoryControl, "Suspends the execution for a duration.", []string{"duration_value", "duration_unit"}}
	case models.NodeTypeWaitForWebhook:
		return Descriptor{t, CategoryControl, "Suspends until a correlated webhook arrives or the timeout elapses.", []string{"match_field", "timeout_minutes"}}
	default:
		return Descriptor{Type: t}
	}
}
