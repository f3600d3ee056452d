package web

import (
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/services"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/triggers/care"
)

// TenantHeader carries the tenant of management and history requests.
const TenantHeader = "X-Tenant-ID"

// WorkflowRequest is the body of workflow create and update requests. A
// trigger may be given either as a node or through Trigger.
type WorkflowRequest struct {
	Name          string               `json:"name"                     validate:"required,min=3"`
	Description   string               `json:"description"`
	IsActive      bool                 `json:"is_active"`
	Trigger       *models.Trigger      `json:"trigger,omitempty"`
	Nodes         []*models.Node       `json:"nodes"                    validate:"dive"`
	Connections   []*models.Connection `json:"connections"              validate:"dive"`
	FailurePolicy models.FailurePolicy `json:"failure_policy,omitempty" validate:"omitempty,oneof=halt continue"`
}

func (r *WorkflowRequest) toModel() *models.Workflow {
	workflow := &models.Workflow{
		Name:          r.Name,
		Description:   r.Description,
		IsActive:      r.IsActive,
		Nodes:         r.Nodes,
		Connections:   r.Connections,
		FailurePolicy: r.FailurePolicy,
	}

	if r.Trigger != nil {
		workflow.Trigger = *r.Trigger
	}

	if workflow.Nodes == nil {
		workflow.Nodes = []*models.Node{}
	}

	if workflow.Connections == nil {
		workflow.Connections = []*models.Connection{}
	}

	return workflow
}

// RunWorkflowRequest starts a workflow by hand.
type RunWorkflowRequest struct {
	TriggerData map[string]any `json:"trigger_data"`
	Shadow      bool           `json:"shadow"`
}

// WorkflowListResponse lists the workflows of a tenant.
type WorkflowListResponse struct {
	Workflows  []*models.Workflow `json:"workflows"`
	TotalCount int                `json:"total_count"`
}

// ValidationResponse reports whether a workflow can be activated.
type ValidationResponse struct {
	Valid    bool               `json:"valid"`
	Problems []services.Problem `json:"problems"`
}

// CallbackResponse lists the executions resumed by an inbound callback.
type CallbackResponse struct {
	Resumed []string `json:"resumed"`
}

// CareEventResponse reports what every care_trigger workflow did with an event.
type CareEventResponse struct {
	Outcomes []care.Outcome `json:"outcomes"`
}
