// Package persistence provides the storage abstraction for workflows and
// their executions.
package persistence

import (
	"context"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowRepository interface {
	GetAll(ctx context.Context, tenantID string) ([]*models.Workflow, error)
	// GetByID returns nil, nil when the workflow does not exist.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	// FindActiveByTrigger lists active workflows started by triggerType.
	FindActiveByTrigger(ctx context.Context, triggerType models.NodeType) ([]*models.Workflow, error)
}

type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	// Save persists the execution unconditionally. Callers own the row
	// between a successful Transition and the next Save.
	Save(ctx context.Context, execution *models.Execution) error
	// GetByID returns nil, nil when the execution does not exist.
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	// Transition moves an execution from one status to another only if it is
	// still in from. It reports whether this caller won the transition.
	Transition(ctx context.Context, id string, from, to models.ExecutionStatus) (bool, error)
	List(ctx context.Context, filter ExecutionFilter) (*ExecutionPage, error)
	// DueTimers lists waiting timer executions whose resume time has passed.
	DueTimers(ctx context.Context, now time.Time) ([]*models.Execution, error)
	// ExpiredWebhookWaits lists waiting webhook executions past their deadline.
	ExpiredWebhookWaits(ctx context.Context, now time.Time) ([]*models.Execution, error)
	// FindWaiting lists executions of a tenant waiting for the correlation key.
	FindWaiting(ctx context.Context, tenantID string, field models.MatchField, value string) ([]*models.Execution, error)
}

// ExecutionFilter selects executions for the history API.
type ExecutionFilter struct {
	WorkflowID   string
	ActionOrigin models.ActionOrigin
	Status       models.ExecutionStatus
	Limit        int
	Offset       int
}

// ExecutionPage is one page of executions, newest first.
type ExecutionPage struct {
	Executions []*models.Execution
	TotalCount int
}

// Matches reports whether execution passes the filter's predicates.
func (f ExecutionFilter) Matches(execution *models.Execution) bool {
	if f.WorkflowID != "" && execution.WorkflowID != f.WorkflowID {
		return false
	}

	if f.ActionOrigin != "" && execution.ActionOrigin != f.ActionOrigin {
		return false
	}

	if f.Status != "" && execution.Status != f.Status {
		return false
	}

	return true
}
