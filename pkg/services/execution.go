package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
)

const (
	DefaultExecutionLimit = 20
	MaxExecutionLimit     = 100
)

// ListExecutionsRequest contains options for listing the executions of a workflow.
type ListExecutionsRequest struct {
	TenantID   string
	WorkflowID string

	// Filtering
	ActionOrigin models.ActionOrigin
	Status       models.ExecutionStatus

	// Pagination
	Limit  int
	Offset int
}

// ListExecutionsResponse contains one page of executions, newest first.
type ListExecutionsResponse struct {
	Executions  []*models.Execution `json:"executions"`
	TotalCount  int                 `json:"total_count"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
	HasNextPage bool                `json:"has_next_page"`
}

type Execution struct {
	persistence persistence.Persistence
	workflows   *Workflow
}

// NewExecution creates the execution history service.
func NewExecution(persistence persistence.Persistence) *Execution {
	return &Execution{
		persistence: persistence,
		workflows:   NewWorkflow(persistence),
	}
}

// List retrieves the executions of one workflow with filtering and pagination.
func (e *Execution) List(ctx context.Context, req ListExecutionsRequest) (*ListExecutionsResponse, error) {
	if err := validateListExecutionsRequest(&req); err != nil {
		return nil, err
	}

	if _, err := e.workflows.FetchByID(ctx, req.TenantID, req.WorkflowID); err != nil {
		return nil, err
	}

	page, err := e.persistence.ExecutionRepository().List(ctx, persistence.ExecutionFilter{
		WorkflowID:   req.WorkflowID,
		ActionOrigin: req.ActionOrigin,
		Status:       req.Status,
		Limit:        req.Limit,
		Offset:       req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := page.Executions
	if executions == nil {
		executions = []*models.Execution{}
	}

	return &ListExecutionsResponse{
		Executions:  executions,
		TotalCount:  page.TotalCount,
		Limit:       req.Limit,
		Offset:      req.Offset,
		HasNextPage: req.Offset+len(executions) < page.TotalCount,
	}, nil
}

// FetchByID retrieves one execution of the tenant with its step history.
func (e *Execution) FetchByID(ctx context.Context, tenantID, id string) (*models.Execution, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInvalidID) {
			return nil, ErrExecutionNotFound
		}

		return nil, err
	}

	if execution == nil || execution.TenantID != tenantID {
		return nil, ErrExecutionNotFound
	}

	return execution, nil
}

func validateListExecutionsRequest(req *ListExecutionsRequest) error {
	if req.TenantID == "" {
		return ErrTenantRequired
	}

	if req.Limit == 0 {
		req.Limit = DefaultExecutionLimit
	}

	if req.Limit < 1 || req.Limit > MaxExecutionLimit {
		return NewValidationError(
			"validateListExecutionsRequest",
			"INVALID_LIMIT",
			fmt.Sprintf("limit must be between 1 and %d", MaxExecutionLimit),
			ErrInvalidRequest,
		)
	}

	if req.Offset < 0 {
		return NewValidationError(
			"validateListExecutionsRequest",
			"INVALID_OFFSET",
			"offset cannot be negative",
			ErrInvalidRequest,
		)
	}

	if req.ActionOrigin != "" {
		allowed := []models.ActionOrigin{models.ActionOriginWebhook, models.ActionOriginCare, models.ActionOriginManual}
		if !slices.Contains(allowed, req.ActionOrigin) {
			return NewValidationError(
				"validateListExecutionsRequest",
				"INVALID_ACTION_ORIGIN",
				fmt.Sprintf("invalid action origin '%s'", req.ActionOrigin),
				ErrInvalidOrigin,
			)
		}
	}

	if req.Status != "" {
		allowed := []models.ExecutionStatus{
			models.ExecutionStatusRunning,
			models.ExecutionStatusWaiting,
			models.ExecutionStatusSuccess,
			models.ExecutionStatusFailed,
		}
		if !slices.Contains(allowed, req.Status) {
			return NewValidationError(
				"validateListExecutionsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", req.Status),
				ErrInvalidStatus,
			)
		}
	}

	return nil
}
