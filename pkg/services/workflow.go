package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Problem is one graph or node configuration problem reported to the builder.
type Problem struct {
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

// InvalidWorkflowError lists the problems that keep a workflow from being activated.
type InvalidWorkflowError struct {
	Problems []Problem
}

func (e *InvalidWorkflowError) Error() string {
	if len(e.Problems) == 0 {
		return ErrWorkflowInvalid.Error()
	}

	first := e.Problems[0].Message
	if e.Problems[0].NodeID != "" {
		first = fmt.Sprintf("node %s: %s", e.Problems[0].NodeID, first)
	}

	if len(e.Problems) == 1 {
		return fmt.Sprintf("%v: %s", ErrWorkflowInvalid, first)
	}

	return fmt.Sprintf("%v: %s (and %d more)", ErrWorkflowInvalid, first, len(e.Problems)-1)
}

func (e *InvalidWorkflowError) Is(target error) bool {
	return target == ErrWorkflowInvalid
}

// ConnectRequest adds an edge between two nodes of a workflow.
type ConnectRequest struct {
	From   string        `json:"from"             validate:"required"`
	To     string        `json:"to"               validate:"required"`
	Branch models.Branch `json:"branch,omitempty" validate:"omitempty,oneof=true false"`
}

type Workflow struct {
	persistence persistence.Persistence
	validate    *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns the workflows owned by a tenant.
func (w *Workflow) List(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	workflows, err := w.persistence.WorkflowRepository().GetAll(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow of the tenant. Workflows of other tenants are not found.
func (w *Workflow) FetchByID(ctx context.Context, tenantID, id string) (*models.Workflow, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}

	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInvalidID) {
			return nil, ErrWorkflowNotFound
		}

		return nil, err
	}

	if workflow == nil || workflow.TenantID != tenantID {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create adds a new workflow for the tenant. It gets a fresh id and, for
// webhook-triggered workflows, its ingestion URL.
func (w *Workflow) Create(ctx context.Context, tenantID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrInvalidRequest
	}

	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantRequired
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate workflow ID: %w", err)
	}

	now := time.Now().UTC()
	workflow.ID = id.String()
	workflow.TenantID = tenantID
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.Normalize()

	if err := w.check("Create", workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces the definition of an existing workflow.
func (w *Workflow) Update(
	ctx context.Context,
	tenantID string,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrInvalidRequest
	}

	existing, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = existing.ID
	workflow.TenantID = existing.TenantID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()
	workflow.WebhookURL = ""
	workflow.Normalize()

	if err := w.check("Update", workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow. Its executions are kept for history.
func (w *Workflow) Delete(ctx context.Context, tenantID, workflowID string) error {
	if _, err := w.FetchByID(ctx, tenantID, workflowID); err != nil {
		return err
	}

	err := w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Connect adds an edge with the builder rules of models.Workflow.Connect.
func (w *Workflow) Connect(ctx context.Context, tenantID, workflowID string, req ConnectRequest) (*models.Workflow, error) {
	if err := w.validate.Struct(req); err != nil {
		return nil, NewValidationError("Connect", "INVALID_CONNECTION", err.Error(), ErrInvalidConnection)
	}

	existing, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	if err := existing.Connect(req.From, req.To, req.Branch); err != nil {
		return nil, NewValidationError("Connect", "INVALID_CONNECTION", err.Error(), fmt.Errorf("%w: %w", ErrInvalidConnection, err))
	}

	return w.saveGraph(ctx, "Connect", existing)
}

// Disconnect removes every edge between two nodes.
func (w *Workflow) Disconnect(ctx context.Context, tenantID, workflowID, from, to string) (*models.Workflow, error) {
	existing, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	existing.Disconnect(from, to)

	return w.saveGraph(ctx, "Disconnect", existing)
}

// SetActive activates or deactivates a workflow. Activation requires a valid
// graph; deactivation only stops new executions, waiting ones still resume.
func (w *Workflow) SetActive(ctx context.Context, tenantID, workflowID string, active bool) (*models.Workflow, error) {
	existing, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.IsActive == active {
		return existing, nil
	}

	existing.IsActive = active

	return w.saveGraph(ctx, "SetActive", existing)
}

// Validate reports every problem of a stored workflow. An empty result means
// the workflow can be activated.
func (w *Workflow) Validate(ctx context.Context, tenantID, workflowID string) ([]Problem, error) {
	existing, err := w.FetchByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	return Problems(existing), nil
}

// Problems lists the graph and node problems of a workflow definition.
func Problems(wf *models.Workflow) []Problem {
	problems := []Problem{}

	for _, problem := range workflow.ValidateAll(wf) {
		problems = append(problems, Problem{NodeID: problem.NodeID, Message: problem.Err.Error()})
	}

	return problems
}

func (w *Workflow) saveGraph(ctx context.Context, op string, workflow *models.Workflow) (*models.Workflow, error) {
	workflow.UpdatedAt = time.Now().UTC()
	workflow.Normalize()

	if err := w.check(op, workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// check validates the document shape, and the full graph when the workflow is active.
func (w *Workflow) check(op string, workflow *models.Workflow) error {
	if err := w.validate.Struct(workflow); err != nil {
		return NewValidationError(op, "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	if !workflow.IsActive {
		return nil
	}

	if problems := Problems(workflow); len(problems) > 0 {
		return &InvalidWorkflowError{Problems: problems}
	}

	return nil
}
