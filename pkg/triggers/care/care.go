// Package care starts care_trigger workflows from customer-care events. It
// enforces tenant isolation before any execution is created.
package care

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/eventbus"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/events"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

// Skip reasons reported for workflows that did not run.
const (
	SkipTenantMismatch = "tenant_mismatch"
	SkipDisabled       = "disabled"
	SkipInvalidTrigger = "invalid_trigger"
)

// Starter creates executions. *workflow.Engine implements it.
type Starter interface {
	Start(ctx context.Context, req workflow.StartRequest) (*models.Execution, error)
}

// Outcome reports what one care_trigger workflow did with an event.
type Outcome struct {
	WorkflowID  string                 `json:"workflow_id"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Status      models.ExecutionStatus `json:"status,omitempty"`
	Shadow      bool                   `json:"shadow,omitempty"`
	Skipped     string                 `json:"skipped,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

type Trigger struct {
	workflows persistence.WorkflowRepository
	engine    Starter
	emails    *EmailResolver
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewTrigger(workflows persistence.WorkflowRepository, engine Starter, store crm.Store) *Trigger {
	return &Trigger{
		workflows: workflows,
		engine:    engine,
		emails:    NewEmailResolver(store),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    log.WithModule("care_trigger"),
	}
}

// Handle routes event to every active care_trigger workflow. Workflows of
// other tenants, disabled triggers and invalid triggers are skipped. A
// workflow that fails to start is reported in its Outcome and does not fail
// the event: the others may already have executions, and a redelivery
// would start them again.
func (t *Trigger) Handle(ctx context.Context, event models.CareEvent) ([]Outcome, error) {
	if err := t.validate.Struct(event); err != nil {
		return nil, &workflow.ValidationError{Err: fmt.Errorf("invalid care event: %w", err)}
	}

	candidates, err := t.workflows.FindActiveByTrigger(ctx, models.NodeTypeCareTrigger)
	if err != nil {
		return nil, fmt.Errorf("failed to list care workflows: %w", err)
	}

	var (
		outcomes = []Outcome{}
		email    *string
	)

	for _, wf := range candidates {
		wf.Normalize()

		cfg, node, err := triggerConfig(wf)
		if err != nil {
			t.logger.WarnContext(ctx, "care trigger misconfigured", "workflow_id", wf.ID, "error", err)
			outcomes = append(outcomes, Outcome{WorkflowID: wf.ID, Skipped: SkipInvalidTrigger})

			continue
		}

		if cfg.TenantID != event.TenantID {
			mismatch := &workflow.TenantMismatchError{WorkflowID: wf.ID, EventTenantID: event.TenantID, ExpectedTenantID: cfg.TenantID}
			t.logger.InfoContext(ctx, "care event discarded", "error", mismatch)
			outcomes = append(outcomes, Outcome{WorkflowID: wf.ID, Skipped: SkipTenantMismatch})

			continue
		}

		if !cfg.Enabled() {
			t.logger.InfoContext(ctx, "care trigger disabled, event discarded", "workflow_id", wf.ID, "node_id", node.ID)
			outcomes = append(outcomes, Outcome{WorkflowID: wf.ID, Skipped: SkipDisabled})

			continue
		}

		if email == nil {
			resolved, err := t.emails.Resolve(ctx, event.TenantID, event.EntityType, event.EntityID)
			if err != nil {
				return outcomes, fmt.Errorf("failed to resolve email: %w", err)
			}

			email = &resolved
		}

		execution, err := t.start(ctx, wf, cfg, event, *email)
		if err != nil {
			t.logger.ErrorContext(ctx, "care workflow failed to start",
				"workflow_id", wf.ID,
				"tenant_id", event.TenantID,
				"error", err,
			)

			outcome := Outcome{WorkflowID: wf.ID, Status: models.ExecutionStatusFailed, Error: err.Error()}
			if execution != nil {
				outcome.ExecutionID = execution.ID
			}

			outcomes = append(outcomes, outcome)

			continue
		}

		outcomes = append(outcomes, Outcome{
			WorkflowID:  wf.ID,
			ExecutionID: execution.ID,
			Status:      execution.Status,
			Shadow:      execution.Shadow,
		})
	}

	return outcomes, nil
}

// Fire delivers event to a single workflow. A tenant mismatch returns a
// *workflow.TenantMismatchError and creates nothing; a disabled trigger
// returns nil, nil.
func (t *Trigger) Fire(ctx context.Context, wf *models.Workflow, event models.CareEvent) (*models.Execution, error) {
	if err := t.validate.Struct(event); err != nil {
		return nil, &workflow.ValidationError{Err: fmt.Errorf("invalid care event: %w", err)}
	}

	wf.Normalize()

	cfg, node, err := triggerConfig(wf)
	if err != nil {
		return nil, err
	}

	if cfg.TenantID != event.TenantID {
		return nil, &workflow.TenantMismatchError{WorkflowID: wf.ID, EventTenantID: event.TenantID, ExpectedTenantID: cfg.TenantID}
	}

	if !cfg.Enabled() {
		t.logger.InfoContext(ctx, "care trigger disabled, event discarded", "workflow_id", wf.ID, "node_id", node.ID)

		return nil, nil
	}

	email, err := t.emails.Resolve(ctx, event.TenantID, event.EntityType, event.EntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve email: %w", err)
	}

	return t.start(ctx, wf, cfg, event, email)
}

// EventHandler consumes CARE events from the event bus.
func (t *Trigger) EventHandler() eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		received, ok := event.(*events.CareEventReceived)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		outcomes, err := t.Handle(ctx, received.CareEvent)

		var invalid *workflow.ValidationError
		if errors.As(err, &invalid) {
			// Redelivery cannot fix a malformed event.
			t.logger.WarnContext(ctx, "care event dropped", "error", err)

			return nil
		}

		t.logger.InfoContext(ctx, "care event handled", "tenant_id", received.TenantID, "workflows", len(outcomes))

		return err
	}
}

func (t *Trigger) start(ctx context.Context, wf *models.Workflow, cfg *nodes.CareTriggerConfig, event models.CareEvent, email string) (*models.Execution, error) {
	if email == "" {
		t.logger.WarnContext(ctx, "no email resolved for care event",
			"workflow_id", wf.ID,
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
		)
	}

	return t.engine.Start(ctx, workflow.StartRequest{
		Workflow:    wf,
		TriggerData: event.Payload(email),
		Origin:      models.ActionOriginCare,
		Shadow:      cfg.ShadowMode,
		CallPolicy:  cfg.CallPolicy(),
	})
}

func triggerConfig(wf *models.Workflow) (*nodes.CareTriggerConfig, *models.Node, error) {
	node := wf.TriggerNode()
	if node == nil || node.Type != models.NodeTypeCareTrigger {
		return nil, nil, &workflow.ValidationError{Err: workflow.ErrNoTriggerNode}
	}

	cfg, err := nodes.Decode(node.Type, node.Config)
	if err != nil {
		return nil, node, &workflow.ValidationError{NodeID: node.ID, Err: err}
	}

	return cfg.(*nodes.CareTriggerConfig), node, nil
}
