// Package webhook starts webhook-triggered workflows from inbound HTTP bodies
// and routes correlation callbacks to executions suspended at
// wait_for_webhook nodes.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/workflow"
	"github.com/xeipuuv/gojsonschema"
)

var ErrNotWebhookWorkflow = errors.New("workflow is not started by a webhook trigger")

// Starter creates executions. *workflow.Engine implements it.
type Starter interface {
	Start(ctx context.Context, req workflow.StartRequest) (*models.Execution, error)
}

// SchemaError lists the reasons a body failed the trigger's payload_schema.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "payload does not match schema: " + strings.Join(e.Problems, "; ")
}

type Trigger struct {
	workflows persistence.WorkflowRepository
	engine    Starter
	logger    *slog.Logger
}

func NewTrigger(workflows persistence.WorkflowRepository, engine Starter) *Trigger {
	return &Trigger{
		workflows: workflows,
		engine:    engine,
		logger:    log.WithModule("webhook_trigger"),
	}
}

// Fire starts workflowID with body as trigger data. It returns once the
// execution finished or suspended.
func (t *Trigger) Fire(ctx context.Context, workflowID string, body map[string]any) (*models.Execution, error) {
	wf, err := t.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if wf == nil {
		return nil, persistence.NewWorkflowError("Fire", workflowID, persistence.ErrWorkflowNotFound)
	}

	wf.Normalize()

	node := wf.TriggerNode()
	if node == nil || node.Type != models.NodeTypeWebhookTrigger {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotWebhookWorkflow)
	}

	if !wf.IsActive {
		t.logger.InfoContext(ctx, "webhook ignored for inactive workflow", "workflow_id", workflowID)

		return nil, fmt.Errorf("workflow %s: %w", workflowID, workflow.ErrWorkflowInactive)
	}

	cfg, err := nodes.Decode(node.Type, node.Config)
	if err != nil {
		return nil, &workflow.ValidationError{NodeID: node.ID, Err: err}
	}

	if body == nil {
		body = map[string]any{}
	}

	if schema := cfg.(*nodes.WebhookTriggerConfig).PayloadSchema; len(schema) > 0 {
		if err := validatePayload(body, schema); err != nil {
			t.logger.InfoContext(ctx, "webhook payload rejected", "workflow_id", workflowID, "error", err)

			return nil, err
		}
	}

	return t.engine.Start(ctx, workflow.StartRequest{
		Workflow:    wf,
		TriggerData: body,
		Origin:      models.ActionOriginWebhook,
	})
}

func validatePayload(body, schema map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(body))
	if err != nil {
		return &SchemaError{Problems: []string{err.Error()}}
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return &SchemaError{Problems: problems}
}
