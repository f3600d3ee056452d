package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/actions"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/events"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/otelhelper"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/outbound"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/template"
	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/otel/attribute"
)

// run walks the graph from nodeID until the path ends, a node suspends the
// execution or a node fails. Progress is checkpointed after every node.
func (e *Engine) run(ctx context.Context, wf *models.Workflow, execution *models.Execution, nodeID string) error {
	ctx = outbound.WithPolicy(ctx, execution.CallPolicy)

	for visited := 0; nodeID != ""; visited++ {
		if visited >= e.maxSteps {
			return e.fail(ctx, execution, &ValidationError{NodeID: nodeID, Err: ErrStepLimit})
		}

		node := wf.Node(nodeID)
		if node == nil {
			return e.fail(ctx, execution, &ValidationError{NodeID: nodeID, Err: models.ErrNodeNotFound})
		}

		execution.CurrentNodeID = node.ID

		next, suspended, err := e.step(ctx, wf, execution, node)
		if err != nil {
			return e.fail(ctx, execution, err)
		}

		if suspended {
			return nil
		}

		execution.UpdatedAt = e.now()
		if err := e.executions.Save(ctx, execution); err != nil {
			return fmt.Errorf("failed to checkpoint execution: %w", err)
		}

		nodeID = next
	}

	return e.succeed(ctx, execution)
}

// step processes one node and returns the node to visit next. suspended is
// true when the execution was parked at node.
func (e *Engine) step(ctx context.Context, wf *models.Workflow, execution *models.Execution, node *models.Node) (next string, suspended bool, err error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	started := e.now()

	cfg, err := resolve(node, execution.ContextSnapshot)
	if err != nil {
		e.record(execution, node, models.StepStatusFailed, nil, err, started)

		return "", false, &ValidationError{NodeID: node.ID, Err: err}
	}

	switch c := cfg.(type) {
	case *nodes.ConditionConfig:
		result := nodes.Evaluate(c, execution.ContextSnapshot)
		e.record(execution, node, models.StepStatusSuccess, map[string]any{
			"result": result,
			"branch": string(models.BranchOf(result)),
		}, nil, started)

		return first(Next(node, wf.Connections, &result)), false, nil

	case *nodes.WaitConfig:
		if execution.Shadow {
			return e.skipWait(ctx, wf, execution, node, cfg, started)
		}

		return "", true, e.suspend(ctx, execution, node, e.suspension.TimerWait(c), started)

	case *nodes.WaitForWebhookConfig:
		if execution.Shadow {
			return e.skipWait(ctx, wf, execution, node, cfg, started)
		}

		wait, err := e.suspension.WebhookWait(c, execution.ContextSnapshot)
		if err != nil {
			e.record(execution, node, models.StepStatusFailed, nil, err, started)

			return "", false, &ValidationError{NodeID: node.ID, Err: err}
		}

		return "", true, e.suspend(ctx, execution, node, wait, started)

	case *nodes.WebhookTriggerConfig, *nodes.CareTriggerConfig:
		err := fmt.Errorf("trigger node %s is only valid as the entry point", node.Type)
		e.record(execution, node, models.StepStatusFailed, nil, err, started)

		return "", false, &ValidationError{NodeID: node.ID, Err: err}
	}

	result, err := e.actions.Execute(ctx, cfg, actions.Options{
		TenantID:            execution.TenantID,
		Shadow:              execution.Shadow,
		ContinueOnHTTPError: wf.ContinueOnHTTPError(),
		Context:             execution.ContextSnapshot,
	})
	if err != nil {
		e.record(execution, node, models.StepStatusFailed, nil, err, started)
		otelhelper.SetError(span, err)

		return "", false, &ActionError{
			NodeID:    node.ID,
			NodeType:  node.Type,
			Retryable: outbound.IsTransient(err),
			Err:       err,
		}
	}

	if result.Namespace != "" {
		execution.ContextSnapshot.Set(result.Namespace, result.Value)
	}

	e.record(execution, node, models.StepStatusSuccess, result.StepOutput(), nil, started)

	return first(Next(node, wf.Connections, nil)), false, nil
}

// resolve turns a stored node configuration into its typed form. Condition
// operands are resolved by the evaluator, every other node is resolved
// against the execution context first.
func resolve(node *models.Node, ctx models.ExecutionContext) (nodes.Config, error) {
	if node.Type == models.NodeTypeCondition {
		return nodes.Decode(node.Type, template.NormalizeConfig(node.Config))
	}

	return nodes.Decode(node.Type, template.ResolveConfig(nodes.PrepareConfig(node.Type, node.Config), ctx))
}

func (e *Engine) suspend(ctx context.Context, execution *models.Execution, node *models.Node, wait *models.Wait, started time.Time) error {
	output := map[string]any{"kind": string(wait.Kind)}

	if wait.ResumeAt != nil {
		output["resume_at"] = wait.ResumeAt.Format(time.RFC3339Nano)
	}

	if wait.Kind == models.WaitKindWebhook {
		output["match_field"] = string(wait.MatchField)
		output["match_value"] = wait.MatchValue
		output["deadline"] = wait.Deadline.Format(time.RFC3339Nano)
	}

	e.record(execution, node, models.StepStatusSuspended, output, nil, started)

	if err := e.suspension.Suspend(ctx, execution, node.ID, wait); err != nil {
		return err
	}

	e.publish(ctx, execution, events.ExecutionWaiting{
		BaseEvent: events.NewBaseEvent(events.ExecutionWaitingEvent, execution),
		NodeID:    node.ID,
		Wait:      wait,
	})

	return nil
}

// skipWait records the suspension a shadow execution would have entered and
// continues immediately.
func (e *Engine) skipWait(ctx context.Context, wf *models.Workflow, execution *models.Execution, node *models.Node, cfg nodes.Config, started time.Time) (string, bool, error) {
	wouldExecute := map[string]any{}
	if err := mapstructure.Decode(cfg, &wouldExecute); err != nil {
		return "", false, fmt.Errorf("failed to describe %s: %w", node.Type, err)
	}

	e.logger.InfoContext(ctx, "shadow mode: wait skipped", "execution_id", execution.ID, "node_id", node.ID)

	e.record(execution, node, models.StepStatusSuccess, map[string]any{
		"shadow":        true,
		"action":        string(node.Type),
		"would_execute": wouldExecute,
	}, nil, started)

	return first(Next(node, wf.Connections, nil)), false, nil
}

func (e *Engine) record(execution *models.Execution, node *models.Node, status models.StepStatus, output map[string]any, err error, started time.Time) {
	step := models.Step{
		NodeID:     node.ID,
		NodeType:   node.Type,
		Status:     status,
		Output:     output,
		Shadow:     output["shadow"] == true,
		StartedAt:  started,
		FinishedAt: e.now(),
	}

	if err != nil {
		step.Error = err.Error()
	}

	execution.Steps = append(execution.Steps, step)
}
