// Package workflow executes workflow graphs: it walks the graph from the
// trigger node, evaluates conditions, dispatches actions, suspends at wait
// nodes and resumes suspended executions.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/actions"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/eventbus"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/events"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/otelhelper"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/suspension"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxSteps = 500

// ActionExecutor runs action nodes. *actions.Dispatcher implements it.
type ActionExecutor interface {
	Execute(ctx context.Context, cfg nodes.Config, opts actions.Options) (actions.Result, error)
}

type Engine struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	actions    ActionExecutor
	suspension *suspension.Manager
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	now        func() time.Time
	maxSteps   int
	logger     *slog.Logger
}

type Option func(*Engine)

// WithPublisher publishes execution lifecycle events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxSteps bounds the node visits of one run, which stops cyclic graphs.
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

func NewEngine(p persistence.Persistence, executor ActionExecutor, manager *suspension.Manager, opts ...Option) *Engine {
	e := &Engine{
		workflows:  p.WorkflowRepository(),
		executions: p.ExecutionRepository(),
		actions:    executor,
		suspension: manager,
		tracer:     otelhelper.NoopTracer(),
		now:        func() time.Time { return time.Now().UTC() },
		maxSteps:   defaultMaxSteps,
		logger:     log.WithModule("engine"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StartRequest describes a trigger firing.
type StartRequest struct {
	Workflow    *models.Workflow
	TriggerData map[string]any
	Origin      models.ActionOrigin
	// Shadow runs every action as a dry run.
	Shadow     bool
	CallPolicy *models.CallPolicy
}

// Start creates an execution and runs it until it finishes or suspends.
// Node failures are recorded on the returned execution; the error is only
// set when the execution could not be created or persisted.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.Execution, error) {
	wf := req.Workflow
	if !wf.IsActive {
		return nil, fmt.Errorf("workflow %s: %w", wf.ID, ErrWorkflowInactive)
	}

	wf.Normalize()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution ID: %w", err)
	}

	now := e.now()
	execution := &models.Execution{
		ID:              id.String(),
		WorkflowID:      wf.ID,
		TenantID:        wf.TenantID,
		Status:          models.ExecutionStatusRunning,
		TriggerData:     req.TriggerData,
		ActionOrigin:    req.Origin,
		Shadow:          req.Shadow,
		ContextSnapshot: models.NewExecutionContext(req.TriggerData),
		Steps:           []models.Step{},
		CallPolicy:      req.CallPolicy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execution", executionAttributes(execution)...)
	defer span.End()

	trigger := wf.TriggerNode()
	if trigger != nil {
		execution.CurrentNodeID = trigger.ID
	}

	if err := e.executions.Create(ctx, execution); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	e.logger.InfoContext(ctx, "execution started",
		"workflow_id", wf.ID,
		"execution_id", execution.ID,
		"tenant_id", execution.TenantID,
		"action_origin", execution.ActionOrigin,
		"shadow", execution.Shadow,
	)

	e.publish(ctx, execution, events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, execution),
		ActionOrigin: execution.ActionOrigin,
		Shadow:       execution.Shadow,
		TriggerData:  execution.TriggerData,
	})

	if err := Validate(wf); err != nil {
		return execution, e.fail(ctx, execution, err)
	}

	e.record(execution, trigger, models.StepStatusSuccess, nil, nil, now)

	return execution, e.run(ctx, wf, execution, first(Next(trigger, wf.Connections, nil)))
}

// ResumeTimer continues an execution suspended at a wait node once its
// resume time has passed. It is a no-op for executions that are not due or
// no longer waiting.
func (e *Engine) ResumeTimer(ctx context.Context, executionID string) error {
	execution, err := e.load(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusWaiting || execution.Wait == nil ||
		execution.Wait.Kind != models.WaitKindTimer || !suspension.Due(execution.Wait, e.now()) {
		return nil
	}

	won, err := e.executions.Transition(ctx, execution.ID, models.ExecutionStatusWaiting, models.ExecutionStatusRunning)
	if err != nil || !won {
		return err
	}

	return e.resume(ctx, execution, nil)
}

// ResumeWithPayload continues an execution waiting for a webhook when
// payload carries its correlation key. It reports whether the execution was
// resumed; late, foreign-tenant and duplicate deliveries are ignored.
func (e *Engine) ResumeWithPayload(ctx context.Context, executionID, tenantID string, payload map[string]any) (bool, error) {
	execution, err := e.load(ctx, executionID)
	if err != nil {
		return false, err
	}

	wait := execution.Wait
	if execution.Status != models.ExecutionStatusWaiting || wait == nil || wait.Kind != models.WaitKindWebhook ||
		execution.TenantID != tenantID || suspension.Due(wait, e.now()) {
		return false, nil
	}

	if value, ok := payload[wait.MatchField.PayloadKey()]; !ok || suspension.MatchValue(value) != wait.MatchValue {
		return false, nil
	}

	won, err := e.executions.Transition(ctx, execution.ID, models.ExecutionStatusWaiting, models.ExecutionStatusRunning)
	if err != nil || !won {
		return false, err
	}

	e.suspension.Release(ctx, execution)

	execution.ContextSnapshot.Set(models.NamespaceWebhook, payload)

	for key, value := range payload {
		execution.ContextSnapshot.SetAbsent(key, value)
	}

	return true, e.resume(ctx, execution, payload)
}

// Timeout fails an execution whose wait_for_webhook deadline elapsed. An
// execution that was resumed first is left alone.
func (e *Engine) Timeout(ctx context.Context, executionID string) error {
	execution, err := e.load(ctx, executionID)
	if err != nil {
		return err
	}

	wait := execution.Wait
	if execution.Status != models.ExecutionStatusWaiting || wait == nil ||
		wait.Kind != models.WaitKindWebhook || !suspension.Due(wait, e.now()) {
		return nil
	}

	won, err := e.executions.Transition(ctx, execution.ID, models.ExecutionStatusWaiting, models.ExecutionStatusFailed)
	if err != nil || !won {
		return err
	}

	e.suspension.Release(ctx, execution)

	timeoutErr := &WebhookTimeoutError{
		NodeID:     execution.CurrentNodeID,
		MatchField: wait.MatchField,
		MatchValue: wait.MatchValue,
		Deadline:   *wait.Deadline,
	}

	now := e.now()
	execution.Steps = append(execution.Steps, models.Step{
		NodeID:     execution.CurrentNodeID,
		NodeType:   models.NodeTypeWaitForWebhook,
		Status:     models.StepStatusFailed,
		Error:      timeoutErr.Error(),
		StartedAt:  now,
		FinishedAt: now,
	})

	return e.fail(ctx, execution, timeoutErr)
}

func (e *Engine) load(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution == nil {
		return nil, persistence.NewExecutionError("Load", executionID, persistence.ErrExecutionNotFound)
	}

	return execution, nil
}

// resume continues after the node the execution is suspended at. The caller
// has already won the waiting -> running transition.
func (e *Engine) resume(ctx context.Context, execution *models.Execution, payload map[string]any) error {
	kind := execution.Wait.Kind

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.resume", executionAttributes(execution)...)
	defer span.End()

	execution.Status = models.ExecutionStatusRunning
	execution.Wait = nil

	wf, err := e.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return e.fail(ctx, execution, err)
	}

	if wf == nil {
		return e.fail(ctx, execution, &ValidationError{Err: persistence.ErrWorkflowNotFound})
	}

	wf.Normalize()

	node := wf.Node(execution.CurrentNodeID)
	if node == nil {
		return e.fail(ctx, execution, &ValidationError{NodeID: execution.CurrentNodeID, Err: models.ErrNodeNotFound})
	}

	now := e.now()
	output := map[string]any{"resumed_by": string(kind)}

	if payload != nil {
		output["payload"] = payload
	}

	e.record(execution, node, models.StepStatusSuccess, output, nil, now)

	e.logger.InfoContext(ctx, "execution resumed", "execution_id", execution.ID, "node_id", node.ID, "kind", kind)
	e.publish(ctx, execution, events.ExecutionResumed{
		BaseEvent: events.NewBaseEvent(events.ExecutionResumedEvent, execution),
		NodeID:    node.ID,
		Kind:      kind,
	})

	return e.run(ctx, wf, execution, first(Next(node, wf.Connections, nil)))
}

func (e *Engine) succeed(ctx context.Context, execution *models.Execution) error {
	now := e.now()
	execution.Status = models.ExecutionStatusSuccess
	execution.UpdatedAt = now
	execution.CompletedAt = &now

	if err := e.executions.Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	e.logger.InfoContext(ctx, "execution succeeded", "execution_id", execution.ID, "steps", len(execution.Steps))
	e.publish(ctx, execution, events.ExecutionSucceeded{
		BaseEvent: events.NewBaseEvent(events.ExecutionSucceededEvent, execution),
		Duration:  now.Sub(execution.CreatedAt),
	})

	return nil
}

// fail records cause on the execution and ends it as failed. Only
// infrastructure errors are returned to the caller.
func (e *Engine) fail(ctx context.Context, execution *models.Execution, cause error) error {
	kind, nodeID := failureOf(cause, execution.CurrentNodeID)

	now := e.now()
	execution.Status = models.ExecutionStatusFailed
	execution.FailedNodeID = nodeID
	execution.Error = &models.ExecutionError{Kind: kind, Message: cause.Error()}
	execution.UpdatedAt = now
	execution.CompletedAt = &now

	span := trace.SpanFromContext(ctx)
	otelhelper.SetError(span, cause, attribute.String(otelhelper.NodeIDKey, nodeID))

	saveErr := e.executions.Save(ctx, execution)

	e.logger.WarnContext(ctx, "execution failed",
		"execution_id", execution.ID,
		"node_id", nodeID,
		"kind", kind,
		"error", cause,
	)

	e.publish(ctx, execution, events.ExecutionFailed{
		BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, execution),
		NodeID:    nodeID,
		Kind:      kind,
		Error:     cause.Error(),
	})

	if saveErr != nil {
		return errors.Join(fmt.Errorf("failed to save execution: %w", saveErr), cause)
	}

	if kind == models.ErrorKindInternal {
		return cause
	}

	return nil
}

func (e *Engine) publish(ctx context.Context, execution *models.Execution, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, execution.ID, event); err != nil {
		e.logger.WarnContext(ctx, "failed to publish event", "execution_id", execution.ID, "event_type", event.GetType(), "error", err)
	}
}

func executionAttributes(execution *models.Execution) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.TenantIDKey, execution.TenantID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.ActionOriginKey, string(execution.ActionOrigin)),
		attribute.Bool(otelhelper.ShadowKey, execution.Shadow),
	}
}
