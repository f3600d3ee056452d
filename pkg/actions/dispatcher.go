// Package actions executes the side-effecting workflow nodes against the CRM,
// messaging, AI and HTTP collaborators.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/ai"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/messaging"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/roster"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/outbound"
)

var (
	// ErrNotAction is returned for trigger and control node configurations,
	// which the engine handles itself.
	ErrNotAction     = errors.New("node is not an action")
	ErrNotConfigured = errors.New("collaborator not configured")
	ErrEntityMissing = errors.New("entity not found")
)

// Options carries the per-execution settings an action needs.
type Options struct {
	TenantID string
	// Shadow turns every mutating or outbound action into a logged dry run.
	Shadow bool
	// ContinueOnHTTPError records non-2xx HTTP responses instead of failing.
	ContinueOnHTTPError bool
	// Context is the execution context so far. Handlers only read it.
	Context models.ExecutionContext
}

// Result is the value an action writes into the execution context. Nothing
// is written when Namespace is empty.
type Result struct {
	Namespace string
	Value     map[string]any
	// Output replaces Value in the step record when set.
	Output map[string]any
	Shadow bool
}

// StepOutput returns what the step record keeps for this result.
func (r Result) StepOutput() map[string]any {
	if r.Output != nil {
		return r.Output
	}

	return r.Value
}

// Dependencies lists the collaborators used by the handlers. Any of them may
// be nil; nodes needing a missing collaborator fail with ErrNotConfigured.
type Dependencies struct {
	CRM       crm.Store
	Roster    *roster.Roster
	AI        ai.Invoker
	Messaging messaging.Sender
	HTTP      *outbound.Client
}

type Dispatcher struct {
	deps   Dependencies
	jq     *queryCache
	logger *slog.Logger
}

func NewDispatcher(deps Dependencies) *Dispatcher {
	if deps.HTTP == nil {
		deps.HTTP = outbound.NewClient()
	}

	if deps.Roster == nil && deps.CRM != nil {
		deps.Roster = roster.New(deps.CRM, nil)
	}

	return &Dispatcher{
		deps:   deps,
		jq:     newQueryCache(),
		logger: log.WithModule("actions"),
	}
}

// Execute runs the action for a resolved, typed node configuration.
func (d *Dispatcher) Execute(ctx context.Context, cfg nodes.Config, opts Options) (Result, error) {
	switch c := cfg.(type) {
	case *nodes.FindRecordConfig:
		return d.findRecord(ctx, c, opts)
	case *nodes.CreateRecordConfig:
		return d.createRecord(ctx, c, opts)
	case *nodes.UpdateRecordConfig:
		return d.updateRecord(ctx, c, opts)
	case *nodes.CreateNoteConfig:
		return d.createNote(ctx, c, opts)
	case *nodes.AssignRecordConfig:
		return d.assignRecord(ctx, c, opts)
	case *nodes.HTTPRequestConfig:
		return d.httpRequest(ctx, c, opts)
	case *nodes.SendEmailConfig:
		return d.sendEmail(ctx, c, opts)
	case *nodes.SendSMSConfig:
		return d.sendSMS(ctx, c, opts)
	case *nodes.InitiateCallConfig:
		return d.initiateCall(ctx, c, opts)
	case *nodes.AgentMessageConfig:
		return d.agentMessage(ctx, c, opts)
	case *nodes.AIConfig:
		return d.invokeAI(ctx, c, opts)
	case *nodes.WebhookTriggerConfig, *nodes.CareTriggerConfig,
		*nodes.ConditionConfig, *nodes.WaitConfig, *nodes.WaitForWebhookConfig:
		return Result{}, fmt.Errorf("%w: %s", ErrNotAction, cfg.Kind())
	default:
		return Result{}, fmt.Errorf("%w: %T", ErrNotAction, cfg)
	}
}

// IsAction reports whether Execute handles nodeType.
func IsAction(nodeType models.NodeType) bool {
	switch nodeType {
	case models.NodeTypeWebhookTrigger, models.NodeTypeCareTrigger,
		models.NodeTypeCondition, models.NodeTypeWait, models.NodeTypeWaitForWebhook:
		return false
	default:
		return nodeType.Known()
	}
}
