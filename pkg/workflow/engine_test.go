package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/actions"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/events"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/messaging"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/mocks"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence/file"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/suspension"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const tenant = "tenant-a"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type harness struct {
	engine      *Engine
	persistence *file.Persistence
	manager     *suspension.Manager
	publisher   *mocks.RecordingPublisher
	clock       *clock
}

func newHarness(t *testing.T, deps actions.Dependencies, opts ...Option) *harness {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	c := &clock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	manager := suspension.NewManager(p.ExecutionRepository(), suspension.WithClock(c.Now))
	publisher := &mocks.RecordingPublisher{}

	opts = append([]Option{WithPublisher(publisher), WithClock(c.Now)}, opts...)

	return &harness{
		engine:      NewEngine(p, actions.NewDispatcher(deps), manager, opts...),
		persistence: p,
		manager:     manager,
		publisher:   publisher,
		clock:       c,
	}
}

// save normalizes and stores wf, which resumes need to reload it.
func (h *harness) save(t *testing.T, wf *models.Workflow) *models.Workflow {
	t.Helper()

	wf.Normalize()
	require.NoError(t, h.persistence.WorkflowRepository().Save(context.Background(), wf))

	return wf
}

func (h *harness) reload(t *testing.T, id string) *models.Execution {
	t.Helper()

	execution, err := h.persistence.ExecutionRepository().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, execution)

	return execution
}

type edge struct {
	from, to string
	branch   models.Branch
}

func newWorkflow(t *testing.T, id string, trigger models.NodeType, nodeList []*models.Node, edges ...edge) *models.Workflow {
	t.Helper()

	wf := &models.Workflow{
		ID:       id,
		TenantID: tenant,
		Name:     "workflow " + id,
		IsActive: true,
		Nodes:    append([]*models.Node{{ID: "trigger", Type: trigger, Config: map[string]any{}}}, nodeList...),
	}

	for _, e := range edges {
		require.NoError(t, wf.Connect(e.from, e.to, e.branch))
	}

	return wf
}

func stepIDs(execution *models.Execution) []string {
	ids := make([]string, 0, len(execution.Steps))
	for _, step := range execution.Steps {
		ids = append(ids, step.NodeID)
	}

	return ids
}

func qualificationWorkflow(t *testing.T) *models.Workflow {
	t.Helper()

	return newWorkflow(t, "wf-qualify", models.NodeTypeWebhookTrigger, []*models.Node{
		{ID: "find", Type: models.NodeTypeFindLead, Config: map[string]any{
			"search_field": "email",
			"search_value": "{{email}}",
		}},
		{ID: "check", Type: models.NodeTypeCondition, Config: map[string]any{
			"field":    "lead.status",
			"operator": "equals",
			"value":    "qualified",
		}},
		{ID: "deal", Type: models.NodeTypeCreateOpportunity, Config: map[string]any{
			"field_mappings": []any{
				map[string]any{"key": "name", "value": "{{lead.company}} deal"},
				map[string]any{"key": "lead_id", "value": "{{lead.id}}"},
			},
		}},
		{ID: "nurture", Type: models.NodeTypeUpdateLead, Config: map[string]any{
			"fields": map[string]any{"status": "contacted"},
		}},
	},
		edge{"trigger", "find", ""},
		edge{"find", "check", ""},
		edge{"check", "deal", models.BranchTrue},
		edge{"check", "nurture", models.BranchFalse},
	)
}

func TestEngine_WebhookConditionBranches(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		lead       crm.Record
		wantBranch string
		wantSteps  []string
	}{
		{
			name:       "qualified lead gets an opportunity",
			lead:       crm.Record{"id": "l-1", "email": "ann@acme.io", "status": "qualified", "company": "Acme"},
			wantBranch: "true",
			wantSteps:  []string{"trigger", "find", "check", "deal"},
		},
		{
			name:       "new lead is marked contacted",
			lead:       crm.Record{"id": "l-1", "email": "ann@acme.io", "status": "new", "company": "Acme"},
			wantBranch: "false",
			wantSteps:  []string{"trigger", "find", "check", "nurture"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := crm.NewMemoryStore()
			store.Seed(tenant, models.EntityLead, tt.lead)

			h := newHarness(t, actions.Dependencies{CRM: store})
			wf := h.save(t, qualificationWorkflow(t))

			execution, err := h.engine.Start(ctx, StartRequest{
				Workflow:    wf,
				TriggerData: map[string]any{"email": "ann@acme.io"},
				Origin:      models.ActionOriginWebhook,
			})
			require.NoError(t, err)

			assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
			assert.Equal(t, tt.wantSteps, stepIDs(execution))
			assert.Equal(t, tt.wantBranch, execution.Steps[2].Output["branch"])
			assert.NotNil(t, execution.CompletedAt)

			stored := h.reload(t, execution.ID)
			assert.Equal(t, models.ExecutionStatusSuccess, stored.Status)
			assert.Len(t, stored.Steps, len(tt.wantSteps))

			deal, dealErr := store.Find(ctx, tenant, models.EntityOpportunity, "lead_id", "l-1")
			lead, err := store.Get(ctx, tenant, models.EntityLead, "l-1")
			require.NoError(t, err)

			if tt.wantBranch == "true" {
				require.NoError(t, dealErr)
				assert.Equal(t, "Acme deal", deal["name"])
				assert.Equal(t, "qualified", lead["status"])
			} else {
				require.ErrorIs(t, dealErr, crm.ErrNotFound)
				assert.Equal(t, "contacted", lead["status"])
			}

			assert.Equal(t, []events.EventType{events.ExecutionStartedEvent, events.ExecutionSucceededEvent}, h.publisher.Types())
		})
	}
}

func TestEngine_StartRejectsInactiveWorkflow(t *testing.T) {
	h := newHarness(t, actions.Dependencies{CRM: crm.NewMemoryStore()})
	wf := qualificationWorkflow(t)
	wf.IsActive = false

	execution, err := h.engine.Start(context.Background(), StartRequest{Workflow: wf, Origin: models.ActionOriginWebhook})
	require.ErrorIs(t, err, ErrWorkflowInactive)
	assert.Nil(t, execution)
	assert.Empty(t, h.publisher.Types())
}

func TestEngine_InvalidNodeFailsExecution(t *testing.T) {
	h := newHarness(t, actions.Dependencies{CRM: crm.NewMemoryStore()})
	wf := h.save(t, newWorkflow(t, "wf-invalid", models.NodeTypeWebhookTrigger, []*models.Node{
		{ID: "check", Type: models.NodeTypeCondition, Config: map[string]any{"field": "status", "operator": "between"}},
	}, edge{"trigger", "check", ""}))

	execution, err := h.engine.Start(context.Background(), StartRequest{Workflow: wf, Origin: models.ActionOriginManual})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "check", execution.FailedNodeID)
	require.NotNil(t, execution.Error)
	assert.Equal(t, models.ErrorKindValidation, execution.Error.Kind)
	assert.Empty(t, execution.Steps)
	assert.Equal(t, []events.EventType{events.ExecutionStartedEvent, events.ExecutionFailedEvent}, h.publisher.Types())
}

func TestEngine_ActionFailureHaltsPath(t *testing.T) {
	h := newHarness(t, actions.Dependencies{CRM: crm.NewMemoryStore()})
	wf := h.save(t, qualificationWorkflow(t))

	execution, err := h.engine.Start(context.Background(), StartRequest{
		Workflow:    wf,
		TriggerData: map[string]any{"email": "nobody@acme.io"},
		Origin:      models.ActionOriginWebhook,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "find", execution.FailedNodeID)
	assert.Equal(t, models.ErrorKindAction, execution.Error.Kind)
	assert.Contains(t, execution.Error.Message, "not found")
	assert.Equal(t, []string{"trigger", "find"}, stepIDs(execution))
	assert.Equal(t, models.StepStatusFailed, execution.Steps[1].Status)
}

func TestEngine_StepLimitStopsCycles(t *testing.T) {
	h := newHarness(t, actions.Dependencies{}, WithMaxSteps(5))

	always := map[string]any{"field": "status", "operator": "equals", "value": "open"}
	wf := h.save(t, newWorkflow(t, "wf-cycle", models.NodeTypeWebhookTrigger, []*models.Node{
		{ID: "a", Type: models.NodeTypeCondition, Config: always},
		{ID: "b", Type: models.NodeTypeCondition, Config: always},
	},
		edge{"trigger", "a", ""},
		edge{"a", "b", models.BranchTrue},
		edge{"b", "a", models.BranchTrue},
	))

	execution, err := h.engine.Start(context.Background(), StartRequest{
		Workflow:    wf,
		TriggerData: map[string]any{"status": "open"},
		Origin:      models.ActionOriginManual,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, models.ErrorKindValidation, execution.Error.Kind)
	assert.Contains(t, execution.Error.Message, ErrStepLimit.Error())
	assert.Len(t, execution.Steps, 6)
}

func waitWorkflow(t *testing.T) *models.Workflow {
	t.Helper()

	return newWorkflow(t, "wf-wait", models.NodeTypeWebhookTrigger, []*models.Node{
		{ID: "pause", Type: models.NodeTypeWait, Config: map[string]any{"duration_value": 2, "duration_unit": "minutes"}},
		{ID: "create", Type: models.NodeTypeCreateLead, Config: map[string]any{
			"field_mappings": map[string]any{"email": "{{email}}"},
		}},
	},
		edge{"trigger", "pause", ""},
		edge{"pause", "create", ""},
	)
}

func TestEngine_WaitResumesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := &mocks.MockCRMStore{}
	store.On("Create", mock.Anything, tenant, models.EntityLead, map[string]any{"email": "ann@acme.io"}).
		Return(crm.Record{"id": "l-9", "email": "ann@acme.io"}, nil)

	h := newHarness(t, actions.Dependencies{CRM: store})
	wf := h.save(t, waitWorkflow(t))

	execution, err := h.engine.Start(ctx, StartRequest{
		Workflow:    wf,
		TriggerData: map[string]any{"email": "ann@acme.io"},
		Origin:      models.ActionOriginWebhook,
	})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusWaiting, execution.Status)
	require.NotNil(t, execution.Wait)
	assert.Equal(t, models.WaitKindTimer, execution.Wait.Kind)
	assert.Equal(t, h.clock.Now().Add(2*time.Minute), *execution.Wait.ResumeAt)
	assert.Equal(t, "pause", execution.CurrentNodeID)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.engine.ResumeTimer(ctx, execution.ID))
	assert.Equal(t, models.ExecutionStatusWaiting, h.reload(t, execution.ID).Status, "not due yet")

	h.clock.Advance(2 * time.Minute)

	var wg sync.WaitGroup

	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			errs[i] = h.engine.ResumeTimer(ctx, execution.ID)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	resumed := h.reload(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)
	assert.Nil(t, resumed.Wait)
	assert.Equal(t, []string{"trigger", "pause", "pause", "create"}, stepIDs(resumed))
	assert.Equal(t, models.StepStatusSuspended, resumed.Steps[1].Status)
	store.AssertNumberOfCalls(t, "Create", 1)

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.ExecutionWaitingEvent,
		events.ExecutionResumedEvent,
		events.ExecutionSucceededEvent,
	}, h.publisher.Types())
}

func callWorkflow(t *testing.T) *models.Workflow {
	t.Helper()

	return newWorkflow(t, "wf-call", models.NodeTypeCareTrigger, []*models.Node{
		{ID: "call", Type: models.NodeTypeInitiateCall, Config: map[string]any{"to": "{{phone}}", "script": "follow up"}},
		{ID: "await", Type: models.NodeTypeWaitForWebhook, Config: map[string]any{"match_field": "call_id", "timeout_minutes": 5}},
		{ID: "record", Type: models.NodeTypeCreateLead, Config: map[string]any{
			"field_mappings": map[string]any{"email": "{{email}}", "call_outcome": "{{webhook.outcome}}"},
		}},
	},
		edge{"trigger", "call", ""},
		edge{"call", "await", ""},
		edge{"await", "record", ""},
	)
}

func startCall(t *testing.T, h *harness) *models.Execution {
	t.Helper()

	wf := callWorkflow(t)
	wf.Nodes[0].Config = map[string]any{"tenant_id": tenant}
	h.save(t, wf)

	execution, err := h.engine.Start(context.Background(), StartRequest{
		Workflow:    wf,
		TriggerData: map[string]any{"email": "ann@acme.io", "phone": "+15550100"},
		Origin:      models.ActionOriginCare,
	})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusWaiting, execution.Status)

	return execution
}

func callSender() *mocks.MockSender {
	sender := &mocks.MockSender{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(msg messaging.Message) bool {
		return msg.Channel == messaging.ChannelCall && msg.To == "+15550100"
	})).Return(messaging.Dispatch{ID: "call-1", Status: "queued"}, nil)

	return sender
}

func TestEngine_WaitForWebhookResumesOnCorrelatedPayload(t *testing.T) {
	ctx := context.Background()
	store := crm.NewMemoryStore()
	h := newHarness(t, actions.Dependencies{CRM: store, Messaging: callSender()})

	execution := startCall(t, h)
	assert.Equal(t, models.MatchFieldCallID, execution.Wait.MatchField)
	assert.Equal(t, "call-1", execution.Wait.MatchValue)

	matches, err := h.manager.Candidates(ctx, tenant, map[string]any{"call_id": "call-1"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, execution.ID, matches[0].ExecutionID)

	resumed, err := h.engine.ResumeWithPayload(ctx, execution.ID, "tenant-b", map[string]any{"call_id": "call-1"})
	require.NoError(t, err)
	assert.False(t, resumed, "other tenants cannot resume the execution")

	resumed, err = h.engine.ResumeWithPayload(ctx, execution.ID, tenant, map[string]any{"call_id": "call-2"})
	require.NoError(t, err)
	assert.False(t, resumed)

	h.clock.Advance(time.Minute)

	resumed, err = h.engine.ResumeWithPayload(ctx, execution.ID, tenant, map[string]any{"call_id": "call-1", "outcome": "answered"})
	require.NoError(t, err)
	assert.True(t, resumed)

	done := h.reload(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusSuccess, done.Status)
	assert.Equal(t, map[string]any{"call_id": "call-1", "outcome": "answered"}, done.ContextSnapshot["webhook"])

	lead, err := store.Find(ctx, tenant, models.EntityLead, "email", "ann@acme.io")
	require.NoError(t, err)
	assert.Equal(t, "answered", lead["call_outcome"])

	resumed, err = h.engine.ResumeWithPayload(ctx, execution.ID, tenant, map[string]any{"call_id": "call-1"})
	require.NoError(t, err)
	assert.False(t, resumed, "a duplicate delivery is ignored")
}

func TestEngine_WaitForWebhookNumericCorrelation(t *testing.T) {
	ctx := context.Background()

	sender := &mocks.MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(messaging.Dispatch{ID: "1000000000000000000000", Status: "queued"}, nil)

	h := newHarness(t, actions.Dependencies{CRM: crm.NewMemoryStore(), Messaging: sender})

	execution := startCall(t, h)
	require.Equal(t, "1000000000000000000000", execution.Wait.MatchValue)

	// JSON bodies decode numbers as float64.
	payload := map[string]any{"call_id": float64(1e21), "outcome": "answered"}

	matches, err := h.manager.Candidates(ctx, tenant, payload)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	resumed, err := h.engine.ResumeWithPayload(ctx, matches[0].ExecutionID, tenant, payload)
	require.NoError(t, err)
	assert.True(t, resumed, "a candidate found by lookup must be resumable")
	assert.Equal(t, models.ExecutionStatusSuccess, h.reload(t, execution.ID).Status)
}

func TestEngine_WaitForWebhookTimesOut(t *testing.T) {
	ctx := context.Background()
	store := crm.NewMemoryStore()
	h := newHarness(t, actions.Dependencies{CRM: store, Messaging: callSender()})

	execution := startCall(t, h)

	h.clock.Advance(10 * time.Minute)

	resumed, err := h.engine.ResumeWithPayload(ctx, execution.ID, tenant, map[string]any{"call_id": "call-1"})
	require.NoError(t, err)
	assert.False(t, resumed, "a payload after the deadline has no effect")

	sweeper, err := suspension.NewSweeper(h.persistence.ExecutionRepository(), h.engine, suspension.DefaultSchedule)
	require.NoError(t, err)

	result, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, suspension.SweepResult{TimedOut: 1}, result)

	failed := h.reload(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, "await", failed.FailedNodeID)
	require.NotNil(t, failed.Error)
	assert.Equal(t, models.ErrorKindWebhookTimeout, failed.Error.Kind)

	resumed, err = h.engine.ResumeWithPayload(ctx, execution.ID, tenant, map[string]any{"call_id": "call-1"})
	require.NoError(t, err)
	assert.False(t, resumed)

	_, err = store.Find(ctx, tenant, models.EntityLead, "email", "ann@acme.io")
	require.ErrorIs(t, err, crm.ErrNotFound)
}

func TestEngine_ShadowRunKeepsLoadedRecords(t *testing.T) {
	ctx := context.Background()

	store := crm.NewMemoryStore()
	store.Seed(tenant, models.EntityLead, crm.Record{"id": "l-1", "email": "ann@acme.io", "status": "new"})

	sender := &mocks.MockSender{}
	h := newHarness(t, actions.Dependencies{CRM: store, Messaging: sender})

	wf := h.save(t, newWorkflow(t, "wf-shadow-lead", models.NodeTypeWebhookTrigger, []*models.Node{
		{ID: "find", Type: models.NodeTypeFindLead, Config: map[string]any{"search_field": "email", "search_value": "{{email}}"}},
		{ID: "update", Type: models.NodeTypeUpdateLead, Config: map[string]any{"fields": map[string]any{"status": "contacted"}}},
		{ID: "contacted", Type: models.NodeTypeCondition, Config: map[string]any{
			"field": "lead.status", "operator": "equals", "value": "contacted",
		}},
		{ID: "email", Type: models.NodeTypeSendEmail, Config: map[string]any{
			"to": "{{lead.email}}", "subject": "Hello", "body": "Thanks {{lead.id}}",
		}},
	},
		edge{"trigger", "find", ""},
		edge{"find", "update", ""},
		edge{"update", "contacted", ""},
		edge{"contacted", "email", "true"},
	))

	execution, err := h.engine.Start(ctx, StartRequest{
		Workflow:    wf,
		TriggerData: map[string]any{"email": "ann@acme.io"},
		Origin:      models.ActionOriginManual,
		Shadow:      true,
	})
	require.NoError(t, err)

	require.Equal(t, models.ExecutionStatusSuccess, execution.Status, execution.Error)
	assert.Equal(t, []string{"trigger", "find", "update", "contacted", "email"}, stepIDs(execution))

	email := execution.Steps[4].Output["would_execute"].(map[string]any)
	assert.Equal(t, "ann@acme.io", email["to"])

	lead, err := store.Find(ctx, tenant, models.EntityLead, "email", "ann@acme.io")
	require.NoError(t, err)
	assert.Equal(t, "new", lead["status"], "shadow updates are not persisted")
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestEngine_ShadowModePerformsNoMutations(t *testing.T) {
	ctx := context.Background()

	store := &mocks.MockCRMStore{}
	store.On("Find", mock.Anything, tenant, models.EntityLead, "email", "ann@acme.io").
		Return(crm.Record{"id": "l-1", "email": "ann@acme.io", "status": "new"}, nil)

	sender := &mocks.MockSender{}

	h := newHarness(t, actions.Dependencies{CRM: store, Messaging: sender})
	wf := h.save(t, newWorkflow(t, "wf-shadow", models.NodeTypeCareTrigger, []*models.Node{
		{ID: "find", Type: models.NodeTypeFindLead, Config: map[string]any{"search_field": "email", "search_value": "{{email}}"}},
		{ID: "update", Type: models.NodeTypeUpdateLead, Config: map[string]any{"fields": map[string]any{"status": "contacted"}}},
		{ID: "pause", Type: models.NodeTypeWait, Config: map[string]any{"duration_value": 1, "duration_unit": "days"}},
		{ID: "email", Type: models.NodeTypeSendEmail, Config: map[string]any{
			"to": "{{email}}", "subject": "Hello", "body": "Thanks for reaching out",
		}},
	},
		edge{"trigger", "find", ""},
		edge{"find", "update", ""},
		edge{"update", "pause", ""},
		edge{"pause", "email", ""},
	))
	wf.Nodes[0].Config = map[string]any{"tenant_id": tenant, "shadow_mode": true}

	execution, err := h.engine.Start(ctx, StartRequest{
		Workflow:    wf,
		TriggerData: map[string]any{"email": "ann@acme.io"},
		Origin:      models.ActionOriginCare,
		Shadow:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.True(t, execution.Shadow)
	assert.Equal(t, []string{"trigger", "find", "update", "pause", "email"}, stepIDs(execution))

	assert.False(t, execution.Steps[1].Shadow, "lookups run for real")

	for _, step := range execution.Steps[2:] {
		assert.True(t, step.Shadow, step.NodeID)
		assert.Equal(t, true, step.Output["shadow"])
		assert.NotEmpty(t, step.Output["would_execute"])
	}

	update := execution.Steps[2].Output["would_execute"].(map[string]any)
	assert.Equal(t, "l-1", update["record_id"])

	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
