package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/actions"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence/file"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/services"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/suspension"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/triggers/care"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/triggers/webhook"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/web"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantID = "tenant-a"

type testAPI struct {
	app   *fiber.App
	store *crm.MemoryStore
}

func setupTestApp(t *testing.T) *testAPI {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	store := crm.NewMemoryStore()
	manager := suspension.NewManager(p.ExecutionRepository())
	engine := workflow.NewEngine(p, actions.NewDispatcher(actions.Dependencies{CRM: store}), manager)

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(p),
		services.NewExecution(p),
		webhook.NewTrigger(p.WorkflowRepository(), engine),
		webhook.NewCorrelator(manager, engine),
		care.NewTrigger(p.WorkflowRepository(), engine, store),
		engine,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Register(app)

	return &testAPI{app: app, store: store}
}

func (a *testAPI) do(t *testing.T, method, path, tenant string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if tenant != "" {
		req.Header.Set(web.TenantHeader, tenant)
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))

	return out
}

// create posts req and returns the stored workflow.
func (a *testAPI) create(t *testing.T, req web.WorkflowRequest) models.Workflow {
	t.Helper()

	status, body := a.do(t, http.MethodPost, "/api/workflows", tenantID, req)
	require.Equal(t, http.StatusCreated, status, string(body))

	return decode[models.Workflow](t, body)
}

func qualificationRequest(active bool, triggerConfig map[string]any) web.WorkflowRequest {
	if triggerConfig == nil {
		triggerConfig = map[string]any{}
	}

	return web.WorkflowRequest{
		Name:     "Inbound leads",
		IsActive: active,
		Nodes: []*models.Node{
			{ID: "trigger", Type: models.NodeTypeWebhookTrigger, Config: triggerConfig},
			{ID: "qualified", Type: models.NodeTypeCondition, Config: map[string]any{
				"field": "status", "operator": "equals", "value": "qualified",
			}},
			{ID: "create", Type: models.NodeTypeCreateLead, Config: map[string]any{
				"field_mappings": map[string]any{"email": "{{email}}", "status": "{{status}}"},
			}},
		},
		Connections: []*models.Connection{
			{From: "trigger", To: "qualified"},
			{From: "qualified", To: "create", Branch: models.BranchTrue},
		},
	}
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	api := setupTestApp(t)

	created := api.create(t, qualificationRequest(false, nil))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, tenantID, created.TenantID)
	assert.Equal(t, "/api/workflows/"+created.ID+"/webhook", created.WebhookURL)

	status, body := api.do(t, http.MethodGet, "/api/workflows", tenantID, nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[web.WorkflowListResponse](t, body)
	assert.Equal(t, 1, list.TotalCount)

	status, _ = api.do(t, http.MethodGet, "/api/workflows/"+created.ID, "tenant-b", nil)
	assert.Equal(t, http.StatusNotFound, status, "workflows are tenant scoped")

	update := qualificationRequest(false, nil)
	update.Name = "Inbound leads v2"
	status, body = api.do(t, http.MethodPut, "/api/workflows/"+created.ID, tenantID, update)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "Inbound leads v2", decode[models.Workflow](t, body).Name)

	status, body = api.do(t, http.MethodGet, "/api/workflows/"+created.ID+"/validate", tenantID, nil)
	require.Equal(t, http.StatusOK, status)
	report := decode[web.ValidationResponse](t, body)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Problems)

	status, body = api.do(t, http.MethodPost, "/api/workflows/"+created.ID+"/activate", tenantID, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, decode[models.Workflow](t, body).IsActive)

	status, body = api.do(t, http.MethodPost, "/api/workflows/"+created.ID+"/deactivate", tenantID, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.False(t, decode[models.Workflow](t, body).IsActive)

	status, _ = api.do(t, http.MethodDelete, "/api/workflows/"+created.ID, tenantID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = api.do(t, http.MethodGet, "/api/workflows/"+created.ID, tenantID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_CreateWorkflowRejections(t *testing.T) {
	api := setupTestApp(t)

	tests := []struct {
		name       string
		tenant     string
		body       any
		wantStatus int
		wantType   string
	}{
		{
			name:       "missing tenant header",
			body:       qualificationRequest(false, nil),
			wantStatus: http.StatusBadRequest,
			wantType:   "validation_error",
		},
		{
			name:       "short name",
			tenant:     tenantID,
			body:       web.WorkflowRequest{Name: "x"},
			wantStatus: http.StatusBadRequest,
			wantType:   "validation_error",
		},
		{
			name:       "not an object",
			tenant:     tenantID,
			body:       []string{"workflow"},
			wantStatus: http.StatusBadRequest,
			wantType:   "validation_error",
		},
		{
			name:   "active with invalid condition",
			tenant: tenantID,
			body: func() web.WorkflowRequest {
				req := qualificationRequest(true, nil)
				req.Nodes[1].Config["operator"] = "between"

				return req
			}(),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "invalid_workflow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := api.do(t, http.MethodPost, "/api/workflows", tt.tenant, tt.body)
			require.Equal(t, tt.wantStatus, status, string(body))

			problem := decode[map[string]any](t, body)
			assert.Equal(t, tt.wantType, problem["type"])
		})
	}
}

func TestAPIHandlers_ActivationReportsProblems(t *testing.T) {
	api := setupTestApp(t)

	req := qualificationRequest(false, nil)
	req.Nodes[2].Config = map[string]any{}
	created := api.create(t, req)

	status, body := api.do(t, http.MethodPost, "/api/workflows/"+created.ID+"/activate", tenantID, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))

	problem := decode[map[string]any](t, body)
	problems, ok := problem["problems"].([]any)
	require.True(t, ok, string(body))
	require.Len(t, problems, 1)
	assert.Equal(t, "create", problems[0].(map[string]any)["node_id"])
}

func TestAPIHandlers_Connections(t *testing.T) {
	api := setupTestApp(t)

	req := qualificationRequest(false, nil)
	req.Nodes = append(req.Nodes, &models.Node{ID: "note", Type: models.NodeTypeCreateNote, Config: map[string]any{
		"related_type": "lead", "related_id": "{{lead.id}}", "content": "not qualified yet",
	}})
	created := api.create(t, req)

	status, body := api.do(t, http.MethodPost, "/api/workflows/"+created.ID+"/connections", tenantID,
		services.ConnectRequest{From: "qualified", To: "note"})
	require.Equal(t, http.StatusOK, status, string(body))

	wf := decode[models.Workflow](t, body)
	outgoing := wf.Outgoing("qualified")
	require.Len(t, outgoing, 2)
	assert.Equal(t, models.BranchFalse, outgoing[1].Branch, "the free branch is taken")

	status, _ = api.do(t, http.MethodPost, "/api/workflows/"+created.ID+"/connections", tenantID,
		services.ConnectRequest{From: "note", To: "note"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodDelete, "/api/workflows/"+created.ID+"/connections?from=qualified&to=note", tenantID, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	wf = decode[models.Workflow](t, body)
	assert.Len(t, wf.Outgoing("qualified"), 1)

	status, _ = api.do(t, http.MethodDelete, "/api/workflows/"+created.ID+"/connections", tenantID, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_FireWebhook(t *testing.T) {
	api := setupTestApp(t)

	schema := map[string]any{
		"type":     "object",
		"required": []any{"email"},
		"properties": map[string]any{
			"email": map[string]any{"type": "string"},
		},
	}
	active := api.create(t, qualificationRequest(true, map[string]any{"payload_schema": schema}))
	inactive := api.create(t, qualificationRequest(false, nil))

	status, body := api.do(t, http.MethodPost, active.WebhookURL, "", map[string]any{"email": "a@b.com", "status": "qualified"})
	require.Equal(t, http.StatusOK, status, string(body))

	execution := decode[models.Execution](t, body)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Equal(t, models.ActionOriginWebhook, execution.ActionOrigin)

	lead, err := api.store.Find(t.Context(), tenantID, models.EntityLead, "email", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "qualified", lead["status"])

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{"schema mismatch", active.WebhookURL, map[string]any{"status": "qualified"}, http.StatusBadRequest},
		{"array body", active.WebhookURL, []any{1, 2}, http.StatusBadRequest},
		{"inactive workflow", inactive.WebhookURL, map[string]any{"email": "a@b.com"}, http.StatusConflict},
		{"unknown workflow", "/api/workflows/missing/webhook", map[string]any{}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := api.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.wantStatus, status, string(body))
		})
	}

	status, body = api.do(t, http.MethodPost, active.WebhookURL, "", map[string]any{"status": "qualified"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, decode[map[string]any](t, body), "problems")
}

func TestAPIHandlers_ExecutionHistory(t *testing.T) {
	api := setupTestApp(t)

	wf := api.create(t, qualificationRequest(true, nil))

	for _, leadStatus := range []string{"qualified", "new", "qualified"} {
		status, body := api.do(t, http.MethodPost, wf.WebhookURL, "", map[string]any{"email": leadStatus + "@b.com", "status": leadStatus})
		require.Equal(t, http.StatusOK, status, string(body))
	}

	status, body := api.do(t, http.MethodPost, "/api/workflows/"+wf.ID+"/run", tenantID, web.RunWorkflowRequest{
		TriggerData: map[string]any{"email": "manual@b.com", "status": "qualified"},
		Shadow:      true,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	manual := decode[models.Execution](t, body)
	assert.Equal(t, models.ActionOriginManual, manual.ActionOrigin)
	assert.True(t, manual.Shadow)

	_, err := api.store.Find(t.Context(), tenantID, models.EntityLead, "email", "manual@b.com")
	require.ErrorIs(t, err, crm.ErrNotFound, "shadow runs do not write")

	status, body = api.do(t, http.MethodGet, "/api/workflows/"+wf.ID+"/executions?action_origin=webhook&limit=2", tenantID, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	page := decode[services.ListExecutionsResponse](t, body)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Executions, 2)
	assert.True(t, page.HasNextPage)

	status, body = api.do(t, http.MethodGet, "/api/workflows/"+wf.ID+"/executions?action_origin=manual", tenantID, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, 1, decode[services.ListExecutionsResponse](t, body).TotalCount)

	status, body = api.do(t, http.MethodGet, "/api/executions/"+manual.ID, tenantID, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, manual.ID, decode[models.Execution](t, body).ID)

	status, _ = api.do(t, http.MethodGet, "/api/executions/"+manual.ID, "tenant-b", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodGet, "/api/workflows/"+wf.ID+"/executions?status=paused", tenantID, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodGet, "/api/workflows/"+wf.ID+"/executions?limit=ten", tenantID, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_DeliverCallback(t *testing.T) {
	api := setupTestApp(t)

	wf := api.create(t, web.WorkflowRequest{
		Name:     "Await call outcome",
		IsActive: true,
		Nodes: []*models.Node{
			{ID: "trigger", Type: models.NodeTypeWebhookTrigger, Config: map[string]any{}},
			{ID: "await", Type: models.NodeTypeWaitForWebhook, Config: map[string]any{
				"match_field": "call_id", "match_value": "{{call_id}}", "timeout_minutes": 30,
			}},
			{ID: "log", Type: models.NodeTypeCreateNote, Config: map[string]any{
				"related_type": "lead", "related_id": "{{lead_id}}", "content": "{{webhook.outcome}}",
			}},
		},
		Connections: []*models.Connection{
			{From: "trigger", To: "await"},
			{From: "await", To: "log"},
		},
	})

	status, body := api.do(t, http.MethodPost, wf.WebhookURL, "", map[string]any{"call_id": "call-9", "lead_id": "l-1"})
	require.Equal(t, http.StatusOK, status, string(body))

	waiting := decode[models.Execution](t, body)
	require.Equal(t, models.ExecutionStatusWaiting, waiting.Status)

	status, body = api.do(t, http.MethodPost, "/api/workflows/callbacks", "", map[string]any{"tenant_id": "tenant-b", "call_id": "call-9"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Empty(t, decode[web.CallbackResponse](t, body).Resumed, "other tenants cannot resume")

	status, body = api.do(t, http.MethodPost, "/api/workflows/callbacks", "", map[string]any{"tenant_id": tenantID, "call_id": "call-9", "outcome": "booked"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{waiting.ID}, decode[web.CallbackResponse](t, body).Resumed)

	status, body = api.do(t, http.MethodGet, "/api/executions/"+waiting.ID, tenantID, nil)
	require.Equal(t, http.StatusOK, status)

	resumed := decode[models.Execution](t, body)
	assert.Equal(t, models.ExecutionStatusSuccess, resumed.Status)

	status, body = api.do(t, http.MethodPost, "/api/workflows/callbacks", "", map[string]any{"tenant_id": tenantID, "call_id": "call-9"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Empty(t, decode[web.CallbackResponse](t, body).Resumed, "a delivered wait resumes once")

	status, _ = api.do(t, http.MethodPost, "/api/workflows/callbacks", "", map[string]any{"call_id": "call-9"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_ReceiveCareEvent(t *testing.T) {
	api := setupTestApp(t)
	api.store.Seed(tenantID, models.EntityLead, crm.Record{"id": "l-1", "email": "lead@acme.io"})

	careNodes := func(tenant string) []*models.Node {
		return []*models.Node{
			{ID: "trigger", Type: models.NodeTypeCareTrigger, Config: map[string]any{"tenant_id": tenant}},
			{ID: "note", Type: models.NodeTypeCreateNote, Config: map[string]any{
				"related_type": "lead", "related_id": "{{entity_id}}", "content": "{{reason}} ({{email}})",
			}},
		}
	}
	edges := []*models.Connection{{From: "trigger", To: "note"}}

	matching := api.create(t, web.WorkflowRequest{Name: "Care follow-up", IsActive: true, Nodes: careNodes(tenantID), Connections: edges})
	api.create(t, web.WorkflowRequest{Name: "Care elsewhere", IsActive: true, Nodes: careNodes("tenant-b"), Connections: edges})

	status, body := api.do(t, http.MethodPost, "/api/care/events", "", models.CareEvent{
		EntityID:   "l-1",
		EntityType: models.EntityLead,
		TenantID:   tenantID,
		Reason:     "no reply",
	})
	require.Equal(t, http.StatusAccepted, status, string(body))

	outcomes := decode[web.CareEventResponse](t, body).Outcomes
	require.Len(t, outcomes, 2)

	byWorkflow := map[string]care.Outcome{}
	for _, outcome := range outcomes {
		byWorkflow[outcome.WorkflowID] = outcome
	}

	assert.Equal(t, models.ExecutionStatusSuccess, byWorkflow[matching.ID].Status)

	for id, outcome := range byWorkflow {
		if id != matching.ID {
			assert.Equal(t, care.SkipTenantMismatch, outcome.Skipped)
			assert.Empty(t, outcome.ExecutionID)
		}
	}

	status, _ = api.do(t, http.MethodPost, "/api/care/events", "", map[string]any{"entity_type": "invoice"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_NodeCatalog(t *testing.T) {
	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/api/nodes", "", nil)
	require.Equal(t, http.StatusOK, status)

	catalog := decode[map[string][]map[string]any](t, body)
	assert.Len(t, catalog["nodes"], len(models.AllNodeTypes()))
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", decode[map[string]any](t, body)["status"])
}
