package services

import (
	"testing"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantID = "tenant-a"

func leadWorkflow(active bool) *models.Workflow {
	return &models.Workflow{
		Name:     "Lead intake",
		IsActive: active,
		Nodes: []*models.Node{
			{ID: "trigger", Type: models.NodeTypeWebhookTrigger, Config: map[string]any{}},
			{ID: "find", Type: models.NodeTypeFindLead, Config: map[string]any{
				"search_field": "email",
				"search_value": "{{email}}",
			}},
			{ID: "check", Type: models.NodeTypeCondition, Config: map[string]any{
				"field":    "lead.status",
				"operator": "equals",
				"value":    "qualified",
			}},
		},
		Connections: []*models.Connection{
			{From: "trigger", To: "find"},
			{From: "find", To: "check"},
		},
	}
}

func TestNewWorkflow(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewWorkflow(persistence)

	assert.NotNil(t, service)
	assert.Equal(t, persistence, service.persistence)
}

func TestWorkflow_Create(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), tenantID, leadWorkflow(true))
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, tenantID, created.TenantID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, models.NodeTypeWebhookTrigger, created.Trigger.Type)
	assert.Equal(t, "/api/workflows/"+created.ID+"/webhook", created.WebhookURL)
	assert.Equal(t, models.FailurePolicyHalt, created.FailurePolicy)

	fetched, err := service.FetchByID(t.Context(), tenantID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lead intake", fetched.Name)
	assert.Len(t, fetched.Nodes, 3)
}

func TestWorkflow_CreateRejections(t *testing.T) {
	tests := []struct {
		name     string
		tenantID string
		workflow func() *models.Workflow
		check    func(t *testing.T, err error)
	}{
		{
			name:     "missing tenant",
			workflow: func() *models.Workflow { return leadWorkflow(false) },
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrTenantRequired)
				assert.True(t, IsValidationError(err))
			},
		},
		{
			name:     "short name",
			tenantID: tenantID,
			workflow: func() *models.Workflow {
				wf := leadWorkflow(false)
				wf.Name = "x"

				return wf
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsValidationError(err))
			},
		},
		{
			name:     "no trigger",
			tenantID: tenantID,
			workflow: func() *models.Workflow {
				wf := leadWorkflow(false)
				wf.Nodes = wf.Nodes[1:]
				wf.Connections = wf.Connections[1:]

				return wf
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsValidationError(err))
			},
		},
		{
			name:     "active with invalid node",
			tenantID: tenantID,
			workflow: func() *models.Workflow {
				wf := leadWorkflow(true)
				wf.Nodes[2].Config["operator"] = "between"

				return wf
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrWorkflowInvalid)
				assert.True(t, IsUnprocessableError(err))

				var invalid *InvalidWorkflowError
				require.ErrorAs(t, err, &invalid)
				require.NotEmpty(t, invalid.Problems)
				assert.Equal(t, "check", invalid.Problems[0].NodeID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewWorkflow(file.NewPersistence(t.TempDir()))

			created, err := service.Create(t.Context(), tt.tenantID, tt.workflow())
			require.Error(t, err)
			assert.Nil(t, created)
			tt.check(t, err)
		})
	}
}

func TestWorkflow_DraftMayBeInvalid(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	wf := leadWorkflow(false)
	wf.Nodes[2].Config["operator"] = "between"

	created, err := service.Create(t.Context(), tenantID, wf)
	require.NoError(t, err)

	problems, err := service.Validate(t.Context(), tenantID, created.ID)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "check", problems[0].NodeID)

	_, err = service.SetActive(t.Context(), tenantID, created.ID, true)
	require.ErrorIs(t, err, ErrWorkflowInvalid)

	stored, err := service.FetchByID(t.Context(), tenantID, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "a rejected activation is not persisted")
}

func TestWorkflow_FetchByID_TenantScoped(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), tenantID, leadWorkflow(false))
	require.NoError(t, err)

	_, err = service.FetchByID(t.Context(), "tenant-b", created.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.True(t, IsNotFoundError(err))

	_, err = service.FetchByID(t.Context(), tenantID, "non-existent")
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = service.FetchByID(t.Context(), tenantID, "../escape")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_List(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	_, err := service.Create(t.Context(), tenantID, leadWorkflow(false))
	require.NoError(t, err)
	_, err = service.Create(t.Context(), tenantID, leadWorkflow(true))
	require.NoError(t, err)
	_, err = service.Create(t.Context(), "tenant-b", leadWorkflow(false))
	require.NoError(t, err)

	workflows, err := service.List(t.Context(), tenantID)
	require.NoError(t, err)
	assert.Len(t, workflows, 2)

	for _, wf := range workflows {
		assert.Equal(t, tenantID, wf.TenantID)
	}

	_, err = service.List(t.Context(), "  ")
	require.ErrorIs(t, err, ErrTenantRequired)
}

func TestWorkflow_Update(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), tenantID, leadWorkflow(false))
	require.NoError(t, err)

	replacement := leadWorkflow(true)
	replacement.ID = "ignored"
	replacement.TenantID = "tenant-b"
	replacement.Name = "Lead intake v2"

	updated, err := service.Update(t.Context(), tenantID, created.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, tenantID, updated.TenantID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.IsActive)
	assert.Equal(t, "Lead intake v2", updated.Name)

	_, err = service.Update(t.Context(), "tenant-b", created.ID, leadWorkflow(false))
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_Delete(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), tenantID, leadWorkflow(false))
	require.NoError(t, err)

	require.ErrorIs(t, service.Delete(t.Context(), "tenant-b", created.ID), ErrWorkflowNotFound)
	require.NoError(t, service.Delete(t.Context(), tenantID, created.ID))

	_, err = service.FetchByID(t.Context(), tenantID, created.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	require.ErrorIs(t, service.Delete(t.Context(), tenantID, created.ID), ErrWorkflowNotFound)
}

func TestWorkflow_Connect(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	wf := leadWorkflow(false)
	wf.Nodes = append(wf.Nodes,
		&models.Node{ID: "deal", Type: models.NodeTypeCreateOpportunity, Config: map[string]any{
			"field_mappings": map[string]any{"name": "{{lead.company}}"},
		}},
		&models.Node{ID: "note", Type: models.NodeTypeCreateNote, Config: map[string]any{
			"related_type": "lead", "related_id": "{{lead.id}}", "content": "nurture",
		}},
	)

	created, err := service.Create(t.Context(), tenantID, wf)
	require.NoError(t, err)

	updated, err := service.Connect(t.Context(), tenantID, created.ID, ConnectRequest{From: "check", To: "note", Branch: models.BranchFalse})
	require.NoError(t, err)
	updated, err = service.Connect(t.Context(), tenantID, created.ID, ConnectRequest{From: "check", To: "deal"})
	require.NoError(t, err)

	branches := map[models.Branch]string{}
	for _, conn := range updated.Outgoing("check") {
		branches[conn.Branch] = conn.To
	}

	assert.Equal(t, map[models.Branch]string{models.BranchTrue: "deal", models.BranchFalse: "note"}, branches)

	updated, err = service.Connect(t.Context(), tenantID, created.ID, ConnectRequest{From: "find", To: "note"})
	require.NoError(t, err)
	require.Len(t, updated.Outgoing("find"), 1, "non-condition nodes keep a single outgoing edge")
	assert.Equal(t, "note", updated.Outgoing("find")[0].To)

	updated, err = service.Disconnect(t.Context(), tenantID, created.ID, "find", "note")
	require.NoError(t, err)
	assert.Empty(t, updated.Outgoing("find"))

	stored, err := service.FetchByID(t.Context(), tenantID, created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Outgoing("find"))
}

func TestWorkflow_ConnectRejections(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), tenantID, leadWorkflow(false))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  ConnectRequest
		want error
	}{
		{"self connection", ConnectRequest{From: "find", To: "find"}, models.ErrSelfConnection},
		{"unknown target", ConnectRequest{From: "find", To: "ghost"}, models.ErrNodeNotFound},
		{"branch on action node", ConnectRequest{From: "find", To: "check", Branch: models.BranchTrue}, models.ErrBranchOnNonBranch},
		{"missing source", ConnectRequest{To: "check"}, ErrInvalidConnection},
		{"bad branch label", ConnectRequest{From: "check", To: "find", Branch: "maybe"}, ErrInvalidConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Connect(t.Context(), tenantID, created.ID, tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestWorkflow_SetActive(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	created, err := service.Create(t.Context(), tenantID, leadWorkflow(false))
	require.NoError(t, err)

	activated, err := service.SetActive(t.Context(), tenantID, created.ID, true)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)

	deactivated, err := service.SetActive(t.Context(), tenantID, created.ID, false)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	_, err = service.SetActive(t.Context(), "tenant-b", created.ID, true)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()))

	message, ok := service.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	missing := NewWorkflow(file.NewPersistence(t.TempDir() + "/missing"))
	_, ok = missing.HealthCheck(t.Context())
	assert.False(t, ok)
}
