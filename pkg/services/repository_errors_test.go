package services

import (
	"context"
	"errors"
	"testing"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/mocks"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStorage = errors.New("storage unavailable")

func TestWorkflow_HealthCheck_Unhealthy(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.On("HealthCheck", mock.Anything).Return(errStorage)

	message, ok := NewWorkflow(p).HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Contains(t, message, "storage unavailable")
	p.AssertExpectations(t)
}

func TestWorkflow_RepositoryErrorsPropagate(t *testing.T) {
	p := mocks.NewMockPersistence()
	repo := p.GetMockWorkflowRepository()
	repo.On("GetAll", mock.Anything, tenantID).Return(nil, errStorage)
	repo.On("GetByID", mock.Anything, "wf-1").Return(nil, errStorage)
	repo.On("GetByID", mock.Anything, "../escape").Return(nil, persistence.ErrInvalidID)

	service := NewWorkflow(p)

	_, err := service.List(context.Background(), tenantID)
	require.ErrorIs(t, err, errStorage)
	assert.False(t, IsNotFoundError(err))

	_, err = service.FetchByID(context.Background(), tenantID, "wf-1")
	require.ErrorIs(t, err, errStorage)

	_, err = service.FetchByID(context.Background(), tenantID, "../escape")
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	repo.AssertExpectations(t)
}

func TestWorkflow_SaveFailure(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.GetMockWorkflowRepository().On("Save", mock.Anything, mock.AnythingOfType("*models.Workflow")).Return(errStorage)

	_, err := NewWorkflow(p).Create(context.Background(), tenantID, leadWorkflow(false))
	require.ErrorIs(t, err, errStorage)
	assert.False(t, IsValidationError(err))
}

func TestExecution_RepositoryErrorsPropagate(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.GetMockWorkflowRepository().On("GetByID", mock.Anything, "wf-1").
		Return(&models.Workflow{ID: "wf-1", TenantID: tenantID, Name: "Lead intake"}, nil)
	executions := p.GetMockExecutionRepository()
	executions.On("List", mock.Anything, mock.AnythingOfType("persistence.ExecutionFilter")).Return(nil, errStorage)
	executions.On("GetByID", mock.Anything, "exec-1").Return(nil, errStorage)

	service := NewExecution(p)

	_, err := service.List(context.Background(), ListExecutionsRequest{TenantID: tenantID, WorkflowID: "wf-1"})
	require.ErrorIs(t, err, errStorage)

	_, err = service.FetchByID(context.Background(), tenantID, "exec-1")
	require.ErrorIs(t, err, errStorage)

	executions.AssertExpectations(t)
}
