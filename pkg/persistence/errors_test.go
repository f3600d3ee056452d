package persistence

import (
	"errors"
	"testing"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestWorkflowError(t *testing.T) {
	err := NewWorkflowError("GetByID", "wf-1", ErrWorkflowNotFound)

	assert.True(t, IsWorkflowNotFound(err))
	assert.False(t, IsExecutionNotFound(err))
	assert.Equal(t, "GetByID operation failed for workflow wf-1: workflow not found", err.Error())

	err.Message = "lookup"
	assert.Equal(t, "GetByID operation failed for workflow wf-1: lookup (workflow not found)", err.Error())
}

func TestExecutionError(t *testing.T) {
	err := NewExecutionError("Create", "ex-1", ErrExecutionExists)

	assert.True(t, errors.Is(err, ErrExecutionExists))
	assert.Contains(t, err.Error(), "execution ex-1")
}

func TestExecutionFilter_Matches(t *testing.T) {
	execution := &models.Execution{WorkflowID: "wf-1", ActionOrigin: models.ActionOriginCare, Status: models.ExecutionStatusFailed}

	assert.True(t, ExecutionFilter{}.Matches(execution))
	assert.True(t, ExecutionFilter{WorkflowID: "wf-1", ActionOrigin: models.ActionOriginCare}.Matches(execution))
	assert.False(t, ExecutionFilter{ActionOrigin: models.ActionOriginWebhook}.Matches(execution))
	assert.False(t, ExecutionFilter{Status: models.ExecutionStatusSuccess}.Matches(execution))
	assert.False(t, ExecutionFilter{WorkflowID: "wf-2"}.Matches(execution))
}
