package file

import (
	"context"
	"sort"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *store[models.Workflow]
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{store: newStore[models.Workflow](root, "workflows")}
}

// GetAll returns the workflows of a tenant ordered by creation time. An
// empty tenantID returns every workflow.
func (wr *WorkflowRepository) GetAll(_ context.Context, tenantID string) ([]*models.Workflow, error) {
	wr.store.mu.RLock()
	all, err := wr.store.all()
	wr.store.mu.RUnlock()

	if err != nil {
		return nil, persistence.NewWorkflowError("GetAll", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if tenantID == "" || workflow.TenantID == tenantID {
			workflows = append(workflows, workflow)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	wr.store.mu.RLock()
	defer wr.store.mu.RUnlock()

	workflow, err := wr.store.read(id)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	if err := wr.store.write(workflow.ID, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.store.mu.Lock()
	defer wr.store.mu.Unlock()

	if err := wr.store.remove(id); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func (wr *WorkflowRepository) FindActiveByTrigger(ctx context.Context, triggerType models.NodeType) ([]*models.Workflow, error) {
	all, err := wr.GetAll(ctx, "")
	if err != nil {
		return nil, err
	}

	matches := make([]*models.Workflow, 0)

	for _, workflow := range all {
		if workflow.IsActive && workflow.Trigger.Type == triggerType {
			matches = append(matches, workflow)
		}
	}

	return matches, nil
}
