package file

import (
	"context"
	"sort"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
)

const defaultPageSize = 20

// ExecutionRepository stores one JSON document per execution. Transition is
// atomic within a process; the file backend is meant for a single node.
type ExecutionRepository struct {
	store *store[models.Execution]
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{store: newStore[models.Execution](root, "executions")}
}

func (er *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	existing, err := er.store.read(execution.ID)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	if existing != nil {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionExists)
	}

	if err := er.store.write(execution.ID, execution); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	if err := er.store.write(execution.ID, execution); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	execution, err := er.store.read(id)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (er *ExecutionRepository) Transition(_ context.Context, id string, from, to models.ExecutionStatus) (bool, error) {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	execution, err := er.store.read(id)
	if err != nil {
		return false, persistence.NewExecutionError("Transition", id, err)
	}

	if execution == nil {
		return false, persistence.NewExecutionError("Transition", id, persistence.ErrExecutionNotFound)
	}

	if execution.Status != from {
		return false, nil
	}

	execution.Status = to
	execution.UpdatedAt = time.Now().UTC()

	if err := er.store.write(id, execution); err != nil {
		return false, persistence.NewExecutionError("Transition", id, err)
	}

	return true, nil
}

func (er *ExecutionRepository) List(_ context.Context, filter persistence.ExecutionFilter) (*persistence.ExecutionPage, error) {
	matches, err := er.filter(filter.Matches)
	if err != nil {
		return nil, persistence.NewExecutionError("List", "", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}

		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	page := &persistence.ExecutionPage{Executions: []*models.Execution{}, TotalCount: len(matches)}

	if filter.Offset >= len(matches) {
		return page, nil
	}

	end := min(filter.Offset+limit, len(matches))
	page.Executions = matches[filter.Offset:end]

	return page, nil
}

func (er *ExecutionRepository) DueTimers(_ context.Context, now time.Time) ([]*models.Execution, error) {
	due, err := er.filter(func(execution *models.Execution) bool {
		return waitingFor(execution, models.WaitKindTimer) &&
			execution.Wait.ResumeAt != nil && !execution.Wait.ResumeAt.After(now)
	})
	if err != nil {
		return nil, persistence.NewExecutionError("DueTimers", "", err)
	}

	return due, nil
}

func (er *ExecutionRepository) ExpiredWebhookWaits(_ context.Context, now time.Time) ([]*models.Execution, error) {
	expired, err := er.filter(func(execution *models.Execution) bool {
		return waitingFor(execution, models.WaitKindWebhook) &&
			execution.Wait.Deadline != nil && !execution.Wait.Deadline.After(now)
	})
	if err != nil {
		return nil, persistence.NewExecutionError("ExpiredWebhookWaits", "", err)
	}

	return expired, nil
}

func (er *ExecutionRepository) FindWaiting(_ context.Context, tenantID string, field models.MatchField, value string) ([]*models.Execution, error) {
	waiting, err := er.filter(func(execution *models.Execution) bool {
		return waitingFor(execution, models.WaitKindWebhook) &&
			execution.TenantID == tenantID &&
			execution.Wait.MatchField == field &&
			execution.Wait.MatchValue == value
	})
	if err != nil {
		return nil, persistence.NewExecutionError("FindWaiting", "", err)
	}

	return waiting, nil
}

func (er *ExecutionRepository) filter(keep func(*models.Execution) bool) ([]*models.Execution, error) {
	er.store.mu.RLock()
	all, err := er.store.all()
	er.store.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	matches := make([]*models.Execution, 0, len(all))

	for _, execution := range all {
		if keep(execution) {
			matches = append(matches, execution)
		}
	}

	return matches, nil
}

func waitingFor(execution *models.Execution, kind models.WaitKind) bool {
	return execution.Status == models.ExecutionStatusWaiting && execution.Wait != nil && execution.Wait.Kind == kind
}
