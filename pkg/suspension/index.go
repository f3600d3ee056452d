package suspension

import (
	"context"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
)

// PersistenceIndex answers lookups straight from the execution store.
type PersistenceIndex struct {
	executions persistence.ExecutionRepository
}

func NewPersistenceIndex(executions persistence.ExecutionRepository) *PersistenceIndex {
	return &PersistenceIndex{executions: executions}
}

func (i *PersistenceIndex) Add(context.Context, *models.Execution) error {
	return nil
}

func (i *PersistenceIndex) Remove(context.Context, *models.Execution) error {
	return nil
}

func (i *PersistenceIndex) Lookup(ctx context.Context, tenantID string, field models.MatchField, value string) ([]string, error) {
	waiting, err := i.executions.FindWaiting(ctx, tenantID, field, value)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(waiting))
	for _, execution := range waiting {
		ids = append(ids, execution.ID)
	}

	return ids, nil
}
