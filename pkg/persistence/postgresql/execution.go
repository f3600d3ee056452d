package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/lib/pq"
)

const defaultPageSize = 20

// ExecutionRepository stores executions as JSONB documents with the columns
// needed by the sweeper and correlation lookups pulled out for indexing.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

type waitColumns struct {
	kind       sql.NullString
	resumeAt   sql.NullTime
	matchField sql.NullString
	matchValue sql.NullString
	deadline   sql.NullTime
}

func columnsOf(wait *models.Wait) waitColumns {
	var cols waitColumns
	if wait == nil {
		return cols
	}

	cols.kind = sql.NullString{String: string(wait.Kind), Valid: true}

	if wait.ResumeAt != nil {
		cols.resumeAt = sql.NullTime{Time: *wait.ResumeAt, Valid: true}
	}

	if wait.MatchField != "" {
		cols.matchField = sql.NullString{String: string(wait.MatchField), Valid: true}
		cols.matchValue = sql.NullString{String: wait.MatchValue, Valid: true}
	}

	if wait.Deadline != nil {
		cols.deadline = sql.NullTime{Time: *wait.Deadline, Valid: true}
	}

	return cols
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	document, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	cols := columnsOf(execution.Wait)

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (
			id, workflow_id, tenant_id, status, action_origin,
			wait_kind, resume_at, match_field, match_value, deadline,
			document, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		execution.ID, execution.WorkflowID, execution.TenantID, string(execution.Status), string(execution.ActionOrigin),
		cols.kind, cols.resumeAt, cols.matchField, cols.matchValue, cols.deadline,
		document, execution.CreatedAt, execution.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionExists)
		}

		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	document, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	cols := columnsOf(execution.Wait)

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_executions SET
			status = $2,
			wait_kind = $3,
			resume_at = $4,
			match_field = $5,
			match_value = $6,
			deadline = $7,
			document = $8,
			updated_at = $9
		WHERE id = $1
	`,
		execution.ID, string(execution.Status),
		cols.kind, cols.resumeAt, cols.matchField, cols.matchValue, cols.deadline,
		document, execution.UpdatedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Save", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	var document []byte

	err := r.db.QueryRowContext(ctx, `SELECT document FROM workflow_executions WHERE id = $1`, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	execution, err := decodeExecution(document)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// Transition updates the status column and the document in one statement
// guarded by the expected status.
func (r *ExecutionRepository) Transition(ctx context.Context, id string, from, to models.ExecutionStatus) (bool, error) {
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_executions SET
			status = $3,
			updated_at = $4,
			document = jsonb_set(jsonb_set(document, '{status}', to_jsonb($3::text)), '{updated_at}', to_jsonb($4::timestamptz))
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), now)
	if err != nil {
		return false, persistence.NewExecutionError("Transition", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("Transition", id, err)
	}

	if affected == 1 {
		return true, nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM workflow_executions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, persistence.NewExecutionError("Transition", id, err)
	}

	if !exists {
		return false, persistence.NewExecutionError("Transition", id, persistence.ErrExecutionNotFound)
	}

	return false, nil
}

func (r *ExecutionRepository) List(ctx context.Context, filter persistence.ExecutionFilter) (*persistence.ExecutionPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	where := `
		WHERE ($1 = '' OR workflow_id = $1)
		  AND ($2 = '' OR action_origin = $2)
		  AND ($3 = '' OR status = $3)
	`
	args := []any{filter.WorkflowID, string(filter.ActionOrigin), string(filter.Status)}

	var total int

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_executions`+where, args...).Scan(&total)
	if err != nil {
		return nil, persistence.NewExecutionError("List", "", err)
	}

	executions, err := r.query(ctx, "List",
		`SELECT document FROM workflow_executions`+where+` ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5`,
		append(args, limit, max(filter.Offset, 0))...)
	if err != nil {
		return nil, err
	}

	return &persistence.ExecutionPage{Executions: executions, TotalCount: total}, nil
}

func (r *ExecutionRepository) DueTimers(ctx context.Context, now time.Time) ([]*models.Execution, error) {
	return r.query(ctx, "DueTimers", `
		SELECT document FROM workflow_executions
		WHERE status = 'waiting' AND wait_kind = 'timer' AND resume_at <= $1
		ORDER BY resume_at
	`, now)
}

func (r *ExecutionRepository) ExpiredWebhookWaits(ctx context.Context, now time.Time) ([]*models.Execution, error) {
	return r.query(ctx, "ExpiredWebhookWaits", `
		SELECT document FROM workflow_executions
		WHERE status = 'waiting' AND wait_kind = 'webhook' AND deadline <= $1
		ORDER BY deadline
	`, now)
}

func (r *ExecutionRepository) FindWaiting(ctx context.Context, tenantID string, field models.MatchField, value string) ([]*models.Execution, error) {
	return r.query(ctx, "FindWaiting", `
		SELECT document FROM workflow_executions
		WHERE status = 'waiting' AND wait_kind = 'webhook'
		  AND tenant_id = $1 AND match_field = $2 AND match_value = $3
		ORDER BY created_at
	`, tenantID, string(field), value)
}

func (r *ExecutionRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewExecutionError(op, "", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, persistence.NewExecutionError(op, "", err)
		}

		execution, err := decodeExecution(document)
		if err != nil {
			return nil, persistence.NewExecutionError(op, "", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewExecutionError(op, "", err)
	}

	return executions, nil
}

func decodeExecution(document []byte) (*models.Execution, error) {
	var execution models.Execution
	if err := json.Unmarshal(document, &execution); err != nil {
		return nil, fmt.Errorf("failed to decode execution document: %w", err)
	}

	return &execution, nil
}
