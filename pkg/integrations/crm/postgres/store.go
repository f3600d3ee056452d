// Package postgres implements crm.Store on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS crm_records (
    id          TEXT NOT NULL,
    tenant_id   TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    data        JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant_id, entity_type, id)
);

CREATE TABLE IF NOT EXISTS crm_users (
    id        TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name      TEXT NOT NULL DEFAULT '',
    email     TEXT NOT NULL DEFAULT '',
    team      TEXT NOT NULL DEFAULT '',
    active    BOOLEAN NOT NULL DEFAULT TRUE,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_crm_records_assigned
    ON crm_records (tenant_id, entity_type, (data->>'assigned_to'));
`

// Store implements crm.Store using PostgreSQL via pgx.
type Store struct {
	db *pgxpool.Pool
}

// New wraps an existing pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Connect opens a pool for databaseURL and makes sure the schema exists.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("crm: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("crm: ping: %w", err)
	}

	store := New(pool)
	if err := store.CreateSchema(ctx); err != nil {
		pool.Close()

		return nil, err
	}

	return store, nil
}

// CreateSchema creates the CRM tables if they don't exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("crm: create schema: %w", err)
	}

	return nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) Get(ctx context.Context, tenantID string, entity models.EntityType, id string) (crm.Record, error) {
	if !crm.ValidEntity(entity) {
		return nil, fmt.Errorf("%w: %s", crm.ErrInvalidEntity, entity)
	}

	row := s.db.QueryRow(ctx, `
		SELECT id, data, created_at, updated_at
		FROM crm_records
		WHERE tenant_id = $1 AND entity_type = $2 AND id = $3`,
		tenantID, string(entity), id,
	)

	record, err := scanRecord(row, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", entity, id, crm.ErrNotFound)
		}

		return nil, fmt.Errorf("crm: get %s: %w", entity, err)
	}

	return record, nil
}

func (s *Store) Find(ctx context.Context, tenantID string, entity models.EntityType, field, value string) (crm.Record, error) {
	if !crm.ValidEntity(entity) {
		return nil, fmt.Errorf("%w: %s", crm.ErrInvalidEntity, entity)
	}

	query := `
		SELECT id, data, created_at, updated_at
		FROM crm_records
		WHERE tenant_id = $1 AND entity_type = $2 AND data->>$3 = $4
		ORDER BY created_at, id
		LIMIT 1`
	args := []any{tenantID, string(entity), field, value}

	if field == "id" {
		query = `
			SELECT id, data, created_at, updated_at
			FROM crm_records
			WHERE tenant_id = $1 AND entity_type = $2 AND id = $3`
		args = []any{tenantID, string(entity), value}
	}

	record, err := scanRecord(s.db.QueryRow(ctx, query, args...), tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s where %s=%q: %w", entity, field, value, crm.ErrNotFound)
		}

		return nil, fmt.Errorf("crm: find %s: %w", entity, err)
	}

	return record, nil
}

func (s *Store) Create(ctx context.Context, tenantID string, entity models.EntityType, fields map[string]any) (crm.Record, error) {
	if !crm.ValidEntity(entity) {
		return nil, fmt.Errorf("%w: %s", crm.ErrInvalidEntity, entity)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("crm: generate id: %w", err)
	}

	data := sanitize(fields)

	row := s.db.QueryRow(ctx, `
		INSERT INTO crm_records (id, tenant_id, entity_type, data)
		VALUES ($1, $2, $3, $4)
		RETURNING id, data, created_at, updated_at`,
		id.String(), tenantID, string(entity), data,
	)

	record, err := scanRecord(row, tenantID)
	if err != nil {
		return nil, fmt.Errorf("crm: create %s: %w", entity, err)
	}

	return record, nil
}

func (s *Store) Update(ctx context.Context, tenantID string, entity models.EntityType, id string, fields map[string]any) (crm.Record, error) {
	if !crm.ValidEntity(entity) {
		return nil, fmt.Errorf("%w: %s", crm.ErrInvalidEntity, entity)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE crm_records
		SET data = data || $4::jsonb, updated_at = NOW()
		WHERE tenant_id = $1 AND entity_type = $2 AND id = $3
		RETURNING id, data, created_at, updated_at`,
		tenantID, string(entity), id, sanitize(fields),
	)

	record, err := scanRecord(row, tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", entity, id, crm.ErrNotFound)
		}

		return nil, fmt.Errorf("crm: update %s: %w", entity, err)
	}

	return record, nil
}

func (s *Store) Users(ctx context.Context, tenantID string) ([]crm.User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, email, team, active
		FROM crm_users
		WHERE tenant_id = $1
		ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("crm: list users: %w", err)
	}
	defer rows.Close()

	users := []crm.User{}

	for rows.Next() {
		var user crm.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Team, &user.Active); err != nil {
			return nil, fmt.Errorf("crm: scan user: %w", err)
		}

		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("crm: rows users: %w", err)
	}

	return users, nil
}

// SaveUser upserts an assignable user.
func (s *Store) SaveUser(ctx context.Context, tenantID string, user crm.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO crm_users (id, tenant_id, name, email, team, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			team = EXCLUDED.team,
			active = EXCLUDED.active`,
		user.ID, tenantID, user.Name, user.Email, user.Team, user.Active,
	)
	if err != nil {
		return fmt.Errorf("crm: save user: %w", err)
	}

	return nil
}

func (s *Store) CountAssigned(ctx context.Context, tenantID string, entity models.EntityType) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT data->>'assigned_to', COUNT(*)
		FROM crm_records
		WHERE tenant_id = $1 AND entity_type = $2 AND COALESCE(data->>'assigned_to', '') <> ''
		GROUP BY 1`, tenantID, string(entity))
	if err != nil {
		return nil, fmt.Errorf("crm: count assigned: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			userID string
			count  int
		)

		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("crm: scan count: %w", err)
		}

		counts[userID] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("crm: rows count: %w", err)
	}

	return counts, nil
}

func scanRecord(row pgx.Row, tenantID string) (crm.Record, error) {
	var (
		id                   string
		data                 map[string]any
		createdAt, updatedAt time.Time
	)

	if err := row.Scan(&id, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	record := crm.Record(data)
	if record == nil {
		record = crm.Record{}
	}

	record["id"] = id
	record["tenant_id"] = tenantID
	record["created_at"] = createdAt.UTC().Format(time.RFC3339Nano)
	record["updated_at"] = updatedAt.UTC().Format(time.RFC3339Nano)

	return record, nil
}

// sanitize drops columns that live outside the JSON document.
func sanitize(fields map[string]any) map[string]any {
	data := maps.Clone(fields)
	if data == nil {
		data = map[string]any{}
	}

	for _, column := range []string{"id", "tenant_id", "created_at", "updated_at"} {
		delete(data, column)
	}

	return data
}
