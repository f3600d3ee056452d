package crm

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/google/uuid"
)

// MemoryStore keeps CRM records in process memory. It backs local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[models.EntityType]map[string]Record
	users   map[string][]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[models.EntityType]map[string]Record),
		users:   make(map[string][]User),
	}
}

// Seed stores a record as-is. A missing id is generated.
func (s *MemoryStore) Seed(tenantID string, entity models.EntityType, record Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := maps.Clone(record)
	if stored == nil {
		stored = Record{}
	}

	if stored.ID() == "" {
		stored["id"] = uuid.NewString()
	}

	s.bucket(tenantID, entity)[stored.ID()] = stored

	return maps.Clone(stored)
}

// SeedUsers replaces the users of a tenant.
func (s *MemoryStore) SeedUsers(tenantID string, users ...User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[tenantID] = append([]User(nil), users...)
}

func (s *MemoryStore) Get(_ context.Context, tenantID string, entity models.EntityType, id string) (Record, error) {
	if !ValidEntity(entity) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntity, entity)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[tenantID][entity][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}

	return maps.Clone(record), nil
}

func (s *MemoryStore) Find(_ context.Context, tenantID string, entity models.EntityType, field, value string) (Record, error) {
	if !ValidEntity(entity) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntity, entity)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var match Record

	for _, record := range s.records[tenantID][entity] {
		if record.String(field) != value {
			continue
		}

		if match == nil || earlier(record, match) {
			match = record
		}
	}

	if match == nil {
		return nil, fmt.Errorf("%s where %s=%q: %w", entity, field, value, ErrNotFound)
	}

	return maps.Clone(match), nil
}

func (s *MemoryStore) Create(_ context.Context, tenantID string, entity models.EntityType, fields map[string]any) (Record, error) {
	if !ValidEntity(entity) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntity, entity)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record ID: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	record := Record(maps.Clone(fields))
	if record == nil {
		record = Record{}
	}

	record["id"] = id.String()
	record["tenant_id"] = tenantID
	record["created_at"] = now
	record["updated_at"] = now

	s.mu.Lock()
	s.bucket(tenantID, entity)[record.ID()] = record
	s.mu.Unlock()

	return maps.Clone(record), nil
}

func (s *MemoryStore) Update(_ context.Context, tenantID string, entity models.EntityType, id string, fields map[string]any) (Record, error) {
	if !ValidEntity(entity) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntity, entity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[tenantID][entity][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}

	for key, value := range fields {
		if key == "id" || key == "tenant_id" {
			continue
		}

		record[key] = value
	}

	record["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	return maps.Clone(record), nil
}

func (s *MemoryStore) Users(_ context.Context, tenantID string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]User(nil), s.users[tenantID]...), nil
}

func (s *MemoryStore) CountAssigned(_ context.Context, tenantID string, entity models.EntityType) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)

	for _, record := range s.records[tenantID][entity] {
		if assignee := record.String(FieldAssignedTo); assignee != "" {
			counts[assignee]++
		}
	}

	return counts, nil
}

// earlier orders records by creation time, then id, so Find is deterministic.
func earlier(a, b Record) bool {
	if a.String("created_at") != b.String("created_at") {
		return a.String("created_at") < b.String("created_at")
	}

	return a.ID() < b.ID()
}

func (s *MemoryStore) bucket(tenantID string, entity models.EntityType) map[string]Record {
	byEntity, ok := s.records[tenantID]
	if !ok {
		byEntity = make(map[models.EntityType]map[string]Record)
		s.records[tenantID] = byEntity
	}

	records, ok := byEntity[entity]
	if !ok {
		records = make(map[string]Record)
		byEntity[entity] = records
	}

	return records
}
