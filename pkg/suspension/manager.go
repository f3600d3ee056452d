// Package suspension persists paused executions and finds them again, either
// when their timer elapses or when a correlated webhook arrives.
package suspension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/template"
	"github.com/spf13/cast"
)

var ErrNoMatchValue = errors.New("wait_for_webhook has no correlation value")

// Index maps a correlation key to the executions waiting on it.
type Index interface {
	Add(ctx context.Context, execution *models.Execution) error
	Remove(ctx context.Context, execution *models.Execution) error
	Lookup(ctx context.Context, tenantID string, field models.MatchField, value string) ([]string, error)
}

// Match is a waiting execution selected by an inbound payload.
type Match struct {
	ExecutionID string
	Field       models.MatchField
	Value       string
}

type Manager struct {
	executions persistence.ExecutionRepository
	index      Index
	store      *PersistenceIndex
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIndex fronts the persistence lookup with another index, such as Redis.
// The store is still consulted when the index has no entry for a key.
func WithIndex(index Index) Option {
	return func(m *Manager) { m.index = index }
}

func NewManager(executions persistence.ExecutionRepository, opts ...Option) *Manager {
	m := &Manager{
		executions: executions,
		store:      NewPersistenceIndex(executions),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     log.WithModule("suspension"),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.index == nil {
		m.index = m.store
	}

	return m
}

// TimerWait computes the suspension of a wait node started now.
func (m *Manager) TimerWait(cfg *nodes.WaitConfig) *models.Wait {
	resumeAt := m.now().Add(cfg.Duration())

	return &models.Wait{Kind: models.WaitKindTimer, ResumeAt: &resumeAt}
}

// WebhookWait computes the suspension of a wait_for_webhook node. Without a
// configured match value the well-known context paths are tried in order.
func (m *Manager) WebhookWait(cfg *nodes.WaitForWebhookConfig, ctx models.ExecutionContext) (*models.Wait, error) {
	value := strings.TrimSpace(cfg.MatchValue)

	if value == "" {
		for _, path := range cfg.DefaultMatchPaths() {
			found, ok := ctx.Lookup(path)
			if !ok {
				continue
			}

			if value = strings.TrimSpace(template.Stringify(found)); value != "" {
				break
			}
		}
	}

	if value == "" {
		return nil, fmt.Errorf("%w for %s", ErrNoMatchValue, cfg.MatchField)
	}

	deadline := m.now().Add(cfg.Timeout())

	return &models.Wait{
		Kind:       models.WaitKindWebhook,
		MatchField: cfg.MatchField,
		MatchValue: value,
		Deadline:   &deadline,
	}, nil
}

// Suspend checkpoints the execution as waiting at nodeID. The full context
// snapshot is written before the caller releases it.
func (m *Manager) Suspend(ctx context.Context, execution *models.Execution, nodeID string, wait *models.Wait) error {
	execution.Status = models.ExecutionStatusWaiting
	execution.CurrentNodeID = nodeID
	execution.Wait = wait
	execution.UpdatedAt = m.now()

	if err := m.executions.Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist suspension: %w", err)
	}

	if wait.Kind == models.WaitKindWebhook {
		if err := m.index.Add(ctx, execution); err != nil {
			return fmt.Errorf("failed to index correlation key: %w", err)
		}
	}

	m.logger.InfoContext(ctx, "execution suspended",
		"execution_id", execution.ID,
		"node_id", nodeID,
		"kind", wait.Kind,
		"match_field", wait.MatchField,
	)

	return nil
}

// Release drops the correlation entry of an execution that left the waiting state.
func (m *Manager) Release(ctx context.Context, execution *models.Execution) {
	if execution.Wait == nil || execution.Wait.Kind != models.WaitKindWebhook {
		return
	}

	if err := m.index.Remove(ctx, execution); err != nil {
		m.logger.WarnContext(ctx, "failed to remove correlation key", "execution_id", execution.ID, "error", err)
	}
}

// Candidates returns the executions of tenantID waiting on any correlation
// key carried by payload. Every match field is inspected; duplicates are dropped.
func (m *Manager) Candidates(ctx context.Context, tenantID string, payload map[string]any) ([]Match, error) {
	seen := make(map[string]bool)

	var matches []Match

	for _, field := range models.MatchFields() {
		value := MatchValue(payload[field.PayloadKey()])
		if value == "" {
			continue
		}

		ids, err := m.lookup(ctx, tenantID, field, value)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s: %w", field, err)
		}

		for _, id := range ids {
			if seen[id] {
				continue
			}

			seen[id] = true
			matches = append(matches, Match{ExecutionID: id, Field: field, Value: value})
		}
	}

	return matches, nil
}

// MatchValue renders an inbound correlation value the way suspended waits are
// keyed. Candidate lookup and resume both compare through it.
func MatchValue(value any) string {
	return strings.TrimSpace(cast.ToString(value))
}

// lookup asks the index first. Keys it lost (expired, flushed, or never
// written because Add failed after the checkpoint) are answered by the store.
func (m *Manager) lookup(ctx context.Context, tenantID string, field models.MatchField, value string) ([]string, error) {
	if m.index == Index(m.store) {
		return m.store.Lookup(ctx, tenantID, field, value)
	}

	ids, err := m.index.Lookup(ctx, tenantID, field, value)
	if err != nil {
		m.logger.WarnContext(ctx, "correlation index unavailable, reading the store",
			"tenant_id", tenantID,
			"match_field", field,
			"error", err,
		)
	}

	if len(ids) > 0 {
		return ids, nil
	}

	return m.store.Lookup(ctx, tenantID, field, value)
}

// Due reports whether a waiting execution's suspension has elapsed at now.
func Due(wait *models.Wait, now time.Time) bool {
	switch {
	case wait == nil:
		return false
	case wait.Kind == models.WaitKindTimer:
		return wait.ResumeAt != nil && !now.Before(*wait.ResumeAt)
	default:
		return wait.Deadline != nil && !now.Before(*wait.Deadline)
	}
}
