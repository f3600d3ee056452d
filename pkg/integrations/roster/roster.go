// Package roster picks assignees from a tenant's users for assign_record.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
)

var ErrNoUsers = errors.New("no active users to assign")

// Cursor hands out a monotonically increasing position per key. It is the
// shared state behind round robin assignment.
type Cursor interface {
	Next(ctx context.Context, key string) (uint64, error)
}

// Roster selects users from the CRM user directory.
type Roster struct {
	store  crm.Store
	cursor Cursor
}

func New(store crm.Store, cursor Cursor) *Roster {
	if cursor == nil {
		cursor = NewMemoryCursor()
	}

	return &Roster{store: store, cursor: cursor}
}

// Candidates returns the active users of a tenant ordered by id, optionally
// restricted to a team.
func (r *Roster) Candidates(ctx context.Context, tenantID, team string) ([]crm.User, error) {
	users, err := r.store.Users(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	active := make([]crm.User, 0, len(users))

	for _, user := range users {
		if !user.Active || (team != "" && user.Team != team) {
			continue
		}

		active = append(active, user)
	}

	if len(active) == 0 {
		return nil, ErrNoUsers
	}

	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	return active, nil
}

// RoundRobin rotates through the candidates. The rotation is per tenant and
// entity so leads and opportunities are balanced independently.
func (r *Roster) RoundRobin(ctx context.Context, tenantID string, entity models.EntityType, team string) (crm.User, error) {
	candidates, err := r.Candidates(ctx, tenantID, team)
	if err != nil {
		return crm.User{}, err
	}

	position, err := r.cursor.Next(ctx, cursorKey(tenantID, entity, team))
	if err != nil {
		return crm.User{}, fmt.Errorf("failed to advance round robin cursor: %w", err)
	}

	return candidates[int((position-1)%uint64(len(candidates)))], nil
}

// LeastAssigned returns the candidate with the fewest records of entity
// assigned. Ties go to the lowest user id.
func (r *Roster) LeastAssigned(ctx context.Context, tenantID string, entity models.EntityType, team string) (crm.User, error) {
	candidates, err := r.Candidates(ctx, tenantID, team)
	if err != nil {
		return crm.User{}, err
	}

	counts, err := r.store.CountAssigned(ctx, tenantID, entity)
	if err != nil {
		return crm.User{}, fmt.Errorf("failed to count assignments: %w", err)
	}

	best := candidates[0]

	for _, user := range candidates[1:] {
		if counts[user.ID] < counts[best.ID] {
			best = user
		}
	}

	return best, nil
}

func cursorKey(tenantID string, entity models.EntityType, team string) string {
	key := tenantID + ":" + string(entity)
	if team != "" {
		key += ":" + team
	}

	return key
}
