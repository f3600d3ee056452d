// Package crm defines the CRM entity store the workflow engine reads and writes.
package crm

import (
	"context"
	"errors"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/spf13/cast"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidEntity = errors.New("invalid entity type")
)

// Record is a CRM entity as a JSON object. "id" is always set.
type Record map[string]any

func (r Record) ID() string {
	return cast.ToString(r["id"])
}

func (r Record) String(field string) string {
	return cast.ToString(r[field])
}

// User is an assignable CRM user.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Team   string `json:"team,omitempty"`
	Active bool   `json:"active"`
}

// Store is the tenant-scoped CRM data access used by workflow actions.
type Store interface {
	Get(ctx context.Context, tenantID string, entity models.EntityType, id string) (Record, error)
	Find(ctx context.Context, tenantID string, entity models.EntityType, field, value string) (Record, error)
	Create(ctx context.Context, tenantID string, entity models.EntityType, fields map[string]any) (Record, error)
	Update(ctx context.Context, tenantID string, entity models.EntityType, id string, fields map[string]any) (Record, error)
	Users(ctx context.Context, tenantID string) ([]User, error)
	CountAssigned(ctx context.Context, tenantID string, entity models.EntityType) (map[string]int, error)
}

// Assignee fields set by assign_record.
const (
	FieldAssignedTo = "assigned_to"
	FieldOwnerID    = "owner_id"
	FieldCreatedBy  = "created_by"
)

// Entities lists the entity types a store must support.
func Entities() []models.EntityType {
	return []models.EntityType{
		models.EntityLead, models.EntityContact, models.EntityAccount,
		models.EntityOpportunity, models.EntityActivity, models.EntityNote,
	}
}

// ValidEntity reports whether entity is a known CRM entity type.
func ValidEntity(entity models.EntityType) bool {
	for _, known := range Entities() {
		if entity == known {
			return true
		}
	}

	return false
}
