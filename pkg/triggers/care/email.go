package care

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
)

// Fields linking CRM records to each other.
const (
	fieldEmail            = "email"
	fieldRelatedTo        = "related_to"
	fieldRelatedID        = "related_id"
	fieldAccountID        = "account_id"
	fieldContactID        = "contact_id"
	fieldPrimaryContactID = "primary_contact_id"
)

// EmailResolver finds the address a CARE event is about.
type EmailResolver struct {
	store crm.Store
}

func NewEmailResolver(store crm.Store) *EmailResolver {
	return &EmailResolver{store: store}
}

// Resolve returns the email for an entity. Activities resolve through the
// entity they relate to, accounts through their primary contact and
// opportunities through their linked contact. A missing record or address
// yields "" without error.
func (r *EmailResolver) Resolve(ctx context.Context, tenantID string, entity models.EntityType, id string) (string, error) {
	email, err := r.resolve(ctx, tenantID, entity, id, true)
	if errors.Is(err, crm.ErrNotFound) {
		return "", nil
	}

	return email, err
}

func (r *EmailResolver) resolve(ctx context.Context, tenantID string, entity models.EntityType, id string, followActivity bool) (string, error) {
	if id == "" {
		return "", nil
	}

	switch entity {
	case models.EntityLead, models.EntityContact:
		record, err := r.store.Get(ctx, tenantID, entity, id)
		if err != nil {
			return "", err
		}

		return record.String(fieldEmail), nil

	case models.EntityAccount:
		return r.accountEmail(ctx, tenantID, id)

	case models.EntityOpportunity:
		record, err := r.store.Get(ctx, tenantID, entity, id)
		if err != nil {
			return "", err
		}

		if contactID := record.String(fieldContactID); contactID != "" {
			return r.resolve(ctx, tenantID, models.EntityContact, contactID, false)
		}

		return r.accountEmail(ctx, tenantID, record.String(fieldAccountID))

	case models.EntityActivity:
		if !followActivity {
			return "", nil
		}

		record, err := r.store.Get(ctx, tenantID, entity, id)
		if err != nil {
			return "", err
		}

		related := models.EntityType(record.String(fieldRelatedTo))
		if !crm.ValidEntity(related) {
			return "", nil
		}

		return r.resolve(ctx, tenantID, related, record.String(fieldRelatedID), false)

	default:
		return "", fmt.Errorf("%w: %s", crm.ErrInvalidEntity, entity)
	}
}

func (r *EmailResolver) accountEmail(ctx context.Context, tenantID, accountID string) (string, error) {
	if accountID == "" {
		return "", nil
	}

	account, err := r.store.Get(ctx, tenantID, models.EntityAccount, accountID)
	if err != nil {
		return "", err
	}

	if contactID := account.String(fieldPrimaryContactID); contactID != "" {
		return r.resolve(ctx, tenantID, models.EntityContact, contactID, false)
	}

	contact, err := r.store.Find(ctx, tenantID, models.EntityContact, fieldAccountID, accountID)
	if err != nil {
		return "", err
	}

	return contact.String(fieldEmail), nil
}
