package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
)

var ErrNoOwner = errors.New("record has no owner")

func (d *Dispatcher) assignRecord(ctx context.Context, cfg *nodes.AssignRecordConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRun(ctx, cfg, opts)
	}

	if d.deps.CRM == nil {
		return Result{}, fmt.Errorf("%w: crm", ErrNotConfigured)
	}

	entity := models.EntityType(cfg.EntityType)

	userID, err := d.chooseAssignee(ctx, cfg, entity, opts.TenantID)
	if err != nil {
		return Result{}, err
	}

	if _, err := d.deps.CRM.Update(ctx, opts.TenantID, entity, cfg.RecordID, map[string]any{crm.FieldAssignedTo: userID}); err != nil {
		return Result{}, crmError(entity, err)
	}

	d.logger.InfoContext(ctx, "record assigned",
		"tenant_id", opts.TenantID,
		"entity", entity,
		"record_id", cfg.RecordID,
		"user_id", userID,
		"method", cfg.Method,
	)

	return Result{
		Namespace: models.NamespaceAssignment,
		Value: map[string]any{
			"user_id":     userID,
			"method":      string(cfg.Method),
			"entity_type": cfg.EntityType,
			"record_id":   cfg.RecordID,
		},
	}, nil
}

func (d *Dispatcher) chooseAssignee(ctx context.Context, cfg *nodes.AssignRecordConfig, entity models.EntityType, tenantID string) (string, error) {
	switch cfg.Method {
	case nodes.AssignSpecificUser:
		return cfg.UserID, nil
	case nodes.AssignRoundRobin:
		user, err := d.deps.Roster.RoundRobin(ctx, tenantID, entity, cfg.Team)
		if err != nil {
			return "", err
		}

		return user.ID, nil
	case nodes.AssignLeastAssigned:
		user, err := d.deps.Roster.LeastAssigned(ctx, tenantID, entity, cfg.Team)
		if err != nil {
			return "", err
		}

		return user.ID, nil
	case nodes.AssignRecordOwner:
		record, err := d.deps.CRM.Get(ctx, tenantID, entity, cfg.RecordID)
		if err != nil {
			return "", crmError(entity, err)
		}

		for _, field := range []string{crm.FieldOwnerID, crm.FieldCreatedBy} {
			if owner := record.String(field); owner != "" {
				return owner, nil
			}
		}

		return "", fmt.Errorf("%s %s: %w", entity, cfg.RecordID, ErrNoOwner)
	default:
		return "", fmt.Errorf("unsupported assignment method %q", cfg.Method)
	}
}
