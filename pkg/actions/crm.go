package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
)

// findRecord runs in shadow mode too: lookups have no side effects and keep
// downstream conditions meaningful.
func (d *Dispatcher) findRecord(ctx context.Context, cfg *nodes.FindRecordConfig, opts Options) (Result, error) {
	if d.deps.CRM == nil {
		return Result{}, fmt.Errorf("%w: crm", ErrNotConfigured)
	}

	record, err := d.deps.CRM.Find(ctx, opts.TenantID, cfg.Entity, cfg.SearchField, cfg.SearchValue)
	if err != nil {
		return Result{}, crmError(cfg.Entity, err)
	}

	return Result{Namespace: string(cfg.Entity), Value: record}, nil
}

func (d *Dispatcher) createRecord(ctx context.Context, cfg *nodes.CreateRecordConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRun(ctx, cfg, opts)
	}

	if d.deps.CRM == nil {
		return Result{}, fmt.Errorf("%w: crm", ErrNotConfigured)
	}

	record, err := d.deps.CRM.Create(ctx, opts.TenantID, cfg.Entity, cfg.Values())
	if err != nil {
		return Result{}, crmError(cfg.Entity, err)
	}

	d.logger.InfoContext(ctx, "record created", "tenant_id", opts.TenantID, "entity", cfg.Entity, "record_id", record.ID())

	return Result{Namespace: string(cfg.Entity), Value: record}, nil
}

func (d *Dispatcher) updateRecord(ctx context.Context, cfg *nodes.UpdateRecordConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRunUpdate(ctx, cfg, opts)
	}

	if d.deps.CRM == nil {
		return Result{}, fmt.Errorf("%w: crm", ErrNotConfigured)
	}

	record, err := d.deps.CRM.Update(ctx, opts.TenantID, cfg.Entity, cfg.RecordID, cfg.Values())
	if err != nil {
		return Result{}, crmError(cfg.Entity, err)
	}

	return Result{Namespace: string(cfg.Entity), Value: record}, nil
}

func (d *Dispatcher) createNote(ctx context.Context, cfg *nodes.CreateNoteConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRun(ctx, cfg, opts)
	}

	if d.deps.CRM == nil {
		return Result{}, fmt.Errorf("%w: crm", ErrNotConfigured)
	}

	note, err := d.deps.CRM.Create(ctx, opts.TenantID, models.EntityNote, map[string]any{
		"related_type": cfg.RelatedType,
		"related_id":   cfg.RelatedID,
		"title":        cfg.Title,
		"content":      cfg.Content,
	})
	if err != nil {
		return Result{}, crmError(models.EntityNote, err)
	}

	return Result{Namespace: string(models.EntityNote), Value: note}, nil
}

func crmError(entity models.EntityType, err error) error {
	if errors.Is(err, crm.ErrNotFound) {
		return fmt.Errorf("%s %w: %w", entity, ErrEntityMissing, err)
	}

	return fmt.Errorf("%s store call failed: %w", entity, err)
}
