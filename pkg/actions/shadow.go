package actions

import (
	"context"
	"maps"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
	"github.com/mitchellh/mapstructure"
)

// dryRun logs the action a shadow execution would take. The description is
// the step output only: the execution context keeps what earlier nodes wrote,
// so later templates resolve as they would in a real run.
func (d *Dispatcher) dryRun(ctx context.Context, cfg nodes.Config, opts Options) (Result, error) {
	wouldExecute := map[string]any{}
	if err := mapstructure.Decode(cfg, &wouldExecute); err != nil {
		return Result{}, err
	}

	d.logger.InfoContext(ctx, "shadow mode: action not performed",
		"tenant_id", opts.TenantID,
		"action", cfg.Kind(),
		"would_execute", wouldExecute,
	)

	return Result{
		Output: map[string]any{
			"shadow":        true,
			"action":        string(cfg.Kind()),
			"would_execute": wouldExecute,
		},
		Shadow: true,
	}, nil
}

// dryRunUpdate also previews the update in the entity namespace: the loaded
// record with the new field values laid over it.
func (d *Dispatcher) dryRunUpdate(ctx context.Context, cfg *nodes.UpdateRecordConfig, opts Options) (Result, error) {
	result, err := d.dryRun(ctx, cfg, opts)
	if err != nil {
		return Result{}, err
	}

	preview := map[string]any{"id": cfg.RecordID}
	if current, ok := opts.Context[string(cfg.Entity)].(map[string]any); ok {
		maps.Copy(preview, current)
	}

	maps.Copy(preview, cfg.Values())

	result.Namespace = string(cfg.Entity)
	result.Value = preview

	return result, nil
}
