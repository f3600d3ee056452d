package actions

import (
	"context"
	"fmt"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/ai"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
)

func (d *Dispatcher) invokeAI(ctx context.Context, cfg *nodes.AIConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRun(ctx, cfg, opts)
	}

	if d.deps.AI == nil {
		return Result{}, fmt.Errorf("%w: ai", ErrNotConfigured)
	}

	result, err := d.deps.AI.Invoke(ctx, ai.Request{
		Capability: cfg.Capability,
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		Prompt:     cfg.Prompt,
		Input:      cfg.Input,
		Tone:       cfg.Tone,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{Namespace: cfg.Namespace(), Value: result}, nil
}
