package webhook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/suspension"
)

// Resumer continues suspended executions. *workflow.Engine implements it.
type Resumer interface {
	ResumeWithPayload(ctx context.Context, executionID, tenantID string, payload map[string]any) (bool, error)
}

// Correlator delivers provider callbacks (call results, message receipts)
// to the executions waiting for them.
type Correlator struct {
	manager *suspension.Manager
	resumer Resumer
	logger  *slog.Logger
}

func NewCorrelator(manager *suspension.Manager, resumer Resumer) *Correlator {
	return &Correlator{
		manager: manager,
		resumer: resumer,
		logger:  log.WithModule("correlator"),
	}
}

// Deliver resumes every execution of tenantID whose correlation key is
// carried by payload and returns their ids. A payload matching nothing is
// not an error.
func (c *Correlator) Deliver(ctx context.Context, tenantID string, payload map[string]any) ([]string, error) {
	matches, err := c.manager.Candidates(ctx, tenantID, payload)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		c.logger.DebugContext(ctx, "callback matched no waiting execution", "tenant_id", tenantID)
	}

	resumed := []string{}

	var errs []error

	for _, match := range matches {
		ok, err := c.resumer.ResumeWithPayload(ctx, match.ExecutionID, tenantID, payload)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to resume execution", "execution_id", match.ExecutionID, "error", err)
			errs = append(errs, err)

			continue
		}

		if ok {
			resumed = append(resumed, match.ExecutionID)
		}
	}

	return resumed, errors.Join(errs...)
}
