// Package main provides the worker that resumes suspended executions and
// starts care_trigger workflows from CARE events on the event bus.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/cmd"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/events"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/suspension"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/triggers/care"
	"golang.org/x/sync/errgroup"
)

type Worker struct {
	logger  *slog.Logger
	runtime *cmd.Runtime
	sweeper *suspension.Sweeper
	care    *care.Trigger
}

func NewWorker(logger *slog.Logger, runtime *cmd.Runtime, schedule string) (*Worker, error) {
	sweeper, err := suspension.NewSweeper(runtime.Persistence.ExecutionRepository(), runtime.Engine, schedule)
	if err != nil {
		return nil, err
	}

	return &Worker{
		logger:  logger,
		runtime: runtime,
		sweeper: sweeper,
		care:    care.NewTrigger(runtime.Persistence.WorkflowRepository(), runtime.Engine, runtime.CRM),
	}, nil
}

// Start runs the sweeper and the CARE consumer until ctx is cancelled or
// either of them fails.
func (w *Worker) Start(ctx context.Context) error {
	err := w.runtime.EventBus.Handle(events.CareEventReceivedEvent, w.care.EventHandler())
	if err != nil {
		return fmt.Errorf("failed to register care event handler: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.sweeper.Start(ctx)
	})

	g.Go(func() error {
		err := w.runtime.EventBus.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("failed to subscribe to care events: %w", err)
		}

		w.logger.InfoContext(ctx, "Consuming care events", "topic", events.CareTopic)

		<-ctx.Done()

		return nil
	})

	err = g.Wait()

	w.logger.Info("Workflow worker stopped")

	return err
}
