package main

import (
	"context"
	"fmt"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/cmd"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/suspension"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	flags := append(cmd.RuntimeFlags(),
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Value:   "",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron schedule of the timer and webhook timeout sweep",
			Value:   suspension.DefaultSchedule,
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
	)

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the worker",
		Flags:   flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			base := log.Setup(cmd.LogConfigFrom(command, serviceName))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
			}

			logger := base.With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing workflow worker")

			runtime, err := cmd.NewRuntime(ctx, logger, cmd.RuntimeConfigFrom(command, serviceName))
			if err != nil {
				return err
			}

			defer func() {
				err := runtime.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			worker, err := NewWorker(logger, runtime, command.String("sweep-schedule"))
			if err != nil {
				return err
			}

			return worker.Start(ctx)
		},
	}
}
