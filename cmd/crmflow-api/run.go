package main

import (
	"context"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/cmd"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	flags := append(cmd.RuntimeFlags(),
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
	)

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the workflow API server",
		Flags:   flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.Setup(cmd.LogConfigFrom(command, serviceName))

			logger.InfoContext(ctx, "Initializing workflow API")

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

			return NewAPI(logger, runtime).Start(ctx, command.Int("port"))
		},
	}
}
