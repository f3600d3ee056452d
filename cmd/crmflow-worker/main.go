package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
)

const serviceName = "crmflow-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Resume suspended executions and consume CARE events",
		Commands: []*cli.Command{
			NewRunCommand(),
		},
	}

	err := command.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}
