// Package main provides the workflow API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/cmd"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/services"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/triggers/care"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/triggers/webhook"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger   *slog.Logger
	runtime  *cmd.Runtime
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, runtime *cmd.Runtime) *API {
	return &API{
		logger:   logger,
		runtime:  runtime,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	p := a.runtime.Persistence
	engine := a.runtime.Engine

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(p),
		services.NewExecution(p),
		webhook.NewTrigger(p.WorkflowRepository(), engine),
		webhook.NewCorrelator(a.runtime.Manager, engine),
		care.NewTrigger(p.WorkflowRepository(), engine, a.runtime.CRM),
		engine,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("CRM Flow API")
	})

	handlers.Register(app)

	return app
}

// Start serves the API until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("Shutting down workflow API")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return errors.Join(app.ShutdownWithContext(shutdownCtx), <-errCh)
	}
}
