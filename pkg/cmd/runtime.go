package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/actions"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/config"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/eventbus"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/ai"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/crm"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/messaging"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/roster"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/otelhelper"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/outbound"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/suspension"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/workflow"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// RuntimeConfig collects the settings shared by the API and worker binaries.
type RuntimeConfig struct {
	ServiceName     string
	DatabaseURL     string
	CRMDatabaseURL  string
	RedisURL        string
	EventBus        string
	KafkaBrokers    string
	ProvidersConfig string
	Tracing         bool
	MaxSteps        int
}

// Runtime is the wired engine with everything it depends on.
type Runtime struct {
	Persistence persistence.Persistence
	CRM         crm.Store
	EventBus    eventbus.EventBus
	Manager     *suspension.Manager
	Engine      *workflow.Engine

	closers []func(context.Context) error
}

// NewRuntime opens every store and client named by cfg. On error the
// resources opened so far are released.
func NewRuntime(ctx context.Context, logger *slog.Logger, cfg RuntimeConfig) (*Runtime, error) {
	runtime := &Runtime{}

	fail := func(err error) (*Runtime, error) {
		return nil, errors.Join(err, runtime.Close(context.WithoutCancel(ctx)))
	}

	providers, err := config.LoadProviders(cfg.ProvidersConfig)
	if err != nil {
		return nil, err
	}

	runtime.Persistence, err = NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("failed to open workflow store: %w", err))
	}

	runtime.closers = append(runtime.closers, runtime.Persistence.Close)

	store, closeStore, err := NewCRMStore(ctx, cfg.CRMDatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("failed to open CRM store: %w", err))
	}

	runtime.CRM = store
	runtime.closers = append(runtime.closers, func(context.Context) error {
		closeStore()

		return nil
	})

	redisClient, err := NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fail(err)
	}

	if redisClient != nil {
		runtime.closers = append(runtime.closers, func(context.Context) error { return redisClient.Close() })
	}

	runtime.EventBus, err = NewEventBus(cfg.EventBus, cfg.KafkaBrokers, cfg.ServiceName, logger)
	if err != nil {
		return fail(err)
	}

	runtime.closers = append(runtime.closers, func(context.Context) error { return runtime.EventBus.Close() })

	tracer, shutdown, err := NewTracer(ctx, cfg.Tracing, cfg.ServiceName)
	if err != nil {
		return fail(err)
	}

	runtime.closers = append(runtime.closers, shutdown)

	managerOpts := []suspension.Option{}
	if redisClient != nil {
		managerOpts = append(managerOpts, suspension.WithIndex(suspension.NewRedisIndex(redisClient)))
	}

	runtime.Manager = suspension.NewManager(runtime.Persistence.ExecutionRepository(), managerOpts...)

	engineOpts := []workflow.Option{
		workflow.WithPublisher(runtime.EventBus),
		workflow.WithTracer(tracer),
	}
	if cfg.MaxSteps > 0 {
		engineOpts = append(engineOpts, workflow.WithMaxSteps(cfg.MaxSteps))
	}

	dispatcher := actions.NewDispatcher(NewDependencies(store, providers, redisClient))
	runtime.Engine = workflow.NewEngine(runtime.Persistence, dispatcher, runtime.Manager, engineOpts...)

	return runtime, nil
}

// NewDependencies builds the action handler dependencies. Without a Redis
// client the round-robin cursor lives in process memory.
func NewDependencies(store crm.Store, providers *config.Providers, redisClient redis.UniversalClient) actions.Dependencies {
	client := outbound.NewClient(providers.Outbound.ClientOptions()...)

	var cursor roster.Cursor = roster.NewMemoryCursor()
	if redisClient != nil {
		cursor = roster.NewRedisCursor(redisClient)
	}

	return actions.Dependencies{
		CRM:       store,
		Roster:    roster.New(store, cursor),
		AI:        ai.NewClient(providers.AI, client),
		Messaging: messaging.NewGateway(providers.Messaging, client),
		HTTP:      client,
	}
}

// NewRedisClient connects to redisURL. An empty URL returns a nil client.
func NewRedisClient(ctx context.Context, redisURL string) (redis.UniversalClient, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewTracer returns an OTLP tracer when enabled and a no-op tracer otherwise.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func NewTracer(ctx context.Context, enabled bool, serviceName string) (trace.Tracer, otelhelper.ShutdownFunc, error) {
	if !enabled {
		return otelhelper.NoopTracer(), func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	return tracer, shutdown, nil
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	r.closers = nil

	return errors.Join(errs...)
}
