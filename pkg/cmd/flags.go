package cmd

import (
	"github.com/andreibyf/aishacrm-2-sub004/pkg/log"
	cli "github.com/urfave/cli/v3"
)

// RuntimeFlags returns the flags read by RuntimeConfigFrom. Every flag can
// also be set from the environment.
func RuntimeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for workflows and executions (postgres:// or file://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "crm-database-url",
			Usage:   "Database connection URL for CRM records (in memory when empty)",
			Sources: cli.EnvVars("CRM_DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the suspension index and round-robin cursors",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "providers-config",
			Usage:   "Path to the AI and messaging providers configuration file",
			Sources: cli.EnvVars("PROVIDERS_CONFIG"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP",
			Sources: cli.EnvVars("TRACING"),
		},
		&cli.IntFlag{
			Name:    "max-steps",
			Usage:   "Maximum node executions per run (engine default when zero)",
			Sources: cli.EnvVars("MAX_STEPS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   string(log.FormatText),
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func LogConfigFrom(command *cli.Command, serviceName string) log.Config {
	return log.Config{
		Service: serviceName,
		Level:   command.String("log-level"),
		Format:  log.Format(command.String("log-format")),
	}
}

func RuntimeConfigFrom(command *cli.Command, serviceName string) RuntimeConfig {
	return RuntimeConfig{
		ServiceName:     serviceName,
		DatabaseURL:     command.String("database-url"),
		CRMDatabaseURL:  command.String("crm-database-url"),
		RedisURL:        command.String("redis-url"),
		EventBus:        command.String("event-bus"),
		KafkaBrokers:    command.String("kafka-brokers"),
		ProvidersConfig: command.String("providers-config"),
		Tracing:         command.Bool("tracing"),
		MaxSteps:        command.Int("max-steps"),
	}
}
