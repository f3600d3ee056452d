// Package config loads the provider settings shared by the crmflow binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/ai"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/messaging"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/outbound"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override file settings.
const EnvPrefix = "CRMFLOW"

// OutboundConfig bounds outbound calls that carry no per-execution policy.
type OutboundConfig struct {
	MaxRetries  int `mapstructure:"max_retries"   validate:"gte=0,lte=10"`
	BaseDelayMS int `mapstructure:"base_delay_ms" validate:"gte=0"`
}

// Providers holds the credentials and endpoints of the external services
// workflow actions talk to.
type Providers struct {
	AI        ai.Config               `mapstructure:"ai"`
	Messaging messaging.GatewayConfig `mapstructure:"messaging"`
	Outbound  OutboundConfig          `mapstructure:"outbound"`
}

// LoadProviders reads path (YAML, JSON or TOML by extension) and applies
// CRMFLOW_* environment overrides. An empty path yields defaults and
// environment values only.
func LoadProviders(path string) (*Providers, error) {
	v := viper.New()

	v.SetDefault("outbound.max_retries", outbound.DefaultMaxRetries)
	v.SetDefault("outbound.base_delay_ms", 200)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{"ai.default_provider", "messaging.base_url", "messaging.api_key"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("providers config %s not found: %w", path, err)
			}

			return nil, fmt.Errorf("failed to read providers config %s: %w", path, err)
		}
	}

	var providers Providers
	if err := v.Unmarshal(&providers); err != nil {
		return nil, fmt.Errorf("failed to decode providers config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(providers); err != nil {
		return nil, fmt.Errorf("invalid providers config: %w", err)
	}

	if providers.AI.DefaultProvider != "" {
		if _, ok := providers.AI.Providers[providers.AI.DefaultProvider]; !ok {
			return nil, fmt.Errorf("invalid providers config: default AI provider %q is not configured", providers.AI.DefaultProvider)
		}
	}

	return &providers, nil
}

// ClientOptions converts the outbound settings into client options.
func (c OutboundConfig) ClientOptions() []outbound.Option {
	return []outbound.Option{
		outbound.WithMaxRetries(c.MaxRetries),
		outbound.WithBaseDelay(time.Duration(c.BaseDelayMS) * time.Millisecond),
	}
}
