package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/messaging"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/outbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	return path
}

func TestLoadProviders_YAML(t *testing.T) {
	path := writeConfig(t, "providers.yaml", `
ai:
  default_provider: openai
  providers:
    openai:
      base_url: https://api.openai.com/v1
      api_key: sk-test
      default_model: gpt-4o-mini
messaging:
  base_url: https://gateway.example.com
  endpoints:
    sms: https://sms.example.com/send
outbound:
  max_retries: 4
`)

	providers, err := LoadProviders(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", providers.AI.DefaultProvider)
	assert.Equal(t, "gpt-4o-mini", providers.AI.Providers["openai"].DefaultModel)
	assert.Equal(t, "https://gateway.example.com", providers.Messaging.BaseURL)
	assert.Equal(t, "https://sms.example.com/send", providers.Messaging.Endpoints[messaging.ChannelSMS])
	assert.Equal(t, 4, providers.Outbound.MaxRetries)
	assert.Equal(t, 200, providers.Outbound.BaseDelayMS)
	assert.Len(t, providers.Outbound.ClientOptions(), 2)
}

func TestLoadProviders_Defaults(t *testing.T) {
	providers, err := LoadProviders("")
	require.NoError(t, err)

	assert.Equal(t, outbound.DefaultMaxRetries, providers.Outbound.MaxRetries)
	assert.Zero(t, providers.Outbound.MaxRetries)
	assert.Empty(t, providers.AI.Providers)
}

func TestLoadProviders_EnvOverride(t *testing.T) {
	t.Setenv("CRMFLOW_MESSAGING_API_KEY", "from-env")
	t.Setenv("CRMFLOW_OUTBOUND_MAX_RETRIES", "1")

	path := writeConfig(t, "providers.yaml", `
messaging:
  base_url: https://gateway.example.com
  api_key: from-file
`)

	providers, err := LoadProviders(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", providers.Messaging.APIKey)
	assert.Equal(t, 1, providers.Outbound.MaxRetries)
}

func TestLoadProviders_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "provider without url",
			content: `
ai:
  providers:
    local:
      default_model: llama3
`,
		},
		{
			name: "unknown default provider",
			content: `
ai:
  default_provider: anthropic
  providers:
    openai:
      base_url: https://api.openai.com/v1
      default_model: gpt-4o-mini
`,
		},
		{
			name: "retry budget too large",
			content: `
outbound:
  max_retries: 50
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadProviders(writeConfig(t, "providers.yaml", tt.content))
			require.ErrorContains(t, err, "invalid providers config")
		})
	}

	_, err := LoadProviders(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
