package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigYAML(t *testing.T, content string) {
	t.Helper()
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("config.yaml", []byte(content), 0644))
}

const defaultsYAML = `
server:
  port: "${TEST_PORT_DEFAULTS:-9999}"
providers:
  gateway:
    base_url: "${TEST_GATEWAY_URL:-https://gateway.internal/v1}"
    api_key_env: "GATEWAY_KEY"
storage:
  type: redis
  redis:
    url: "${TEST_REDIS_URL:-redis://localhost:6379/0}"
`

func TestLoad_YAMLWithDefaults(t *testing.T) {
	t.Run("UseDefaultValue", func(t *testing.T) {
		writeConfigYAML(t, defaultsYAML)
		t.Setenv("TEST_PORT_DEFAULTS", "")
		t.Setenv("TEST_GATEWAY_URL", "")
		t.Setenv("TEST_REDIS_URL", "")
		t.Setenv("PORT", "")

		result, err := Load()
		require.NoError(t, err)

		cfg := result.Config
		assert.Equal(t, "config.yaml", result.ConfigFile)
		assert.Equal(t, "9999", cfg.Server.Port)
		assert.Equal(t, "https://gateway.internal/v1", cfg.Providers.Gateway.BaseURL)
		assert.Equal(t, "GATEWAY_KEY", cfg.Providers.Gateway.APIKeyEnv)
		assert.Equal(t, "redis", cfg.Storage.Type)
		assert.Equal(t, "redis://localhost:6379/0", cfg.Storage.Redis.URL)

		// Fields absent from the file keep their built-in defaults.
		assert.Equal(t, "AI gateway", cfg.Providers.Gateway.Name)
		assert.Equal(t, "https://api.openai.com/v1", cfg.Providers.OpenAI.BaseURL)
		assert.Equal(t, 90, cfg.Usage.RetentionDays)
	})

	t.Run("OverrideDefaultValue", func(t *testing.T) {
		writeConfigYAML(t, defaultsYAML)
		t.Setenv("TEST_PORT_DEFAULTS", "1111")
		t.Setenv("TEST_GATEWAY_URL", "https://other.example/v1")
		t.Setenv("PORT", "")

		result, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "1111", result.Config.Server.Port)
		assert.Equal(t, "https://other.example/v1", result.Config.Providers.Gateway.BaseURL)
	})

	t.Run("EnvironmentBeatsYAML", func(t *testing.T) {
		writeConfigYAML(t, defaultsYAML)
		t.Setenv("PORT", "2222")
		t.Setenv("STORAGE_TYPE", "sqlite")

		result, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "2222", result.Config.Server.Port)
		assert.Equal(t, "sqlite", result.Config.Storage.Type)
	})
}

func TestLoad_MalformedYAML(t *testing.T) {
	writeConfigYAML(t, "server: [unterminated")

	_, err := Load()
	require.ErrorContains(t, err, "failed to parse config.yaml")
}
