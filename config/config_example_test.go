package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExampleConfigParses(t *testing.T) {
	data, err := os.ReadFile("config.example.yaml")
	require.NoError(t, err)

	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("config.yaml", data, 0644))
	t.Setenv("PORT", "")

	result, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", result.Config.Server.Port)
	require.Equal(t, "OPENAI_API_KEY", result.Config.Providers.OpenAI.APIKeyEnv)
}
