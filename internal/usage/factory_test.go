package usage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthproxy/config"
)

func TestNew_DisabledReturnsNoop(t *testing.T) {
	cfg := &config.Config{Usage: config.UsageConfig{Enabled: false}}

	result, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, NoopLogger{}, result.Logger)
	assert.Nil(t, result.Reader)
	assert.Nil(t, result.Storage)
	assert.NoError(t, result.Close())
}

func TestNew_SQLiteRoundTrip(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Type:   "sqlite",
			SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "hp.db")},
		},
		Usage: config.UsageConfig{Enabled: true, BufferSize: 10, FlushInterval: 1},
	}

	result, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, result.Reader)

	result.Logger.Write(NewEntry("r1", FeatureDental, "openai", "gpt-4o", 200, time.Millisecond))
	result.Logger.Write(NewEntry("r2", FeatureEyeTest, "openai", "gpt-4o-mini", 500, time.Millisecond))

	// Closing the logger drains the buffer; read before the storage closes.
	require.NoError(t, result.Logger.Close())
	summary, err := result.Reader.GetSummary(context.Background(), UsageQueryParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalRequests)
	assert.Equal(t, int64(1), summary.FailedRequests)

	require.NoError(t, result.Close())
	require.NoError(t, result.Close())
}

func TestNew_UnreachableBackendFails(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Type: "postgresql"},
		Usage:   config.UsageConfig{Enabled: true},
	}
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestBuildLoggerConfig_Defaults(t *testing.T) {
	cfg := buildLoggerConfig(config.UsageConfig{Enabled: true, RetentionDays: 7})
	assert.Equal(t, 1000, cfg.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, 7, cfg.RetentionDays)
}

func TestBuildStorageConfig_Defaults(t *testing.T) {
	cfg := buildStorageConfig(&config.Config{})
	assert.Equal(t, "sqlite", cfg.Type)
	assert.Equal(t, "data/healthproxy.db", cfg.SQLite.Path)
	assert.Equal(t, "healthproxy", cfg.MongoDB.Database)
}
