// Package app wires configuration, upstream providers, usage tracking and the
// HTTP server into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"healthproxy/config"
	"healthproxy/internal/admin"
	"healthproxy/internal/httpclient"
	"healthproxy/internal/server"
	"healthproxy/internal/upstream"
	"healthproxy/internal/usage"
)

// Provider IDs used in metrics and usage records.
const (
	ProviderOpenAI  = "openai"
	ProviderGateway = "gateway"
)

// App represents the main application with all its dependencies.
type App struct {
	config  *config.Config
	openai  *upstream.Client
	gateway *upstream.Client
	usage   *usage.Result
	server  *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	AppConfig *config.LoadResult
}

// New creates and initializes a new App.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.AppConfig.Config == nil {
		return nil, fmt.Errorf("app config contains nil Config")
	}

	appCfg := cfg.AppConfig.Config
	app := &App{config: appCfg}

	httpCfg := buildHTTPClientConfig(appCfg.HTTP)
	app.openai = newProvider(ProviderOpenAI, appCfg.Providers.OpenAI, httpCfg)
	app.gateway = newProvider(ProviderGateway, appCfg.Providers.Gateway, httpCfg)

	usageResult, err := usage.New(ctx, appCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize usage tracking: %w", err)
	}
	app.usage = usageResult

	app.logStartupInfo(cfg.AppConfig.ConfigFile)

	bodySizeLimit, err := config.ParseBodySizeLimit(appCfg.Server.BodySizeLimit)
	if err != nil {
		closeErr := app.usage.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("invalid body size limit: %w (also: usage close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("invalid body size limit: %w", err)
	}

	serverCfg := &server.Config{
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   bodySizeLimit,
	}
	if appCfg.Admin.EndpointsEnabled {
		adminHandler := admin.NewHandler(usageResult.Reader, appCfg.Storage.Type)
		serverCfg.RegisterAdmin = func(g *echo.Group) { adminHandler.Register(g) }
		slog.Info("admin API enabled", "api", "/admin/api/v1")
	} else {
		slog.Info("admin API disabled")
	}

	handler := server.NewHandler(app.openai, app.gateway, usageResult.Logger)
	app.server = server.New(handler, serverCfg)

	return app, nil
}

// newProvider builds an upstream client from provider configuration.
func newProvider(id string, pc config.ProviderConfig, httpCfg httpclient.ClientConfig) *upstream.Client {
	return upstream.New(upstream.Config{
		ID:        id,
		Name:      pc.Name,
		BaseURL:   pc.BaseURL,
		APIKeyEnv: pc.APIKeyEnv,
		HTTP:      httpCfg,
	})
}

// buildHTTPClientConfig applies configured timeouts (seconds) over the
// transport defaults. Zero keeps the default.
func buildHTTPClientConfig(cfg config.HTTPConfig) httpclient.ClientConfig {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = time.Duration(cfg.Timeout) * time.Second
	}
	if cfg.ResponseHeaderTimeout > 0 {
		httpCfg.ResponseHeaderTimeout = time.Duration(cfg.ResponseHeaderTimeout) * time.Second
	}
	return httpCfg
}

// ServeHTTP exposes the server for in-process tests.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.server.ServeHTTP(w, r)
}

// UsageLogger returns the usage recorder, or nil before initialization.
func (a *App) UsageLogger() usage.Recorder {
	if a.usage == nil {
		return nil
	}
	return a.usage.Logger
}

// UsageReader returns the usage reader, or nil when tracking is disabled.
func (a *App) UsageReader() usage.UsageReader {
	if a.usage == nil {
		return nil
	}
	return a.usage.Reader
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server first so no new usage entries arrive, then
// flushes and closes usage tracking. Safe to call multiple times.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			slog.Error("usage close error", "error", err)
			errs = append(errs, fmt.Errorf("usage close: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the effective configuration. Credentials are only
// reported as present or missing.
func (a *App) logStartupInfo(configFile string) {
	cfg := a.config

	if configFile != "" {
		slog.Info("config file loaded", "path", configFile)
	}

	for _, p := range []struct {
		id  string
		cfg config.ProviderConfig
	}{
		{ProviderOpenAI, cfg.Providers.OpenAI},
		{ProviderGateway, cfg.Providers.Gateway},
	} {
		attrs := []any{"provider", p.id, "base_url", p.cfg.BaseURL, "api_key_env", p.cfg.APIKeyEnv}
		if upstream.CredentialConfigured(p.cfg.APIKeyEnv) {
			slog.Info("provider configured", attrs...)
		} else {
			slog.Warn("provider API key not set; requests will fail until it is", attrs...)
		}
	}

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if cfg.Usage.Enabled {
		slog.Info("usage tracking enabled",
			"storage_type", cfg.Storage.Type,
			"buffer_size", cfg.Usage.BufferSize,
			"flush_interval", cfg.Usage.FlushInterval,
			"retention_days", cfg.Usage.RetentionDays,
		)
	} else {
		slog.Info("usage tracking disabled")
	}
}
