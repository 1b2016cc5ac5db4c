// Package config provides configuration management for the application.
//
// Values are resolved in this order, later sources winning:
// built-in defaults, config.yaml (with ${VAR} and ${VAR:-default}
// expansion), then environment variables (a .env file is loaded into the
// environment first and never overrides variables that are already set).
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Body size limits accepted by ValidateBodySizeLimit.
const (
	DefaultBodySizeLimit int64 = 10 * 1024 * 1024
	MinBodySizeLimit     int64 = 1024
	MaxBodySizeLimit     int64 = 100 * 1024 * 1024
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	Usage     UsageConfig     `yaml:"usage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Admin     AdminConfig     `yaml:"admin"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`

	// BodySizeLimit accepts a byte count or a K/M suffixed size ("10M").
	BodySizeLimit string `yaml:"body_size_limit" env:"BODY_SIZE_LIMIT"`

	// ShutdownTimeout in seconds
	ShutdownTimeout int `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// HTTPConfig configures outbound calls to upstream providers. Values are seconds.
type HTTPConfig struct {
	Timeout               int `yaml:"timeout" env:"HTTP_TIMEOUT"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout" env:"HTTP_RESPONSE_HEADER_TIMEOUT"`
}

// ProvidersConfig holds the two upstreams the endpoints talk to.
type ProvidersConfig struct {
	OpenAI  ProviderConfig `yaml:"openai"`
	Gateway ProviderConfig `yaml:"gateway"`
}

// ProviderConfig describes one OpenAI-compatible upstream. The API key
// itself is never stored; APIKeyEnv names the variable read per request.
type ProviderConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// StorageConfig selects the usage backend.
type StorageConfig struct {
	Type       string           `yaml:"type" env:"STORAGE_TYPE"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
	Redis      RedisConfig      `yaml:"redis"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url" env:"POSTGRES_URL"`
	MaxConns int    `yaml:"max_conns" env:"POSTGRES_MAX_CONNS"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URL      string `yaml:"url" env:"MONGODB_URL"`
	Database string `yaml:"database" env:"MONGODB_DATABASE"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	URL       string `yaml:"url" env:"REDIS_URL"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX"`
}

// UsageConfig controls feature-usage tracking.
type UsageConfig struct {
	Enabled    bool `yaml:"enabled" env:"USAGE_ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"USAGE_BUFFER_SIZE"`
	// FlushInterval in seconds
	FlushInterval int `yaml:"flush_interval" env:"USAGE_FLUSH_INTERVAL"`
	// RetentionDays of 0 keeps data forever
	RetentionDays int `yaml:"retention_days" env:"USAGE_RETENTION_DAYS"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"METRICS_ENDPOINT"`
}

// AdminConfig controls the usage read API.
type AdminConfig struct {
	EndpointsEnabled bool `yaml:"endpoints_enabled" env:"ADMIN_ENDPOINTS_ENABLED"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Format is "text", "json" or empty for auto-detection.
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Level  string `yaml:"level" env:"LOG_LEVEL"`
}

// LoadResult is returned by Load.
type LoadResult struct {
	Config *Config
	// ConfigFile is the YAML file that was read, or empty.
	ConfigFile string
}

// configPaths are searched in order for a YAML config file.
var configPaths = []string{"config/config.yaml", "config.yaml"}

// buildDefaultConfig returns the configuration used when nothing is set.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 30,
		},
		HTTP: HTTPConfig{
			Timeout:               120,
			ResponseHeaderTimeout: 60,
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				Name:      "OpenAI",
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
			},
			Gateway: ProviderConfig{
				Name:      "AI gateway",
				BaseURL:   "https://ai.gateway.lovable.dev/v1",
				APIKeyEnv: "LOVABLE_API_KEY",
			},
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/healthproxy.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "healthproxy"},
			Redis:      RedisConfig{KeyPrefix: "healthproxy:"},
		},
		Usage: UsageConfig{
			Enabled:       true,
			BufferSize:    1000,
			FlushInterval: 5,
			RetentionDays: 90,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}

// Load reads .env, config.yaml and the environment into a Config.
func Load() (*LoadResult, error) {
	// .env is optional; existing environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := buildDefaultConfig()
	result := &LoadResult{Config: cfg}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		result.ConfigFile = path
		break
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate checks values that cannot be caught by parsing alone.
func (c *Config) Validate() error {
	if err := ValidateBodySizeLimit(c.Server.BodySizeLimit); err != nil {
		return err
	}
	switch c.Storage.Type {
	case "sqlite", "postgresql", "mongodb", "redis":
	default:
		return fmt.Errorf("invalid storage type %q (valid: sqlite, postgresql, mongodb, redis)", c.Storage.Type)
	}
	for name, p := range map[string]ProviderConfig{"openai": c.Providers.OpenAI, "gateway": c.Providers.Gateway} {
		if strings.TrimSpace(p.BaseURL) == "" {
			return fmt.Errorf("providers.%s.base_url is required", name)
		}
		if strings.TrimSpace(p.APIKeyEnv) == "" {
			return fmt.Errorf("providers.%s.api_key_env is required", name)
		}
	}
	if c.HTTP.Timeout < 0 || c.HTTP.ResponseHeaderTimeout < 0 {
		return fmt.Errorf("HTTP timeouts must not be negative")
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default}. A variable that is unset
// or empty without a default is left as written.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// providerBaseURLEnv maps provider base URL overrides. ProviderConfig is
// shared by both providers, so these cannot be struct tags.
var providerBaseURLEnv = []struct {
	name  string
	field func(*Config) *string
}{
	{"OPENAI_BASE_URL", func(c *Config) *string { return &c.Providers.OpenAI.BaseURL }},
	{"AI_GATEWAY_BASE_URL", func(c *Config) *string { return &c.Providers.Gateway.BaseURL }},
}

// applyEnvOverrides sets every field tagged `env:"NAME"` from the
// environment when NAME is set and non-empty.
func applyEnvOverrides(cfg *Config) error {
	for _, o := range providerBaseURLEnv {
		if v := os.Getenv(o.name); v != "" {
			*o.field(cfg) = v
		}
	}
	return applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int:
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("invalid value for %s: %q is not an integer", name, raw)
			}
			field.SetInt(int64(n))
		case reflect.Bool:
			b, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("invalid value for %s: %q is not a boolean", name, raw)
			}
			field.SetBool(b)
		}
	}
	return nil
}

var bodySizePattern = regexp.MustCompile(`^(\d+)([KkMm][Bb]?)?$`)

// ParseBodySizeLimit converts "10M", "100KB" or "1048576" into bytes.
// An empty string yields DefaultBodySizeLimit.
func ParseBodySizeLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultBodySizeLimit, nil
	}

	m := bodySizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid body size limit %q: use a number with optional K or M suffix", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid body size limit %q: %w", s, err)
	}

	switch strings.ToUpper(strings.TrimSuffix(strings.ToUpper(m[2]), "B")) {
	case "K":
		n *= 1024
	case "M":
		n *= 1024 * 1024
	}
	return n, nil
}

// ValidateBodySizeLimit checks that s parses and lies within
// [MinBodySizeLimit, MaxBodySizeLimit]. Empty is valid.
func ValidateBodySizeLimit(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := ParseBodySizeLimit(s)
	if err != nil {
		return err
	}
	if n < MinBodySizeLimit || n > MaxBodySizeLimit {
		return fmt.Errorf("body size limit %q out of range (1K to 100M)", s)
	}
	return nil
}
