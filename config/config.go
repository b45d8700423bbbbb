// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Bucket    BucketConfig    `yaml:"bucket"`
	Publisher PublisherConfig `yaml:"publisher"`
	Auth      AuthConfig      `yaml:"auth"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Plugin    PluginConfig    `yaml:"plugin"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	EnableOpenAPI  bool          `yaml:"enable_openapi"` // serves /swagger/*
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the document store.
// Use "sqlite", "postgres" or "memory".
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"` // file path for sqlite, URL for postgres
	MaxConns        int32         `yaml:"max_conns,omitempty"`
	MinConns        int32         `yaml:"min_conns,omitempty"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime,omitempty"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time,omitempty"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout,omitempty"`
}

// BucketConfig configures attachment storage.
// Use "memory" or "minio".
type BucketConfig struct {
	Driver    string `yaml:"driver"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
}

// PublisherConfig configures the broadcast of reload events to other
// instances. Use "none" or "redis".
type PublisherConfig struct {
	Driver   string `yaml:"driver"`
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// AuthConfig configures bearer tokens.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret,omitempty"`
	TokenExpiration time.Duration `yaml:"token_expiration,omitempty"`
}

// PipelineConfig configures the entity pipeline.
type PipelineConfig struct {
	DefaultLocale string `yaml:"default_locale"`
	IDLength      int    `yaml:"id_length"`
	IDAttempts    int    `yaml:"id_attempts"`
	SlugAttempts  int    `yaml:"slug_attempts"`
}

// PluginConfig holds the plugin settings and the globals shared by all
// plugins. Both are reloadable.
type PluginConfig struct {
	Settings map[string]any `yaml:"settings,omitempty"` // preview, channels
	Globals  map[string]any `yaml:"globals,omitempty"`  // personas
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML after expanding ${VAR} references.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	SERVICES_SERVER_HOST        - Server host (default: 0.0.0.0)
//	SERVICES_SERVER_PORT        - Server port (default: 8080)
//	SERVICES_DATABASE_DRIVER    - sqlite, postgres or memory (default: sqlite)
//	SERVICES_DATABASE_DSN       - Database path or URL (default: services.db)
//	SERVICES_BUCKET_DRIVER      - memory or minio (default: memory)
//	SERVICES_PUBLISHER_DRIVER   - none or redis (default: none)
//	SERVICES_JWT_SECRET         - Token signing secret
//	SERVICES_DEFAULT_LOCALE     - Locale of bare strings (default: en)
//	SERVICES_PREVIEW_URL        - Plugin setting "preview"
//	SERVICES_LOG_LEVEL          - debug, info, warn, error (default: info)
//	SERVICES_LOG_FORMAT         - json or console (default: json)
//	SERVICES_METRICS_ENABLED    - Enable /metrics endpoint (default: true)
//	SERVICES_OPENAPI_ENABLED    - Serve the API documentation (default: false)
func LoadFromEnv() (*Config, error) {
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies SERVICES_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			*dst = parseBool(v)
		}
	}

	// Server
	str("SERVICES_SERVER_HOST", &cfg.Server.Host)
	num("SERVICES_SERVER_PORT", &cfg.Server.Port)
	dur("SERVICES_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	dur("SERVICES_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	dur("SERVICES_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	flag("SERVICES_OPENAPI_ENABLED", &cfg.Server.EnableOpenAPI)

	// Database
	str("SERVICES_DATABASE_DRIVER", &cfg.Database.Driver)
	str("SERVICES_DATABASE_DSN", &cfg.Database.DSN)

	// Bucket
	str("SERVICES_BUCKET_DRIVER", &cfg.Bucket.Driver)
	str("SERVICES_BUCKET_ENDPOINT", &cfg.Bucket.Endpoint)
	str("SERVICES_BUCKET_ACCESS_KEY", &cfg.Bucket.AccessKey)
	str("SERVICES_BUCKET_SECRET_KEY", &cfg.Bucket.SecretKey)
	str("SERVICES_BUCKET_NAME", &cfg.Bucket.Name)
	flag("SERVICES_BUCKET_USE_SSL", &cfg.Bucket.UseSSL)

	// Publisher
	str("SERVICES_PUBLISHER_DRIVER", &cfg.Publisher.Driver)
	str("SERVICES_PUBLISHER_ADDR", &cfg.Publisher.Addr)
	str("SERVICES_PUBLISHER_PASSWORD", &cfg.Publisher.Password)

	// Auth
	str("SERVICES_JWT_SECRET", &cfg.Auth.JWTSecret)
	dur("SERVICES_TOKEN_EXPIRATION", &cfg.Auth.TokenExpiration)

	// Pipeline
	str("SERVICES_DEFAULT_LOCALE", &cfg.Pipeline.DefaultLocale)

	// Plugin
	if v := os.Getenv("SERVICES_PREVIEW_URL"); v != "" {
		if cfg.Plugin.Settings == nil {
			cfg.Plugin.Settings = make(map[string]any)
		}
		cfg.Plugin.Settings["preview"] = v
	}

	// Logging
	str("SERVICES_LOG_LEVEL", &cfg.Logging.Level)
	str("SERVICES_LOG_FORMAT", &cfg.Logging.Format)

	// Metrics
	flag("SERVICES_METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("SERVICES_METRICS_PATH", &cfg.Metrics.Path)
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "services.db"
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 10 * time.Second
	}

	if cfg.Bucket.Driver == "" {
		cfg.Bucket.Driver = "memory"
	}
	if cfg.Bucket.Name == "" {
		cfg.Bucket.Name = "services"
	}

	if cfg.Publisher.Driver == "" {
		cfg.Publisher.Driver = "none"
	}
	if cfg.Publisher.Prefix == "" {
		cfg.Publisher.Prefix = "webdesq:"
	}

	if cfg.Auth.TokenExpiration == 0 {
		cfg.Auth.TokenExpiration = 24 * time.Hour
	}

	if cfg.Pipeline.DefaultLocale == "" {
		cfg.Pipeline.DefaultLocale = "en"
	}
	if cfg.Pipeline.IDLength == 0 {
		cfg.Pipeline.IDLength = 6
	}
	if cfg.Pipeline.IDAttempts == 0 {
		cfg.Pipeline.IDAttempts = 10
	}
	if cfg.Pipeline.SlugAttempts == 0 {
		cfg.Pipeline.SlugAttempts = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration. Errors are keyed by the YAML path of
// the offending value.
func (c *Config) Validate() error {
	errs := validation.Errors{
		"server.port": validation.Validate(c.Server.Port,
			validation.Required, validation.Min(1), validation.Max(65535)),
		"database.driver": validation.Validate(c.Database.Driver,
			validation.Required, validation.In("sqlite", "postgres", "memory").Error("must be sqlite, postgres or memory")),
		"database.dsn": validation.Validate(c.Database.DSN,
			validation.When(c.Database.Driver != "memory", validation.Required.Error("is required for "+c.Database.Driver))),
		"database.min_conns": validation.Validate(c.Database.MinConns,
			validation.When(c.Database.MaxConns > 0, validation.Max(c.Database.MaxConns).Error("must not exceed max_conns"))),
		"bucket.driver": validation.Validate(c.Bucket.Driver,
			validation.Required, validation.In("memory", "minio").Error("must be memory or minio")),
		"bucket.endpoint": validation.Validate(c.Bucket.Endpoint,
			validation.When(c.Bucket.Driver == "minio", validation.Required.Error("is required for minio"))),
		"publisher.driver": validation.Validate(c.Publisher.Driver,
			validation.Required, validation.In("none", "redis").Error("must be none or redis")),
		"publisher.addr": validation.Validate(c.Publisher.Addr,
			validation.When(c.Publisher.Driver == "redis", validation.Required.Error("is required for redis"))),
		"pipeline.default_locale": validation.Validate(c.Pipeline.DefaultLocale,
			validation.Required, validation.Length(2, 10)),
		"pipeline.id_length": validation.Validate(c.Pipeline.IDLength, validation.Min(4), validation.Max(32)),
		"pipeline.id_attempts": validation.Validate(c.Pipeline.IDAttempts, validation.Min(1)),
		"pipeline.slug_attempts": validation.Validate(c.Pipeline.SlugAttempts, validation.Min(1)),
		"logging.level": validation.Validate(c.Logging.Level,
			validation.In("debug", "info", "warn", "error").Error("must be debug, info, warn or error")),
		"logging.format": validation.Validate(c.Logging.Format,
			validation.In("json", "console").Error("must be json or console")),
		"metrics.path": validation.Validate(c.Metrics.Path,
			validation.When(c.Metrics.Enabled, validation.By(absolutePath))),
	}
	return errs.Filter()
}

func absolutePath(v any) error {
	if s, _ := v.(string); !strings.HasPrefix(s, "/") {
		return errors.New("must start with /")
	}
	return nil
}
