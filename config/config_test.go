package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartyellow/services/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  request_timeout: 5s

database:
  driver: postgres
  dsn: "postgres://localhost/services"
  max_conns: 20
  min_conns: 2

bucket:
  driver: minio
  endpoint: "localhost:9000"
  name: attachments

publisher:
  driver: redis
  addr: "localhost:6379"

pipeline:
  default_locale: nl
  id_length: 8

plugin:
  settings:
    preview: "https://example.com/services/"
    channels:
      web: Website
      print: Print
  globals:
    personas:
      dev: Developer
`

	cfg := writeAndLoad(t, content)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, "localhost:9000", cfg.Bucket.Endpoint)
	assert.Equal(t, "attachments", cfg.Bucket.Name)
	assert.Equal(t, "localhost:6379", cfg.Publisher.Addr)
	assert.Equal(t, "nl", cfg.Pipeline.DefaultLocale)
	assert.Equal(t, 8, cfg.Pipeline.IDLength)

	channels, ok := cfg.Plugin.Settings["channels"].(map[string]any)
	require.True(t, ok, "channels = %T, want map", cfg.Plugin.Settings["channels"])
	assert.Equal(t, "Website", channels["web"])
	assert.IsType(t, map[string]any{}, cfg.Plugin.Globals["personas"])
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}")

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "services.db", cfg.Database.DSN)
	assert.Equal(t, "memory", cfg.Bucket.Driver)
	assert.Equal(t, "none", cfg.Publisher.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenExpiration)
	assert.Equal(t, config.PipelineConfig{DefaultLocale: "en", IDLength: 6, IDAttempts: 10, SlugAttempts: 100}, cfg.Pipeline)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Server.EnableOpenAPI)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_PREVIEW", "https://preview.example.com/")

	cfg := writeAndLoad(t, `
plugin:
  settings:
    preview: "${TEST_PREVIEW}"
`)
	assert.Equal(t, "https://preview.example.com/", cfg.Plugin.Settings["preview"])
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown database driver", "database: {driver: mongo}", "database.driver: must be sqlite, postgres or memory"},
		{"postgres without dsn", "database: {driver: postgres}", "database.dsn: is required for postgres"},
		{"min above max conns", "database: {driver: postgres, dsn: x, max_conns: 2, min_conns: 5}", "database.min_conns: must not exceed max_conns"},
		{"unknown bucket driver", "bucket: {driver: s3}", "bucket.driver: must be memory or minio"},
		{"minio without endpoint", "bucket: {driver: minio}", "bucket.endpoint: is required for minio"},
		{"redis without addr", "publisher: {driver: redis}", "publisher.addr: is required for redis"},
		{"short id", "pipeline: {id_length: 2}", "pipeline.id_length"},
		{"bad log level", "logging: {level: verbose}", "logging.level: must be debug, info, warn or error"},
		{"bad log format", "logging: {format: xml}", "logging.format: must be json or console"},
		{"relative metrics path", "metrics: {enabled: true, path: metrics}", "metrics.path: must start with /"},
		{"port out of range", "server: {port: 70000}", "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MemoryNeedsNoDSN(t *testing.T) {
	cfg := writeAndLoad(t, "database: {driver: memory}")
	assert.Empty(t, cfg.Database.DSN)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := writeAndLoadErr(t, "server: [unclosed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load("/nonexistent/services.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SERVICES_SERVER_PORT", "7070")
	t.Setenv("SERVICES_DATABASE_DRIVER", "memory")
	t.Setenv("SERVICES_LOG_LEVEL", "debug")
	t.Setenv("SERVICES_PREVIEW_URL", "https://env.example.com/")
	t.Setenv("SERVICES_METRICS_ENABLED", "no")
	t.Setenv("SERVICES_TOKEN_EXPIRATION", "1h")
	t.Setenv("SERVICES_OPENAPI_ENABLED", "true")

	cfg := writeAndLoad(t, `
server:
  port: 9090
database:
  driver: sqlite
logging:
  level: warn
metrics:
  enabled: true
plugin:
  settings:
    preview: "https://file.example.com/"
`)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "https://env.example.com/", cfg.Plugin.Settings["preview"])
	assert.False(t, cfg.Metrics.Enabled, "metrics should be disabled by env")
	assert.Equal(t, time.Hour, cfg.Auth.TokenExpiration)
	assert.True(t, cfg.Server.EnableOpenAPI, "openapi should be enabled by env")
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("SERVICES_SERVER_PORT", "not-a-number")
	t.Setenv("SERVICES_SERVER_READ_TIMEOUT", "soon")

	cfg := writeAndLoad(t, "server: {port: 9090}")
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "want default")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVICES_DATABASE_DRIVER", "memory")
	t.Setenv("SERVICES_BUCKET_DRIVER", "minio")
	t.Setenv("SERVICES_BUCKET_ENDPOINT", "minio:9000")

	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "minio:9000", cfg.Bucket.Endpoint)
	assert.True(t, cfg.Metrics.Enabled, "metrics should default to enabled")
}

func TestLoadWithFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: {port: 9191}"), 0644))

	cfg, err := config.LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port, "want port from file")

	t.Setenv("SERVICES_SERVER_PORT", "9292")
	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9292, cfg.Server.Port, "want port from env")
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	require.NoError(t, err)
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return config.Load(path)
}
