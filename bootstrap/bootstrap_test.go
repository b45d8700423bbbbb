package bootstrap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/bootstrap"
	"github.com/smartyellow/services/config"
	"github.com/smartyellow/services/core/events"
	"github.com/smartyellow/services/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memoryConfig = `
database:
  driver: memory
auth:
  jwt_secret: test-secret
logging:
  level: error
plugin:
  settings:
    preview: "https://example.com/services/"
    channels:
      web: Website
      print: Print
`

func newApp(t *testing.T, content string) (*bootstrap.App, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	holder, err := config.NewHolder(path, zerolog.Nop())
	require.NoError(t, err)
	app, err := bootstrap.New(context.Background(), holder, bootstrap.Options{Output: io.Discard})
	require.NoError(t, err)
	t.Cleanup(func() { app.Shutdown() })
	return app, path
}

func request(t *testing.T, app *bootstrap.App, method, path string, u *ports.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if u != nil {
		token, _, err := app.Tokens.GenerateToken(*u)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, req)
	return rec
}

var editor = ports.User{
	ID: "u1",
	Features: []string{
		"smartyellow/services/seeMyServices",
		"smartyellow/services/editServices",
		"smartyellow/services/createServices",
	},
}

func TestNew_MemoryBackends(t *testing.T) {
	app, _ := newApp(t, memoryConfig)

	rec := request(t, app, "GET", "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = request(t, app, "GET", "/version", nil, nil)
	assert.Contains(t, rec.Body.String(), `"service":"services"`)
	rec = request(t, app, "GET", "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "metrics are enabled")
	rec = request(t, app, "GET", "/swagger/doc.json", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "api documentation is off by default")

	rec = request(t, app, "POST", "/services", &editor, map[string]any{
		"name":     map[string]any{"en": "Web Design"},
		"channels": []string{"web"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Data   map[string]any    `json:"data"`
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Empty(t, res.Errors)
	id, _ := res.Data["id"].(string)
	assert.Len(t, id, 6)

	stored, err := app.Store.Collection("smartyellow/service").Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "concept", stored["status"])
}

func TestNew_OpenAPI(t *testing.T) {
	app, _ := newApp(t, memoryConfig+"server:\n  enable_openapi: true\n")

	rec := request(t, app, "GET", "/swagger/doc.json", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/services/{id}"`)
}

func TestNew_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "services.db")
	app, _ := newApp(t, strings.Replace(memoryConfig, "driver: memory", "driver: sqlite\n  dsn: "+dsn, 1))

	rec := request(t, app, "GET", "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "database", "readiness should report the database check")
	assert.FileExists(t, dsn)
}

func TestNew_UnknownPluginSetting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	content := memoryConfig + "    colour: red\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	holder, err := config.NewHolder(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = bootstrap.New(context.Background(), holder, bootstrap.Options{Output: io.Discard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown setting "colour"`)
}

func TestReload_AppliesPluginSettings(t *testing.T) {
	app, path := newApp(t, memoryConfig)

	var mu sync.Mutex
	var topics []string
	app.Bus.Subscribe("*", func(_ context.Context, e events.Event) error {
		mu.Lock()
		topics = append(topics, e.Topic)
		mu.Unlock()
		return nil
	})

	next := strings.Replace(memoryConfig, "https://example.com/services/", "https://example.com/diensten/", 1)
	require.NoError(t, os.WriteFile(path, []byte(next), 0644))
	require.NoError(t, app.Config.Reload())

	rec := request(t, app, "GET", "/services/settings", &editor, nil)
	assert.Contains(t, rec.Body.String(), "https://example.com/diensten/")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"smartyellow/services/schema"}, topics)
}

func TestReload_BadSettingsKeepSchema(t *testing.T) {
	app, path := newApp(t, memoryConfig)
	before := app.Engine.Pipeline.Schema()

	require.NoError(t, os.WriteFile(path, []byte(memoryConfig+"    colour: red\n"), 0644))
	require.NoError(t, app.Config.Reload())

	assert.Same(t, before, app.Engine.Pipeline.Schema(), "a failed resolution must keep the running schema")
	assert.Equal(t, "https://example.com/services/", app.Engine.Settings()["preview"])
}

func TestStartShutdown(t *testing.T) {
	app, _ := newApp(t, memoryConfig)
	app.Start(context.Background())
	assert.NoError(t, app.Shutdown())
}

func TestNewLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	var buf bytes.Buffer
	logger := bootstrap.NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden", "info line logged at warn level")
	assert.Contains(t, out, `"message":"shown"`)

	buf.Reset()
	logger = bootstrap.NewLogger(config.LoggingConfig{Level: "bogus", Format: "console"}, &buf)
	logger.Info().Msg("console line")
	assert.NotContains(t, buf.String(), `"message"`)
	assert.Contains(t, buf.String(), "console line")
}
