package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder_Get(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	require.NoError(t, err)
	defer h.Stop()

	got := h.Get()
	require.NotNil(t, got)
	assert.Equal(t, "https://example.com/", got.Plugin.Settings["preview"])
}

func TestHolder_ReloadNotifies(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	require.NoError(t, err)
	defer h.Stop()

	var mu sync.Mutex
	var received *config.Config
	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		received = cfg
		mu.Unlock()
	})

	newContent := `
database:
  driver: memory
plugin:
  settings:
    preview: "https://example.com/next/"
    channels: {web: Website}
`
	require.NoError(t, os.WriteFile(path, []byte(newContent), 0644))
	require.NoError(t, h.Reload())

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, received, "OnChange callback was not called")
	assert.Equal(t, "https://example.com/next/", received.Plugin.Settings["preview"])
	assert.Same(t, received, h.Get(), "Get should return the reloaded config")
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	require.NoError(t, err)
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("database: {driver: mongo}"), 0644))
	assert.Error(t, h.Reload(), "Reload should fail for invalid config")
	assert.Equal(t, "memory", h.Get().Database.Driver, "should keep old config")
}

func TestHolder_Static(t *testing.T) {
	cfg := &config.Config{}
	h := config.NewStaticHolder(cfg, zerolog.Nop())
	defer h.Stop()

	assert.NoError(t, h.Reload())
	assert.Same(t, cfg, h.Get(), "static holder should keep its config")
	assert.Error(t, h.WatchFile(), "WatchFile without a file should fail")
	h.Stop()
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	require.NoError(t, err)
	defer h.Stop()

	require.NoError(t, h.WatchFile())

	newContent := `
database:
  driver: memory
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(newContent), 0644))

	assert.Eventually(t, func() bool {
		return h.Get().Logging.Level == "debug"
	}, 2*time.Second, 10*time.Millisecond, "file watcher did not reload")
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	require.NoError(t, err)
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NotNil(t, h.Get(), "concurrent Get returned nil")
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	reloadable := config.ReloadableFields()
	for _, f := range []string{"plugin.settings", "plugin.globals", "logging.level"} {
		assert.Contains(t, reloadable, f)
	}
	for _, f := range config.NonReloadableFields() {
		assert.NotContains(t, reloadable, f, "listed as both reloadable and not")
	}
	assert.Contains(t, config.NonReloadableFields(), "database.dsn")
}

func validConfig() string {
	return `
database:
  driver: memory

plugin:
  settings:
    preview: "https://example.com/"
    channels:
      web: Website
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
