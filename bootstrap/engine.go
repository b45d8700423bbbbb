package bootstrap

import (
	"fmt"
	"maps"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/adapters/clock"
	"github.com/smartyellow/services/adapters/idgen"
	"github.com/smartyellow/services/adapters/random"
	"github.com/smartyellow/services/config"
	"github.com/smartyellow/services/core/hooks"
	"github.com/smartyellow/services/core/plugin"
	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/resolve"
	"github.com/smartyellow/services/core/runtime"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/entities"
	"github.com/smartyellow/services/ports"
)

// Engine holds the services entity: its manifest, the function registry
// and the pipeline with the schema resolved against the current settings.
type Engine struct {
	Manifest *plugin.Manifest
	Entity   schema.Entity
	Registry *registry.Registry
	Pipeline *runtime.Pipeline

	settings atomic.Pointer[map[string]any]
	logger   zerolog.Logger
}

// EngineConfig configures NewEngine.
type EngineConfig struct {
	Pipeline config.PipelineConfig
	Logger   zerolog.Logger

	// Metrics is optional.
	Metrics runtime.Metrics

	// IDs and Clock default to short random ids and the wall clock.
	IDs   ports.IDGenerator
	Clock ports.Clock
}

// NewEngine loads the embedded definitions and registers the built-in
// functions. Call Resolve before running the pipeline.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	manifest, err := entities.Manifest()
	if err != nil {
		return nil, fmt.Errorf("plugin manifest: %w", err)
	}
	ent, err := entities.Service()
	if err != nil {
		return nil, err
	}

	if cfg.IDs == nil {
		cfg.IDs = idgen.NewShort(random.Real{}, cfg.Pipeline.IDLength)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	reg := registry.New()
	hooks.Register(reg, hooks.Deps{
		IDs:          cfg.IDs,
		Clock:        cfg.Clock,
		Logger:       cfg.Logger.With().Str("component", "hooks").Logger(),
		SlugAttempts: cfg.Pipeline.SlugAttempts,
	})

	opts := []runtime.Option{runtime.WithLogger(cfg.Logger.With().Str("component", "pipeline").Logger())}
	if cfg.Metrics != nil {
		opts = append(opts, runtime.WithMetrics(cfg.Metrics))
	}
	pipeline := runtime.New(reg, cfg.IDs, cfg.Clock, runtime.Config{
		DefaultLocale: cfg.Pipeline.DefaultLocale,
		IDAttempts:    cfg.Pipeline.IDAttempts,
	}, opts...)

	e := &Engine{
		Manifest: manifest,
		Entity:   ent,
		Registry: reg,
		Pipeline: pipeline,
		logger:   cfg.Logger,
	}
	empty := map[string]any{}
	e.settings.Store(&empty)
	return e, nil
}

// Resolve resolves the entity against the plugin settings and globals and
// installs the schema. On error the installed schema is kept.
func (e *Engine) Resolve(pc config.PluginConfig) (*schema.Schema, error) {
	settings, err := e.Manifest.Apply(pc.Settings)
	if err != nil {
		return nil, fmt.Errorf("plugin settings: %w", err)
	}

	s, err := resolve.Resolve(e.Entity, e.Registry, registry.Settings{
		Plugin:  settings,
		Globals: maps.Clone(pc.Globals),
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", e.Entity.Name, err)
	}

	e.Pipeline.SetSchema(s)
	e.settings.Store(&settings)
	e.logger.Info().
		Str("entity", s.Entity).
		Int("fields", len(s.Fields)).
		Int("hooks", len(s.Hooks)).
		Msg("schema resolved")
	return s, nil
}

// Settings returns the plugin settings of the installed schema.
func (e *Engine) Settings() map[string]any {
	return *e.settings.Load()
}
