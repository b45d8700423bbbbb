// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/smartyellow/services/adapters/auth"
	apihttp "github.com/smartyellow/services/adapters/http"
	"github.com/smartyellow/services/adapters/metrics"
	"github.com/smartyellow/services/adapters/pubsub"
	"github.com/smartyellow/services/config"
	"github.com/smartyellow/services/core/events"
	"github.com/smartyellow/services/core/storage"
	"github.com/smartyellow/services/ports"
)

// Version is set at build time.
var Version = "dev"

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	Engine     *Engine
	Store      storage.Store
	Bucket     ports.Bucket
	Publisher  *pubsub.Publisher
	Bus        *events.Bus
	Tokens     *auth.TokenService
	Metrics    *metrics.Collector
	Handler    http.Handler
	HTTPServer *http.Server

	instance string
	closers  []namedCloser
	cancel   context.CancelFunc
	done     chan struct{}
}

type namedCloser struct {
	name  string
	close func() error
}

// Options provides optional configuration for application initialization.
type Options struct {
	// Output receives log lines; defaults to stdout.
	Output io.Writer

	// WatchConfig enables reload on file change and SIGHUP.
	WatchConfig bool
}

// New creates and initializes the application from the configuration held
// by holder.
func New(ctx context.Context, holder *config.Holder, opts Options) (*App, error) {
	cfg := holder.Get()
	logger := NewLogger(cfg.Logging, opts.Output)

	a := &App{
		Logger:   logger,
		Config:   holder,
		Bus:      events.NewBus(logger.With().Str("component", "events").Logger()),
		instance: uuid.NewString(),
		done:     make(chan struct{}),
	}
	logger.Info().Str("version", Version).Str("instance", a.instance).Msg("initializing services")

	if err := a.init(ctx, cfg, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, cfg *config.Config, opts Options) error {
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(reg)
		a.Logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	engineCfg := EngineConfig{Pipeline: cfg.Pipeline, Logger: a.Logger}
	if a.Metrics != nil {
		engineCfg.Metrics = a.Metrics
	}
	engine, err := NewEngine(engineCfg)
	if err != nil {
		return err
	}
	a.Engine = engine
	if _, err := engine.Resolve(cfg.Plugin); err != nil {
		return err
	}

	checks := map[string]apihttp.HealthChecker{}

	store, err := OpenStore(ctx, cfg.Database, a.Logger)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.Store = store.Value
	a.onClose("database", store.Close)
	if store.Check != nil {
		checks["database"] = store.Check
	}

	bucket, err := OpenBucket(ctx, cfg.Bucket, a.Logger)
	if err != nil {
		return fmt.Errorf("init bucket: %w", err)
	}
	a.Bucket = bucket.Value
	a.onClose("bucket", bucket.Close)
	if bucket.Check != nil {
		checks["bucket"] = bucket.Check
	}

	pub, err := OpenPublisher(ctx, cfg.Publisher, a.Logger)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	a.Publisher = pub.Value
	a.onClose("publisher", pub.Close)
	if pub.Check != nil {
		checks["publisher"] = pub.Check
	}
	a.forwardEvents()

	a.Tokens = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiration)
	if cfg.Auth.JWTSecret == "" {
		a.Logger.Warn().Msg("auth.jwt_secret not set, using a random secret; tokens will not survive a restart")
	}

	services := apihttp.NewServicesHandler(apihttp.ServicesConfig{
		Pipeline: engine.Pipeline,
		Manifest: engine.Manifest,
		Storage:  ports.Storage{State: ports.StorageAvailable, Store: a.Store, Bucket: a.Bucket},
		Bus:      a.Bus,
		Settings: engine.Settings,
		Logger:   a.Logger.With().Str("component", "http").Logger(),
	})

	routerCfg := apihttp.RouterConfig{
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		Health:         apihttp.NewHealthHandler(checks),
		Version:        Version,
		RequestTimeout: cfg.Server.RequestTimeout,
		EnableOpenAPI:  cfg.Server.EnableOpenAPI,
	}
	if reg != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	a.Handler = apihttp.NewRouter(services, a.Tokens, a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.Config.OnChange(a.ApplyConfig)
	if opts.WatchConfig && a.Config.Path() != "" {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.Config.WatchSignals()
	}
	return nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Start begins receiving events from other instances. It returns
// immediately.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	go func() {
		defer close(a.done)
		if err := a.receiveEvents(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("event subscription stopped")
		}
	}()
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	a.Start(context.Background())

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.cancel != nil {
		a.cancel()
		select {
		case <-a.done:
		case <-ctx.Done():
		}
	}

	a.Config.Stop()
	a.close()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// close releases backends in reverse order of opening.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.Logger.Error().Err(err).Str("backend", c.name).Msg("close error")
		}
	}
	a.closers = nil
}

// NewLogger builds the process logger. The level is applied globally so a
// reload can change it.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
