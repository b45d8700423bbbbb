package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	apihttp "github.com/smartyellow/services/adapters/http"
	"github.com/smartyellow/services/adapters/memory"
	"github.com/smartyellow/services/adapters/minio"
	"github.com/smartyellow/services/adapters/postgres"
	"github.com/smartyellow/services/adapters/pubsub"
	"github.com/smartyellow/services/config"
	"github.com/smartyellow/services/core/storage"
	"github.com/smartyellow/services/ports"
)

// Provider is an opened backend with its readiness check. Check is nil
// for in-process backends.
type Provider[T any] struct {
	Value T
	Check apihttp.HealthChecker
	Close func() error
}

// OpenStore opens the document store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (Provider[storage.Store], error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn().Msg("using in-memory document store, records are lost on exit")
		s := memory.NewStore()
		return Provider[storage.Store]{Value: s, Close: s.Close}, nil

	case "sqlite":
		s, err := storage.NewSQLiteStore(cfg.DSN)
		if err != nil {
			return Provider[storage.Store]{}, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
		}
		logger.Info().Str("path", cfg.DSN).Msg("sqlite document store opened")
		return Provider[storage.Store]{
			Value: s,
			Check: apihttp.HealthFunc(s.DB().PingContext),
			Close: s.Close,
		}, nil

	case "postgres":
		s, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
			ConnectTimeout:  cfg.ConnectTimeout,
		}, logger.With().Str("component", "postgres").Logger())
		if err != nil {
			return Provider[storage.Store]{}, err
		}
		return Provider[storage.Store]{Value: s, Check: apihttp.HealthFunc(s.Ping), Close: s.Close}, nil
	}
	return Provider[storage.Store]{}, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// OpenBucket opens the attachment bucket selected by cfg.Driver.
func OpenBucket(ctx context.Context, cfg config.BucketConfig, logger zerolog.Logger) (Provider[ports.Bucket], error) {
	switch cfg.Driver {
	case "memory":
		logger.Debug().Msg("using in-memory attachment bucket")
		return Provider[ports.Bucket]{Value: memory.NewBucket(), Close: nop}, nil

	case "minio":
		b, err := minio.New(ctx, minio.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Name,
			Prefix:    cfg.Prefix,
			UseSSL:    cfg.UseSSL,
		}, logger.With().Str("component", "minio").Logger())
		if err != nil {
			return Provider[ports.Bucket]{}, err
		}
		return Provider[ports.Bucket]{Value: b, Check: apihttp.HealthFunc(b.Ping), Close: nop}, nil
	}
	return Provider[ports.Bucket]{}, fmt.Errorf("unknown bucket driver %q", cfg.Driver)
}

// OpenPublisher connects the cross-instance publisher. The value is nil for
// driver "none".
func OpenPublisher(ctx context.Context, cfg config.PublisherConfig, logger zerolog.Logger) (Provider[*pubsub.Publisher], error) {
	switch cfg.Driver {
	case "none":
		logger.Debug().Msg("no publisher configured, reload events stay in process")
		return Provider[*pubsub.Publisher]{Close: nop}, nil

	case "redis":
		p, err := pubsub.New(ctx, pubsub.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Prefix:   cfg.Prefix,
		}, logger.With().Str("component", "pubsub").Logger())
		if err != nil {
			return Provider[*pubsub.Publisher]{}, err
		}
		return Provider[*pubsub.Publisher]{Value: p, Check: apihttp.HealthFunc(p.Ping), Close: p.Close}, nil
	}
	return Provider[*pubsub.Publisher]{}, fmt.Errorf("unknown publisher driver %q", cfg.Driver)
}

func nop() error { return nil }
