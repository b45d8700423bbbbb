package bootstrap

import (
	"context"
	"encoding/json"
	"maps"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/config"
	"github.com/smartyellow/services/core/events"
)

// remoteSource marks events received from another instance.
const remoteSource = "remote:"

// instanceKey carries the publishing instance in forwarded event data.
const instanceKey = "instance"

// ApplyConfig reacts to a configuration change: the log level follows the
// new config, and the schema is resolved against the new plugin settings.
// A failed resolution keeps the running schema.
func (a *App) ApplyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && level != zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(level)
		a.Logger.Info().Str("level", level.String()).Msg("log level applied")
	}

	_, err := a.Engine.Resolve(cfg.Plugin)
	if a.Metrics != nil {
		a.Metrics.RecordReload(err, time.Now())
	}
	if err != nil {
		a.Logger.Error().Err(err).Msg("schema reload failed, keeping current schema")
		return
	}

	a.Bus.Publish(context.Background(), events.Event{
		Topic:  a.Engine.Manifest.Topic("schema"),
		Source: a.Engine.Manifest.ID,
	})
}

// forwardEvents relays local plugin events to the other instances.
// Events that came in from another instance are not sent back.
func (a *App) forwardEvents() {
	if a.Publisher == nil {
		return
	}
	forward := events.Forward(a.Publisher)
	a.Bus.Subscribe(a.Engine.Manifest.Topic("*"), func(ctx context.Context, e events.Event) error {
		if strings.HasPrefix(e.Source, remoteSource) {
			return nil
		}
		data := maps.Clone(e.Data)
		if data == nil {
			data = make(map[string]any, 1)
		}
		data[instanceKey] = a.instance
		e.Data = data
		return forward(ctx, e)
	})
}

// receiveEvents republishes events of other instances on the local bus
// until ctx is done.
func (a *App) receiveEvents(ctx context.Context) error {
	if a.Publisher == nil {
		return nil
	}
	return a.Publisher.Subscribe(ctx, a.Engine.Manifest.Topic("*"), func(ctx context.Context, topic string, payload []byte) {
		var e events.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			a.Logger.Warn().Err(err).Str("topic", topic).Msg("undecodable remote event")
			return
		}
		if e.Data[instanceKey] == a.instance {
			return
		}
		e.Source = remoteSource + e.Source
		a.Logger.Debug().Str("topic", e.Topic).Str("source", e.Source).Msg("remote event")
		a.Bus.Publish(ctx, e)
	})
}
