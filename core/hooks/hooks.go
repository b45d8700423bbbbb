// Package hooks holds the built-in functions the services entity refers to:
// default producers, predicates, validators, resolve-time producers and the
// slug and attachment normalization hooks.
package hooks

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/ports"
)

// ErrNoID is returned when the id source produced nothing.
var ErrNoID = errors.New("id generator returned an empty id")

// Deps are the collaborators the built-ins need.
type Deps struct {
	IDs    ports.IDGenerator
	Clock  ports.Clock
	Logger zerolog.Logger

	// SlugAttempts bounds the suffixed candidates tried per locale.
	SlugAttempts int
}

// Register adds every built-in to reg.
func Register(reg *registry.Registry, deps Deps) {
	if deps.SlugAttempts < 1 {
		deps.SlugAttempts = 100
	}

	reg.RegisterDefault("makeId", makeID(deps.IDs))
	reg.RegisterDefault("now", now(deps.Clock))

	reg.RegisterPredicate("isNew", func(pc registry.PredicateContext) bool {
		return pc.NewEntity
	})

	reg.RegisterValidator("idUnchanged", validateID)
	reg.RegisterValidator("channelsKnown", validateChannels)

	reg.RegisterResolver("channelOptions", channelOptions)
	reg.RegisterResolver("hasChannels", hasChannels)
	reg.RegisterResolver("singleChannel", singleChannel)
	reg.RegisterResolver("channelFilter", channelFilter)
	reg.RegisterResolver("personaOptions", personaOptions)
	reg.RegisterResolver("hasPersonas", hasPersonas)

	sl := &slugHook{attempts: deps.SlugAttempts, logger: deps.Logger}
	reg.RegisterHook("slug", sl.run)

	at := &attachmentHook{ids: deps.IDs, logger: deps.Logger}
	reg.RegisterHook("attachments", at.run)
}

func makeID(ids ports.IDGenerator) registry.DefaultFunc {
	return func(ctx context.Context, dc registry.DefaultContext) (any, error) {
		id := ids.New()
		if id == "" {
			return nil, ErrNoID
		}
		return id, nil
	}
}

func now(clock ports.Clock) registry.DefaultFunc {
	return func(ctx context.Context, dc registry.DefaultContext) (any, error) {
		return clock.Now().UTC().Format(time.RFC3339), nil
	}
}
