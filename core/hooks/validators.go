package hooks

import (
	"context"
	"fmt"

	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/storage"
)

// validateID rejects a caller-chosen id that is taken and any change of the
// id of a stored record. Generated ids are checked by the commit stage.
func validateID(ctx context.Context, in registry.ValidateInput) (string, error) {
	id := in.New.String(in.Field.Path)

	if !in.NewEntity {
		if id != in.Old.String(in.Field.Path) {
			return "id cannot be changed", nil
		}
		return "", nil
	}

	if in.Generated || id == "" || !in.Storage.Available() {
		return "", nil
	}
	taken, err := storage.Exists(ctx, in.Storage.Store.Collection(in.Collection), id)
	if err != nil {
		return "", fmt.Errorf("look up id %q: %w", id, err)
	}
	if taken {
		return "id already exists", nil
	}
	return "", nil
}

// validateChannels requires every listed channel to be a configured one.
func validateChannels(ctx context.Context, in registry.ValidateInput) (string, error) {
	val, ok := in.New.Get(in.Field.Path)
	if !ok || val == nil {
		return "", nil
	}
	list, ok := val.([]any)
	if !ok {
		return "One or more invalid channels", nil
	}
	for _, item := range list {
		ch, ok := item.(string)
		if !ok || !in.Field.Options.Has(ch) {
			return "One or more invalid channels", nil
		}
	}
	return "", nil
}
