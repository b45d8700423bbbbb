package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/ports"
)

// applyHooks runs the schema's hook chain in declaration order. A hook that
// returns *document.FieldError blocks the document and ends the chain.
// Hooks of hidden fields do not run.
func (p *Pipeline) applyHooks(ctx context.Context, s *schema.Schema, doc *document.Document, st ports.Storage, user ports.User) error {
	for _, h := range s.Hooks {
		if !doc.Visible(h.Field) {
			continue
		}
		f, ok := s.Field(h.Field)
		if !ok {
			return fmt.Errorf("hook %s: unknown field %q", h.Ref.Func, h.Field)
		}
		fn, err := p.reg.Hook(h.Ref.Func)
		if err != nil {
			return fmt.Errorf("hook on %s: %w", h.Field, err)
		}

		err = fn(ctx, registry.HookInput{
			Field:      f,
			Params:     h.Ref.With,
			Doc:        doc,
			Collection: s.Store,
			Storage:    st,
			User:       user,
		})

		var fe *document.FieldError
		if errors.As(err, &fe) {
			key := fe.Key
			if key == "" {
				key = h.Field
			}
			doc.Errors.Add(key, fe.Message)
			p.logger.Debug().
				Str("hook", h.Ref.Func).
				Str("field", key).
				Str("message", fe.Message).
				Msg("hook blocked document")
			return nil
		}
		if err != nil {
			return fmt.Errorf("hook %s on %s: %w", h.Ref.Func, h.Field, err)
		}
	}
	return nil
}
