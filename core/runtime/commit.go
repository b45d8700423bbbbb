package runtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/core/storage"
	"github.com/smartyellow/services/ports"
)

var (
	idPath       = schema.Path{"id"}
	createdPath  = schema.Path{"log", "created"}
	modifiedPath = schema.Path{"log", "modified"}
)

// Commit finalizes a validated document. A new entity whose id was generated
// gets an id no record uses yet. The returned action stamps provenance and
// writes the record together with its unique claims, so a racing writer of
// the same slug fails with storage.ErrConflict.
func (p *Pipeline) Commit(ctx context.Context, s *schema.Schema, doc *document.Document, st ports.Storage, user ports.User) (StoreAction, error) {
	if !st.Available() {
		return nil, ErrStorageUnavailable
	}
	col := st.Store.Collection(s.Store)

	if doc.NewEntity && (doc.Generated["id"] || doc.ID() == "") {
		id, err := p.allocateID(ctx, col, doc.ID())
		if err != nil {
			return nil, err
		}
		doc.New.Set(idPath, id)
	}
	if doc.ID() == "" {
		return nil, fmt.Errorf("record has no id")
	}

	claims := Claims(s, doc)

	return func(ctx context.Context) (document.Values, error) {
		rec := doc.New.Clone()
		stamp := map[string]any{
			"by": user.ID,
			"on": p.clock.Now().UTC().Format(time.RFC3339),
		}
		if doc.NewEntity {
			rec.Set(createdPath, stamp)
		}
		rec.Set(modifiedPath, document.Copy(stamp))

		if err := col.Upsert(ctx, rec, claims); err != nil {
			return nil, fmt.Errorf("store %s/%s: %w", s.Store, doc.ID(), err)
		}
		p.logger.Info().
			Str("entity", s.Entity).
			Str("id", doc.ID()).
			Str("user", user.ID).
			Bool("new", doc.NewEntity).
			Msg("record stored")
		return rec, nil
	}, nil
}

// allocateID returns first when no record uses it, otherwise fresh ids until
// one is free.
func (p *Pipeline) allocateID(ctx context.Context, col storage.Collection, first string) (string, error) {
	id := first
	for attempt := 0; attempt < p.config.IDAttempts; attempt++ {
		if id == "" {
			id = p.ids.New()
			if id == "" {
				return "", fmt.Errorf("id generator returned an empty id")
			}
		}
		taken, err := storage.Exists(ctx, col, id)
		if err != nil {
			return "", fmt.Errorf("look up id %q: %w", id, err)
		}
		if !taken {
			return id, nil
		}
		p.logger.Debug().Str("id", id).Int("attempt", attempt+1).Msg("id collision")
		id = ""
	}
	return "", ErrIDExhausted
}

// Claims lists the unique claims of a document: every value of a unique
// field, per locale for localized ones, plus the claims hooks added.
func Claims(s *schema.Schema, doc *document.Document) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	for _, f := range s.UniqueFields() {
		val, ok := doc.New.Get(f.Path)
		if !ok {
			continue
		}
		switch t := val.(type) {
		case string:
			if t != "" {
				add(f.Key + ":" + t)
			}
		case map[string]any:
			locs := make([]string, 0, len(t))
			for loc := range t {
				locs = append(locs, loc)
			}
			sort.Strings(locs)
			for _, loc := range locs {
				if v, ok := t[loc].(string); ok && v != "" {
					add(f.Key + ":" + loc + ":" + v)
				}
			}
		}
	}
	for _, c := range doc.Claims {
		add(c)
	}
	return out
}
