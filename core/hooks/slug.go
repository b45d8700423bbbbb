package hooks

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/core/slug"
	"github.com/smartyellow/services/core/storage"
)

// Slug hook parameters and their defaults.
const (
	paramFrom    = "from"    // localized source field
	paramHistory = "history" // per-locale lists of retired slugs
	paramStatus  = "status"  // status field deciding public reachability
	paramPublic  = "public"  // statuses that made a slug public
)

var defaultPublicStates = []string{"waitingforapproval", "online", "archived"}

const slugExhausted = "could not allocate a unique slug"

type slugHook struct {
	attempts int
	logger   zerolog.Logger
}

// run assigns a unique slug per locale. A slug the caller changed wins;
// otherwise the slug follows the source field and stays put while that
// field is unchanged. A slug that was public before the update is kept in
// the history so old links keep resolving.
func (h *slugHook) run(ctx context.Context, in registry.HookInput) error {
	doc := in.Doc
	f := in.Field

	from, err := pathParam(in.Params, paramFrom, "name")
	if err != nil {
		return err
	}
	historyPath, err := pathParam(in.Params, paramHistory, "oldSlugs")
	if err != nil {
		return err
	}
	statusPath, err := pathParam(in.Params, paramStatus, "status")
	if err != nil {
		return err
	}
	public := stringsParam(in.Params, paramPublic, defaultPublicStates)

	source := localeMap(doc.New, from)
	oldSource := localeMap(doc.Old, from)
	current := localeMap(doc.New, f.Path)
	previous := localeMap(doc.Old, f.Path)
	submitted := localeMap(doc.Patch, f.Path)
	history := historyMap(doc.New, historyPath)

	wasPublic := !doc.NewEntity && contains(public, doc.Old.String(statusPath))

	taken := func(loc string) slug.TakenFunc {
		return func(ctx context.Context, candidate string) (bool, error) {
			if !in.Storage.Available() {
				return false, nil
			}
			return h.taken(ctx, in, f.Key, historyPath, loc, candidate)
		}
	}

	out := make(map[string]any)
	for _, loc := range locales(source, current, submitted) {
		base := ""
		switch {
		case slug.Make(submitted[loc]) != "" && (doc.NewEntity || slug.Make(submitted[loc]) != previous[loc]):
			base = slug.Make(submitted[loc])
		case previous[loc] != "" && source[loc] == oldSource[loc]:
			base = previous[loc]
		case source[loc] != "":
			base = slug.Make(source[loc])
		default:
			base = slug.Make(current[loc])
		}
		if base == "" {
			continue
		}

		final, err := slug.Allocate(ctx, base, h.attempts, taken(loc))
		if errors.Is(err, slug.ErrExhausted) {
			return &document.FieldError{Key: f.Key, Message: slugExhausted}
		}
		if err != nil {
			return fmt.Errorf("allocate slug for %s: %w", loc, err)
		}
		out[loc] = final

		if wasPublic && previous[loc] != "" && previous[loc] != final {
			history[loc] = appendUnique(history[loc], previous[loc])
		}
		history[loc] = remove(history[loc], final)
	}

	doc.New.Set(f.Path, out)
	for loc, list := range history {
		if len(list) == 0 {
			delete(history, loc)
		}
	}
	if _, had := doc.New.Get(historyPath); had || len(history) > 0 {
		doc.New.Set(historyPath, historyValue(history))
	}

	for loc, s := range out {
		doc.Claim(claim(f.Key, loc, s.(string)))
	}
	for loc, list := range history {
		for _, s := range list {
			doc.Claim(claim(f.Key, loc, s))
		}
	}

	h.logger.Debug().
		Str("id", doc.ID()).
		Interface("slug", out).
		Bool("was_public", wasPublic).
		Msg("slug assigned")
	return nil
}

// taken reports whether another record uses candidate as its current or a
// retired slug in the locale.
func (h *slugHook) taken(ctx context.Context, in registry.HookInput, key string, historyPath schema.Path, loc, candidate string) (bool, error) {
	q := storage.Query{
		Where: []storage.Cond{storage.Ne("id", in.Doc.ID())},
		Any: []storage.Cond{
			storage.Eq(key+"."+loc, candidate),
			storage.Contains(historyPath.String()+"."+loc, candidate),
		},
		Limit: 1,
	}
	cur, err := in.Storage.Store.Collection(in.Collection).Find(ctx, q)
	if err != nil {
		return false, err
	}
	defer cur.Close()
	if cur.Next(ctx) {
		return true, nil
	}
	return false, cur.Err()
}

func claim(key, loc, value string) string {
	return key + ":" + loc + ":" + value
}

func locales(maps ...map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range maps {
		for loc := range m {
			if !seen[loc] {
				seen[loc] = true
				out = append(out, loc)
			}
		}
	}
	sort.Strings(out)
	return out
}

func localeMap(v document.Values, p schema.Path) map[string]string {
	out := make(map[string]string)
	val, _ := v.Get(p)
	m, ok := val.(map[string]any)
	if !ok {
		return out
	}
	for loc, s := range m {
		if str, ok := s.(string); ok {
			out[loc] = str
		}
	}
	return out
}

func historyMap(v document.Values, p schema.Path) map[string][]string {
	out := make(map[string][]string)
	val, _ := v.Get(p)
	m, ok := val.(map[string]any)
	if !ok {
		return out
	}
	for loc, list := range m {
		items, _ := list.([]any)
		for _, item := range items {
			if s, ok := item.(string); ok && s != "" {
				out[loc] = appendUnique(out[loc], s)
			}
		}
	}
	return out
}

func historyValue(h map[string][]string) map[string]any {
	out := make(map[string]any, len(h))
	for loc, list := range h {
		items := make([]any, len(list))
		for i, s := range list {
			items[i] = s
		}
		out[loc] = items
	}
	return out
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func pathParam(params map[string]any, name, def string) (schema.Path, error) {
	s, ok := params[name].(string)
	if !ok || s == "" {
		s = def
	}
	p, err := schema.ParsePath(s)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", name, err)
	}
	return p, nil
}

func stringsParam(params map[string]any, name string, def []string) []string {
	switch t := params[name].(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return def
}
