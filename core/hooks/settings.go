package hooks

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/schema"
)

// channelOptions lists the channels configured for the plugin.
func channelOptions(s registry.Settings) (any, error) {
	return options(s.Plugin["channels"]), nil
}

func hasChannels(s registry.Settings) (any, error) {
	return len(options(s.Plugin["channels"])) > 0, nil
}

// singleChannel preselects the only channel when exactly one is configured.
func singleChannel(s registry.Settings) (any, error) {
	opts := options(s.Plugin["channels"])
	if len(opts) == 1 {
		return []any{opts[0].Value}, nil
	}
	return []any{}, nil
}

// channelFilter is the match pattern offered by the channel list filter.
func channelFilter(s registry.Settings) (any, error) {
	opts := options(s.Plugin["channels"])
	if len(opts) == 0 {
		return "", nil
	}
	alts := make([]string, len(opts))
	for i, o := range opts {
		alts[i] = regexp.QuoteMeta(o.Value)
	}
	return "^(" + strings.Join(alts, "|") + ")$", nil
}

func personaOptions(s registry.Settings) (any, error) {
	return options(s.Globals["personas"]), nil
}

func hasPersonas(s registry.Settings) (any, error) {
	return len(options(s.Globals["personas"])) > 0, nil
}

// options reads a settings entry keyed by option value. Labels come from a
// plain string or from the name or title of a nested object. Lists of
// values are accepted too.
func options(v any) []schema.Option {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]schema.Option, len(keys))
		for i, k := range keys {
			out[i] = schema.Option{Value: k, Label: label(k, t[k])}
		}
		return out
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, l := range t {
			m[k] = l
		}
		return options(m)
	case []any:
		out := make([]schema.Option, 0, len(t))
		for _, item := range t {
			s := fmt.Sprint(item)
			out = append(out, schema.Option{Value: s, Label: s})
		}
		return out
	case []string:
		out := make([]schema.Option, len(t))
		for i, s := range t {
			out[i] = schema.Option{Value: s, Label: s}
		}
		return out
	}
	return []schema.Option{}
}

func label(key string, v any) string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case map[string]any:
		for _, attr := range []string{"name", "title", "label"} {
			if s, ok := t[attr].(string); ok && s != "" {
				return s
			}
		}
	}
	return key
}
