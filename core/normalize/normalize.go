// Package normalize shapes a submission into the in-flight document.
package normalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/schema"
)

// Options configures normalization.
type Options struct {
	// DefaultLocale keys bare strings submitted for localized fields.
	DefaultLocale string
}

// Normalize merges patch over old according to s.
//
// For a new entity, fields absent from patch receive their default. For an
// update, absent fields keep their stored value and defaults never apply.
// Localized fields get bare strings wrapped as {DefaultLocale: value}; trim
// and lowercase are applied. Visibility is evaluated on the merged values;
// hidden fields keep their value but are marked in Document.Hidden.
//
// Normalize never records field errors. It returns an error when a default
// producer fails or a visibility predicate is not registered. Running it again on its own output yields the
// same document.
func Normalize(ctx context.Context, s *schema.Schema, reg *registry.Registry, old, patch document.Values, newEntity bool, opts Options) (*document.Document, error) {
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "en"
	}

	doc := document.New(old.Clone(), patch, newEntity)
	if !newEntity {
		doc.New = doc.Old.Clone()
	}

	for _, f := range s.Fields {
		val, present := patch.Get(f.Path)
		if present {
			val = document.Copy(val)
		} else if newEntity && f.Default.IsSet() {
			v, err := produceDefault(ctx, reg, f, newEntity)
			if err != nil {
				return nil, err
			}
			val, present = v, true
			doc.Generated[f.Key] = true
		} else {
			val, present = doc.New.Get(f.Path)
		}
		if !present {
			continue
		}
		doc.New.Set(f.Path, transform(f, val, opts))
	}

	for _, f := range s.Fields {
		show, err := visible(f, reg, doc)
		if err != nil {
			return nil, err
		}
		if !show {
			doc.Hidden[f.Key] = true
		}
	}

	return doc, nil
}

func produceDefault(ctx context.Context, reg *registry.Registry, f schema.Field, newEntity bool) (any, error) {
	switch f.Default.Source {
	case schema.SourceConst:
		return document.Copy(f.Default.Const), nil
	case schema.SourceFunc:
		fn, err := reg.Default(f.Default.Func)
		if err != nil {
			return nil, fmt.Errorf("default for %s: %w", f.Key, err)
		}
		v, err := fn(ctx, registry.DefaultContext{Field: f, NewEntity: newEntity})
		if err != nil {
			return nil, fmt.Errorf("default for %s: %w", f.Key, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("default for %s: unresolved %s reference %q", f.Key, f.Default.Source, f.Default.Func)
}

func transform(f schema.Field, val any, opts Options) any {
	if f.IsLocalized() {
		if s, ok := val.(string); ok {
			val = map[string]any{opts.DefaultLocale: s}
		}
	}
	if f.Trim {
		val = mapText(val, strings.TrimSpace)
	}
	if f.Lowercase {
		val = mapText(val, strings.ToLower)
	}
	return val
}

// mapText applies fn to a string or to every string of a locale map.
func mapText(val any, fn func(string) string) any {
	switch t := val.(type) {
	case string:
		return fn(t)
	case map[string]any:
		for k, v := range t {
			if s, ok := v.(string); ok {
				t[k] = fn(s)
			}
		}
		return t
	}
	return val
}

func visible(f schema.Field, reg *registry.Registry, doc *document.Document) (bool, error) {
	switch f.Visible.Source {
	case schema.SourceConst:
		if !f.Visible.Const {
			return false, nil
		}
	case schema.SourceFunc:
		fn, err := reg.Predicate(f.Visible.Func)
		if err != nil {
			return false, fmt.Errorf("visibility of %s: %w", f.Key, err)
		}
		if !fn(registry.PredicateContext{Field: f, NewEntity: doc.NewEntity, Values: doc.New}) {
			return false, nil
		}
	}

	if f.Condition != nil {
		got, _ := doc.New.Get(f.Condition.Path)
		if !document.Equal(got, f.Condition.Value) {
			return false, nil
		}
	}
	return true, nil
}
