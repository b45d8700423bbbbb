// Package resolve turns an entity definition into a Schema for the current
// plugin settings.
package resolve

import (
	"errors"
	"fmt"
	"sort"

	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/schema"
)

// Resolve assembles the schema of ent. Resolve-time producers run exactly
// once and their results replace the references. Every problem in the
// definition is reported: unknown types, duplicate keys, and names that are
// not registered under the kind their position requires.
func Resolve(ent schema.Entity, reg *registry.Registry, settings registry.Settings) (*schema.Schema, error) {
	ent.Fields = append([]schema.Field(nil), ent.Fields...)
	if err := schema.Check(&ent); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ent.Name, err)
	}

	r := resolver{reg: reg, settings: settings}
	fields := make([]schema.Field, len(ent.Fields))
	for i, f := range ent.Fields {
		fields[i] = r.field(f)
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ent.Name, err)
	}

	s, err := schema.NewSchema(ent.Name, ent.Store, fields)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ent.Name, err)
	}
	return s, nil
}

type resolver struct {
	reg      *registry.Registry
	settings registry.Settings
	errs     []error
}

func (r *resolver) fail(f schema.Field, err error) {
	r.errs = append(r.errs, fmt.Errorf("field %q: %w", f.Key, err))
}

func (r *resolver) call(name string) (any, error) {
	fn, err := r.reg.Resolver(name)
	if err != nil {
		return nil, err
	}
	return fn(r.settings)
}

func (r *resolver) field(f schema.Field) schema.Field {
	f.Default = r.value(f, "default", f.Default, registry.KindDefault)
	f.Required = r.predicate(f, "required", f.Required)
	f.Visible = r.predicate(f, "visible", f.Visible)

	if f.Options.Source == schema.SourceResolve {
		v, err := r.call(f.Options.Func)
		if err != nil {
			r.fail(f, fmt.Errorf("options: %w", err))
		} else if list, err := toOptions(v); err != nil {
			r.fail(f, fmt.Errorf("options: %w", err))
		} else {
			f.Options = schema.Options{Source: schema.SourceConst, List: list}
		}
	}

	if f.Filter != nil {
		filter := *f.Filter
		filter.Match = r.value(f, "filter match", filter.Match, "")
		f.Filter = &filter
	}

	if f.Validate != "" && !r.reg.Has(registry.KindValidator, f.Validate) {
		r.fail(f, fmt.Errorf("validate: %s function %q: %w", registry.KindValidator, f.Validate, registry.ErrUnknownFunction))
	}
	if f.OnDataValid != nil && !r.reg.Has(registry.KindHook, f.OnDataValid.Func) {
		r.fail(f, fmt.Errorf("on_data_valid: %s function %q: %w", registry.KindHook, f.OnDataValid.Func, registry.ErrUnknownFunction))
	}

	return f
}

// value resolves a Value. Per-document references must be registered as
// kind; an empty kind forbids them.
func (r *resolver) value(f schema.Field, attr string, v schema.Value, kind registry.Kind) schema.Value {
	switch v.Source {
	case schema.SourceResolve:
		out, err := r.call(v.Func)
		if err != nil {
			r.fail(f, fmt.Errorf("%s: %w", attr, err))
			return v
		}
		return schema.ConstValue(out)
	case schema.SourceFunc:
		if kind == "" {
			r.fail(f, fmt.Errorf("%s: only constants or resolve-time functions are accepted", attr))
		} else if !r.reg.Has(kind, v.Func) {
			r.fail(f, fmt.Errorf("%s: %s function %q: %w", attr, kind, v.Func, registry.ErrUnknownFunction))
		}
	}
	return v
}

func (r *resolver) predicate(f schema.Field, attr string, p schema.Predicate) schema.Predicate {
	switch p.Source {
	case schema.SourceResolve:
		out, err := r.call(p.Func)
		if err != nil {
			r.fail(f, fmt.Errorf("%s: %w", attr, err))
			return p
		}
		b, ok := out.(bool)
		if !ok {
			r.fail(f, fmt.Errorf("%s: function %q returned %T, want bool", attr, p.Func, out))
			return p
		}
		return schema.ConstPredicate(b)
	case schema.SourceFunc:
		if !r.reg.Has(registry.KindPredicate, p.Func) {
			r.fail(f, fmt.Errorf("%s: %s function %q: %w", attr, registry.KindPredicate, p.Func, registry.ErrUnknownFunction))
		}
	}
	return p
}

// toOptions accepts the shapes resolve-time option producers return.
func toOptions(v any) ([]schema.Option, error) {
	switch t := v.(type) {
	case nil:
		return []schema.Option{}, nil
	case []schema.Option:
		return t, nil
	case []string:
		out := make([]schema.Option, len(t))
		for i, s := range t {
			out[i] = schema.Option{Value: s, Label: s}
		}
		return out, nil
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]schema.Option, len(keys))
		for i, k := range keys {
			out[i] = schema.Option{Value: k, Label: t[k]}
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]schema.Option, len(keys))
		for i, k := range keys {
			out[i] = schema.Option{Value: k, Label: fmt.Sprint(t[k])}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported options type %T", v)
}
