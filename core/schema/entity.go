package schema

import (
	"fmt"
	"sort"
)

// Entity is an entity definition as declared in YAML.
type Entity struct {
	Name    string  `yaml:"entity"`
	Store   string  `yaml:"store"`
	Purpose string  `yaml:"purpose,omitempty"`
	Author  string  `yaml:"author,omitempty"`
	Vendor  string  `yaml:"vendor,omitempty"`
	Fields  []Field `yaml:"fields"`
}

// Field returns the declared field with the given key.
func (e Entity) Field(key string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Hook is one entry of the ordered hook chain.
type Hook struct {
	Field string
	Path  Path
	Ref   HookRef
}

// Schema is an entity resolved against plugin settings. Fields keep their
// declaration order and carry only constants or per-document functions.
type Schema struct {
	Entity string
	Store  string
	Fields []Field
	Hooks  []Hook

	index map[string]int
}

// NewSchema builds a Schema from resolved fields. Hooks are collected in
// field declaration order.
func NewSchema(entity, store string, fields []Field) (*Schema, error) {
	s := &Schema{
		Entity: entity,
		Store:  store,
		Fields: fields,
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if _, dup := s.index[f.Key]; dup {
			return nil, fmt.Errorf("duplicate field key %q", f.Key)
		}
		s.index[f.Key] = i
		if f.OnDataValid != nil {
			s.Hooks = append(s.Hooks, Hook{Field: f.Key, Path: f.Path, Ref: *f.OnDataValid})
		}
	}
	return s, nil
}

// Field returns the field with the given key.
func (s *Schema) Field(key string) (Field, bool) {
	i, ok := s.index[key]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// UniqueFields returns the fields whose values are claimed on commit.
func (s *Schema) UniqueFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Unique {
			out = append(out, f)
		}
	}
	return out
}

// FilterView is a filter declaration with its match pattern resolved.
type FilterView struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Match     string `json:"match,omitempty"`
	Localized bool   `json:"localized,omitempty"`
	Order     int    `json:"order,omitempty"`
}

// Filters returns the filter declarations sorted by order, then key order.
func (s *Schema) Filters() []FilterView {
	var out []FilterView
	for _, f := range s.Fields {
		if f.Filter == nil {
			continue
		}
		v := FilterView{
			Key:       f.Key,
			Title:     f.Filter.Title,
			Localized: f.Filter.Localized,
			Order:     f.Filter.Order,
		}
		if m, ok := f.Filter.Match.Const.(string); ok {
			v.Match = m
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Formats returns the column formats keyed by field key.
func (s *Schema) Formats() map[string]Format {
	out := make(map[string]Format)
	for _, f := range s.Fields {
		if f.Format != nil {
			out[f.Key] = *f.Format
		}
	}
	return out
}
