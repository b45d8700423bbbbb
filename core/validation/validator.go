// Package validation checks a normalized document against its schema.
// The structural pass collects every problem; the semantic pass stops at the
// first fault raised by a validator.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/registry"
	"github.com/smartyellow/services/core/schema"
	"github.com/smartyellow/services/ports"
)

// Validator validates documents using the validators in its registry.
type Validator struct {
	reg *registry.Registry
}

// New creates a validator.
func New(reg *registry.Registry) *Validator {
	return &Validator{reg: reg}
}

// Validate runs the structural pass and then the semantic pass. Field
// problems are recorded in doc.Errors; the returned error is a system fault.
func (v *Validator) Validate(ctx context.Context, s *schema.Schema, doc *document.Document, storage ports.Storage) error {
	if err := v.Structural(s, doc); err != nil {
		return err
	}
	return v.Semantic(ctx, s, doc, storage)
}

// Structural checks required flags, types, options and constraints of every
// visible field that is not skipped. A required predicate missing from the
// registry is returned as an error.
func (v *Validator) Structural(s *schema.Schema, doc *document.Document) error {
	for _, f := range s.Fields {
		if f.Skip || !doc.Visible(f.Key) {
			continue
		}

		val, present := doc.New.Get(f.Path)

		req, err := v.required(f, doc)
		if err != nil {
			return err
		}
		if req && (!present || document.IsEmpty(val)) {
			doc.Errors.Add(f.Key, requiredMessage(f))
			continue
		}
		if !present || val == nil {
			continue
		}

		if msg := checkType(f.Type, f.Of, val); msg != "" {
			doc.Errors.Add(f.Key, msg)
			continue
		}
		if msg := checkOptions(f, val); msg != "" {
			doc.Errors.Add(f.Key, msg)
			continue
		}
		for _, c := range f.Constraints {
			if msg := schema.CheckConstraint(val, c); msg != "" {
				doc.Errors.Add(f.Key, msg)
				break
			}
		}
	}
	return nil
}

// Semantic runs the named validators of visible fields in declaration order.
// A field that already failed structurally is not checked again.
func (v *Validator) Semantic(ctx context.Context, s *schema.Schema, doc *document.Document, storage ports.Storage) error {
	for _, f := range s.Fields {
		if f.Validate == "" || !doc.Visible(f.Key) || doc.Errors.Has(f.Key) {
			continue
		}

		fn, err := v.reg.Validator(f.Validate)
		if err != nil {
			return fmt.Errorf("validate %s: %w", f.Key, err)
		}

		msg, err := fn(ctx, registry.ValidateInput{
			Field:      f,
			New:        doc.New,
			Old:        doc.Old,
			NewEntity:  doc.NewEntity,
			Generated:  doc.Generated[f.Key],
			Collection: s.Store,
			Storage:    storage,
		})
		if err != nil {
			return fmt.Errorf("validate %s: %w", f.Key, err)
		}
		if msg != "" {
			doc.Errors.Add(f.Key, msg)
		}
	}
	return nil
}

func (v *Validator) required(f schema.Field, doc *document.Document) (bool, error) {
	switch f.Required.Source {
	case schema.SourceConst:
		return f.Required.Const, nil
	case schema.SourceFunc:
		fn, err := v.reg.Predicate(f.Required.Func)
		if err != nil {
			return false, fmt.Errorf("required for %s: %w", f.Key, err)
		}
		return fn(registry.PredicateContext{Field: f, NewEntity: doc.NewEntity, Values: doc.New}), nil
	}
	return false, nil
}

func requiredMessage(f schema.Field) string {
	if f.Message != "" {
		return f.Message
	}
	return f.Key + " is required"
}

func checkType(t schema.FieldType, of *schema.Element, val any) string {
	switch t {
	case schema.TypeString:
		if _, ok := val.(string); !ok {
			return "must be a string"
		}
	case schema.TypeStringset:
		set, ok := val.(map[string]any)
		if !ok {
			return "must be a text per language"
		}
		for _, s := range set {
			if _, ok := s.(string); !ok && s != nil {
				return "must be a text per language"
			}
		}
	case schema.TypeBoolean:
		if _, ok := val.(bool); !ok {
			return "must be true or false"
		}
	case schema.TypeDate:
		if !isDate(val) {
			return "must be a date"
		}
	case schema.TypeObject:
		if _, ok := val.(map[string]any); !ok {
			return "must be an object"
		}
	case schema.TypeArray:
		items, ok := val.([]any)
		if !ok {
			return "must be a list"
		}
		if of == nil {
			return ""
		}
		for i, it := range items {
			if msg := checkElement(of, it); msg != "" {
				return fmt.Sprintf("item %d %s", i+1, msg)
			}
		}
	}
	return ""
}

func checkElement(of *schema.Element, val any) string {
	if of.Type != schema.TypeObject || len(of.Fields) == 0 {
		return checkType(of.Type, nil, val)
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return "must be an object"
	}
	for _, sub := range of.Fields {
		v, present := document.Values(obj).Get(sub.Path)
		if !present || v == nil {
			continue
		}
		if msg := checkType(sub.Type, sub.Of, v); msg != "" {
			return sub.Key + " " + msg
		}
	}
	return ""
}

func checkOptions(f schema.Field, val any) string {
	if len(f.Options.List) == 0 {
		return ""
	}
	switch t := val.(type) {
	case string:
		if f.Type == schema.TypeString && t != "" && !f.Options.Has(t) {
			return "invalid option"
		}
	case []any:
		if !f.Strict {
			return ""
		}
		for _, it := range t {
			s, _ := it.(string)
			if !f.Options.Has(s) {
				return "invalid option"
			}
		}
	}
	return ""
}

func isDate(val any) bool {
	switch t := val.(type) {
	case time.Time:
		return true
	case string:
		if _, err := time.Parse(time.RFC3339, t); err == nil {
			return true
		}
		_, err := time.Parse(time.DateOnly, t)
		return err == nil
	}
	return false
}
