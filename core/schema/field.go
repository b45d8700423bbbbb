package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FieldType represents the type of a schema field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeStringset FieldType = "stringset" // text per locale
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeArray     FieldType = "array" // element type given by Of
	TypeObject    FieldType = "object"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeStringset, TypeBoolean, TypeDate, TypeArray, TypeObject:
		return true
	}
	return false
}

// Field declares one attribute of an entity.
type Field struct {
	// Key is the dotted path of the attribute, e.g. "seo.title".
	Key string `yaml:"key"`

	// Path is Key split into segments. Filled by Parse.
	Path Path `yaml:"-"`

	Type  FieldType `yaml:"type"`
	Label string    `yaml:"label,omitempty"`

	// Of is the element type of an array field.
	Of *Element `yaml:"of,omitempty"`

	Default  Value     `yaml:"default,omitempty"`
	Required Predicate `yaml:"required,omitempty"`

	// Message replaces the generic "is required" error.
	Message string `yaml:"message,omitempty"`

	// Localized marks a per-locale value. Stringset fields are always localized.
	Localized bool `yaml:"localized,omitempty"`

	Visible   Predicate  `yaml:"visible,omitempty"`
	Condition *Condition `yaml:"condition,omitempty"`

	// Options lists the accepted values. Strict arrays only accept options.
	Options Options `yaml:"options,omitempty"`
	Strict  bool    `yaml:"strict,omitempty"`

	Trim      bool `yaml:"trim,omitempty"`
	Lowercase bool `yaml:"lowercase,omitempty"`

	// Unique values are claimed in the store's unique index on commit.
	Unique bool `yaml:"unique,omitempty"`

	Constraints []Constraint `yaml:"constraints,omitempty"`

	// Validate names a semantic validator run after the structural pass.
	Validate string `yaml:"validate,omitempty"`

	// OnDataValid names a hook run once the document validated.
	OnDataValid *HookRef `yaml:"on_data_valid,omitempty"`

	// Skip excludes the field from structural validation.
	Skip bool `yaml:"skip,omitempty"`

	Filter *Filter `yaml:"filter,omitempty"`
	Format *Format `yaml:"format,omitempty"`
}

// IsLocalized returns whether values are kept per locale.
func (f Field) IsLocalized() bool {
	return f.Localized || f.Type == TypeStringset
}

// Source tells where a variant takes its value from.
type Source int

const (
	SourceNone    Source = iota
	SourceConst          // literal in the definition
	SourceFunc           // named function, called per document
	SourceResolve        // named function, called once per resolution
)

func (s Source) String() string {
	switch s {
	case SourceConst:
		return "const"
	case SourceFunc:
		return "func"
	case SourceResolve:
		return "resolve"
	default:
		return "none"
	}
}

// Value is a constant or a reference to a producer function.
type Value struct {
	Source Source
	Const  any
	Func   string
}

// ConstValue returns a constant Value.
func ConstValue(v any) Value { return Value{Source: SourceConst, Const: v} }

// FuncValue returns a Value produced per document by the named function.
func FuncValue(name string) Value { return Value{Source: SourceFunc, Func: name} }

// IsSet reports whether the value was declared.
func (v Value) IsSet() bool { return v.Source != SourceNone }

// UnmarshalYAML accepts a literal, {func: name} or {resolve: name}.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if src, name, ok := funcRef(node); ok {
		v.Source, v.Func = src, name
		return nil
	}
	var c any
	if err := node.Decode(&c); err != nil {
		return err
	}
	v.Source, v.Const = SourceConst, c
	return nil
}

// Predicate is a boolean constant or a reference to a predicate function.
type Predicate struct {
	Source Source
	Const  bool
	Func   string
}

// ConstPredicate returns a constant Predicate.
func ConstPredicate(b bool) Predicate { return Predicate{Source: SourceConst, Const: b} }

// IsSet reports whether the predicate was declared.
func (p Predicate) IsSet() bool { return p.Source != SourceNone }

// UnmarshalYAML accepts true/false, {func: name} or {resolve: name}.
func (p *Predicate) UnmarshalYAML(node *yaml.Node) error {
	if src, name, ok := funcRef(node); ok {
		p.Source, p.Func = src, name
		return nil
	}
	var b bool
	if err := node.Decode(&b); err != nil {
		return fmt.Errorf("line %d: expected boolean or function reference", node.Line)
	}
	p.Source, p.Const = SourceConst, b
	return nil
}

// Option is one accepted value with its display label.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options is a constant option list or a resolve-time producer.
type Options struct {
	Source Source
	List   []Option
	Func   string
}

// IsSet reports whether options were declared.
func (o Options) IsSet() bool { return o.Source != SourceNone }

// Has reports whether value is one of the options.
func (o Options) Has(value string) bool {
	for _, opt := range o.List {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// UnmarshalYAML accepts an ordered mapping of value to label, a list of
// values, or {resolve: name}.
func (o *Options) UnmarshalYAML(node *yaml.Node) error {
	if src, name, ok := funcRef(node); ok {
		if src != SourceResolve {
			return fmt.Errorf("line %d: options only accept resolve-time functions", node.Line)
		}
		o.Source, o.Func = src, name
		return nil
	}
	o.Source = SourceConst
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			o.List = append(o.List, Option{Value: node.Content[i].Value, Label: node.Content[i+1].Value})
		}
	case yaml.SequenceNode:
		for _, n := range node.Content {
			o.List = append(o.List, Option{Value: n.Value, Label: n.Value})
		}
	default:
		return fmt.Errorf("line %d: options must be a mapping or a list", node.Line)
	}
	return nil
}

// HookRef names a hook function and its parameters.
type HookRef struct {
	Func string         `yaml:"func"`
	With map[string]any `yaml:"with,omitempty"`
}

// UnmarshalYAML accepts a bare function name or {func, with}.
func (h *HookRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		h.Func = node.Value
		return nil
	}
	type plain HookRef
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*h = HookRef(p)
	return nil
}

// Condition makes a field visible only while a sibling holds Value.
type Condition struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
	Path  Path   `yaml:"-"`
}

// Element describes the items of an array field.
type Element struct {
	Type   FieldType `yaml:"type"`
	Fields []Field   `yaml:"fields,omitempty"`
}

// UnmarshalYAML accepts a type name, a one-item list holding a type name,
// or an object shape {type: object, fields: [...]}.
func (e *Element) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		e.Type = FieldType(node.Value)
		return nil
	case yaml.SequenceNode:
		if len(node.Content) != 1 || node.Content[0].Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: element list must hold exactly one type", node.Line)
		}
		e.Type = FieldType(node.Content[0].Value)
		return nil
	}
	type plain Element
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = Element(p)
	if e.Type == "" && len(e.Fields) > 0 {
		e.Type = TypeObject
	}
	return nil
}

// Filter declares how the list view may filter on a field.
type Filter struct {
	Title     string `yaml:"title" json:"title"`
	Match     Value  `yaml:"match,omitempty" json:"-"`
	Localized bool   `yaml:"localized,omitempty" json:"localized,omitempty"`
	Order     int    `yaml:"order,omitempty" json:"order,omitempty"`
}

// Format declares how the list view renders a field as a column.
type Format struct {
	Label    string                 `yaml:"label" json:"label"`
	Type     string                 `yaml:"type" json:"type"`
	Sortable string                 `yaml:"sortable,omitempty" json:"sortable,omitempty"`
	Sticky   bool                   `yaml:"sticky,omitempty" json:"sticky,omitempty"`
	Sorted   string                 `yaml:"sorted,omitempty" json:"sorted,omitempty"`
	Align    string                 `yaml:"align,omitempty" json:"align,omitempty"`
	MinWidth int                    `yaml:"min_width,omitempty" json:"minWidth,omitempty"`
	Enabled  bool                   `yaml:"enabled,omitempty" json:"enabled"`
	Priority int                    `yaml:"priority,omitempty" json:"priority,omitempty"`
	States   map[string]FormatState `yaml:"states,omitempty" json:"options,omitempty"`
}

// FormatState is the rendering of one status value.
type FormatState struct {
	Name  string `yaml:"name" json:"name"`
	Class string `yaml:"class" json:"class"`
}

func funcRef(node *yaml.Node) (Source, string, bool) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return SourceNone, "", false
	}
	switch node.Content[0].Value {
	case "func":
		return SourceFunc, node.Content[1].Value, true
	case "resolve":
		return SourceResolve, node.Content[1].Value, true
	}
	return SourceNone, "", false
}
