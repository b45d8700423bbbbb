// Package formatter provides a pluggable output formatting system.
// Formatters render service records and field errors as table, json or yaml.
package formatter

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
)

// Formatter converts records of an entity to a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// FormatList formats a list of records.
	FormatList(w io.Writer, s *schema.Schema, records []document.Values, opts FormatOptions) error

	// FormatRecord formats a single record.
	FormatRecord(w io.Writer, s *schema.Schema, record document.Values, opts FormatOptions) error

	// FormatErrors formats field errors in the order they were recorded.
	FormatErrors(w io.Writer, errs *document.Errors) error
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Columns specifies which field keys to include (nil = the list columns
	// the schema declares).
	Columns []string

	// NoHeader disables header row for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (json only).
	Compact bool

	// MaxWidth truncates long values (0 = no limit).
	MaxWidth int

	// Locale picks the language of localized values in tables.
	Locale string
}

// Columns returns the field keys to render: the requested ones, or "id"
// followed by every field with an enabled list format, in priority order.
// Fields without a priority keep declaration order after the ranked ones.
func Columns(s *schema.Schema, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	if s == nil {
		return []string{"id"}
	}

	var fields []schema.Field
	for _, f := range s.Fields {
		if f.Format != nil && f.Format.Enabled {
			fields = append(fields, f)
		}
	}
	sort.SliceStable(fields, func(i, j int) bool {
		pi, pj := fields[i].Format.Priority, fields[j].Format.Priority
		if pi == 0 || pj == 0 {
			return pi != 0 && pj == 0
		}
		return pi < pj
	})

	out := []string{"id"}
	for _, f := range fields {
		out = append(out, f.Key)
	}
	return out
}

// project copies the values at the given keys into a nested record.
func project(rec document.Values, columns []string) document.Values {
	out := document.Values{}
	for _, key := range columns {
		p, err := schema.ParsePath(key)
		if err != nil {
			continue
		}
		if v, ok := rec.Get(p); ok {
			out.Set(p, v)
		}
	}
	return out
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "table",
	}
}

// Register adds a formatter to the registry.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}

	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[name]
	return f, ok
}

// Default returns the default formatter.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.formatters[r.defaultFmt]
}

// SetDefault sets the default formatter.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[name]; !exists {
		return fmt.Errorf("formatter %q not registered", name)
	}

	r.defaultFmt = name
	return nil
}

// List returns all registered formatter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(f Formatter) error {
	return DefaultRegistry.Register(f)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, bool) {
	return DefaultRegistry.Get(name)
}

// Default returns the default formatter from the default registry.
func Default() Formatter {
	return DefaultRegistry.Default()
}

// List returns all formatter names from the default registry.
func List() []string {
	return DefaultRegistry.List()
}
