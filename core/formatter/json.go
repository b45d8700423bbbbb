package formatter

import (
	"encoding/json"
	"io"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// Description returns the formatter description.
func (f *JSONFormatter) Description() string {
	return "JSON output format"
}

// FormatList formats a list of records as JSON. Records are written whole
// unless columns are requested.
func (f *JSONFormatter) FormatList(w io.Writer, s *schema.Schema, records []document.Values, opts FormatOptions) error {
	data := filterRecords(records, opts.Columns)
	output := map[string]any{
		"entity": entityName(s),
		"count":  len(data),
		"data":   data,
	}
	return f.encode(w, output, opts.Compact)
}

// FormatRecord formats a single record as JSON.
func (f *JSONFormatter) FormatRecord(w io.Writer, s *schema.Schema, record document.Values, opts FormatOptions) error {
	output := map[string]any{
		"entity": entityName(s),
		"data":   filterRecord(record, opts.Columns),
	}
	return f.encode(w, output, opts.Compact)
}

// FormatErrors writes the errors as one JSON object in recording order.
func (f *JSONFormatter) FormatErrors(w io.Writer, errs *document.Errors) error {
	return f.encode(w, map[string]any{"errors": errs}, false)
}

func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func entityName(s *schema.Schema) string {
	if s == nil {
		return ""
	}
	return s.Entity
}

func filterRecords(records []document.Values, columns []string) []document.Values {
	out := make([]document.Values, 0, len(records))
	for _, rec := range records {
		out = append(out, filterRecord(rec, columns))
	}
	return out
}

func filterRecord(rec document.Values, columns []string) document.Values {
	if rec == nil || len(columns) == 0 {
		return rec
	}
	return project(rec, columns)
}

func init() {
	Register(NewJSONFormatter())
}
