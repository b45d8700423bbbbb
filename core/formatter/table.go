package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatList formats a list of records as a table.
func (f *TableFormatter) FormatList(w io.Writer, s *schema.Schema, records []document.Values, opts FormatOptions) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No services found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	columns := Columns(s, opts.Columns)

	if !opts.NoHeader {
		headers := make([]string, len(columns))
		for i, col := range columns {
			headers[i] = strings.ToUpper(label(s, col))
		}
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}

	for _, rec := range records {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = f.cell(s, rec, col, opts.Locale, opts.MaxWidth)
		}
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}

	return tw.Flush()
}

// FormatRecord formats a single record as key-value pairs.
func (f *TableFormatter) FormatRecord(w io.Writer, s *schema.Schema, record document.Values, opts FormatOptions) error {
	if record == nil {
		fmt.Fprintln(w, "Service not found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, col := range Columns(s, opts.Columns) {
		fmt.Fprintf(tw, "%s:\t%s\n", label(s, col), f.cell(s, record, col, opts.Locale, 0))
	}
	return tw.Flush()
}

// FormatErrors lists one field error per line.
func (f *TableFormatter) FormatErrors(w io.Writer, errs *document.Errors) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, key := range errs.Keys() {
		fmt.Fprintf(tw, "%s\t%s\n", key, errs.Get(key))
	}
	return tw.Flush()
}

// label returns the column label declared for key, or key itself.
func label(s *schema.Schema, key string) string {
	if s != nil {
		if fd, ok := s.Field(key); ok {
			if fd.Format != nil && fd.Format.Label != "" {
				return fd.Format.Label
			}
			if fd.Label != "" {
				return fd.Label
			}
		}
	}
	return key
}

func (f *TableFormatter) cell(s *schema.Schema, rec document.Values, key, locale string, maxWidth int) string {
	p, err := schema.ParsePath(key)
	if err != nil {
		return "-"
	}
	val, ok := rec.Get(p)
	if !ok {
		return "-"
	}

	var format *schema.Format
	if s != nil {
		if fd, ok := s.Field(key); ok {
			format = fd.Format
		}
	}

	str := f.formatValue(val, format, locale)
	if maxWidth > 3 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}
	return str
}

// formatValue formats a value for display. Localized values show the
// requested locale, or the first locale with a value.
func (f *TableFormatter) formatValue(val any, format *schema.Format, locale string) string {
	switch v := val.(type) {
	case nil:
		return "-"
	case string:
		if format != nil {
			if st, ok := format.States[v]; ok {
				return st.Name
			}
		}
		if v == "" {
			return "-"
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.2f", v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, it := range v {
			parts = append(parts, f.formatValue(it, nil, locale))
		}
		if len(parts) == 0 {
			return "-"
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		if s, ok := v[locale].(string); ok && s != "" {
			return s
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := v[k].(string); ok && s != "" {
				return s
			}
		}
		return "-"
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func init() {
	Register(NewTableFormatter())
}
