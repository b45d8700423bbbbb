package formatter

import (
	"io"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// Description returns the formatter description.
func (f *YAMLFormatter) Description() string {
	return "YAML output format"
}

// FormatList formats a list of records as YAML.
func (f *YAMLFormatter) FormatList(w io.Writer, s *schema.Schema, records []document.Values, opts FormatOptions) error {
	data := filterRecords(records, opts.Columns)
	output := map[string]any{
		"entity": entityName(s),
		"count":  len(data),
		"data":   data,
	}
	return f.encode(w, output)
}

// FormatRecord formats a single record as YAML.
func (f *YAMLFormatter) FormatRecord(w io.Writer, s *schema.Schema, record document.Values, opts FormatOptions) error {
	output := map[string]any{
		"entity": entityName(s),
		"data":   filterRecord(record, opts.Columns),
	}
	return f.encode(w, output)
}

// FormatErrors writes the errors as a mapping that keeps recording order.
func (f *YAMLFormatter) FormatErrors(w io.Writer, errs *document.Errors) error {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range errs.Keys() {
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: errs.Get(key)},
		)
	}
	root := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Tag: "!!str", Value: "errors"},
		m,
	}}
	return f.encode(w, root)
}

func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	Register(NewYAMLFormatter())
}
