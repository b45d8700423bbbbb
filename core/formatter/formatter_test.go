package formatter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewSchema("service", "smartyellow/service", []schema.Field{
		{Key: "name", Type: schema.TypeStringset, Format: &schema.Format{Label: "name", Enabled: true, Priority: 1}},
		{Key: "slug", Type: schema.TypeStringset},
		{Key: "status", Type: schema.TypeString, Format: &schema.Format{
			Label:   "state",
			Enabled: true,
			States:  map[string]schema.FormatState{"waitingforapproval": {Name: "waiting for approval"}},
		}},
		{Key: "channels", Type: schema.TypeArray, Format: &schema.Format{Label: "channels", Enabled: true}},
		{Key: "summary", Type: schema.TypeStringset, Format: &schema.Format{Label: "summary", Priority: 6}},
		{Key: "author.name", Type: schema.TypeString, Label: "author"},
	})
	require.NoError(t, err)
	return s
}

func testRecords() []document.Values {
	return []document.Values{
		{
			"id":       "abc123",
			"name":     map[string]any{"en": "Web Design", "nl": "Webontwerp"},
			"status":   "waitingforapproval",
			"channels": []any{"web", "print"},
			"author":   map[string]any{"name": "Ann"},
		},
		{
			"id":       "def456",
			"name":     map[string]any{"nl": "Hosting"},
			"status":   "online",
			"channels": []any{},
		},
	}
}

func TestColumns(t *testing.T) {
	s := testSchema(t)

	tests := []struct {
		name      string
		schema    *schema.Schema
		requested []string
		want      []string
	}{
		{"declared", s, nil, []string{"id", "name", "status", "channels"}},
		{"requested", s, []string{"author.name"}, []string{"author.name"}},
		{"no schema", nil, nil, []string{"id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Columns(tt.schema, tt.requested))
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewTableFormatter()))
	assert.Error(t, r.Register(NewTableFormatter()), "duplicate registration should fail")
	require.NotNil(t, r.Default())
	assert.Equal(t, "table", r.Default().Name())
	assert.Error(t, r.SetDefault("xml"), "SetDefault on an unknown formatter should fail")
	require.NoError(t, r.Register(NewJSONFormatter()))
	require.NoError(t, r.SetDefault("json"))
	assert.Equal(t, "json", r.Default().Name())
	assert.Equal(t, []string{"json", "table"}, r.List())
}

func TestDefaultRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "table", "yaml"}, List())
	_, ok := Get("yaml")
	assert.True(t, ok, "yaml formatter not registered")
}

func TestTable_FormatList(t *testing.T) {
	var buf bytes.Buffer
	err := NewTableFormatter().FormatList(&buf, testSchema(t), testRecords(), FormatOptions{Locale: "en"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3, "want header and two rows:\n%s", buf.String())
	for _, want := range []string{"ID", "NAME", "STATE", "CHANNELS"} {
		assert.Contains(t, lines[0], want)
	}
	for _, want := range []string{"abc123", "Web Design", "waiting for approval", "web, print"} {
		assert.Contains(t, lines[1], want)
	}
	// falls back to the first locale with a value
	assert.Contains(t, lines[2], "Hosting")
	assert.Contains(t, lines[2], "-")
}

func TestTable_Options(t *testing.T) {
	var buf bytes.Buffer
	opts := FormatOptions{Columns: []string{"author.name"}, NoHeader: true, MaxWidth: 5}
	recs := []document.Values{{"author": map[string]any{"name": "Annabel"}}}
	require.NoError(t, NewTableFormatter().FormatList(&buf, testSchema(t), recs, opts))
	assert.Equal(t, "An...", strings.TrimSpace(buf.String()), "want truncated value without header")

	buf.Reset()
	require.NoError(t, NewTableFormatter().FormatList(&buf, testSchema(t), nil, FormatOptions{}))
	assert.Contains(t, buf.String(), "No services found.")
}

func TestTable_FormatRecord(t *testing.T) {
	var buf bytes.Buffer
	opts := FormatOptions{Columns: []string{"id", "author.name"}}
	require.NoError(t, NewTableFormatter().FormatRecord(&buf, testSchema(t), testRecords()[0], opts))
	out := buf.String()
	assert.Contains(t, out, "id:")
	assert.Contains(t, out, "author:")
	assert.Contains(t, out, "Ann")
}

func TestTable_FormatValue(t *testing.T) {
	f := NewTableFormatter()
	tests := []struct {
		val  any
		want string
	}{
		{nil, "-"},
		{"", "-"},
		{true, "yes"},
		{false, "no"},
		{float64(3), "3"},
		{1.5, "1.50"},
		{[]any{"a", true}, "a, yes"},
		{map[string]any{"nl": "Hallo"}, "Hallo"},
		{map[string]any{"en": ""}, "-"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.formatValue(tt.val, nil, "en"), "formatValue(%v)", tt.val)
	}
}

func errorsFixture() *document.Errors {
	var errs document.Errors
	errs.Add("name", "The service title is required.")
	errs.Add("status", "invalid option")
	errs.Add("channels", "unknown channel")
	return &errs
}

func TestFormatErrors_Order(t *testing.T) {
	for _, name := range []string{"table", "json", "yaml"} {
		t.Run(name, func(t *testing.T) {
			f, _ := Get(name)
			var buf bytes.Buffer
			require.NoError(t, f.FormatErrors(&buf, errorsFixture()))
			out := buf.String()
			n, s, c := strings.Index(out, "name"), strings.Index(out, "status"), strings.Index(out, "channels")
			require.True(t, n >= 0 && s >= 0 && c >= 0, "missing keys:\n%s", out)
			assert.True(t, n < s && s < c, "errors out of order:\n%s", out)
		})
	}
}

func TestJSON_FormatList(t *testing.T) {
	var buf bytes.Buffer
	opts := FormatOptions{Columns: []string{"id", "author.name"}, Compact: true}
	require.NoError(t, NewJSONFormatter().FormatList(&buf, testSchema(t), testRecords(), opts))

	var out struct {
		Entity string           `json:"entity"`
		Count  int              `json:"count"`
		Data   []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "service", out.Entity)
	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Data, 2)
	assert.Equal(t, map[string]any{"id": "abc123", "author": map[string]any{"name": "Ann"}}, out.Data[0])
	assert.NotContains(t, out.Data[1], "author", "missing values must not be projected")
}

func TestJSON_FormatRecordWhole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter().FormatRecord(&buf, testSchema(t), testRecords()[0], FormatOptions{}))
	assert.Contains(t, buf.String(), `"nl": "Webontwerp"`, "whole record expected")
}

func TestYAML_FormatList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewYAMLFormatter().FormatList(&buf, testSchema(t), testRecords(), FormatOptions{}))

	var out struct {
		Entity string           `yaml:"entity"`
		Count  int              `yaml:"count"`
		Data   []map[string]any `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "service", out.Entity)
	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Data, 2)
	assert.Equal(t, "def456", out.Data[1]["id"])
}
