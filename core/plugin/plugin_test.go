package plugin

import (
	"testing"

	"github.com/smartyellow/services/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = `
id: acme/news
name: News
version: 1.0.0
features:
  - name: seeMine
  - name: seeAll
  - name: edit
    requires: [[seeMine, seeAll]]
  - name: create
    requires: edit
  - name: delete
    requires: [create, seeAll]
settings:
  - key: preview
    type: string
  - key: channels
    type: keys
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(manifest))
	require.NoError(t, err)

	edit, ok := m.Feature("edit")
	require.True(t, ok, "edit feature missing")
	assert.Equal(t, Requirements{{"seeMine", "seeAll"}}, edit.Requires)
	del, _ := m.Feature("delete")
	assert.Equal(t, Requirements{{"create"}, {"seeAll"}}, del.Requires)
	assert.Equal(t, "acme/news/reload", m.Topic("reload"))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing id", "name: x\n", "id is required"},
		{"unknown requirement", "id: a/b\nname: x\nfeatures:\n  - name: edit\n    requires: see\n", `unknown feature "see"`},
		{"duplicate feature", "id: a/b\nname: x\nfeatures:\n  - name: a\n  - name: a\n", `duplicate feature "a"`},
		{"bad setting type", "id: a/b\nname: x\nsettings:\n  - key: k\n    type: number\n", `unknown type "number"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCan(t *testing.T) {
	m, err := Parse([]byte(manifest))
	require.NoError(t, err)
	user := func(features ...string) ports.User {
		q := make([]string, len(features))
		for i, f := range features {
			q[i] = "acme/news/" + f
		}
		return ports.User{ID: "u", Features: q}
	}

	tests := []struct {
		name    string
		user    ports.User
		feature string
		want    bool
	}{
		{"plain feature", user("seeMine"), "seeMine", true},
		{"not held", user("seeMine"), "seeAll", false},
		{"edit via seeMine", user("seeMine", "edit"), "edit", true},
		{"edit via seeAll", user("seeAll", "edit"), "edit", true},
		{"edit without see", user("edit"), "edit", false},
		{"create chain", user("seeMine", "edit", "create"), "create", true},
		{"create without edit", user("seeMine", "create"), "create", false},
		{"delete needs all groups", user("seeMine", "edit", "create", "delete"), "delete", false},
		{"delete", user("seeAll", "edit", "create", "delete"), "delete", true},
		{"unknown feature", user("seeMine"), "publish", false},
		{"other plugin", ports.User{Features: []string{"other/news/seeMine"}}, "seeMine", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Can(tt.user, tt.feature), "Can(%s)", tt.feature)
		})
	}

	assert.True(t, m.CanAny(user("seeAll"), "seeMine", "seeAll"), "CanAny should accept either feature")
}

func TestApply(t *testing.T) {
	m, _ := Parse([]byte(manifest))

	got, err := m.Apply(map[string]any{"preview": "https://example.com/{slug}"})
	require.NoError(t, err)
	want := map[string]any{"preview": "https://example.com/{slug}", "channels": map[string]any{}}
	assert.Equal(t, want, got)

	_, err = m.Apply(map[string]any{"colour": "red"})
	assert.Error(t, err, "unknown setting")
}
