package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
database:
  driver: memory
auth:
  jwt_secret: test-secret
plugin:
  settings:
    channels:
      web: Website
      print: Print
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append(args, "--config", path, "--env-file", ""))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeJSON(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCheck_Valid(t *testing.T) {
	file := writeJSON(t, `{"name": {"en": "Web Design"}, "channels": ["web"]}`)

	out, err := execute(t, "check", "--offline", file)
	require.NoError(t, err, out)
	assert.Contains(t, out, "service is valid")
}

func TestCheck_FieldErrors(t *testing.T) {
	file := writeJSON(t, `{"status": "deleted", "channels": ["tv"]}`)

	out, err := execute(t, "check", "--offline", file)
	require.ErrorIs(t, err, errBlocked)
	for _, want := range []string{`"name"`, `"status": "invalid option"`, `"channels"`} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, `"name"`), strings.Index(out, `"status"`), "errors are not in declaration order")
}

func TestCheck_UpdateNeedsStore(t *testing.T) {
	file := writeJSON(t, `{}`)
	_, err := execute(t, "check", "--offline", "--id", "abc123", file)
	checkID = ""
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs store access")
}

func TestReadValues(t *testing.T) {
	_, err := readValues(strings.NewReader("[1,2]"), "-")
	assert.Error(t, err, "a JSON array should be rejected")
	_, err = readValues(strings.NewReader("null"), "-")
	assert.Error(t, err, "null should be rejected")

	v, err := readValues(strings.NewReader(`{"name": "Hosting"}`), "-")
	require.NoError(t, err)
	assert.Equal(t, "Hosting", v["name"])
}

func TestToken_UnknownFeature(t *testing.T) {
	_, err := execute(t, "token", "--feature", "fly")
	tokenFeatures = nil
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown feature "fly"`)
}

func TestToken_All(t *testing.T) {
	out, err := execute(t, "token", "--all", "--user", "admin")
	tokenAll = false
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."), "want a JWT, got %q", out)
}

func TestCheck_TableFormat(t *testing.T) {
	file := writeJSON(t, `{"status": "deleted"}`)

	out, err := execute(t, "check", "--offline", "--format", "table", file)
	checkFormat = "json"
	require.ErrorIs(t, err, errBlocked)
	assert.Contains(t, out, "status")
	assert.NotContains(t, out, `"status"`, "want a plain table")
}
