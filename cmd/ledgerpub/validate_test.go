package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/ledgerpub/pkg/publisher"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRuleset(t *testing.T) {
	want := publisher.Ruleset{
		{Condition: "true", Consequent: publisher.Consequent("SLD"), Description: "all"},
		{Condition: "false", Consequent: nil},
	}

	jsonPath := writeFile(t, "rules.json", `[
		{"condition": true, "consequent": "SLD", "description": "all"},
		{"condition": "false", "consequent": null}
	]`)
	got, err := loadRuleset(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	yamlPath := writeFile(t, "rules.yaml", `
- condition: true
  consequent: SLD
  description: all
- condition: "false"
  consequent: null
`)
	got, err = loadRuleset(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadRuleset_UnknownField(t *testing.T) {
	_, err := loadRuleset(writeFile(t, "rules.yml", "- condition: \"true\"\n  extra: 1\n"))
	assert.Error(t, err)
	_, err = loadRuleset(writeFile(t, "rules.json", `[{"condition": "true", "extra": 1}]`))
	assert.Error(t, err)
}

func TestRunValidate(t *testing.T) {
	var out bytes.Buffer
	path := writeFile(t, "rules.json", `[{"condition": "true", "consequent": "SLD"}]`)
	require.NoError(t, runValidate(&out, path, true))
	assert.Contains(t, out.String(), "ok (1 rules)")
	assert.Contains(t, out.String(), "--- default")
	assert.Contains(t, out.String(), "+++ "+path)

	err := runValidate(&out, writeFile(t, "bad.json", `[{"condition": "1"}]`), false)
	var ve publisher.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "rules[0].condition", ve[0].FieldPath)
}

func TestRunIdentify_WithRulesetFile(t *testing.T) {
	path := writeFile(t, "rules.yaml", `
- condition: hostname == 'example.com'
  consequent: "'acme'"
- condition: "true"
  consequent: null
`)
	var out bytes.Buffer
	require.NoError(t, runIdentify(&out, "https://example.com/x", path))
	assert.Equal(t, "acme\n", out.String())

	out.Reset()
	require.NoError(t, runIdentify(&out, "https://other.org/", path))
	assert.Equal(t, "no publisher\n", out.String())

	assert.Error(t, runIdentify(&out, "mailto:a@example.com", path))
}
