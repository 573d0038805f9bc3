package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulecompiler/internal/auth"
	"rulecompiler/internal/nlrule"
)

const stayJSON = `{
  "id": "inpatient-stay",
  "name": "Inpatient Stay",
  "sections": [{
    "name": "Stay",
    "fields": [
      {"id": "expectedAdmissionDatetime", "label": "Expected Admission Datetime"},
      {"id": "expectedDischargeDatetime", "label": "Expected Discharge Datetime"},
      {"id": "numberOfDays", "label": "Number of Days"}
    ]
  }]
}`

const stayYAML = `id: inpatient-stay
name: Inpatient Stay
sections:
  - name: Stay
    fields:
      - id: numberOfDays
        label: Number of Days
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCompileCmd_JSONTemplate(t *testing.T) {
	tpl := writeFile(t, "stay.json", stayJSON)

	out, err := run(t, "", "compile", "-t", tpl,
		"Expected Discharge Datetime greater than Expected Admission Datetime")
	require.NoError(t, err)

	var got compileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.True(t, got.Rule.Enabled)
	assert.Equal(t, "comparison", got.Shape)
	assert.ElementsMatch(t, []string{"expectedDischargeDatetime", "expectedAdmissionDatetime"}, got.Rule.DependsOn)
	assert.Empty(t, got.Lint)
}

func TestCompileCmd_YAMLTemplateFromStdin(t *testing.T) {
	tpl := writeFile(t, "stay.yaml", stayYAML)

	out, err := run(t, "Number of Days cannot exceed 30\n", "compile", "-t", tpl)
	require.NoError(t, err)

	var got compileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.True(t, got.Rule.Enabled)
	assert.Equal(t, "ceiling", got.Shape)
	assert.Equal(t, []string{"numberOfDays"}, got.Rule.DependsOn)
}

func TestCompileCmd_FailureCarriesSuggestions(t *testing.T) {
	tpl := writeFile(t, "stay.json", stayJSON)

	out, err := run(t, "", "compile", "-t", tpl, "Number of Dys lorem ipsum")
	require.NoError(t, err)

	var got compileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.False(t, got.Rule.Enabled)
	assert.Empty(t, got.Shape)
	assert.Contains(t, got.Suggestions, "Number of Days")
}

func TestCompileCmd_RequiresTemplate(t *testing.T) {
	_, err := run(t, "", "compile", "anything")
	assert.Error(t, err)

	_, err = run(t, "", "compile", "-t", filepath.Join(t.TempDir(), "missing.json"), "x")
	assert.ErrorContains(t, err, "read template")
}

func TestLintCmd(t *testing.T) {
	out, err := run(t, "", "lint", "-e", "numberOfDays >= 1", "-d", "numberOfDays")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	out, err = run(t, "", "lint", "-e", "numberOfDays >= 1")
	assert.ErrorIs(t, err, errLintFailed)
	assert.Contains(t, out, `identifier "numberOfDays" is missing from dependsOn`)

	tpl := writeFile(t, "stay.json", stayJSON)
	out, err = run(t, "", "lint", "-t", tpl, "-e", "bedCount > 1", "-d", "bedCount")
	assert.ErrorIs(t, err, errLintFailed)
	assert.Contains(t, out, `dependency "bedCount" is not a field of the template`)

	out, err = run(t, "", "lint", "--disabled")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}

func TestVocabularyCmd_RoundTrips(t *testing.T) {
	out, err := run(t, "", "vocabulary")
	require.NoError(t, err)
	assert.Contains(t, out, "operators:")

	table, err := nlrule.LoadSynonyms(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, nlrule.New().Synonyms().Operators, table.Operators)

	custom := writeFile(t, "vocab.yaml", out)
	again, err := run(t, "", "--vocabulary", custom, "vocabulary")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestTokenCmd(t *testing.T) {
	out, err := run(t, "", "token", "--secret", "s3cret", "--sub", "alice", "--role", "admin")
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(strings.TrimSpace(out), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, []string{"admin"}, claims.Roles)
}
