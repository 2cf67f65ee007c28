package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Fixtures(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			assert.NotEmpty(t, s.Assertions)
		})
	}
}

func TestLoadScenario_HappyPath(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/happy_path.yaml")
	require.NoError(t, err)

	assert.Equal(t, "happy_path", s.Name)
	assert.Equal(t, "nightly", s.Job.Label)
	assert.Equal(t, []string{"login.yml", "cart.yml"}, s.Job.Manifest)
	assert.Len(t, s.Job.Sources, 3)
	require.Contains(t, s.Compiler, "login.yml")
	assert.Equal(t, []string{"open", "submit"}, s.Compiler["login.yml"].Tests[0].StepNames)
	require.Len(t, s.Delegator["login.js"], 3)
	payload, ok := s.Delegator["login.js"][1]["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "open", payload["name"])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: typo
description: "misspelled field"
job:
  label: nightly
  manifest: [a.yml]
  sources: {a.yml: ""}
asertions: []
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	const job = `
job:
  label: nightly
  manifest: [a.yml]
  sources: {a.yml: ""}
`
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing name",
			doc:  "description: d\n" + job + "assertions: [{type: end_state, state: complete}]",
			want: "name is required",
		},
		{
			name: "missing description",
			doc:  "name: n\n" + job + "assertions: [{type: end_state, state: complete}]",
			want: "description is required",
		},
		{
			name: "manifest without source",
			doc: `
name: n
description: d
job: {label: nightly, manifest: [a.yml], sources: {b.yml: ""}}
assertions: [{type: end_state, state: complete}]`,
			want: "job.manifest: a.yml has no source",
		},
		{
			name: "no assertions",
			doc:  "name: n\ndescription: d\n" + job,
			want: "assertions list is required",
		},
		{
			name: "unknown assertion",
			doc:  "name: n\ndescription: d\n" + job + "assertions: [{type: eventually}]",
			want: `unknown assertion type "eventually"`,
		},
		{
			name: "event_state without sequence",
			doc:  "name: n\ndescription: d\n" + job + "assertions: [{type: event_state, state: complete}]",
			want: "sequence_number and state are required",
		},
		{
			name: "compiled test without target",
			doc:  "name: n\ndescription: d\n" + job + "compiler: {a.yml: {tests: [{browser: chrome}]}}\nassertions: [{type: end_state, state: complete}]",
			want: "compiler[a.yml].tests[0]: target is required",
		},
		{
			name: "document without type",
			doc:  "name: n\ndescription: d\n" + job + "delegator: {a.js: [{payload: {}}]}\nassertions: [{type: end_state, state: complete}]",
			want: "delegator[a.js][0]: type is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
