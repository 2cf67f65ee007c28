package delegator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/testworker/internal/domain"
)

const transcript = `{type: test, payload: {name: login}}
{type: step, payload: {name: open, status: passed}}

{type: step, payload: {name: submit, status: failed}}
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "delegator")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func collect(t *testing.T, p *Process, test domain.Test) ([]domain.Document, error) {
	t.Helper()
	var (
		docs    []domain.Document
		lastErr error
	)
	for doc, err := range p.Execute(context.Background(), test) {
		if err != nil {
			lastErr = err
			continue
		}
		docs = append(docs, doc)
	}
	return docs, lastErr
}

func TestDecode(t *testing.T) {
	var docs []domain.Document
	err := Decode(strings.NewReader(transcript), func(d domain.Document) bool {
		docs = append(docs, d)
		return true
	})
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, domain.DocumentTypeTest, docs[0].Type)
	assert.Equal(t, domain.DocumentTypeStep, docs[1].Type)
	assert.Equal(t, "open", docs[1].StepName())
	assert.Equal(t, domain.StepStatusPassed, docs[1].StepStatus())
	assert.Equal(t, domain.StepStatusFailed, docs[2].StepStatus())
}

func TestDecode_StopsWhenToldTo(t *testing.T) {
	calls := 0
	err := Decode(strings.NewReader(transcript), func(domain.Document) bool {
		calls++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestParseDocument_Errors(t *testing.T) {
	_, err := ParseDocument([]byte("{type: [unclosed"))
	assert.Error(t, err)

	_, err = ParseDocument([]byte("null"))
	assert.Error(t, err)
}

func TestParseDocument_KeepsRawData(t *testing.T) {
	doc, err := ParseDocument([]byte(`{type: exception, payload: {message: "browser crashed"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentTypeException, doc.Type)
	assert.Equal(t, map[string]any{
		"type":    "exception",
		"payload": map[string]any{"message": "browser crashed"},
	}, doc.Data)
}

func TestProcess_Execute(t *testing.T) {
	binary := writeScript(t, `
[ "$1" = "--browser" ] || exit 9
echo "{type: test, payload: {browser: $2, target: $3}}"
echo "{type: step, payload: {name: open, status: passed}}"
`)
	p := NewProcess(binary, nil)

	docs, err := collect(t, p, domain.Test{ID: 1, Browser: "chrome", Target: "/app/tests/login.js"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, map[string]any{"browser": "chrome", "target": "/app/tests/login.js"}, docs[0].Data["payload"])
	assert.Equal(t, "open", docs[1].StepName())
}

func TestProcess_ExecuteNonZeroExit(t *testing.T) {
	binary := writeScript(t, `
echo "{type: test}"
echo "driver lost" >&2
exit 4`)
	p := NewProcess(binary, nil)

	docs, err := collect(t, p, domain.Test{ID: 1, Browser: "chrome", Target: "x.js"})
	assert.Len(t, docs, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 4")
	assert.Contains(t, err.Error(), "driver lost")
}

func TestProcess_ExecuteStopsEarly(t *testing.T) {
	binary := writeScript(t, `
echo "{type: test}"
exec sleep 30`)
	p := NewProcess(binary, nil)

	var docs []domain.Document
	for doc, err := range p.Execute(context.Background(), domain.Test{ID: 1, Browser: "chrome", Target: "x.js"}) {
		require.NoError(t, err)
		docs = append(docs, doc)
		break
	}
	assert.Len(t, docs, 1)
}

func TestProcess_ExecuteMissingBinary(t *testing.T) {
	p := NewProcess(filepath.Join(t.TempDir(), "missing"), nil)

	docs, err := collect(t, p, domain.Test{ID: 1})
	assert.Empty(t, docs)
	assert.Error(t, err)
}
