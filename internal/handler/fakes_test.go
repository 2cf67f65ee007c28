package handler

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/testworker/internal/compiler"
	"github.com/roach88/testworker/internal/delegator"
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/store"
	"github.com/roach88/testworker/internal/testutil"
)

var createdAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeCompiler struct {
	result compiler.Result
	err    error
	calls  []string
}

func (c *fakeCompiler) Compile(ctx context.Context, path string) (compiler.Result, error) {
	c.calls = append(c.calls, path)
	return c.result, c.err
}

// fakeDelegator replays a scripted transcript. afterYield runs after each
// document is consumed, before the next one is produced.
type fakeDelegator struct {
	lines      []string
	err        error
	afterYield func(i int)
	produced   int
}

func (d *fakeDelegator) Execute(ctx context.Context, test domain.Test) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for i, line := range d.lines {
			doc, err := delegator.ParseDocument([]byte(line))
			if err != nil {
				yield(domain.Document{}, err)
				return
			}
			d.produced++
			if !yield(doc, nil) {
				return
			}
			if d.afterYield != nil {
				d.afterYield(i)
			}
		}
		if d.err != nil {
			yield(domain.Document{}, d.err)
		}
	}
}

func newStoreWithJob(t *testing.T, testPaths ...string) *store.Store {
	t.Helper()
	s := testutil.NewStore(t)
	testutil.CreateJob(t, s, "http://collector.test", createdAt, testPaths...)
	return s
}

func endJob(t *testing.T, s *store.Store) {
	t.Helper()
	ok, err := s.SetJobEndState(context.Background(), domain.EndStateTimedOut)
	require.NoError(t, err)
	require.True(t, ok)
}
