package progress

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/store"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	s   *store.Store
	app *Application
}

func newFixture(t *testing.T) *fixture {
	s := createTestStore(t)
	return &fixture{t: t, ctx: context.Background(), s: s, app: NewApplication(s)}
}

func (f *fixture) job() {
	require.NoError(f.t, f.s.CreateJob(f.ctx, domain.Job{Label: "job", EventDeliveryURL: "http://c", MaximumDuration: 60}))
}

func (f *fixture) source(path string, typ domain.SourceType) {
	require.NoError(f.t, f.s.AddSource(f.ctx, domain.Source{Path: path, Type: typ}))
}

func (f *fixture) test(source string) domain.Test {
	test, err := f.s.CreateTest(f.ctx, domain.Test{Browser: "chrome", URL: "http://a", Source: source, Target: source + ".js"})
	require.NoError(f.t, err)
	return test
}

func (f *fixture) move(test domain.Test, states ...domain.TestState) {
	from := test.State
	for _, to := range states {
		changed, err := f.s.SetTestState(f.ctx, test.ID, from, to)
		require.NoError(f.t, err)
		require.True(f.t, changed, "%s -> %s", from, to)
		from = to
	}
}

func (f *fixture) event(scope domain.WorkerEventScope, outcome domain.WorkerEventOutcome, states ...domain.WorkerEventState) domain.WorkerEvent {
	e, err := f.s.CreateWorkerEvent(f.ctx, domain.WorkerEvent{Scope: scope, Outcome: outcome, Label: "job", Reference: "r"})
	require.NoError(f.t, err)
	from := e.State
	for _, to := range states {
		changed, err := f.s.CompareAndSetWorkerEventState(f.ctx, e.SequenceNumber, from, to)
		require.NoError(f.t, err)
		require.True(f.t, changed)
		from = to
	}
	return e
}

func (f *fixture) state() ApplicationState {
	state, err := f.app.Get(f.ctx)
	require.NoError(f.t, err)
	return state
}

func TestCompilation_States(t *testing.T) {
	f := newFixture(t)
	c := f.app.Compilation()

	state, err := c.Get(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, CompilationAwaiting, state)

	f.source("a.yml", domain.SourceTypeTest)
	f.source("b.yml", domain.SourceTypeTest)

	state, err = c.Get(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, CompilationRunning, state)

	f.test("a.yml")
	state, err = c.Get(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, CompilationRunning, state)

	f.test("b.yml")
	state, err = c.Get(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, CompilationComplete, state)
}

func TestCompilation_FailureTakesPriority(t *testing.T) {
	f := newFixture(t)
	f.source("a.yml", domain.SourceTypeTest)
	f.test("a.yml")
	f.event(domain.ScopeCompilation, domain.OutcomeFailed)

	ok, err := f.app.Compilation().Is(f.ctx, CompilationFailed)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompilation_OrderIndependent(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"a.yml", "b.yml", "c.yml"} {
		f.source(p, domain.SourceTypeTest)
	}
	f.test("c.yml")
	f.test("a.yml")
	f.test("b.yml")

	ok, err := f.app.Compilation().Is(f.ctx, CompilationComplete)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExecution_States(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture, a, b domain.Test)
		want  ExecutionState
	}{
		{"all awaiting", func(f *fixture, a, b domain.Test) {}, ExecutionAwaiting},
		{"first running", func(f *fixture, a, b domain.Test) {
			f.move(a, domain.TestStateRunning)
		}, ExecutionRunning},
		{"one complete one awaiting", func(f *fixture, a, b domain.Test) {
			f.move(a, domain.TestStateRunning, domain.TestStateComplete)
		}, ExecutionRunning},
		{"all complete", func(f *fixture, a, b domain.Test) {
			f.move(a, domain.TestStateRunning, domain.TestStateComplete)
			f.move(b, domain.TestStateRunning, domain.TestStateComplete)
		}, ExecutionComplete},
		{"one failed", func(f *fixture, a, b domain.Test) {
			f.move(a, domain.TestStateRunning, domain.TestStateFailed)
		}, ExecutionCancelled},
		{"one cancelled", func(f *fixture, a, b domain.Test) {
			f.move(b, domain.TestStateCancelled)
		}, ExecutionCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.test("a.yml")
			b := f.test("b.yml")
			tt.setup(f, a, b)

			state, err := f.app.Execution().Get(f.ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestEventDelivery_States(t *testing.T) {
	f := newFixture(t)
	d := f.app.EventDelivery()

	state, err := d.Get(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, EventDeliveryAwaiting, state)

	f.event(domain.ScopeJob, domain.OutcomeStarted, domain.WorkerEventStateQueued, domain.WorkerEventStateSending, domain.WorkerEventStateComplete)
	state, err = d.Get(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, EventDeliveryComplete, state)

	e := f.event(domain.ScopeJob, domain.OutcomeCompiled, domain.WorkerEventStateQueued, domain.WorkerEventStateSending)
	state, err = d.Get(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, EventDeliveryRunning, state)

	// Retry budget exhausted: the event fails but still counts as finished.
	_, err = f.s.CompareAndSetWorkerEventState(f.ctx, e.SequenceNumber, domain.WorkerEventStateSending, domain.WorkerEventStateFailed)
	require.NoError(t, err)
	state, err = d.Get(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, EventDeliveryComplete, state)
}

func TestApplication_HappyPathScenario(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, ApplicationAwaitingJob, f.state())

	f.job()
	assert.Equal(t, ApplicationAwaitingSources, f.state())

	f.source("a.yml", domain.SourceTypeTest)
	f.source("b.yml", domain.SourceTypeTest)
	assert.Equal(t, ApplicationCompiling, f.state())

	ok, err := f.app.Compilation().Is(f.ctx, CompilationRunning)
	require.NoError(t, err)
	assert.True(t, ok)

	a := f.test("a.yml")
	b := f.test("b.yml")
	assert.Equal(t, ApplicationExecuting, f.state())

	f.move(a, domain.TestStateRunning, domain.TestStateComplete)
	f.move(b, domain.TestStateRunning, domain.TestStateComplete)
	e1 := f.event(domain.ScopeTest, domain.OutcomePassed, domain.WorkerEventStateQueued)
	f.event(domain.ScopeTest, domain.OutcomePassed, domain.WorkerEventStateQueued, domain.WorkerEventStateSending, domain.WorkerEventStateComplete)
	assert.Equal(t, ApplicationCompletingEventDelivery, f.state())

	_, err = f.s.CompareAndSetWorkerEventState(f.ctx, e1.SequenceNumber, domain.WorkerEventStateQueued, domain.WorkerEventStateSending)
	require.NoError(t, err)
	_, err = f.s.CompareAndSetWorkerEventState(f.ctx, e1.SequenceNumber, domain.WorkerEventStateSending, domain.WorkerEventStateComplete)
	require.NoError(t, err)
	assert.Equal(t, ApplicationComplete, f.state())
}

func TestApplication_TimedOutWinsOverEverything(t *testing.T) {
	f := newFixture(t)
	f.job()
	f.source("a.yml", domain.SourceTypeTest)
	f.source("b.yml", domain.SourceTypeTest)
	a := f.test("a.yml")
	f.test("b.yml")
	f.move(a, domain.TestStateRunning)

	f.event(domain.ScopeTest, domain.OutcomeStarted, domain.WorkerEventStateQueued)
	f.event(domain.ScopeJob, domain.OutcomeTimeOut)

	assert.Equal(t, ApplicationTimedOut, f.state())

	// Cancelling the unfinished tests keeps the job timed out.
	_, err := f.s.CancelTests(f.ctx, domain.TestStateAwaiting, domain.TestStateRunning)
	require.NoError(t, err)

	execution, err := f.app.Execution().Get(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, ExecutionCancelled, execution)
	assert.Equal(t, ApplicationTimedOut, f.state())
}

func TestApplication_FailedCompilationSkipsExecution(t *testing.T) {
	f := newFixture(t)
	f.job()
	f.source("a.yml", domain.SourceTypeTest)
	f.event(domain.ScopeCompilation, domain.OutcomeFailed)

	// Execution never started. The job end state carries the failure.
	assert.Equal(t, ApplicationExecuting, f.state())
}

func TestApplication_Snapshot(t *testing.T) {
	f := newFixture(t)
	f.job()
	f.source("a.yml", domain.SourceTypeTest)

	snap, err := f.app.Snapshot(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{
		Application:   ApplicationCompiling,
		Compilation:   CompilationRunning,
		Execution:     ExecutionAwaiting,
		EventDelivery: EventDeliveryAwaiting,
	}, snap)
}
