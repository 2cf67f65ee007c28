package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/testworker/internal/callback"
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/engine"
	"github.com/roach88/testworker/internal/message"
	"github.com/roach88/testworker/internal/progress"
	"github.com/roach88/testworker/internal/store"
	"github.com/roach88/testworker/internal/testutil"
)

var createdAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *store.Store
	bus       *testutil.RecordingDispatcher
	publisher *testutil.RecordingPublisher
	mutator   *callback.Mutator
}

func newFixture(t *testing.T, testPaths ...string) fixture {
	t.Helper()
	s := testutil.NewStore(t)
	if len(testPaths) > 0 {
		testutil.CreateJob(t, s, "http://collector.test", createdAt, testPaths...)
	}
	return fixture{
		store:     s,
		bus:       testutil.NewRecordingDispatcher(),
		publisher: testutil.NewRecordingPublisher(),
		mutator:   callback.NewMutator(s, nil),
	}
}

func TestCompilationLane_DispatchesWhileUnfinished(t *testing.T) {
	f := newFixture(t, "a.yml", "b.yml")
	lane := NewCompilationLane(progress.NewCompilation(f.store), f.store, f.bus, f.publisher, nil)
	ctx := context.Background()

	require.NoError(t, lane.Handle(ctx, domain.JobReadyEvent{}))
	assert.Equal(t, []engine.Message{message.CompileSource{}}, f.bus.Messages())

	testutil.CreateTest(t, f.store, "a.yml")
	require.NoError(t, lane.Handle(ctx, domain.SourceCompilationPassedEvent{Source: "a.yml"}))
	assert.Len(t, f.bus.Messages(), 2)
	assert.Empty(t, f.publisher.Events())
}

func TestCompilationLane_EmitsJobCompiledOnce(t *testing.T) {
	f := newFixture(t, "a.yml")
	lane := NewCompilationLane(progress.NewCompilation(f.store), f.store, f.bus, f.publisher, nil)
	ctx := context.Background()

	testutil.CreateTest(t, f.store, "a.yml")
	require.NoError(t, lane.Handle(ctx, domain.SourceCompilationPassedEvent{Source: "a.yml"}))
	assert.Equal(t, []domain.EventName{domain.EventJobCompiled}, f.publisher.Names())
	assert.Empty(t, f.bus.Messages())

	testutil.CreateWorkerEvent(t, f.store, domain.ScopeJob, domain.OutcomeCompiled)
	require.NoError(t, lane.Handle(ctx, domain.SourceCompilationPassedEvent{Source: "a.yml"}))
	assert.Len(t, f.publisher.Events(), 1, "job/compiled already recorded")
}

func TestCompilationLane_StopsAfterFailure(t *testing.T) {
	f := newFixture(t, "a.yml", "b.yml")
	lane := NewCompilationLane(progress.NewCompilation(f.store), f.store, f.bus, f.publisher, nil)

	testutil.CreateWorkerEvent(t, f.store, domain.ScopeCompilation, domain.OutcomeFailed)
	require.NoError(t, lane.Handle(context.Background(), domain.JobReadyEvent{}))

	assert.Empty(t, f.bus.Messages())
	assert.Empty(t, f.publisher.Events())
}

func TestCompilationLane_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, "a.yml")
	lane := NewCompilationLane(progress.NewCompilation(f.store), f.store, f.bus, f.publisher, nil)

	require.NoError(t, lane.Handle(context.Background(), domain.SourceCompilationFailedEvent{Source: "a.yml"}))
	assert.Empty(t, f.bus.Messages())
}

func TestCompilationLane_DispatchError(t *testing.T) {
	f := newFixture(t, "a.yml")
	lane := NewCompilationLane(progress.NewCompilation(f.store), f.store, f.bus, f.publisher, nil)
	f.bus.FailWith(engine.ErrBusClosed)

	err := lane.Handle(context.Background(), domain.JobReadyEvent{})
	assert.ErrorIs(t, err, engine.ErrBusClosed)
}

func TestExecutionLane_StartsWithFirstTest(t *testing.T) {
	f := newFixture(t, "a.yml", "b.yml")
	lane := NewExecutionLane(progress.NewExecution(f.store), f.store, f.bus, f.publisher, nil)

	first := testutil.CreateTest(t, f.store, "a.yml")
	testutil.CreateTest(t, f.store, "b.yml")

	require.NoError(t, lane.Handle(context.Background(), domain.JobCompiledEvent{}))

	assert.Equal(t, []domain.EventName{domain.EventExecutionStarted}, f.publisher.Names())
	assert.Equal(t, []engine.Message{message.ExecuteTest{TestID: first.ID}}, f.bus.Messages())
}

func TestExecutionLane_AdvancesOnlyForCompleteTests(t *testing.T) {
	f := newFixture(t, "a.yml", "b.yml")
	lane := NewExecutionLane(progress.NewExecution(f.store), f.store, f.bus, f.publisher, nil)
	ctx := context.Background()

	first := testutil.CreateTest(t, f.store, "a.yml")
	second := testutil.CreateTest(t, f.store, "b.yml")

	testutil.SetTestState(t, f.store, first.ID, domain.TestStateRunning)
	require.NoError(t, lane.Handle(ctx, domain.TestPassedEvent{Test: first}))
	assert.Empty(t, f.bus.Messages(), "test still running")

	testutil.SetTestState(t, f.store, first.ID, domain.TestStateComplete)
	require.NoError(t, lane.Handle(ctx, domain.TestPassedEvent{Test: first}))
	assert.Equal(t, []engine.Message{message.ExecuteTest{TestID: second.ID}}, f.bus.Messages())
	assert.Empty(t, f.publisher.Events(), "execution still running")
}

func TestExecutionLane_EmitsExecutionCompleted(t *testing.T) {
	f := newFixture(t, "a.yml", "b.yml")
	lane := NewExecutionLane(progress.NewExecution(f.store), f.store, f.bus, f.publisher, nil)
	ctx := context.Background()

	first := testutil.CreateTest(t, f.store, "a.yml")
	second := testutil.CreateTest(t, f.store, "b.yml")
	testutil.SetTestState(t, f.store, first.ID, domain.TestStateComplete)
	testutil.SetTestState(t, f.store, second.ID, domain.TestStateComplete)

	require.NoError(t, lane.Handle(ctx, domain.TestPassedEvent{Test: second}))
	assert.Empty(t, f.bus.Messages())
	assert.Equal(t, []domain.EventName{domain.EventExecutionCompleted}, f.publisher.Names())

	testutil.CreateWorkerEvent(t, f.store, domain.ScopeExecution, domain.OutcomeCompleted)
	require.NoError(t, lane.Handle(ctx, domain.TestPassedEvent{Test: second}))
	assert.Len(t, f.publisher.Events(), 1)
}

func TestApplicationLane(t *testing.T) {
	tests := []struct {
		name     string
		event    domain.Event
		wantMsgs []testutil.Dispatched
		wantPub  []domain.EventName
	}{
		{
			name:     "test passed schedules completion check",
			event:    domain.TestPassedEvent{},
			wantMsgs: []testutil.Dispatched{{Message: message.CheckJobCompleted{}, Delay: 5 * time.Second}},
		},
		{
			name:    "test failed",
			event:   domain.TestFailedEvent{},
			wantPub: []domain.EventName{domain.EventJobFailed},
		},
		{
			name:    "test exception",
			event:   domain.TestExceptionEvent{},
			wantPub: []domain.EventName{domain.EventJobFailed},
		},
		{
			name:    "compilation failed",
			event:   domain.SourceCompilationFailedEvent{Source: "a.yml"},
			wantPub: []domain.EventName{domain.EventJobFailed},
		},
		{
			name:  "unrelated",
			event: domain.StepPassedEvent{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "a.yml")
			lane := NewApplicationLane(f.store, f.bus, f.publisher, 5*time.Second, nil)

			require.NoError(t, lane.Handle(context.Background(), tt.event))

			if tt.wantMsgs == nil {
				assert.Empty(t, f.bus.Sent())
			} else {
				assert.Equal(t, tt.wantMsgs, f.bus.Sent())
			}
			if tt.wantPub == nil {
				assert.Empty(t, f.publisher.Events())
			} else {
				assert.Equal(t, tt.wantPub, f.publisher.Names())
			}
		})
	}
}

func TestApplicationLane_FailsJobOnce(t *testing.T) {
	f := newFixture(t, "a.yml")
	lane := NewApplicationLane(f.store, f.bus, f.publisher, time.Second, nil)

	testutil.CreateWorkerEvent(t, f.store, domain.ScopeJob, domain.OutcomeFailed)
	require.NoError(t, lane.Handle(context.Background(), domain.TestFailedEvent{}))

	assert.Empty(t, f.publisher.Events())
}

func TestDeliveryLane_QueuesAndDispatches(t *testing.T) {
	f := newFixture(t, "a.yml")
	lane := NewDeliveryLane(f.mutator, f.bus, nil)
	ctx := context.Background()

	e := testutil.CreateWorkerEvent(t, f.store, domain.ScopeJob, domain.OutcomeStarted)
	require.NoError(t, lane.Handle(ctx, domain.WorkerEventCreatedEvent{WorkerEvent: e}))

	stored, err := f.store.GetWorkerEvent(ctx, e.SequenceNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerEventStateQueued, stored.State)
	assert.Equal(t, []engine.Message{message.DeliverEvent{SequenceNumber: e.SequenceNumber}}, f.bus.Messages())

	// A duplicate notification cannot queue twice.
	require.NoError(t, lane.Handle(ctx, domain.WorkerEventCreatedEvent{WorkerEvent: e}))
	assert.Len(t, f.bus.Messages(), 1)
}

func TestEndStateSetter_FirstWriterWins(t *testing.T) {
	f := newFixture(t, "a.yml")
	setter := NewEndStateSetter(f.store, f.publisher, nil)
	ctx := context.Background()

	require.NoError(t, setter.Handle(ctx, domain.TestFailedEvent{}))
	require.NoError(t, setter.Handle(ctx, domain.JobTimeoutEvent{MaximumDuration: 60}))

	job, err := f.store.GetJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, job.EndState)
	assert.Equal(t, domain.EndStateFailedTestFailure, *job.EndState)

	assert.Equal(t, []domain.Event{
		domain.JobEndStateChangedEvent{EndState: domain.EndStateFailedTestFailure},
	}, f.publisher.Events())
}

func TestEndStateSetter_Mapping(t *testing.T) {
	tests := []struct {
		event domain.Event
		want  domain.EndState
	}{
		{domain.TestFailedEvent{}, domain.EndStateFailedTestFailure},
		{domain.TestExceptionEvent{}, domain.EndStateFailedTestException},
		{domain.SourceCompilationFailedEvent{}, domain.EndStateFailedCompilation},
		{domain.JobTimeoutEvent{}, domain.EndStateTimedOut},
		{domain.JobCompletedEvent{}, domain.EndStateComplete},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			f := newFixture(t, "a.yml")
			setter := NewEndStateSetter(f.store, f.publisher, nil)

			require.NoError(t, setter.Handle(context.Background(), tt.event))

			job, err := f.store.GetJob(context.Background())
			require.NoError(t, err)
			require.NotNil(t, job.EndState)
			assert.Equal(t, tt.want, *job.EndState)
		})
	}
}

func TestEndStateSetter_IgnoresNonTerminalEvents(t *testing.T) {
	f := newFixture(t, "a.yml")
	setter := NewEndStateSetter(f.store, f.publisher, nil)

	require.NoError(t, setter.Handle(context.Background(), domain.TestPassedEvent{}))

	job, err := f.store.GetJob(context.Background())
	require.NoError(t, err)
	assert.False(t, job.HasEnded())
}

func TestMessageFailureSubscriber(t *testing.T) {
	f := newFixture(t, "a.yml")
	sub := NewMessageFailureSubscriber(f.mutator, nil)
	ctx := context.Background()

	e := testutil.CreateWorkerEvent(t, f.store, domain.ScopeJob, domain.OutcomeStarted)
	testutil.SetWorkerEventState(t, f.store, e.SequenceNumber, domain.WorkerEventStateQueued)
	deliver := message.DeliverEvent{SequenceNumber: e.SequenceNumber}
	cause := errors.New("connection refused")

	state := func() domain.WorkerEventState {
		stored, err := f.store.GetWorkerEvent(ctx, e.SequenceNumber)
		require.NoError(t, err)
		return stored.State
	}

	require.NoError(t, sub.Handle(ctx, domain.MessageFailedEvent{Message: deliver, Err: cause, Attempt: 1, WillRetry: true}))
	assert.Equal(t, domain.WorkerEventStateQueued, state(), "retry pending")

	require.NoError(t, sub.Handle(ctx, domain.MessageFailedEvent{Message: message.CompileSource{}, Err: cause}))
	assert.Equal(t, domain.WorkerEventStateQueued, state(), "not a delivery")

	require.NoError(t, sub.Handle(ctx, domain.MessageFailedEvent{Message: deliver, Err: cause, Attempt: 3}))
	assert.Equal(t, domain.WorkerEventStateFailed, state())
}

func TestTestCanceller_Timeout(t *testing.T) {
	f := newFixture(t, "a.yml", "b.yml", "c.yml")
	canceller := NewTestCanceller(f.store, nil)
	ctx := context.Background()

	done := testutil.CreateTest(t, f.store, "a.yml")
	running := testutil.CreateTest(t, f.store, "b.yml")
	awaiting := testutil.CreateTest(t, f.store, "c.yml")
	testutil.SetTestState(t, f.store, done.ID, domain.TestStateComplete)
	testutil.SetTestState(t, f.store, running.ID, domain.TestStateRunning)

	require.NoError(t, canceller.Handle(ctx, domain.JobTimeoutEvent{MaximumDuration: 60}))

	assertTestState(t, f.store, done.ID, domain.TestStateComplete)
	assertTestState(t, f.store, running.ID, domain.TestStateCancelled)
	assertTestState(t, f.store, awaiting.ID, domain.TestStateCancelled)

	state, err := progress.NewExecution(f.store).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, progress.ExecutionCancelled, state)
}

func TestTestCanceller_TestFailure(t *testing.T) {
	f := newFixture(t, "a.yml", "b.yml")
	canceller := NewTestCanceller(f.store, nil)

	failed := testutil.CreateTest(t, f.store, "a.yml")
	awaiting := testutil.CreateTest(t, f.store, "b.yml")
	testutil.SetTestState(t, f.store, failed.ID, domain.TestStateFailed)

	require.NoError(t, canceller.Handle(context.Background(), domain.TestFailedEvent{Test: failed}))

	assertTestState(t, f.store, failed.ID, domain.TestStateFailed)
	assertTestState(t, f.store, awaiting.ID, domain.TestStateCancelled)
}

func TestEventAborter(t *testing.T) {
	f := newFixture(t, "a.yml")
	aborter := NewEventAborter(f.store, f.mutator, nil)
	ctx := context.Background()

	states := []domain.WorkerEventState{
		domain.WorkerEventStateAwaiting,
		domain.WorkerEventStateQueued,
		domain.WorkerEventStateSending,
		domain.WorkerEventStateComplete,
	}
	var seqs []int64
	for _, s := range states {
		e := testutil.CreateWorkerEvent(t, f.store, domain.ScopeTest, domain.OutcomeStarted)
		testutil.SetWorkerEventState(t, f.store, e.SequenceNumber, s)
		seqs = append(seqs, e.SequenceNumber)
	}

	require.NoError(t, aborter.Handle(ctx, domain.TestFailedEvent{}))
	require.NoError(t, aborter.Handle(ctx, domain.JobTimeoutEvent{}))

	want := []domain.WorkerEventState{
		domain.WorkerEventStateAwaiting,
		domain.WorkerEventStateFailed,
		domain.WorkerEventStateFailed,
		domain.WorkerEventStateComplete,
	}
	for i, seq := range seqs {
		e, err := f.store.GetWorkerEvent(ctx, seq)
		require.NoError(t, err)
		assert.Equal(t, want[i], e.State, "event %d", seq)
	}
}

func TestTimeoutScenario(t *testing.T) {
	f := newFixture(t, "a.yml", "b.yml")
	ctx := context.Background()

	running := testutil.CreateTest(t, f.store, "a.yml")
	awaiting := testutil.CreateTest(t, f.store, "b.yml")
	testutil.SetTestState(t, f.store, running.ID, domain.TestStateRunning)
	testutil.CreateWorkerEvent(t, f.store, domain.ScopeJob, domain.OutcomeTimeOut)

	require.NoError(t, NewTestCanceller(f.store, nil).Handle(ctx, domain.JobTimeoutEvent{}))

	assertTestState(t, f.store, running.ID, domain.TestStateCancelled)
	assertTestState(t, f.store, awaiting.ID, domain.TestStateCancelled)

	app := progress.NewApplication(f.store)
	execution, err := app.Execution().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, progress.ExecutionCancelled, execution)

	state, err := app.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, progress.ApplicationTimedOut, state)
}

func assertTestState(t *testing.T, s *store.Store, id int64, want domain.TestState) {
	t.Helper()
	test, err := s.GetTest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, want, test.State, "test %d", id)
}
