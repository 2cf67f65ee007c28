package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startBus runs b until the test ends.
func startBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

type recorder struct {
	mu       sync.Mutex
	handled  []int
	failures []Failure
}

func (r *recorder) handledCopy() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.handled...)
}

func (r *recorder) failuresCopy() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.failures...)
}

func (r *recorder) listen(ctx context.Context, f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Delay: time.Millisecond, Multiplier: 2}
}

func TestBus_HandlesInFIFOOrder(t *testing.T) {
	b := New()
	rec := &recorder{}
	b.Register("m", HandlerFunc(func(ctx context.Context, msg Message) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.handled = append(rec.handled, msg.(testMessage).n)
		return nil
	}))
	startBus(t, b)

	for i := 1; i <= 5; i++ {
		require.NoError(t, b.Dispatch(context.Background(), testMessage{name: "m", n: i}))
	}

	require.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rec.handledCopy())
}

func TestBus_DelayedDispatch(t *testing.T) {
	b := New()
	handled := make(chan time.Time, 1)
	b.Register("m", HandlerFunc(func(ctx context.Context, msg Message) error {
		handled <- time.Now()
		return nil
	}))
	startBus(t, b)

	start := time.Now()
	require.NoError(t, b.Dispatch(context.Background(), testMessage{name: "m"}, WithDelay(30*time.Millisecond)))
	assert.Equal(t, int64(1), b.Pending())

	select {
	case at := <-handled:
		assert.GreaterOrEqual(t, at.Sub(start), 30*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("delayed message was never handled")
	}
}

func TestBus_RetriesUntilSuccess(t *testing.T) {
	b := New(WithRetryPolicy(fastRetry(3)))
	rec := &recorder{}
	b.OnFailure(rec.listen)

	var attempts int
	b.Register("m", HandlerFunc(func(ctx context.Context, msg Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}))
	startBus(t, b)

	require.NoError(t, b.Dispatch(context.Background(), testMessage{name: "m"}))
	require.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, time.Millisecond)

	assert.Equal(t, 3, attempts)
	failures := rec.failuresCopy()
	require.Len(t, failures, 2)
	assert.True(t, failures[0].WillRetry)
	assert.Equal(t, 1, failures[0].Envelope.Attempt)
	assert.True(t, failures[1].WillRetry)
	assert.Equal(t, 2, failures[1].Envelope.Attempt)
}

func TestBus_GivesUpAfterMaxAttempts(t *testing.T) {
	b := New(WithRetryPolicy(fastRetry(2)))
	rec := &recorder{}
	b.OnFailure(rec.listen)
	b.Register("m", HandlerFunc(func(ctx context.Context, msg Message) error {
		return errors.New("down")
	}))
	startBus(t, b)

	require.NoError(t, b.Dispatch(context.Background(), testMessage{name: "m"}))
	require.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, time.Millisecond)

	failures := rec.failuresCopy()
	require.Len(t, failures, 2)
	assert.True(t, failures[0].WillRetry)
	assert.False(t, failures[1].WillRetry)
}

func TestBus_UnrecoverableIsNotRetried(t *testing.T) {
	b := New(WithRetryPolicy(fastRetry(5)))
	rec := &recorder{}
	b.OnFailure(rec.listen)
	b.Register("m", HandlerFunc(func(ctx context.Context, msg Message) error {
		return Unrecoverable(errors.New("malformed"))
	}))
	startBus(t, b)

	require.NoError(t, b.Dispatch(context.Background(), testMessage{name: "m"}))
	require.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, time.Millisecond)

	failures := rec.failuresCopy()
	require.Len(t, failures, 1)
	assert.False(t, failures[0].WillRetry)
}

func TestBus_NoHandler(t *testing.T) {
	b := New()
	rec := &recorder{}
	b.OnFailure(rec.listen)
	startBus(t, b)

	require.NoError(t, b.Dispatch(context.Background(), testMessage{name: "unknown"}))
	require.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, time.Millisecond)

	failures := rec.failuresCopy()
	require.Len(t, failures, 1)
	assert.True(t, IsNoHandler(failures[0].Err))
	assert.False(t, failures[0].WillRetry)
}

func TestBus_DispatchAfterStop(t *testing.T) {
	b := New()
	b.Stop()

	err := b.Dispatch(context.Background(), testMessage{name: "m"})
	assert.ErrorIs(t, err, ErrBusClosed)

	err = b.Dispatch(context.Background(), testMessage{name: "m"}, WithDelay(time.Second))
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.Equal(t, int64(0), b.Pending())
}

func TestBus_StopCancelsDelayedMessages(t *testing.T) {
	b := New(WithIDGenerator(NewFixedGenerator("msg-1")))
	require.NoError(t, b.Dispatch(context.Background(), testMessage{name: "m"}, WithDelay(time.Hour)))
	assert.Equal(t, int64(1), b.Pending())

	b.Stop()
	assert.Equal(t, int64(0), b.Pending())
}

func TestBus_RunReturnsOnStop(t *testing.T) {
	b := New(WithConcurrency(3))
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	b.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, Delay: time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.True(t, p.ShouldRetry(3, errors.New("x")))
	assert.False(t, p.ShouldRetry(4, errors.New("x")))
}

type countingObserver struct {
	mu     sync.Mutex
	errors int
	ok     int
}

func (o *countingObserver) MessageHandled(name string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.errors++
	} else {
		o.ok++
	}
}

func TestBus_Observer(t *testing.T) {
	obs := &countingObserver{}
	b := New(WithObserver(obs), WithRetryPolicy(fastRetry(1)))
	b.Register("ok", HandlerFunc(func(context.Context, Message) error { return nil }))
	b.Register("bad", HandlerFunc(func(context.Context, Message) error { return errors.New("x") }))
	startBus(t, b)

	require.NoError(t, b.Dispatch(context.Background(), testMessage{name: "ok"}))
	require.NoError(t, b.Dispatch(context.Background(), testMessage{name: "bad"}))
	require.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, time.Millisecond)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.ok)
	assert.Equal(t, 1, obs.errors)
}
