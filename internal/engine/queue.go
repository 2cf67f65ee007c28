package engine

import "sync"

// messageQueue is a thread-safe unbounded FIFO of envelopes.
//
// Handlers dispatch follow-on messages while they run, so Enqueue never
// blocks. Workers wait on the signal channel for context-aware dequeuing.
type messageQueue struct {
	mu        sync.Mutex
	envelopes []Envelope
	closed    bool
	signal    chan struct{} // Signals availability (buffered, size 1)
}

func newMessageQueue() *messageQueue {
	return &messageQueue{
		envelopes: make([]Envelope, 0, 64),
		signal:    make(chan struct{}, 1),
	}
}

// Enqueue adds an envelope to the back of the queue.
// Returns false if the queue is closed.
func (q *messageQueue) Enqueue(env Envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.envelopes = append(q.envelopes, env)
	q.notify()
	return true
}

// TryDequeue removes the front envelope without blocking.
// If envelopes remain afterwards another waiter is signalled, so several
// workers can drain one queue.
func (q *messageQueue) TryDequeue() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.envelopes) == 0 {
		return Envelope{}, false
	}

	env := q.envelopes[0]
	// Clear the slot so the message can be collected.
	q.envelopes[0] = Envelope{}

	if len(q.envelopes) == 1 {
		q.envelopes = q.envelopes[:0]
	} else {
		q.envelopes = q.envelopes[1:]
		if !q.closed {
			q.notify()
		}
	}

	return env, true
}

// notify signals without blocking; the buffer of 1 coalesces signals.
// Caller must hold q.mu and the queue must be open.
func (q *messageQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Wait returns a channel that signals when envelopes may be available.
// The channel is closed when the queue closes.
func (q *messageQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.envelopes)
}

// Drained reports whether the queue is closed and empty.
func (q *messageQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.envelopes) == 0
}

// Close stops accepting envelopes and wakes every waiter.
func (q *messageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
