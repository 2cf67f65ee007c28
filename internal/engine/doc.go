// Package engine implements the worker's asynchronous message bus.
//
// Every unit of work (compile one source, execute one test, deliver one
// worker event, check the timeout) is a Message dispatched to the bus and
// processed by one of a fixed pool of workers.
//
// ARCHITECTURE:
//
// Unbounded FIFO:
// Handlers dispatch follow-on messages while running, so enqueueing never
// blocks. Delayed messages wait in timers and join the FIFO when due.
//
// Processing Flow:
//  1. Dispatch stamps an Envelope with a UUIDv7 ID and a dispatch seq
//  2. A worker dequeues it and runs the registered Handler to completion
//  3. On error, every FailureListener is told whether a retry will follow
//  4. Retries are rescheduled with exponential backoff until
//     RetryPolicy.MaxAttempts is reached
//
// Errors wrapped with Unrecoverable, and messages without a handler, are
// never retried.
//
// Ordering: messages are dequeued in FIFO order, but with more than one
// worker they may complete out of order. Lanes that need sequencing gate
// their own dispatches.
package engine
