// Package callback turns domain events into persisted WorkerEvents and
// delivers them.
//
// Three parts:
//   - Factory maps a domain event to a WorkerEvent through an ordered table
//     of EventHandlers. The first handler that accepts the event wins;
//     events no handler accepts are ignored.
//   - Mutator applies delivery-state transitions. Illegal transitions are
//     no-ops, never errors.
//   - Sender POSTs a WorkerEvent to the job's delivery URL.
package callback
