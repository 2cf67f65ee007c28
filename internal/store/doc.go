// Package store provides SQLite-backed persistence for the worker's
// entities: the job, its sources, compiled tests and worker events.
//
// The store is a queryable repository, not a state machine. Progress is
// derived by callers from the counts it exposes.
//
// # Critical Patterns
//
// Singleton job:
//   - jobs.id is constrained to 1, so at most one job can exist
//
// Guarded updates:
//   - Test and WorkerEvent state changes are compare-and-set
//     (UPDATE ... WHERE state = <expected>), so duplicate or concurrent
//     triggers apply at most once
//   - The job end state is only written while it is NULL
//
// Ordering:
//   - WorkerEvent sequence numbers are assigned inside the insert
//     transaction, monotonic and gap-free
//   - Tests are ordered by position, sources by ingestion order
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
