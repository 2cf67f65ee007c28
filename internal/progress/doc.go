// Package progress derives the worker's progress states from repository
// counts.
//
// Nothing here is stored. Every Get recomputes the state from the current
// counts, so the repository stays the single source of truth.
//
// The Application calculator composes the others in a fixed priority order:
//
//	awaiting_job > timed_out > awaiting_sources > compiling > executing >
//	completing_event_delivery > complete
package progress
