// Package domain defines the worker's entities and the domain events that
// flow between its components.
//
// This package contains type definitions only. All other internal packages
// import domain; domain imports nothing internal.
//
// Key design constraints:
//   - Progress is never stored on an entity; it is derived from counts
//   - WorkerEvent ordering uses SequenceNumber, never timestamps
//   - All JSON tags use snake_case
package domain
