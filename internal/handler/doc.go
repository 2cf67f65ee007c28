// Package handler implements the bus message handlers: compiling a source,
// executing a test, delivering a WorkerEvent, and the deferred timeout and
// job-completed checks.
//
// Handlers re-check their preconditions against the store when they run,
// not when they were dispatched. A message that finds nothing left to do
// returns nil. Returned errors are retried by the bus.
package handler
