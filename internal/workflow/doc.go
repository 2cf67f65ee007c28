// Package workflow reacts to domain events by dispatching the next unit of
// work on each lane and by recording the consequences of terminal outcomes.
//
// Lanes keep no record of what is in flight. Every trigger re-runs the
// "what is next" query against the store, so a duplicate trigger selects
// the same item again, or nothing, and the message handlers' state guards
// turn the second dispatch into a no-op.
//
// Components here are events.Subscribers. The subscription order that ties
// them together lives in internal/app.
package workflow
