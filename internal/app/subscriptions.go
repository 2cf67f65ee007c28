package app

import (
	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/events"
)

type components struct {
	factory      events.Subscriber
	compilation  events.Subscriber
	execution    events.Subscriber
	application  events.Subscriber
	delivery     events.Subscriber
	endState     events.Subscriber
	failures     events.Subscriber
	canceller    events.Subscriber
	eventAborter events.Subscriber
}

type subscription struct {
	event      domain.EventName
	name       string
	subscriber events.Subscriber
}

// Subscriber names, as reported by events.Dispatcher.Subscribers.
const (
	subFactory      = "callback_factory"
	subCompilation  = "compilation_lane"
	subExecution    = "execution_lane"
	subApplication  = "application_lane"
	subDelivery     = "delivery_lane"
	subEndState     = "end_state_setter"
	subFailures     = "message_failure"
	subCanceller    = "test_canceller"
	subEventAborter = "event_aborter"
)

// subscriptions is the ordered subscriber table.
//
// The factory runs first for every reportable event so the WorkerEvent for
// an occurrence is created before any event it causes. On JobTimeout the
// aborter runs before the factory so the job/time_out event itself is not
// aborted.
func subscriptions(c components) []subscription {
	sub := func(event domain.EventName, name string, s events.Subscriber) subscription {
		return subscription{event: event, name: name, subscriber: s}
	}
	return []subscription{
		sub(domain.EventJobReady, subFactory, c.factory),
		sub(domain.EventJobReady, subCompilation, c.compilation),

		sub(domain.EventSourceCompilationStarted, subFactory, c.factory),
		sub(domain.EventSourceCompilationPassed, subFactory, c.factory),
		sub(domain.EventSourceCompilationPassed, subCompilation, c.compilation),
		sub(domain.EventSourceCompilationFailed, subFactory, c.factory),
		sub(domain.EventSourceCompilationFailed, subApplication, c.application),
		sub(domain.EventSourceCompilationFailed, subEndState, c.endState),

		sub(domain.EventJobCompiled, subFactory, c.factory),
		sub(domain.EventJobCompiled, subExecution, c.execution),
		sub(domain.EventExecutionStarted, subFactory, c.factory),

		sub(domain.EventTestStarted, subFactory, c.factory),
		sub(domain.EventStepPassed, subFactory, c.factory),
		sub(domain.EventStepFailed, subFactory, c.factory),
		sub(domain.EventTestPassed, subFactory, c.factory),
		sub(domain.EventTestPassed, subExecution, c.execution),
		sub(domain.EventTestPassed, subApplication, c.application),
		sub(domain.EventTestFailed, subFactory, c.factory),
		sub(domain.EventTestFailed, subApplication, c.application),
		sub(domain.EventTestFailed, subCanceller, c.canceller),
		sub(domain.EventTestFailed, subEndState, c.endState),
		sub(domain.EventTestException, subFactory, c.factory),
		sub(domain.EventTestException, subApplication, c.application),
		sub(domain.EventTestException, subCanceller, c.canceller),
		sub(domain.EventTestException, subEndState, c.endState),

		sub(domain.EventExecutionCompleted, subFactory, c.factory),
		sub(domain.EventJobCompleted, subFactory, c.factory),
		sub(domain.EventJobCompleted, subEndState, c.endState),
		sub(domain.EventJobFailed, subFactory, c.factory),

		sub(domain.EventJobTimeout, subEventAborter, c.eventAborter),
		sub(domain.EventJobTimeout, subFactory, c.factory),
		sub(domain.EventJobTimeout, subCanceller, c.canceller),
		sub(domain.EventJobTimeout, subEndState, c.endState),

		sub(domain.EventWorkerEventCreated, subDelivery, c.delivery),
		sub(domain.EventMessageFailed, subFailures, c.failures),
	}
}
