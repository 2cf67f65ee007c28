package domain

import "time"

// EndState is the job's latched terminal outcome.
type EndState string

const (
	EndStateComplete            EndState = "complete"
	EndStateTimedOut            EndState = "timed_out"
	EndStateFailedCompilation   EndState = "failed_compilation"
	EndStateFailedTestFailure   EndState = "failed_test_failure"
	EndStateFailedTestException EndState = "failed_test_exception"
)

// Job is the single unit of work a worker instance accepts.
// At most one Job exists at a time.
type Job struct {
	Label            string    `json:"label"`
	EventDeliveryURL string    `json:"event_delivery_url"`
	MaximumDuration  int64     `json:"maximum_duration_in_seconds"`
	TestPaths        []string  `json:"test_paths"`
	EndState         *EndState `json:"end_state"`
	CreatedAt        time.Time `json:"created_at"`
}

// HasEnded reports whether the job's end state has been latched.
func (j Job) HasEnded() bool {
	return j.EndState != nil
}

// MaximumDurationElapsed reports whether the job has run for at least its
// maximum duration as of now.
func (j Job) MaximumDurationElapsed(now time.Time) bool {
	return now.Sub(j.CreatedAt) >= time.Duration(j.MaximumDuration)*time.Second
}
