package cim

import "time"

// Outcome is the state an invocation result ends in once evaluated.
type Outcome int

const (
	Unchecked Outcome = iota
	CheckedOK
	CheckedJobStarted
	CheckedFailed
)

func (o Outcome) String() string {
	switch o {
	case Unchecked:
		return "unchecked"
	case CheckedOK:
		return "ok"
	case CheckedJobStarted:
		return "job_started"
	case CheckedFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Observer receives engine events. Implementations must be safe for
// concurrent use when the engine is driven from several goroutines.
type Observer interface {
	InvocationFinished(method string, elapsed time.Duration, err error)
	ResultEvaluated(code Code, outcome Outcome)
	JobPolled(class string, state JobState)
	JobFinished(state JobState, elapsed time.Duration, err error)
	TraversalFinished(depth, paths int, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) InvocationFinished(string, time.Duration, error) {}
func (NopObserver) ResultEvaluated(Code, Outcome)                   {}
func (NopObserver) JobPolled(string, JobState)                      {}
func (NopObserver) JobFinished(JobState, time.Duration, error)      {}
func (NopObserver) TraversalFinished(int, int, error)               {}
