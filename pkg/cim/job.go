package cim

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// JobState is the JobState property of a concrete job.
type JobState int

const (
	JobNew          JobState = 2
	JobStarting     JobState = 3
	JobRunning      JobState = 4
	JobSuspended    JobState = 5
	JobShuttingDown JobState = 6
	JobCompleted    JobState = 7
	JobTerminated   JobState = 8
	JobKilled       JobState = 9
	JobException    JobState = 10
	JobService      JobState = 11
	JobQueryPending JobState = 12
)

func (s JobState) String() string {
	switch s {
	case JobNew:
		return "New"
	case JobStarting:
		return "Starting"
	case JobRunning:
		return "Running"
	case JobSuspended:
		return "Suspended"
	case JobShuttingDown:
		return "Shutting Down"
	case JobCompleted:
		return "Completed"
	case JobTerminated:
		return "Terminated"
	case JobKilled:
		return "Killed"
	case JobException:
		return "Exception"
	case JobService:
		return "Service"
	case JobQueryPending:
		return "Query Pending"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Terminal reports whether the job will not change state any more.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobTerminated, JobKilled, JobException:
		return true
	}
	return false
}

// JobClasses are the classes a job reference may point at.
var JobClasses = []string{"Msvm_ConcreteJob", "Msvm_StorageJob"}

// Job is an asynchronous remote operation. Only the management host
// changes it; the engine reads and re-fetches it.
type Job struct {
	ManagedObject
}

// AsJob wraps obj as a Job after checking its class.
func AsJob(obj ManagedObject) (*Job, error) {
	if err := CheckClass(obj, JobClasses...); err != nil {
		return nil, err
	}
	return &Job{ManagedObject: obj}, nil
}

// State reads the current JobState.
func (j *Job) State() (JobState, error) {
	v, err := Require(j, "JobState")
	if err != nil {
		return 0, err
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("job state: %w", err)
	}
	return JobState(n), nil
}

// failure builds the error reported for a job that ended in state.
func (j *Job) failure(state JobState) *JobError {
	code, _ := GetInt(j, "ErrorCode")
	return &JobError{
		Job:              j.Path(),
		State:            state,
		ErrorCode:        code,
		JobStatus:        GetString(j, "JobStatus"),
		ErrorDescription: GetString(j, "ErrorDescription"),
	}
}

// WaitJob polls job until it reaches a terminal state. The state is read,
// and while it is not terminal the job is re-fetched, the engine sleeps for
// PollInterval, and the state is read again.
//
// Without a JobTimeout or a context deadline the wait is unbounded. When
// either expires the wait fails with ErrTimeout; a cancelled context ends
// it with the context's error.
func (e *Engine) WaitJob(ctx context.Context, job *Job) error {
	if e.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	state, err := e.wait(ctx, job)
	elapsed := time.Since(start)
	if err == nil && state != JobCompleted {
		err = job.failure(state)
	}
	e.observer().JobFinished(state, elapsed, err)
	return err
}

// WaitJob waits for job with the Default engine.
func WaitJob(ctx context.Context, job *Job) error {
	return Default.WaitJob(ctx, job)
}

func (e *Engine) wait(ctx context.Context, job *Job) (JobState, error) {
	log := e.logger().With("job", job.Path())
	interval := e.pollInterval()

	state, err := job.State()
	if err != nil {
		return 0, err
	}
	e.observer().JobPolled(job.ClassName(), state)
	log.Debug("job state", "state", state.String())

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for !state.Terminal() {
		if err := job.Reload(ctx); err != nil {
			if ctx.Err() != nil {
				return state, waitAborted(ctx, job, err)
			}
			return state, fmt.Errorf("reload job %s: %w", job.Path(), err)
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return state, waitAborted(ctx, job, ctx.Err())
		case <-timer.C:
		}

		prev := state
		state, err = job.State()
		if err != nil {
			return prev, err
		}
		e.observer().JobPolled(job.ClassName(), state)
		if state != prev {
			log.Debug("job state changed", "from", prev.String(), "to", state.String())
		}
	}
	return state, nil
}

func waitAborted(ctx context.Context, job *Job, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, job.Path(), cause)
	}
	return fmt.Errorf("wait for job %s: %w", job.Path(), cause)
}
