// Package jobs starts a downstream scheduled job and waits for it to finish.
//
// The Orchestrator drives a small state machine over a Controller:
//
//	Idle -> Running -> Succeeded
//	                -> Failed
//	                -> TimedOut
//
// After the start command it sleeps one poll interval, asks the controller
// whether the job is still running, and repeats until the job is idle or the
// accumulated wait exceeds MaxWait. A timeout is final; the job is never
// restarted. Once idle, the job's last recorded result decides between
// Succeeded and Failed; anything but an explicit success counts as failure.
package jobs

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/JonMunkholm/wqingest/internal/logging"
)

var (
	// ErrJobTimeout means the job was still running when the wait ceiling was reached.
	ErrJobTimeout = errors.New("job did not finish in time")
	// ErrJobFailed means the job returned to idle with a non-success result.
	ErrJobFailed = errors.New("job finished but failed")
	// ErrUnknownJob means the controller has no enabled job with that identifier.
	ErrUnknownJob = errors.New("unknown or disabled job")
)

// State is the orchestrator's view of a job run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateTimedOut
	StateFailed
	StateSucceeded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTimedOut:
		return "timed-out"
	case StateFailed:
		return "failed"
	case StateSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether the run has finished, one way or another.
func (s State) Terminal() bool {
	return s == StateTimedOut || s == StateFailed || s == StateSucceeded
}

// Result is the last-run outcome recorded by the job scheduler.
type Result int

const (
	ResultUnknown Result = iota
	ResultSucceeded
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultSucceeded:
		return "succeeded"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Status is one observation of a job.
type Status struct {
	Running    bool
	LastResult Result
}

// Controller is the job-control pair offered by the owning database system.
type Controller interface {
	StartJob(ctx context.Context, jobID string) error
	JobStatus(ctx context.Context, jobID string) (Status, error)
}

// Run records one invocation of a job.
type Run struct {
	JobID   string        `json:"jobId"`
	State   State         `json:"state"`
	Result  Result        `json:"result"`
	Elapsed time.Duration `json:"elapsed"`
	Polls   int           `json:"polls"`
}

// Orchestrator starts jobs and waits for them.
type Orchestrator struct {
	ctrl         Controller
	pollInterval time.Duration
	maxWait      time.Duration
	sleep        func(time.Duration)
}

// NewOrchestrator creates an orchestrator polling every pollInterval and
// giving up after maxWait of accumulated waiting.
func NewOrchestrator(ctrl Controller, pollInterval, maxWait time.Duration) *Orchestrator {
	return &Orchestrator{
		ctrl:         ctrl,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		sleep:        time.Sleep,
	}
}

// Run starts jobID and blocks until it reaches a terminal state.
//
// The wait is bounded by maxWait, not by ctx; ctx is only passed to the
// controller's queries. The returned Run is filled in even on error.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (Run, error) {
	log := logging.WithFields(ctx, "job", jobID)
	run := Run{JobID: jobID, State: StateIdle}

	for {
		switch run.State {
		case StateIdle:
			if err := o.ctrl.StartJob(ctx, jobID); err != nil {
				return run, errors.Wrapf(err, "start job %s", jobID)
			}
			log.Info("job started", "poll_interval", o.pollInterval, "max_wait", o.maxWait)
			run.State = StateRunning

		case StateRunning:
			o.sleep(o.pollInterval)
			run.Elapsed += o.pollInterval
			run.Polls++

			st, err := o.ctrl.JobStatus(ctx, jobID)
			if err != nil {
				return run, errors.Wrapf(err, "poll job %s", jobID)
			}
			switch {
			case st.Running && run.Elapsed > o.maxWait:
				run.State = StateTimedOut
			case st.Running:
				log.Debug("job still running", "elapsed", run.Elapsed)
			default:
				run.Result = st.LastResult
				if st.LastResult == ResultSucceeded {
					run.State = StateSucceeded
				} else {
					run.State = StateFailed
				}
			}

		case StateTimedOut:
			log.Error("job timed out", "elapsed", run.Elapsed, "polls", run.Polls)
			return run, errors.Wrapf(ErrJobTimeout, "job %s still running after %s", jobID, run.Elapsed)

		case StateFailed:
			log.Error("job failed", "result", run.Result, "elapsed", run.Elapsed)
			return run, errors.Wrapf(ErrJobFailed, "job %s finished with result %s", jobID, run.Result)

		case StateSucceeded:
			log.Info("job succeeded", "elapsed", run.Elapsed, "polls", run.Polls)
			return run, nil
		}
	}
}
