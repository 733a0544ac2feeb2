package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedController replays a fixed sequence of statuses.
type scriptedController struct {
	startErr error
	statuses []Status
	pollErr  error

	starts int
	polls  int
}

func (c *scriptedController) StartJob(context.Context, string) error {
	c.starts++
	return c.startErr
}

func (c *scriptedController) JobStatus(context.Context, string) (Status, error) {
	if c.pollErr != nil {
		return Status{}, c.pollErr
	}
	i := c.polls
	c.polls++
	if i >= len(c.statuses) {
		return c.statuses[len(c.statuses)-1], nil
	}
	return c.statuses[i], nil
}

func newTestOrchestrator(ctrl Controller, poll, max time.Duration) (*Orchestrator, *time.Duration) {
	o := NewOrchestrator(ctrl, poll, max)
	var slept time.Duration
	o.sleep = func(d time.Duration) { slept += d }
	return o, &slept
}

func running() Status { return Status{Running: true} }

func TestOrchestrator_Succeeds(t *testing.T) {
	ctrl := &scriptedController{statuses: []Status{
		running(),
		running(),
		{LastResult: ResultSucceeded},
	}}
	o, slept := newTestOrchestrator(ctrl, time.Second, time.Minute)

	run, err := o.Run(context.Background(), "refresh")
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, run.State)
	assert.Equal(t, ResultSucceeded, run.Result)
	assert.Equal(t, 3, run.Polls)
	assert.Equal(t, 3*time.Second, run.Elapsed)
	assert.Equal(t, 3*time.Second, *slept)
	assert.Equal(t, 1, ctrl.starts)
}

func TestOrchestrator_TimesOut(t *testing.T) {
	ctrl := &scriptedController{statuses: []Status{running()}}
	o, slept := newTestOrchestrator(ctrl, time.Second, 3*time.Second)

	run, err := o.Run(context.Background(), "refresh")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrJobTimeout))
	assert.False(t, errors.Is(err, ErrJobFailed))
	assert.Equal(t, StateTimedOut, run.State)
	assert.Equal(t, 4, run.Polls, "a poll at exactly MaxWait still waits")
	assert.Equal(t, 4*time.Second, *slept)
	assert.Equal(t, 1, ctrl.starts, "a timed-out job is never restarted")
}

func TestOrchestrator_FinishedButFailed(t *testing.T) {
	tests := []struct {
		name   string
		result Result
	}{
		{"explicit failure", ResultFailed},
		{"unknown result", ResultUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &scriptedController{statuses: []Status{running(), {LastResult: tt.result}}}
			o, _ := newTestOrchestrator(ctrl, time.Second, time.Minute)

			run, err := o.Run(context.Background(), "refresh")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrJobFailed))
			assert.False(t, errors.Is(err, ErrJobTimeout))
			assert.Equal(t, StateFailed, run.State)
			assert.Equal(t, tt.result, run.Result)
		})
	}
}

func TestOrchestrator_FinishesOnLastPoll(t *testing.T) {
	// Idle observed exactly at the ceiling still counts as finished.
	ctrl := &scriptedController{statuses: []Status{running(), {LastResult: ResultSucceeded}}}
	o, _ := newTestOrchestrator(ctrl, time.Second, 2*time.Second)

	run, err := o.Run(context.Background(), "refresh")
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, run.State)
}

func TestOrchestrator_StartError(t *testing.T) {
	ctrl := &scriptedController{startErr: ErrUnknownJob}
	o, slept := newTestOrchestrator(ctrl, time.Second, time.Minute)

	run, err := o.Run(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownJob))
	assert.Equal(t, StateIdle, run.State)
	assert.Zero(t, *slept)
}

func TestOrchestrator_PollError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	ctrl := &scriptedController{pollErr: boom}
	o, _ := newTestOrchestrator(ctrl, time.Second, time.Minute)

	run, err := o.Run(context.Background(), "refresh")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, StateRunning, run.State)
	assert.Equal(t, 1, run.Polls)
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, StateIdle.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateTimedOut.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateSucceeded.Terminal())
}

func TestState_MarshalText(t *testing.T) {
	b, err := StateTimedOut.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "timed-out", string(b))

	b, err = ResultSucceeded.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "succeeded", string(b))
}
