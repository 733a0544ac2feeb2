package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/JonMunkholm/wqingest/internal/logging"
	"github.com/JonMunkholm/wqingest/internal/notify"
	"github.com/JonMunkholm/wqingest/internal/watch"
)

// ErrInboxLost is returned by Worker.Run when the inbox folder disappears.
var ErrInboxLost = errors.New("inbox folder lost")

// Source delivers file paths and watcher errors; satisfied by *watch.Inbox.
type Source interface {
	Events() <-chan string
	Errors() <-chan error
}

// Processor runs the pipeline over one file.
type Processor interface {
	Process(ctx context.Context, path string) RunResult
}

// WorkerState is the worker's lifecycle state.
type WorkerState int32

const (
	WorkerWatching WorkerState = iota
	WorkerStopping
	WorkerStopped
	WorkerInboxLost
)

func (s WorkerState) String() string {
	switch s {
	case WorkerWatching:
		return "watching"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	case WorkerInboxLost:
		return "inbox-lost"
	default:
		return "unknown"
	}
}

// Worker consumes paths one at a time, in arrival order.
//
// Each path waits out the settle delay and then runs through the pipeline to
// completion. Cancelling the Run context stops the worker between files; a
// file already in progress finishes first.
type Worker struct {
	src      Source
	proc     Processor
	notifier Notifier
	settle   time.Duration
	sleep    func(time.Duration)

	state     atomic.Int32
	processed atomic.Int64
}

// NewWorker creates a worker. notifier is used only for the inbox-lost alert.
func NewWorker(src Source, proc Processor, notifier Notifier, settle time.Duration) *Worker {
	return &Worker{
		src:      src,
		proc:     proc,
		notifier: notifier,
		settle:   settle,
		sleep:    time.Sleep,
	}
}

// State returns the current state.
func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

// Processed returns the number of files handed to the pipeline so far.
func (w *Worker) Processed() int64 { return w.processed.Load() }

func (w *Worker) setState(s WorkerState) { w.state.Store(int32(s)) }

// Run blocks until ctx is cancelled, the source closes, or the inbox is lost.
func (w *Worker) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	w.setState(WorkerWatching)
	log.Info("worker waiting for files", "settle_delay", w.settle)

	events, errs := w.src.Events(), w.src.Errors()
	for {
		if ctx.Err() != nil {
			return w.stop(ctx)
		}

		select {
		case <-ctx.Done():
			return w.stop(ctx)

		case path, ok := <-events:
			if !ok {
				return w.stop(ctx)
			}
			w.handle(ctx, path)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, watch.ErrInboxRemoved) {
				w.setState(WorkerInboxLost)
				log.Error("inbox folder lost, worker exiting", "error", err)
				if w.notifier != nil {
					w.notifier.Notify(context.WithoutCancel(ctx), notify.Error,
						fmt.Sprintf("The inbox folder is gone; no further files will be processed.\n\nDetail: %v", err))
				}
				return errors.Wrap(ErrInboxLost, err.Error())
			}
			log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, path string) {
	logging.FromContext(ctx).Info("file appeared", "path", path)
	if w.settle > 0 {
		w.sleep(w.settle)
	}
	w.proc.Process(context.WithoutCancel(ctx), path)
	w.processed.Add(1)
}

func (w *Worker) stop(ctx context.Context) error {
	w.setState(WorkerStopping)
	logging.FromContext(ctx).Info("worker stopping")
	w.setState(WorkerStopped)
	return nil
}
