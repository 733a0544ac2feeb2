package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/wqingest/internal/notify"
	"github.com/JonMunkholm/wqingest/internal/watch"
)

type chanSource struct {
	events chan string
	errs   chan error
}

func newChanSource() *chanSource {
	return &chanSource{events: make(chan string, 16), errs: make(chan error, 1)}
}

func (s *chanSource) Events() <-chan string { return s.events }
func (s *chanSource) Errors() <-chan error  { return s.errs }

// recordingProcessor records paths and the context state it saw.
type recordingProcessor struct {
	mu        sync.Mutex
	paths     []string
	cancelled []bool
	hook      func(path string)
}

func (p *recordingProcessor) Process(ctx context.Context, path string) RunResult {
	if p.hook != nil {
		p.hook(path)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	p.cancelled = append(p.cancelled, ctx.Err() != nil)
	return RunResult{Path: path}
}

func (p *recordingProcessor) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func runWorker(t *testing.T, w *Worker, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
		return nil
	}
}

func TestWorker_ProcessesInArrivalOrder(t *testing.T) {
	src := newChanSource()
	proc := &recordingProcessor{}
	w := NewWorker(src, proc, nil, 10*time.Second)

	var slept []time.Duration
	var mu sync.Mutex
	w.sleep = func(d time.Duration) {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
	}

	for _, p := range []string{"/in/a.csv", "/in/b.csv", "/in/c.csv"} {
		src.events <- p
	}
	close(src.events)

	err := waitDone(t, runWorker(t, w, context.Background()))
	require.NoError(t, err)

	assert.Equal(t, []string{"/in/a.csv", "/in/b.csv", "/in/c.csv"}, proc.seen())
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second}, slept)
	assert.EqualValues(t, 3, w.Processed())
	assert.Equal(t, WorkerStopped, w.State())
}

func TestWorker_ShutdownBetweenFiles(t *testing.T) {
	src := newChanSource()
	ctx, cancel := context.WithCancel(context.Background())

	proc := &recordingProcessor{}
	proc.hook = func(string) { cancel() } // shutdown arrives mid-run
	w := NewWorker(src, proc, nil, 0)

	src.events <- "/in/a.csv"
	src.events <- "/in/b.csv"

	err := waitDone(t, runWorker(t, w, ctx))
	require.NoError(t, err)

	assert.Equal(t, []string{"/in/a.csv"}, proc.seen(), "second file not started after shutdown")
	assert.Equal(t, []bool{false}, proc.cancelled, "in-flight run is not cancelled")
	assert.Equal(t, WorkerStopped, w.State())
}

func TestWorker_InboxLost(t *testing.T) {
	src := newChanSource()
	notifier := &fakeNotifier{}
	w := NewWorker(src, &recordingProcessor{}, notifier, 0)

	src.errs <- errors.Wrap(watch.ErrInboxRemoved, "/in")

	err := waitDone(t, runWorker(t, w, context.Background()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInboxLost))
	assert.Equal(t, WorkerInboxLost, w.State())

	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.Error, sent[0].category)
}

func TestWorker_NonFatalWatcherErrors(t *testing.T) {
	src := newChanSource()
	proc := &recordingProcessor{}
	w := NewWorker(src, proc, &fakeNotifier{}, 0)

	src.errs <- errors.New("queue overflow")
	src.events <- "/in/a.csv"

	ctx, cancel := context.WithCancel(context.Background())
	proc.hook = func(string) { cancel() }

	err := waitDone(t, runWorker(t, w, ctx))
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/a.csv"}, proc.seen())
}

func TestWorkerState_String(t *testing.T) {
	assert.Equal(t, "watching", WorkerWatching.String())
	assert.Equal(t, "inbox-lost", WorkerInboxLost.String())
}
