// Package watch reports files that appear in the inbox folder.
//
// The Inbox is deliberately dumb: it forwards the absolute path of every
// regular file created in one folder (non-recursive) and nothing else. Order
// is the order fsnotify reports the events in.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// ErrInboxRemoved is sent on Errors when the watched folder itself is
// removed or renamed. No further events follow.
var ErrInboxRemoved = errors.New("inbox folder removed")

// Inbox watches one folder for new files.
type Inbox struct {
	dir     string
	watcher *fsnotify.Watcher

	events chan string
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewInbox starts watching dir. Events are buffered up to queueSize.
func NewInbox(dir string, queueSize int) (*Inbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", dir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	if err := w.Add(abs); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "watch %s", abs)
	}

	if queueSize < 1 {
		queueSize = 1
	}
	return &Inbox{
		dir:     abs,
		watcher: w,
		events:  make(chan string, queueSize),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}, nil
}

// Dir returns the absolute inbox path.
func (in *Inbox) Dir() string { return in.dir }

// Events delivers absolute file paths.
func (in *Inbox) Events() <-chan string { return in.events }

// Errors delivers watcher errors. ErrInboxRemoved is fatal; others are not.
func (in *Inbox) Errors() <-chan error { return in.errs }

// Start begins forwarding events. With scanExisting, files already in the
// folder are delivered first, in name order.
func (in *Inbox) Start(scanExisting bool) {
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		if scanExisting {
			in.scan()
		}
		in.loop()
	}()
}

// Close stops watching. Safe to call more than once.
func (in *Inbox) Close() error {
	var err error
	in.closeOnce.Do(func() {
		close(in.done)
		err = in.watcher.Close()
		in.wg.Wait()
	})
	return err
}

func (in *Inbox) scan() {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.sendErr(errors.Wrapf(err, "scan %s", in.dir))
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if !in.send(filepath.Join(in.dir, name)) {
			return
		}
	}
}

func (in *Inbox) loop() {
	for {
		select {
		case <-in.done:
			return

		case event, ok := <-in.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) == in.dir && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				in.sendErr(errors.Wrapf(ErrInboxRemoved, "%s", in.dir))
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}

			info, err := os.Lstat(event.Name)
			if err != nil || !info.Mode().IsRegular() {
				slog.Debug("ignoring inbox entry", "path", event.Name, "error", err)
				continue
			}
			if !in.send(event.Name) {
				return
			}

		case err, ok := <-in.watcher.Errors:
			if !ok {
				return
			}
			in.sendErr(err)
		}
	}
}

func (in *Inbox) send(path string) bool {
	select {
	case in.events <- path:
		return true
	case <-in.done:
		return false
	}
}

func (in *Inbox) sendErr(err error) {
	select {
	case in.errs <- err:
	case <-in.done:
	}
}
