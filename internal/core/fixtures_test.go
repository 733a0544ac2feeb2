package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/wqingest/internal/jobs"
	"github.com/JonMunkholm/wqingest/internal/notify"
)

var testHeader = []string{"PMI ID", "Last Name", "Consent Status"}

// extract builds the bytes of an extract file.
type extract struct {
	noBOM     bool
	header    []string
	rows      int
	frame     *Frame
	lineEnd   string
	rawHeader string // overrides header when set
}

func (e extract) bytes() []byte {
	frame := DefaultFrame
	if e.frame != nil {
		frame = *e.frame
	}
	nl := e.lineEnd
	if nl == "" {
		nl = "\r\n"
	}
	header := e.header
	if header == nil {
		header = testHeader
	}

	lines := []string{frame.First, frame.Second}
	if e.rawHeader != "" {
		lines = append(lines, e.rawHeader)
	} else {
		lines = append(lines, strings.Join(header, ","))
	}
	for i := 0; i < e.rows; i++ {
		vals := make([]string, len(header))
		for j := range header {
			vals[j] = fmt.Sprintf("v%d_%d", i+1, j+1)
		}
		lines = append(lines, strings.Join(vals, ","))
	}
	lines = append(lines, frame.Penultimate, frame.Last)

	body := strings.Join(lines, nl) + nl
	if e.noBOM {
		return []byte(body)
	}
	return append([]byte{0xEF, 0xBB, 0xBF}, body...)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// fakeTable is an in-memory target table.
type fakeTable struct {
	mu       sync.Mutex
	rows     int64
	countErr error
	loadErr  error
	dropRows int64 // rows silently lost on load

	counts int
	loads  int
}

func (f *fakeTable) CountRows(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts++
	return f.rows, f.countErr
}

func (f *fakeTable) Replace(_ context.Context, rs RecordSet) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	f.rows = int64(rs.Len()) - f.dropRows
	return int64(rs.Len()), nil
}

// fakeJobs returns a fixed run.
type fakeJobs struct {
	run   jobs.Run
	err   error
	calls int
}

func (f *fakeJobs) Run(_ context.Context, id string) (jobs.Run, error) {
	f.calls++
	r := f.run
	r.JobID = id
	return r, f.err
}

type sentNotice struct {
	category notify.Category
	message  string
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (f *fakeNotifier) Notify(_ context.Context, c notify.Category, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotice{c, msg})
}

func (f *fakeNotifier) all() []sentNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentNotice(nil), f.sent...)
}

func testGateConfig() GateConfig {
	return GateConfig{
		SourceTag:      "ACME",
		FilenamePrefix: "wq_",
		Extensions:     []string{".csv"},
		Frame:          DefaultFrame,
	}
}
