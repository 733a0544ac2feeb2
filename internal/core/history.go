package core

import "sync"

// History keeps the most recent run results in memory for the status page.
type History struct {
	mu   sync.RWMutex
	buf  []RunResult
	next int
	full bool
}

// NewHistory creates a history holding up to size results.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{buf: make([]RunResult, size)}
}

// Add records a result, evicting the oldest when full.
func (h *History) Add(r RunResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.next] = r
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Recent returns up to n results, newest first. n <= 0 returns all.
func (h *History) Recent(n int) []RunResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := h.next
	if h.full {
		count = len(h.buf)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]RunResult, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}

// Last returns the newest result.
func (h *History) Last() (RunResult, bool) {
	recent := h.Recent(1)
	if len(recent) == 0 {
		return RunResult{}, false
	}
	return recent[0], true
}

// Find returns the retained result with the given run ID.
func (h *History) Find(id string) (RunResult, bool) {
	for _, r := range h.Recent(0) {
		if r.ID == id {
			return r, true
		}
	}
	return RunResult{}, false
}
