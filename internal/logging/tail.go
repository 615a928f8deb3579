package logging

import (
	"strings"
	"sync"
)

// Tail is a zapcore.WriteSyncer that retains the most recent lines written to
// it.
type Tail struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewTail returns a Tail holding at most n lines.
func NewTail(n int) *Tail {
	if n <= 0 {
		n = 1
	}
	return &Tail{lines: make([]string, n)}
}

func (t *Tail) Write(p []byte) (int, error) {
	s := strings.TrimRight(string(p), "\n")

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, line := range strings.Split(s, "\n") {
		t.lines[t.next] = line
		t.next++
		if t.next == len(t.lines) {
			t.next = 0
			t.full = true
		}
	}
	return len(p), nil
}

func (t *Tail) Sync() error { return nil }

// Lines returns the retained lines, oldest first.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		return append([]string(nil), t.lines[:t.next]...)
	}
	out := make([]string, 0, len(t.lines))
	out = append(out, t.lines[t.next:]...)
	return append(out, t.lines[:t.next]...)
}

// String joins Lines with newlines, with a trailing newline when non-empty.
func (t *Tail) String() string {
	lines := t.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
