package procexec

import (
	"strings"
	"sync"
)

// Transcript keeps the last N lines of a tool's output.
type Transcript struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewTranscript returns a transcript holding at most n lines.
func NewTranscript(n int) *Transcript {
	if n <= 0 {
		n = 1
	}
	return &Transcript{lines: make([]string, n)}
}

// Add records a line, evicting the oldest when full.
func (t *Transcript) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

// Lines returns the retained lines, oldest first.
func (t *Transcript) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]string(nil), t.lines[:t.next]...)
	}
	out := make([]string, 0, len(t.lines))
	out = append(out, t.lines[t.next:]...)
	return append(out, t.lines[:t.next]...)
}

func (t *Transcript) String() string {
	return strings.Join(t.Lines(), "\n")
}
