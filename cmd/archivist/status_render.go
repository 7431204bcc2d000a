package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"archivist/internal/archive"
)

const (
	ansiClearLine = "\r\033[K"
)

// statusPrinter renders pipeline status to a writer. On a terminal the
// current line is rewritten in place; elsewhere one line is written per
// stage so logs stay readable.
type statusPrinter struct {
	out      io.Writer
	terminal bool

	mu        sync.Mutex
	lastStage archive.Stage
	started   bool
	dirty     bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, terminal: isTerminal(out)}
}

func (p *statusPrinter) StatusChanged(rec *archive.Recording, st archive.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("%s: %s", rec.Title, st.String())
	if p.terminal {
		fmt.Fprint(p.out, ansiClearLine+line)
		p.dirty = true
		if st.Stage.Terminal() {
			p.finish()
		}
		return
	}
	if p.started && st.Stage == p.lastStage {
		return
	}
	p.started = true
	p.lastStage = st.Stage
	fmt.Fprintln(p.out, line)
}

// finish ends an in-place line so later output starts on a fresh one.
func (p *statusPrinter) finish() {
	if p.dirty {
		fmt.Fprintln(p.out)
		p.dirty = false
	}
}

func (p *statusPrinter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish()
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
