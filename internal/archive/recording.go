package archive

import (
	"sync"

	"archivist/internal/tivo"
)

// StatusSink observes status changes. Calls arrive from the run's goroutine
// and from tool output readers, never concurrently for one recording.
type StatusSink interface {
	StatusChanged(rec *Recording, st Status)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(rec *Recording, st Status)

func (f SinkFunc) StatusChanged(rec *Recording, st Status) { f(rec, st) }

// Recording is one show to archive. The pipeline only writes its status.
type Recording struct {
	ID          int64
	Title       string
	Source      string
	Destination string
	// Format names an entry of the format table; empty picks one from the
	// destination's extension.
	Format   string
	Metadata tivo.Metadata

	mu     sync.Mutex
	status Status
}

// Status returns the last published status.
func (r *Recording) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// setStatus applies st unless it would move the run backwards. Terminal
// stages are final, within a stage progress never decreases, and the only
// step back allowed is from Downloading to Connecting for a retry.
func (r *Recording) setStatus(st Status) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.status
	switch {
	case cur.Stage.Terminal():
		return cur, false
	case st.Stage == StageFailed || st.Stage == StageCancelled:
	case st.Stage == StageConnecting && cur.Stage == StageDownloading:
		// A failed attempt goes back to waiting for the next one.
	case st.Stage < cur.Stage:
		return cur, false
	case st.Stage == cur.Stage && st.Progress >= 0 && st.Progress < cur.Progress:
		st.Progress = cur.Progress
	}
	r.status = st
	return st, true
}

// publisher forwards accepted status changes to a sink.
type publisher struct {
	rec  *Recording
	sink StatusSink
	mu   sync.Mutex
}

func (p *publisher) publish(st Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	applied, ok := p.rec.setStatus(st)
	if ok && p.sink != nil {
		p.sink.StatusChanged(p.rec, applied)
	}
}
