package stream

import (
	"errors"
	"io"
	"sync"
)

// ErrReaderGone is returned by Pipe.Write after the read side closed without
// an error of its own.
var ErrReaderGone = errors.New("stream: decoder stopped reading")

// Pipe is a bounded in-memory byte pipe made of fixed-size chunk slots. It
// supports exactly one writer goroutine and one reader goroutine.
type Pipe struct {
	chunks    chan []byte
	chunkSize int
	done      chan struct{}

	readOnce  sync.Once
	writeOnce sync.Once

	mu      sync.Mutex
	readErr error
	wrErr   error

	pending []byte
}

// NewPipe returns a pipe holding at most capacity bytes in chunkSize slots.
func NewPipe(capacity, chunkSize int) *Pipe {
	if chunkSize <= 0 {
		chunkSize = 8 << 10
	}
	slots := capacity / chunkSize
	if slots < 1 {
		slots = 1
	}
	return &Pipe{
		chunks:    make(chan []byte, slots),
		chunkSize: chunkSize,
		done:      make(chan struct{}),
	}
}

// Write copies b into the pipe, blocking while it is full. It fails once the
// read side has been closed.
func (p *Pipe) Write(b []byte) (int, error) {
	written := 0
	for len(b) > 0 {
		n := min(len(b), p.chunkSize)
		chunk := make([]byte, n)
		copy(chunk, b[:n])
		select {
		case <-p.done:
			return written, p.readSideErr()
		default:
		}
		select {
		case p.chunks <- chunk:
			written += n
			b = b[n:]
		case <-p.done:
			return written, p.readSideErr()
		}
	}
	return written, nil
}

// CloseWrite signals end of stream to the reader once buffered chunks drain.
func (p *Pipe) CloseWrite() error {
	return p.CloseWithError(nil)
}

// CloseWithError closes the write side. The reader sees err (io.EOF when nil)
// after the buffered chunks.
func (p *Pipe) CloseWithError(err error) error {
	p.writeOnce.Do(func() {
		p.mu.Lock()
		p.wrErr = err
		p.mu.Unlock()
		close(p.chunks)
	})
	return nil
}

// Read fills b from the oldest buffered chunk.
func (p *Pipe) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case chunk, ok := <-p.chunks:
			if !ok {
				p.mu.Lock()
				err := p.wrErr
				p.mu.Unlock()
				if err == nil {
					err = io.EOF
				}
				return 0, err
			}
			p.pending = chunk
		case <-p.done:
			return 0, io.ErrClosedPipe
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// CloseRead stops the reader. Pending and future writes fail with err, or
// ErrReaderGone when err is nil.
func (p *Pipe) CloseRead(err error) {
	p.readOnce.Do(func() {
		p.mu.Lock()
		p.readErr = err
		p.mu.Unlock()
		close(p.done)
	})
}

// Buffered reports how many chunks are waiting to be read.
func (p *Pipe) Buffered() int {
	return len(p.chunks)
}

func (p *Pipe) readSideErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return p.readErr
	}
	return ErrReaderGone
}
