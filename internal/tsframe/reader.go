package tsframe

import (
	"errors"
	"fmt"
	"io"
)

// Reader yields consecutive frames from a byte source.
type Reader struct {
	src    io.Reader
	pkt    Packet
	count  int64
	failed error
}

// NewReader wraps src. The reader does not buffer; wrap src in a
// bufio.Reader when it is a file or socket.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Next reads the next frame. It returns io.EOF when the source ends cleanly
// on a frame boundary. The returned packet is reused by the following call.
// After any other error the reader is finished and keeps returning it.
func (r *Reader) Next() (*Packet, error) {
	if r.failed != nil {
		return nil, r.failed
	}
	pkt, err := r.next()
	if err != nil {
		r.failed = err
		return nil, err
	}
	return pkt, nil
}

// Count returns the number of frames successfully read so far.
func (r *Reader) Count() int64 { return r.count }

func (r *Reader) next() (*Packet, error) {
	p := &r.pkt
	// Read the header alone first so an invalid frame stops consumption
	// before any of its payload is pulled from the source.
	if _, err := io.ReadFull(r.src, p.frame[:HeaderSize]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("frame %d: %w", r.count, ErrShortFrame)
		}
		return nil, fmt.Errorf("frame %d: read header: %w", r.count, err)
	}
	var hdr [HeaderSize]byte
	copy(hdr[:], p.frame[:HeaderSize])
	h := ParseHeader(hdr)
	if !h.Valid() {
		return nil, fmt.Errorf("frame %d: %w (got 0x%02x)", r.count, ErrSyncLost, h.Sync)
	}
	if _, err := io.ReadFull(r.src, p.frame[HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("frame %d: %w", r.count, ErrShortFrame)
		}
		return nil, fmt.Errorf("frame %d: read body: %w", r.count, err)
	}
	if h.HasAdaptationField {
		afLen := int(p.frame[HeaderSize])
		h.Length += 1 + afLen
		if h.Length > FrameSize {
			return nil, fmt.Errorf("frame %d: %w (length %d)", r.count, ErrAdaptationOverflow, afLen)
		}
	}
	p.Header = h
	p.Index = r.count
	p.pos = 0
	r.count++
	return p, nil
}
