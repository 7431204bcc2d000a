package tsframe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrSyncLost is returned for a frame that does not start with SyncByte.
	ErrSyncLost = errors.New("transport stream sync byte missing")
	// ErrShortFrame is returned when the source ends partway through a frame.
	ErrShortFrame = errors.New("transport stream ends mid-frame")
	// ErrAdaptationOverflow is returned when the adaptation field claims more
	// bytes than the frame holds.
	ErrAdaptationOverflow = errors.New("adaptation field exceeds frame")
	// ErrPayloadOverrun is returned when a cursor read would leave the payload.
	ErrPayloadOverrun = errors.New("read past end of payload")
)

// Packet is one frame: its header, its payload and a read cursor into the
// payload.
type Packet struct {
	Header

	// Index is the zero-based position of the frame in the stream.
	Index int64

	frame [FrameSize]byte
	pos   int
}

// Bytes returns the whole frame, header included. The slice aliases the
// packet and is only valid until the reader's next call to Next.
func (p *Packet) Bytes() []byte { return p.frame[:] }

// Payload returns the payload bytes. Like Bytes, the slice aliases the packet
// so cipher implementations can rewrite it in place.
func (p *Packet) Payload() []byte { return p.frame[p.Length:] }

// Remaining returns the number of payload bytes after the cursor.
func (p *Packet) Remaining() int { return p.PayloadSize() - p.pos }

// ReadBytes returns the next n payload bytes and advances the cursor.
func (p *Packet) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > p.Remaining() {
		return nil, fmt.Errorf("%w: want %d bytes, %d left", ErrPayloadOverrun, n, p.Remaining())
	}
	start := p.Length + p.pos
	p.pos += n
	out := make([]byte, n)
	copy(out, p.frame[start:start+n])
	return out, nil
}

// ReadUint8 reads one unsigned byte from the payload.
func (p *Packet) ReadUint8() (uint8, error) {
	if p.Remaining() < 1 {
		return 0, fmt.Errorf("%w: want 1 byte, %d left", ErrPayloadOverrun, p.Remaining())
	}
	v := p.frame[p.Length+p.pos]
	p.pos++
	return v, nil
}

// ReadUint16 reads a big-endian 16-bit field from the payload.
func (p *Packet) ReadUint16() (uint16, error) {
	if p.Remaining() < 2 {
		return 0, fmt.Errorf("%w: want 2 bytes, %d left", ErrPayloadOverrun, p.Remaining())
	}
	start := p.Length + p.pos
	p.pos += 2
	return binary.BigEndian.Uint16(p.frame[start:]), nil
}

// ReadUint32 reads a big-endian 32-bit field from the payload.
func (p *Packet) ReadUint32() (uint32, error) {
	if p.Remaining() < 4 {
		return 0, fmt.Errorf("%w: want 4 bytes, %d left", ErrPayloadOverrun, p.Remaining())
	}
	start := p.Length + p.pos
	p.pos += 4
	return binary.BigEndian.Uint32(p.frame[start:]), nil
}

// Skip advances the cursor by n bytes without reading them.
func (p *Packet) Skip(n int) error {
	if n < 0 || n > p.Remaining() {
		return fmt.Errorf("%w: skip %d bytes, %d left", ErrPayloadOverrun, n, p.Remaining())
	}
	p.pos += n
	return nil
}

// Rewind moves the cursor back to the start of the payload.
func (p *Packet) Rewind() { p.pos = 0 }
