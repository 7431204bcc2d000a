package tsframe

import (
	"encoding/binary"
	"fmt"
)

const (
	// FrameSize is the fixed size of a transport stream packet.
	FrameSize = 188
	// HeaderSize is the size of the fixed part of the header.
	HeaderSize = 4
	// SyncByte marks the start of every valid frame.
	SyncByte = 0x47
)

// Header is the decoded fixed header of one frame, plus the size of the
// adaptation field that follows it.
type Header struct {
	Sync               byte
	TransportError     bool
	PayloadUnitStart   bool
	Priority           bool
	PID                uint16
	Scrambling         uint8
	HasAdaptationField bool
	HasPayload         bool
	Continuity         uint8

	// Length counts the fixed header plus the adaptation field (its length
	// byte included), so FrameSize-Length is the payload size.
	Length int
}

// ParseHeader decodes the 4-byte fixed header. It does not validate the sync
// byte; call Valid for that.
func ParseHeader(b [HeaderSize]byte) Header {
	bits := binary.BigEndian.Uint32(b[:])
	return Header{
		Sync:               byte((bits & 0xff000000) >> 24),
		TransportError:     bits&0x00800000 != 0,
		PayloadUnitStart:   bits&0x00400000 != 0,
		Priority:           bits&0x00200000 != 0,
		PID:                uint16((bits & 0x001fff00) >> 8),
		Scrambling:         uint8((bits & 0xc0) >> 6),
		HasAdaptationField: bits&0x20 != 0,
		HasPayload:         bits&0x10 != 0,
		Continuity:         uint8(bits & 0x0f),
		Length:             HeaderSize,
	}
}

// Valid reports whether the sync byte matches the transport stream marker.
func (h Header) Valid() bool { return h.Sync == SyncByte }

// IsScrambled reports whether the scrambling control bits are set.
func (h Header) IsScrambled() bool { return h.Scrambling != 0 }

// Type classifies the header's PID.
func (h Header) Type() PacketType { return Classify(h.PID) }

// PayloadSize returns the number of payload bytes in the frame.
func (h Header) PayloadSize() int { return FrameSize - h.Length }

func (h Header) String() string {
	return fmt.Sprintf("pid=0x%04x type=%s pusi=%t scrambling=%d adaptation=%t payload=%t cc=%d",
		h.PID, h.Type(), h.PayloadUnitStart, h.Scrambling, h.HasAdaptationField, h.HasPayload, h.Continuity)
}
