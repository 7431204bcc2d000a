package tsframe_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"archivist/internal/tsframe"
)

func frame(header [4]byte, body ...byte) []byte {
	out := make([]byte, tsframe.FrameSize)
	copy(out, header[:])
	copy(out[4:], body)
	return out
}

func TestParseHeaderFields(t *testing.T) {
	// sync, TEI=0 PUSI=1 prio=0 PID=0x1234, scrambling=2 adaptation=1 payload=1 cc=7
	h := tsframe.ParseHeader([4]byte{0x47, 0x52, 0x34, 0xb7})
	if !h.Valid() {
		t.Fatal("expected valid header")
	}
	if h.TransportError || !h.PayloadUnitStart || h.Priority {
		t.Fatalf("flags = %+v", h)
	}
	if h.PID != 0x1234 {
		t.Fatalf("PID = 0x%x, want 0x1234", h.PID)
	}
	if h.Scrambling != 2 || !h.IsScrambled() {
		t.Fatalf("Scrambling = %d", h.Scrambling)
	}
	if !h.HasAdaptationField || !h.HasPayload || h.Continuity != 7 {
		t.Fatalf("unexpected tail fields %+v", h)
	}
	if h.Length != tsframe.HeaderSize {
		t.Fatalf("Length = %d", h.Length)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		pid  uint16
		want tsframe.PacketType
	}{
		{0x0000, tsframe.PacketProgramAssociation},
		{0x0001, tsframe.PacketConditionalAccess},
		{0x0005, tsframe.PacketReserved},
		{0x0010, tsframe.PacketNetworkInformation},
		{0x0011, tsframe.PacketServiceDescription},
		{0x0012, tsframe.PacketEventInformation},
		{0x0013, tsframe.PacketRunningStatus},
		{0x0014, tsframe.PacketTimeDate},
		{0x001a, tsframe.PacketReserved},
		{0x0020, tsframe.PacketAudioVideoPrivate},
		{0x1234, tsframe.PacketAudioVideoPrivate},
		{0x1ffe, tsframe.PacketAudioVideoPrivate},
		{0x1fff, tsframe.PacketNone},
		{0xffff, tsframe.PacketNone},
	}
	for _, tt := range tests {
		if got := tsframe.Classify(tt.pid); got != tt.want {
			t.Errorf("Classify(0x%04x) = %s, want %s", tt.pid, got, tt.want)
		}
	}
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestReaderRejectsBadSync(t *testing.T) {
	src := &countingReader{r: bytes.NewReader(frame([4]byte{0x48, 0x00, 0x00, 0x10}, 0xaa, 0xbb))}
	r := tsframe.NewReader(src)
	if _, err := r.Next(); !errors.Is(err, tsframe.ErrSyncLost) {
		t.Fatalf("Next error = %v, want ErrSyncLost", err)
	}
	if src.n != tsframe.HeaderSize {
		t.Fatalf("consumed %d bytes, want only the header", src.n)
	}
	if _, err := r.Next(); !errors.Is(err, tsframe.ErrSyncLost) {
		t.Fatalf("second Next error = %v, want sticky ErrSyncLost", err)
	}
}

func TestReaderWalksFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frame([4]byte{0x47, 0x40, 0x00, 0x10}, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06))
	// adaptation field of length 3 (flags + 2 stuffing bytes) then payload
	buf.Write(frame([4]byte{0x47, 0x01, 0x00, 0x31}, 0x03, 0x00, 0xff, 0xff, 0xde, 0xad, 0xbe, 0xef))

	r := tsframe.NewReader(&buf)
	pkt, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if pkt.Type() != tsframe.PacketProgramAssociation || pkt.PayloadSize() != 184 {
		t.Fatalf("first packet = %s size %d", pkt.Header, pkt.PayloadSize())
	}
	v16, err := pkt.ReadUint16()
	if err != nil || v16 != 0x0001 {
		t.Fatalf("ReadUint16 = 0x%x, %v", v16, err)
	}
	if err := pkt.Skip(1); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	v32, err := pkt.ReadUint32()
	if err != nil || v32 != 0x03040506 {
		t.Fatalf("ReadUint32 = 0x%x, %v", v32, err)
	}

	pkt, err = r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if pkt.PID != 0x0100 || pkt.Index != 1 {
		t.Fatalf("second packet pid=0x%x index=%d", pkt.PID, pkt.Index)
	}
	if pkt.Length != 8 || pkt.PayloadSize() != 180 {
		t.Fatalf("Length = %d payload = %d", pkt.Length, pkt.PayloadSize())
	}
	word, err := pkt.ReadBytes(4)
	if err != nil || !bytes.Equal(word, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("ReadBytes = %x, %v", word, err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if r.Count() != 2 {
		t.Fatalf("Count = %d", r.Count())
	}
}

func TestCursorNeverLeavesPayload(t *testing.T) {
	r := tsframe.NewReader(bytes.NewReader(frame([4]byte{0x47, 0x00, 0x21, 0x10})))
	pkt, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := pkt.Skip(182); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if _, err := pkt.ReadUint32(); !errors.Is(err, tsframe.ErrPayloadOverrun) {
		t.Fatalf("ReadUint32 error = %v", err)
	}
	if _, err := pkt.ReadUint16(); err != nil {
		t.Fatalf("ReadUint16 at end: %v", err)
	}
	if _, err := pkt.ReadUint8(); !errors.Is(err, tsframe.ErrPayloadOverrun) {
		t.Fatalf("ReadUint8 error = %v", err)
	}
}

func TestReaderShortFrame(t *testing.T) {
	data := frame([4]byte{0x47, 0x00, 0x21, 0x10})[:100]
	if _, err := tsframe.NewReader(bytes.NewReader(data)).Next(); !errors.Is(err, tsframe.ErrShortFrame) {
		t.Fatalf("error = %v, want ErrShortFrame", err)
	}
}

func TestReaderAdaptationOverflow(t *testing.T) {
	data := frame([4]byte{0x47, 0x00, 0x21, 0x30}, 200)
	if _, err := tsframe.NewReader(bytes.NewReader(data)).Next(); !errors.Is(err, tsframe.ErrAdaptationOverflow) {
		t.Fatalf("error = %v, want ErrAdaptationOverflow", err)
	}
}
