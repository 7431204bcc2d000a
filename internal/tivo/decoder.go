package tivo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"archivist/internal/logging"
	"archivist/internal/services"
	"archivist/internal/tsframe"
)

// ErrNoCipher is returned when a scrambled packet arrives and no cipher was
// configured.
var ErrNoCipher = errors.New("scrambled packet and no cipher configured")

// Decoder turns the raw stream served by the device into a playable
// transport stream.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader, w io.Writer) error
}

// PacketCipher descrambles one packet's payload in place.
type PacketCipher interface {
	Descramble(pkt *tsframe.Packet) error
}

// PacketStats counts decoded frames by packet type.
type PacketStats struct {
	Frames    int64
	Scrambled int64
	ByType    map[tsframe.PacketType]int64
}

// TransportDecoder walks the stream frame by frame. Clear frames are copied
// unchanged; scrambled frames go through Cipher and leave with their
// scrambling bits cleared.
type TransportDecoder struct {
	Cipher PacketCipher
	Logger *slog.Logger

	stats PacketStats
}

// ctxCheckInterval is how many frames pass between cancellation checks.
const ctxCheckInterval = 1024

func (d *TransportDecoder) Decode(ctx context.Context, r io.Reader, w io.Writer) error {
	logger := logging.NewComponentLogger(d.Logger, "decoder")
	d.stats = PacketStats{ByType: make(map[tsframe.PacketType]int64)}
	reader := tsframe.NewReader(bufio.NewReaderSize(r, 64*tsframe.FrameSize))
	for {
		pkt, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, tsframe.ErrSyncLost) || errors.Is(err, tsframe.ErrShortFrame) || errors.Is(err, tsframe.ErrAdaptationOverflow) {
				return services.Wrap(services.ErrParse, "download", "decode", "The recording stream is damaged", err)
			}
			return err
		}
		if pkt.Index%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		d.stats.Frames++
		d.stats.ByType[pkt.Type()]++
		if pkt.IsScrambled() {
			d.stats.Scrambled++
			if d.Cipher == nil {
				return services.Wrap(services.ErrConfiguration, "download", "decode",
					"The recording is encrypted and no decoder is configured",
					fmt.Errorf("frame %d pid 0x%04x: %w", pkt.Index, pkt.PID, ErrNoCipher))
			}
			if err := d.Cipher.Descramble(pkt); err != nil {
				return services.Wrap(services.ErrParse, "download", "decode", "The recording could not be decrypted",
					fmt.Errorf("frame %d: %w", pkt.Index, err))
			}
			// Clear the transport scrambling control bits.
			pkt.Bytes()[3] &^= 0xc0
		}
		if _, err := w.Write(pkt.Bytes()); err != nil {
			return fmt.Errorf("write frame %d: %w", pkt.Index, err)
		}
	}
	logger.Debug("stream decoded",
		logging.Int64("frames", d.stats.Frames),
		logging.Int64("scrambled", d.stats.Scrambled),
		logging.Int64("audio_video_frames", d.stats.ByType[tsframe.PacketAudioVideoPrivate]),
	)
	return nil
}

// Stats returns the counts from the last Decode.
func (d *TransportDecoder) Stats() PacketStats {
	return d.stats
}
