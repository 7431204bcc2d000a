package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"archivist/internal/logging"
	"archivist/internal/metrics"
	"archivist/internal/services"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultPipeCapacity     = 16 << 20
	DefaultChunkSize        = 8 << 10
	DefaultProgressInterval = 10 << 20
	DefaultMinSizeRatio     = 0.8
)

var (
	// ErrDecoderExited reports a decoder that returned before the stream ended.
	ErrDecoderExited = errors.New("stream: decoder exited before end of stream")
	// ErrShortTransfer reports a transfer that fell short of the declared size.
	ErrShortTransfer = errors.New("stream: transfer shorter than declared size")

	errDecoderGone = errors.New("stream: decoder gone")
)

// DecodeFunc turns the raw stream read from r into the bytes written to w.
// It must return when r reports an error.
type DecodeFunc func(ctx context.Context, r io.Reader, w io.Writer) error

// Passthrough copies the stream unchanged.
func Passthrough(_ context.Context, r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

// Options tunes a transfer.
type Options struct {
	PipeCapacity     int
	ChunkSize        int
	ProgressInterval int64
	// MinSizeRatio fails transfers that deliver less than this share of the
	// declared size. Zero uses DefaultMinSizeRatio; a negative value disables
	// the check.
	MinSizeRatio float64
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PipeCapacity <= 0 {
		o.PipeCapacity = DefaultPipeCapacity
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.MinSizeRatio == 0 {
		o.MinSizeRatio = DefaultMinSizeRatio
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Progress is a snapshot of a running transfer. ETA is negative when the
// declared size is unknown.
type Progress struct {
	Elapsed        time.Duration
	Bytes          int64
	Estimated      int64
	BytesPerSecond float64
	ETA            time.Duration
}

// Fraction returns the share of the declared size received so far, or -1
// when unknown.
func (p Progress) Fraction() float64 {
	if p.Estimated <= 0 {
		return -1
	}
	f := float64(p.Bytes) / float64(p.Estimated)
	if f > 1 {
		f = 1
	}
	return f
}

// Request describes one transfer.
type Request struct {
	// Body is closed by Transfer.
	Body io.ReadCloser
	// Estimated is the server-declared size in bytes; zero or negative when
	// the server declared none.
	Estimated int64
	// Output is created (or truncated) and removed again on failure.
	Output     string
	Decode     DecodeFunc
	OnProgress func(Progress)
}

// Result summarizes a finished transfer.
type Result struct {
	Bytes    int64
	Duration time.Duration
}

// Transfer streams req.Body through req.Decode into req.Output. Cancellation
// closes the body, discards the partial output and returns ctx.Err().
func Transfer(ctx context.Context, logger *slog.Logger, opts Options, req Request) (Result, error) {
	opts = opts.withDefaults()
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "stream"))
	decode := req.Decode
	if decode == nil {
		decode = Passthrough
	}

	stopClose := context.AfterFunc(ctx, func() { _ = req.Body.Close() })
	defer func() {
		stopClose()
		_ = req.Body.Close()
	}()

	out, err := os.Create(req.Output)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransfer, "download", "create output", "Could not create the download file", err)
	}

	pipe := NewPipe(opts.PipeCapacity, opts.ChunkSize)
	dec := &decoderState{done: make(chan struct{})}
	go func() {
		defer close(dec.done)
		w := bufio.NewWriterSize(out, 256<<10)
		err := decode(ctx, pipe, w)
		if err == nil {
			err = w.Flush()
		}
		if err == nil {
			if _, rerr := pipe.Read(make([]byte, 1)); !errors.Is(rerr, io.EOF) {
				err = ErrDecoderExited
			}
		}
		dec.err = err
		pipe.CloseRead(err)
	}()

	started := opts.Now()
	n, loopErr := networkLoop(ctx, logger, opts, req, pipe, dec.done, started)
	if loopErr != nil {
		pipe.CloseWithError(loopErr)
	} else {
		pipe.CloseWrite()
	}
	<-dec.done
	decodeErr := dec.err
	closeErr := out.Close()

	fail := func(err error) (Result, error) {
		if rmErr := os.Remove(req.Output); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logging.WarnWithContext(logger, "partial download not removed", "partial_cleanup_failed",
				logging.String("path", req.Output),
				logging.Error(rmErr),
				logging.String(logging.FieldErrorHint, "delete the file by hand"),
			)
		}
		return Result{Bytes: n}, err
	}

	switch {
	case ctx.Err() != nil:
		logger.Info("download cancelled", logging.Int64("bytes", n))
		return fail(ctx.Err())
	case errors.Is(loopErr, errDecoderGone):
		if decodeErr == nil {
			decodeErr = ErrDecoderExited
		}
		return fail(decoderFailure(decodeErr))
	case loopErr != nil:
		return fail(loopErr)
	case decodeErr != nil:
		return fail(decoderFailure(decodeErr))
	case closeErr != nil:
		return fail(services.Wrap(services.ErrTransfer, "download", "close output", "Could not write the download file", closeErr))
	}

	elapsed := opts.Now().Sub(started)
	if err := checkSize(n, req.Estimated, opts.MinSizeRatio); err != nil {
		return fail(err)
	}
	if req.Estimated <= 0 {
		logger.Info("server declared no size; size check skipped", logging.Int64("bytes", n))
	}
	logger.Debug("download complete",
		logging.Int64("bytes", n),
		logging.Int64("estimated_bytes", req.Estimated),
		logging.Duration("elapsed", elapsed),
	)
	return Result{Bytes: n, Duration: elapsed}, nil
}

// networkLoop copies the body into the pipe one chunk at a time.
func networkLoop(ctx context.Context, logger *slog.Logger, opts Options, req Request, pipe *Pipe, decoderDone <-chan struct{}, started time.Time) (int64, error) {
	buf := make([]byte, opts.ChunkSize)
	var total, sinceReport int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		select {
		case <-decoderDone:
			return total, errDecoderGone
		default:
		}

		n, readErr := req.Body.Read(buf)
		if n > 0 {
			if _, err := pipe.Write(buf[:n]); err != nil {
				if ctx.Err() != nil {
					return total, ctx.Err()
				}
				return total, errDecoderGone
			}
			total += int64(n)
			sinceReport += int64(n)
			metrics.DownloadBytes.Add(float64(n))
			if sinceReport >= opts.ProgressInterval {
				sinceReport = 0
				report(logger, req, total, opts.Now().Sub(started))
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		return total, services.Wrap(services.ErrTransfer, "download", "read response", "The connection to the device dropped", readErr)
	}
}

// decoderState carries the decode goroutine's result; err is valid once done
// is closed.
type decoderState struct {
	done chan struct{}
	err  error
}

// decoderFailure keeps a decoder's own classification and marks anything
// unclassified as a transfer failure.
func decoderFailure(err error) error {
	var se *services.Error
	if errors.As(err, &se) {
		return err
	}
	return services.Wrap(services.ErrTransfer, "download", "decode", "The recording could not be decoded", err)
}

// checkSize fails transfers that delivered less than ratio of the estimate.
func checkSize(got, estimated int64, ratio float64) error {
	if estimated <= 0 || ratio < 0 {
		return nil
	}
	if float64(got)/float64(estimated) >= ratio {
		return nil
	}
	return services.Wrap(services.ErrTransfer, "download", "size check",
		"The download ended early; the device sent less than expected",
		fmt.Errorf("%w: received %d of %d estimated bytes (minimum ratio %.2f)", ErrShortTransfer, got, estimated, ratio))
}

func report(logger *slog.Logger, req Request, total int64, elapsed time.Duration) {
	p := Progress{Elapsed: elapsed, Bytes: total, Estimated: req.Estimated, ETA: -1}
	if secs := elapsed.Seconds(); secs > 0 {
		p.BytesPerSecond = float64(total) / secs
	}
	if req.Estimated > 0 && p.BytesPerSecond > 0 {
		remaining := req.Estimated - total
		if remaining < 0 {
			remaining = 0
		}
		p.ETA = time.Duration(float64(remaining) / p.BytesPerSecond * float64(time.Second)).Round(time.Second)
	}
	logger.Debug("download progress",
		logging.Int64("bytes", total),
		logging.Int64("estimated_bytes", req.Estimated),
		logging.Float64("kib_per_second", p.BytesPerSecond/1024),
		logging.Duration(logging.FieldProgressETA, p.ETA),
	)
	if req.OnProgress != nil {
		req.OnProgress(p)
	}
}
