package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"archivist/internal/config"
	"archivist/internal/deps"
	"archivist/internal/fileutil"
	"archivist/internal/logging"
	"archivist/internal/media/ffprobe"
	"archivist/internal/metrics"
	"archivist/internal/procexec"
	"archivist/internal/services"
	"archivist/internal/tivo"
)

// Outcome is how a run ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Device is the recorder's download interface.
type Device interface {
	OpenSession(ctx context.Context, downloadURL string) error
	Fetch(ctx context.Context, downloadURL string) (*tivo.Response, error)
}

// ToolRunner launches external tools.
type ToolRunner interface {
	Run(ctx context.Context, cmd procexec.Command, interp procexec.Interpreter) (procexec.Result, error)
}

// ProbeFunc inspects a media file.
type ProbeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pipeline runs recordings. One Pipeline may run many recordings at once;
// they coordinate through the shared Slots.
type Pipeline struct {
	cfg     *config.Config
	slots   *Slots
	device  Device
	runner  ToolRunner
	locator tivo.Locator
	decoder func() tivo.Decoder
	probe   ProbeFunc
	sleep   SleepFunc
	require func(stage, name, command string) (string, error)
	sink    StatusSink
	logger  *slog.Logger
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLocator sets how recording sources resolve to download URLs.
func WithLocator(l tivo.Locator) Option { return func(p *Pipeline) { p.locator = l } }

// WithDecoder sets the factory for the per-run stream decoder.
func WithDecoder(fn func() tivo.Decoder) Option { return func(p *Pipeline) { p.decoder = fn } }

// WithProbe replaces ffprobe.
func WithProbe(fn ProbeFunc) Option { return func(p *Pipeline) { p.probe = fn } }

// WithSleep replaces the wall-clock wait used for retry delays and the
// post-download pause.
func WithSleep(fn SleepFunc) Option { return func(p *Pipeline) { p.sleep = fn } }

// WithToolCheck replaces the lookup used to refuse stages whose tool is
// missing.
func WithToolCheck(fn func(stage, name, command string) (string, error)) Option {
	return func(p *Pipeline) { p.require = fn }
}

// WithStatusSink receives every accepted status change.
func WithStatusSink(s StatusSink) Option { return func(p *Pipeline) { p.sink = s } }

// NewPipeline wires a pipeline. slots must be shared by every pipeline in
// the process.
func NewPipeline(cfg *config.Config, slots *Slots, device Device, runner ToolRunner, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		slots:   slots,
		device:  device,
		runner:  runner,
		locator: tivo.DirectLocator{},
		decoder: func() tivo.Decoder { return &tivo.TransportDecoder{} },
		probe:   ffprobe.Inspect,
		sleep:   sleepContext,
		require: deps.Require,
		logger:  logging.NewComponentLogger(logger, "archive"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run archives rec. Cancellation of ctx is reported as OutcomeCancelled with
// a nil error; any other failure returns OutcomeFailed and the error. Both
// slots are free again when Run returns.
func (p *Pipeline) Run(ctx context.Context, rec *Recording) (Outcome, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithRecording(ctx, rec.Title)
	if rec.ID > 0 {
		ctx = services.WithItemID(ctx, rec.ID)
	}
	logger := logging.WithContext(ctx, p.logger)

	format, err := p.resolveFormat(rec)
	r := &run{
		p:      p,
		rec:    rec,
		format: format,
		paths:  NewPaths(rec.Destination, format),
		pub:    &publisher{rec: rec, sink: p.sink},
		logger: logger,
	}

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()
	started := time.Now()
	logger.Info("archive started",
		logging.String(logging.FieldEventType, "archive_start"),
		logging.String("destination", rec.Destination),
		logging.String("format", format.Name),
	)

	if err == nil {
		err = r.execute(ctx)
	}

	switch {
	case err == nil:
		r.cleanup(false)
		r.pub.publish(PhaseStatus(StageDone))
		metrics.RunsTotal.WithLabelValues(OutcomeCompleted.String(), "none").Inc()
		logger.Info("archive completed",
			logging.String(logging.FieldEventType, "archive_complete"),
			logging.Duration("elapsed", time.Since(started)),
		)
		return OutcomeCompleted, nil
	case isCancellation(ctx, err):
		r.cleanup(true)
		r.pub.publish(PhaseStatus(StageCancelled))
		metrics.RunsTotal.WithLabelValues(OutcomeCancelled.String(), "none").Inc()
		logger.Info("archive cancelled",
			logging.String(logging.FieldEventType, "archive_cancelled"),
			logging.String("at_stage", rec.Status().Stage.String()),
		)
		return OutcomeCancelled, nil
	default:
		r.cleanup(true)
		summary := services.Summary(err)
		r.pub.publish(FailedStatus(summary, services.Details(err)))
		metrics.RunsTotal.WithLabelValues(OutcomeFailed.String(), services.Kind(err)).Inc()
		logging.ErrorWithContext(logger, "archive failed", "archive_failed",
			logging.Error(err),
			logging.String("summary", summary),
			logging.String(logging.FieldErrorHint, summary),
		)
		return OutcomeFailed, err
	}
}

func (p *Pipeline) resolveFormat(rec *Recording) (Format, error) {
	if name := strings.TrimSpace(rec.Format); name != "" {
		f, ok := FormatByName(name)
		if !ok {
			return Format{}, services.Wrap(services.ErrValidation, "connecting", "resolve format",
				fmt.Sprintf("Unknown destination format %q", name), nil)
		}
		return f, nil
	}
	if f, ok := FormatForPath(rec.Destination); ok {
		return f, nil
	}
	if f, ok := FormatByName(p.cfg.Processing.DefaultFormat); ok {
		return f, nil
	}
	return Format{}, services.Wrap(services.ErrValidation, "connecting", "resolve format",
		fmt.Sprintf("Cannot tell the format for %s", filepath.Base(rec.Destination)), nil)
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ctx.Err()))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the state of one Pipeline.Run call.
type run struct {
	p      *Pipeline
	rec    *Recording
	format Format
	paths  Paths
	pub    *publisher
	logger *slog.Logger

	parts []string
}

func (r *run) execute(ctx context.Context) error {
	if !fileutil.DirExists(filepath.Dir(r.paths.Destination)) {
		return services.Wrap(services.ErrValidation, "connecting", "check destination",
			"Destination folder no longer exists",
			fmt.Errorf("%s: %w", filepath.Dir(r.paths.Destination), services.ErrNotFound))
	}
	if err := r.download(ctx); err != nil {
		return err
	}
	return r.process(ctx)
}

// cleanup removes working files. A failed or cancelled run also drops the
// metadata sidecar and any trimmed parts.
func (r *run) cleanup(failed bool) {
	paths := r.paths.Intermediates(failed, r.p.cfg.Processing.KeepEncrypted)
	paths = append(paths, r.parts...)
	if err := fileutil.RemoveAll(paths...); err != nil {
		logging.WarnWithContext(r.logger, "working files not removed", "cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove leftover files next to the destination by hand"),
			logging.String(logging.FieldImpact, "disk space is not reclaimed"),
		)
	}
}

// stageTimer records how long a stage took.
func stageTimer(stage Stage) func() {
	start := time.Now()
	return func() {
		metrics.StageSeconds.WithLabelValues(stage.String()).Observe(time.Since(start).Seconds())
	}
}
