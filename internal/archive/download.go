package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"archivist/internal/logging"
	"archivist/internal/metrics"
	"archivist/internal/services"
	"archivist/internal/stream"
	"archivist/internal/tivo"
)

// download holds the download slot from the first connection attempt until
// the post-download pause is over.
func (r *run) download(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := r.p.slots.Download
	if err := slot.Acquire(ctx); err != nil {
		return err
	}
	defer slot.Release()
	r.logger.Debug("download slot acquired")

	cfg := r.p.cfg.Download
	r.pub.publish(ConnectingStatus(0, 0, cfg.Attempts))
	url, err := r.p.locator.Locate(ctx, r.rec.Source)
	if err != nil {
		return err
	}

	done := stageTimer(StageDownloading)
	if err := r.fetchWithRetry(ctx, url); err != nil {
		return err
	}
	done()

	if r.format.IncludeMetadata {
		if err := tivo.WriteMetadata(r.paths.Metadata, r.rec.Metadata); err != nil {
			logging.WarnWithContext(r.logger, "metadata sidecar not written", "metadata_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "media servers will not see the recording's details"),
				logging.String(logging.FieldErrorHint, "check permissions on the destination folder"),
			)
		}
	}

	// The device rejects a request that follows a finished download too
	// closely, so the next run waits while this one still holds the slot.
	if err := r.p.sleep(ctx, r.p.cfg.Cooldown()); err != nil && ctx.Err() == nil {
		return err
	}
	r.pub.publish(PhaseStatus(StageDownloaded))
	return nil
}

// fetchWithRetry makes up to Attempts download attempts. Only transfer
// failures are retried; the delay doubles after each one.
func (r *run) fetchWithRetry(ctx context.Context, url string) error {
	cfg := r.p.cfg.Download
	delays := retryDelays(r.p.cfg.RetryBase(), cfg.RetryMultiplier)

	if err := r.p.device.OpenSession(ctx, url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Debug("session request failed; continuing", logging.Error(err))
	}

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.attempt(ctx, url)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, services.ErrTransfer) {
			return err
		}
		failures++
		metrics.DownloadRetries.Inc()
		remaining := cfg.Attempts - failures
		if remaining <= 0 {
			return services.Wrap(services.ErrRetriesExhausted, StageDownloading.String(), "download",
				"", err)
		}
		delay := delays.NextBackOff()
		r.pub.publish(ConnectingStatus(delay, failures, remaining))
		logging.WarnWithContext(r.logger, "download attempt failed", "download_retry",
			logging.Error(err),
			logging.Int("failures", failures),
			logging.Int("retries_remaining", remaining),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldImpact, "the download restarts from the beginning"),
			logging.String(logging.FieldErrorHint, "the device may be busy; it is retried automatically"),
		)
		if err := r.p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// retryDelays yields base, base*multiplier, base*multiplier^2, ... without
// jitter.
func retryDelays(base time.Duration, multiplier float64) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = 24 * time.Hour
	b.Reset()
	return b
}

// attempt performs one download request and transfer.
func (r *run) attempt(ctx context.Context, url string) error {
	resp, err := r.p.device.Fetch(ctx, url)
	if err != nil {
		return err
	}
	r.pub.publish(StageStatus(StageDownloading, 0, Unknown))

	cfg := r.p.cfg.Download
	opts := stream.Options{
		PipeCapacity:     cfg.PipeCapacityBytes,
		ChunkSize:        cfg.ChunkSizeBytes,
		ProgressInterval: cfg.ProgressIntervalBytes,
		MinSizeRatio:     cfg.MinSizeRatio,
	}
	req := stream.Request{
		Body:       resp.Body,
		Estimated:  resp.EstimatedLength,
		Output:     r.paths.Download,
		OnProgress: r.downloadProgress,
	}
	keepEncrypted := r.format.Decrypt && r.p.cfg.Processing.KeepEncrypted
	switch {
	case keepEncrypted:
		req.Output = r.paths.Encrypted
	case r.format.Decrypt:
		req.Decode = r.p.decoder().Decode
	}

	res, err := stream.Transfer(ctx, r.logger, opts, req)
	if err != nil {
		return err
	}
	r.logger.Info("download finished",
		logging.Int64("bytes", res.Bytes),
		logging.Int64("estimated_bytes", resp.EstimatedLength),
		logging.Duration("elapsed", res.Duration),
	)
	if keepEncrypted {
		return r.decodeFile(ctx)
	}
	return nil
}

// decodeFile decodes the retained encrypted copy into the download file.
func (r *run) decodeFile(ctx context.Context) error {
	f, err := os.Open(r.paths.Encrypted)
	if err != nil {
		return services.Wrap(services.ErrTransfer, StageDownloading.String(), "open encrypted copy",
			"Could not read the downloaded recording", err)
	}
	opts := stream.Options{
		PipeCapacity: r.p.cfg.Download.PipeCapacityBytes,
		ChunkSize:    r.p.cfg.Download.ChunkSizeBytes,
		MinSizeRatio: -1,
	}
	_, err = stream.Transfer(ctx, r.logger, opts, stream.Request{
		Body:   io.NopCloser(f),
		Output: r.paths.Download,
		Decode: r.p.decoder().Decode,
	})
	_ = f.Close()
	return err
}

func (r *run) downloadProgress(p stream.Progress) {
	st := StageStatus(StageDownloading, p.Fraction(), p.ETA)
	st.Bytes = p.Bytes
	st.Estimated = p.Estimated
	st.KiBPerSecond = p.BytesPerSecond / 1024
	r.pub.publish(st)
}
