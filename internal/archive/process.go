package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"archivist/internal/edl"
	"archivist/internal/fileutil"
	"archivist/internal/logging"
	"archivist/internal/procexec"
	"archivist/internal/services"
	"archivist/internal/tools"
)

// concatETA is the fixed estimate shown while parts are joined.
const concatETA = 30 * time.Second

// process holds the processing slot for every post-download stage.
func (r *run) process(ctx context.Context) error {
	slot := r.p.slots.Processing
	if err := slot.Acquire(ctx); err != nil {
		return err
	}
	defer slot.Release()
	if err := ctx.Err(); err != nil {
		return err
	}
	r.logger.Debug("processing slot acquired")

	if !r.format.Decrypt {
		return r.finalize(r.paths.Download)
	}

	if err := r.remux(ctx, StageRemuxing, r.paths.Download, r.paths.Fixed); err != nil {
		return err
	}

	cut := false
	if r.p.cfg.Processing.SkipCommercials {
		if err := r.findCommercials(ctx); err != nil {
			return err
		}
		var err error
		if cut, err = r.removeCommercials(ctx); err != nil {
			return err
		}
	}

	if r.format.NeedsTranscode {
		input := r.paths.Fixed
		if cut {
			input = r.paths.Cut
		}
		if err := r.transcode(ctx, input); err != nil {
			return err
		}
		return r.finalize(r.paths.Transcode)
	}

	if cut {
		// The joined parts carry discontinuous timestamps; one more remux
		// pass over them produces a clean file.
		if err := fileutil.Move(r.paths.Cut, r.paths.Download); err != nil {
			return services.Wrap(services.ErrFilesystem, StageRemovingCommercials.String(), "stage cut file",
				"Could not prepare the cut recording", err)
		}
		if err := r.remux(ctx, StageRemovingCommercials, r.paths.Download, r.paths.Fixed); err != nil {
			return err
		}
	}
	return r.finalize(r.paths.Fixed)
}

// remux rewrites in's timestamps into out, reporting progress under stage.
func (r *run) remux(ctx context.Context, stage Stage, in, out string) error {
	defer stageTimer(stage)()
	r.pub.publish(StageStatus(stage, 0, Unknown))
	ffmpeg, err := r.p.require(stage.String(), "FFmpeg", r.p.cfg.Tools.FFmpeg)
	if err != nil {
		return err
	}
	_ = os.Remove(out)
	interp := tools.NewFFmpegProgress(func(p tools.Progress) {
		r.pub.publish(StageStatus(stage, p.Fraction, p.ETA))
	})
	return r.tool(ctx, stage, "remux", procexec.Command{Path: ffmpeg, Args: tools.RemuxArgs(in, out)}, interp,
		"Could not repair the recording's timestamps")
}

func (r *run) findCommercials(ctx context.Context) error {
	stage := StageFindingCommercials
	defer stageTimer(stage)()
	r.pub.publish(StageStatus(stage, 0, Unknown))
	comskip, err := r.p.require(stage.String(), "Comskip", r.p.cfg.Tools.Comskip)
	if err != nil {
		return err
	}
	_ = fileutil.RemoveAll(r.paths.ComskipLeftovers()...)
	threads := tools.ComskipThreads(ctx, r.p.cfg.Processing.ComskipThreads)
	args := tools.ComskipArgs(tools.ComskipIniPath(comskip), threads, r.paths.Fixed, filepath.Dir(r.paths.Fixed))
	interp := tools.NewComskipProgress(func(p tools.Progress) {
		r.pub.publish(StageStatus(stage, p.Fraction, Unknown))
	})
	return r.tool(ctx, stage, "detect commercials", procexec.Command{Path: comskip, Args: args}, interp,
		"Commercial detection failed")
}

// removeCommercials trims the kept segments out of the fixed file and joins
// them into the cut file. It reports false when there was nothing to cut.
func (r *run) removeCommercials(ctx context.Context) (bool, error) {
	stage := StageRemovingCommercials
	defer stageTimer(stage)()
	r.pub.publish(StageStatus(stage, 0, Unknown))
	if err := ctx.Err(); err != nil {
		return false, err
	}

	f, err := os.Open(r.paths.CutList)
	if errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(r.logger, "no cut list produced; keeping commercials", "cut_list_missing",
			logging.String("path", r.paths.CutList),
			logging.String(logging.FieldImpact, "the archive includes any commercials"),
			logging.String(logging.FieldErrorHint, "check comskip.ini sets output_ffsplit=1"),
		)
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrParse, stage.String(), "open cut list",
			"Could not read the commercial list", err)
	}
	offset := r.videoOffset(ctx)
	cuts, err := edl.Parse(f, offset, r.logger)
	_ = f.Close()
	if err != nil {
		return false, services.Wrap(services.ErrParse, stage.String(), "read cut list",
			"Could not read the commercial list", err)
	}
	if cuts.Len() == 0 {
		r.logger.Info("no commercials found")
		return false, nil
	}

	ffmpeg, err := r.p.require(stage.String(), "FFmpeg", r.p.cfg.Tools.FFmpeg)
	if err != nil {
		return false, err
	}
	keep := cuts.Keep()
	r.logger.Info("removing commercials",
		logging.Int("breaks", cuts.Len()),
		logging.Int("segments", len(keep)),
		logging.Float64("offset_seconds", offset),
	)
	for i, seg := range keep {
		r.pub.publish(StageStatus(stage, float64(i)/float64(len(keep))*0.9, Unknown))
		part := r.paths.Part(i + 1)
		_ = os.Remove(part)
		r.parts = append(r.parts, part)
		cmd := procexec.Command{Path: ffmpeg, Args: tools.TrimArgs(r.paths.Fixed, seg, part)}
		if err := r.tool(ctx, stage, fmt.Sprintf("trim segment %d", i+1), cmd, procexec.ExitZero{},
			"Could not cut the recording"); err != nil {
			return false, err
		}
	}
	if err := tools.WritePartList(r.paths.PartList, r.parts); err != nil {
		return false, services.Wrap(services.ErrExternalTool, stage.String(), "write part list",
			"Could not cut the recording", err)
	}

	r.pub.publish(StageStatus(stage, 0.95, concatETA))
	_ = os.Remove(r.paths.Cut)
	cmd := procexec.Command{Path: ffmpeg, Args: tools.ConcatArgs(r.paths.PartList, r.paths.Cut)}
	if err := r.tool(ctx, stage, "join segments", cmd, procexec.ExitZero{}, "Could not join the cut recording"); err != nil {
		return false, err
	}
	_ = fileutil.RemoveAll(append(r.parts, r.paths.PartList)...)
	r.parts = nil
	return true, nil
}

// videoOffset returns how far the video stream starts after the audio
// stream. Cut lists are measured against video, ffmpeg seeks against the
// container clock, so every boundary moves by this much.
func (r *run) videoOffset(ctx context.Context) float64 {
	res, err := r.p.probe(ctx, r.p.cfg.Tools.FFprobe, r.paths.Fixed)
	if err != nil {
		logging.WarnWithContext(r.logger, "stream offset unknown; cutting without it", "probe_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "cuts may land slightly early or late"),
			logging.String(logging.FieldErrorHint, "check that ffprobe is installed"),
		)
		return 0
	}
	return res.VideoOffsetFromAudio()
}

func (r *run) transcode(ctx context.Context, input string) error {
	stage := StageTranscoding
	defer stageTimer(stage)()
	r.pub.publish(StageStatus(stage, 0, Unknown))
	handbrake, err := r.p.require(stage.String(), "HandBrakeCLI", r.p.cfg.Tools.HandBrake)
	if err != nil {
		return err
	}
	proc := r.p.cfg.Processing
	opts := tools.TranscodeOptions{
		Input:     input,
		Output:    r.paths.Transcode,
		Preset:    r.format.HandBrake,
		MaxWidth:  proc.VideoWidth,
		MaxHeight: proc.VideoHeight,
		Stereo:    proc.AudioChannels == "stereo",
	}
	if proc.HardwareAcceleration {
		opts.QSV = r.quickSyncAvailable(ctx, handbrake, input)
	}
	_ = os.Remove(opts.Output)
	interp := tools.NewHandBrakeProgress(func(p tools.Progress) {
		r.pub.publish(StageStatus(stage, p.Fraction, p.ETA))
	})
	cmd := procexec.Command{Path: handbrake, Args: tools.HandBrakeArgs(opts)}
	return r.tool(ctx, stage, "transcode", cmd, interp, "Transcoding failed")
}

// quickSyncAvailable asks HandBrake whether it can use Quick Sync on this
// machine. A failed probe means software encoding.
func (r *run) quickSyncAvailable(ctx context.Context, handbrake, input string) bool {
	probe := &tools.ScanProbe{}
	if _, err := r.p.runner.Run(ctx, procexec.Command{Path: handbrake, Args: tools.ScanArgs(input)}, probe); err != nil {
		r.logger.Debug("hardware probe failed", logging.Error(err))
		return false
	}
	ok := probe.QuickSyncAvailable()
	r.logger.Info("hardware encoder probe", logging.Bool("quick_sync", ok))
	return ok
}

// finalize moves the finished file onto the destination, replacing any
// previous archive of the same recording. A failure is reported under the
// stage that produced src.
func (r *run) finalize(src string) error {
	if err := fileutil.Move(src, r.paths.Destination); err != nil {
		return services.Wrap(services.ErrFilesystem, r.rec.Status().Stage.String(), "move to destination",
			"Could not save the finished recording", err)
	}
	r.logger.Debug("archive saved", logging.String("path", r.paths.Destination))
	return nil
}

// tool runs cmd and classifies its failure. Cancellation passes through
// unchanged.
func (r *run) tool(ctx context.Context, stage Stage, operation string, cmd procexec.Command, interp procexec.Interpreter, summary string) error {
	res, err := r.p.runner.Run(ctx, cmd, interp)
	if err == nil {
		r.logger.Debug("tool finished",
			logging.String("operation", operation),
			logging.Int("exit_code", res.ExitCode),
			logging.Duration("elapsed", res.Duration),
		)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	wrapped := services.Wrap(services.ErrExternalTool, stage.String(), operation, summary, err)
	var exitErr *procexec.ExitError
	if errors.As(err, &exitErr) {
		return services.WithOutput(wrapped, exitErr.Output)
	}
	return wrapped
}
