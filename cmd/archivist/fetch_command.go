package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/archive"
	"archivist/internal/logging"
	"archivist/internal/notifications"
	"archivist/internal/procexec"
	"archivist/internal/services"
	"archivist/internal/tivo"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var flags recordingFlags
	var notify bool

	cmd := &cobra.Command{
		Use:   "fetch <source>",
		Short: "Archive one recording in the foreground",
		Long: "Download and process a single recording without using the queue. " +
			"Interrupting the command cancels the run and removes its partial files.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			n, err := flags.resolve(cfg.Paths.LibraryDir, cfg.Processing.DefaultFormat)
			if err != nil {
				return err
			}
			source := strings.TrimSpace(args[0])
			title := n.Title
			if title == "" {
				title = source
			}
			rec := &archive.Recording{
				Title:       title,
				Source:      source,
				Destination: n.Destination,
				Format:      n.Format,
				Metadata:    n.Metadata,
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := tivo.NewClient(cfg.Device, logger)
			if err != nil {
				return fmt.Errorf("device client: %w", err)
			}
			printer := newStatusPrinter(cmd.OutOrStdout())
			pipeline := archive.NewPipeline(cfg, archive.NewSlots(), client, procexec.NewRunner(logger), logger,
				archive.WithStatusSink(printer),
			)

			started := time.Now()
			outcome, runErr := pipeline.Run(services.WithRecording(runCtx, title), rec)
			printer.Close()

			var notifier notifications.Service
			if notify {
				notifier = notifications.NewService(cfg)
			}
			out := cmd.OutOrStdout()
			switch outcome {
			case archive.OutcomeCompleted:
				fmt.Fprintf(out, "Archived %s in %s\n", rec.Destination, time.Since(started).Round(time.Second))
				publishFetch(cmd.Context(), notifier, notifications.EventArchiveCompleted, notifications.Payload{
					"title":       title,
					"destination": rec.Destination,
					"duration":    time.Since(started).Round(time.Second),
				}, logger)
				return nil
			case archive.OutcomeCancelled:
				fmt.Fprintln(out, "Cancelled; partial files removed")
				return context.Canceled
			default:
				publishFetch(cmd.Context(), notifier, notifications.EventArchiveFailed, notifications.Payload{
					"title":   title,
					"summary": services.Summary(runErr),
				}, logger)
				return runErr
			}
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&notify, "notify", false, "Send the configured notification when the run ends")
	return cmd
}

func publishFetch(ctx context.Context, svc notifications.Service, event notifications.Event, payload notifications.Payload, logger *slog.Logger) {
	if svc == nil {
		return
	}
	if err := svc.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger.Warn("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
