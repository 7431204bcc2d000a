package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/archive"
	"archivist/internal/queue"
	"archivist/internal/tivo"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the archive queue",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

type recordingFlags struct {
	title         string
	destination   string
	format        string
	series        string
	episodeTitle  string
	episodeNumber string
	channel       string
	description   string
}

func (f *recordingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Recording title")
	cmd.Flags().StringVarP(&f.destination, "dest", "o", "", "Destination file (defaults to the library directory)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Destination format: tivo, ts, mp4 or mkv")
	cmd.Flags().StringVar(&f.series, "series", "", "Series title for the metadata sidecar")
	cmd.Flags().StringVar(&f.episodeTitle, "episode-title", "", "Episode title for the metadata sidecar")
	cmd.Flags().StringVar(&f.episodeNumber, "episode", "", "Episode number for the metadata sidecar")
	cmd.Flags().StringVar(&f.channel, "channel", "", "Channel number for the metadata sidecar")
	cmd.Flags().StringVar(&f.description, "description", "", "Description for the metadata sidecar")
}

// resolve fills in the destination and format from the flags, the
// configured default format and the library directory.
func (f *recordingFlags) resolve(libraryDir, defaultFormat string) (queue.NewItem, error) {
	item := queue.NewItem{
		Title:       strings.TrimSpace(f.title),
		Destination: strings.TrimSpace(f.destination),
		Format:      strings.ToLower(strings.TrimSpace(f.format)),
		Metadata: tivo.Metadata{
			Title:         strings.TrimSpace(f.title),
			SeriesTitle:   strings.TrimSpace(f.series),
			EpisodeTitle:  strings.TrimSpace(f.episodeTitle),
			EpisodeNumber: strings.TrimSpace(f.episodeNumber),
			Channel:       strings.TrimSpace(f.channel),
			Description:   strings.TrimSpace(f.description),
		},
	}
	if item.Format != "" {
		if _, ok := archive.FormatByName(item.Format); !ok {
			return item, fmt.Errorf("unknown format %q", f.format)
		}
	}
	if item.Destination != "" {
		return item, nil
	}
	if item.Title == "" {
		return item, errors.New("provide --title or --dest")
	}
	name := item.Format
	if name == "" {
		name = defaultFormat
	}
	format, ok := archive.FormatByName(name)
	if !ok {
		return item, fmt.Errorf("unknown format %q", name)
	}
	item.Destination = archive.DefaultDestination(libraryDir, item.Title, format)
	return item, nil
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var flags recordingFlags

	cmd := &cobra.Command{
		Use:   "add <source>",
		Short: "Queue a recording for archiving",
		Long:  "Queue a recording. The source is the recording's download URL.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			n, err := flags.resolve(cfg.Paths.LibraryDir, cfg.Processing.DefaultFormat)
			if err != nil {
				return err
			}
			n.Source = strings.TrimSpace(args[0])
			return ctx.withStore(func(store *queue.Store) error {
				item, err := store.Add(cmd.Context(), n)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, newQueueItemView(item))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued item %d: %s -> %s\n", item.ID, item.DisplayTitle(), item.Destination)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					out := make(map[string]int, len(stats))
					for status, count := range stats {
						out[string(status)] = count
					}
					return writeJSON(cmd, out)
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]queue.Status, 0, len(listStatuses))
			for _, raw := range listStatuses {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(store *queue.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					views := make([]queueItemView, 0, len(items))
					for _, item := range items {
						views = append(views, newQueueItemView(item))
					}
					return writeJSON(cmd, views)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Title", "Status", "Stage", "Progress", "Elapsed", "Updated"},
					buildQueueListRows(items, time.Now()),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <itemID>",
		Short: "Show one queue item in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				item, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %d not found", id)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, newQueueItemView(item))
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderPairs(buildQueueShowPairs(item, time.Now())))
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <itemID...>",
		Short: "Cancel pending or running items",
		Long: "Cancel queue items. Pending items are cancelled at once; running items " +
			"are flagged and the runner stops them at its next heartbeat.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					cancelled, err := store.CancelPending(cmd.Context(), id)
					if err != nil {
						return err
					}
					if cancelled {
						fmt.Fprintf(out, "Item %d cancelled\n", id)
						continue
					}
					requested, err := store.RequestCancel(cmd.Context(), id)
					if err != nil {
						return err
					}
					if requested {
						fmt.Fprintf(out, "Item %d will stop shortly\n", id)
						continue
					}
					fmt.Fprintf(out, "Item %d is not pending or running\n", id)
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [itemID...]",
		Short: "Requeue failed or cancelled items",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					updated, err := store.RetryFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %d items\n", updated)
					return nil
				}
				for _, id := range ids {
					item, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if item == nil {
						fmt.Fprintf(out, "Item %d not found\n", id)
						continue
					}
					if item.Status != queue.StatusFailed && item.Status != queue.StatusCancelled {
						fmt.Fprintf(out, "Item %d is not failed or cancelled\n", id)
						continue
					}
					if _, err := store.RetryFailed(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(out, "Item %d reset for retry\n", id)
				}
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <itemID...>",
		Short: "Remove items that are not running",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					removed, err := store.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Item %d removed\n", id)
					} else {
						fmt.Fprintf(out, "Item %d not found or still running\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items that are not running",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withStore(func(store *queue.Store) error {
				out := cmd.OutOrStdout()
				switch {
				case clearCompleted:
					removed, err := store.ClearCompleted(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d completed items\n", removed)
				case clearFailed:
					removed, err := store.ClearFailed(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d failed items\n", removed)
				default:
					removed, err := store.Clear(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d queue items\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed and cancelled items")
	return cmd
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return running items to pending after a crash",
		Long: "Return running items to pending. Only use this when no runner is " +
			"active; a live runner resets its own items when it starts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				updated, err := store.ResetStuckProcessing(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d items\n", updated)
				return nil
			})
		},
	}
}

func parseItemID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", arg)
	}
	return id, nil
}

func parseItemIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseItemID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
