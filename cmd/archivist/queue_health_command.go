package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"archivist/internal/queue"
)

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health (schema, integrity, columns)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				resp, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, struct {
						Database queue.DatabaseHealth `json:"database"`
						Summary  queue.HealthSummary  `json:"summary"`
					}{resp, summary})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database path: %s\n", resp.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(resp.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(resp.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %d\n", resp.SchemaVersion)
				fmt.Fprintf(out, "recordings table present: %s\n", yesNo(resp.TableExists))
				if len(resp.MissingColumns) > 0 {
					missing := append([]string(nil), resp.MissingColumns...)
					sort.Strings(missing)
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
				} else {
					fmt.Fprintln(out, "Missing columns: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(resp.IntegrityCheck))
				fmt.Fprintf(out, "Total: %d\nPending: %d\nRunning: %d\nFailed: %d\nCancelled: %d\nCompleted: %d\n",
					summary.Total, summary.Pending, summary.Running, summary.Failed, summary.Cancelled, summary.Completed)
				if resp.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", resp.Error)
				}
				return nil
			})
		},
	}
}
