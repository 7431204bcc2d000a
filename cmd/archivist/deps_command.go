package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"archivist/internal/deps"
	"archivist/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tools, directories and free space",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := deps.CheckBinaries(deps.Requirements(cfg))
			if cfg.Processing.SkipCommercials {
				results = append(results, deps.CheckComskipIni(cfg.Tools.Comskip))
			}
			checks := preflight.RunAll(cmd.Context(), cfg)
			if ctx.JSONMode() {
				if err := writeJSON(cmd, struct {
					Tools  []deps.Status      `json:"tools"`
					Checks []preflight.Result `json:"checks"`
				}{results, checks}); err != nil {
					return err
				}
				return missingRequired(results)
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				state := "ok"
				if !r.Available {
					state = "missing"
					if r.Optional {
						state = "missing (optional)"
					}
				}
				rows = append(rows, []string{r.Name, r.Command, state, r.Detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Tool", "Command", "State", "Detail"}, rows, nil))
			checkRows := make([][]string, 0, len(checks))
			for _, c := range checks {
				checkRows = append(checkRows, []string{c.Name, yesNo(c.Passed), c.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Passed", "Detail"}, checkRows, nil))
			return missingRequired(results)
		},
	}
}

func missingRequired(results []deps.Status) error {
	var missing []string
	for _, r := range results {
		if !r.Available && !r.Optional {
			missing = append(missing, r.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("required tools missing: %s", strings.Join(missing, ", "))
}
