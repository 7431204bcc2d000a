package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"archivist/internal/daemon"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Archive queued recordings until interrupted",
		Long: "Run the queue runner in the foreground. Only one runner may use a " +
			"queue at a time. With --once the runner exits when the queue is drained.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			err = daemon.Run(cmd.Context(), cfg, logger, daemon.Options{Once: once})
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return fmt.Errorf("%w (lock %s)", err, cfg.LockPath())
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Exit once no pending or running items remain")
	return cmd
}
