package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStopCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a worker recorded in the PID file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.loadSettings()
			if err != nil {
				return err
			}
			sup := ctx.supervisor(settings)
			found, err := sup.Reap(cmd.Context(), settings.Worker)
			if err != nil {
				return fmt.Errorf("stop worker: %w", err)
			}
			if found {
				fmt.Fprintln(cmd.OutOrStdout(), "Worker stopped")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No worker running")
			}
			return nil
		},
	}
}
