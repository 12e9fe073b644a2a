package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/kirad/internal/supervisor"
)

func newStatusCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the worker recorded in the PID file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.loadSettings()
			if err != nil {
				return err
			}
			w := settings.Worker
			id := supervisor.NewIdentity(w.PIDFile())

			state, pid := "stopped", "-"
			recorded, err := id.Read()
			switch {
			case errors.Is(err, fs.ErrNotExist):
			case err != nil:
				state = "unknown"
			case !ctx.platformHost().Alive(cmd.Context(), recorded):
				state, pid = "stale", fmt.Sprint(recorded)
			case ctx.platformHost().Owns(cmd.Context(), recorded, w.Target()):
				state, pid = "running", fmt.Sprint(recorded)
			default:
				// The PID was recycled by an unrelated process.
				state, pid = "stale", fmt.Sprint(recorded)
			}

			configFile, cfgErr := supervisor.SelectConfigFile(w)
			if cfgErr != nil {
				configFile = "missing"
			}

			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(out, "STATE\tPID\tCONFIG\tLOG")
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", state, pid, configFile, w.LogFile())
			return out.Flush()
		},
	}
}
