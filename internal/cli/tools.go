package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/kirad/internal/cliutil"
	"github.com/Paintersrp/kirad/internal/envfile"
	"github.com/Paintersrp/kirad/internal/environ"
	"github.com/Paintersrp/kirad/internal/platform"
	"github.com/Paintersrp/kirad/internal/supervisor"
)

var reportedTools = []string{platform.ToolRunner, platform.ToolNPM, platform.ToolNPX, platform.ToolCLI}

func newResolveCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [tool...]",
		Short: "Show where each external tool was found",
		RunE: func(cmd *cobra.Command, args []string) error {
			tools := args
			if len(tools) == 0 {
				tools = reportedTools
			}
			resolver := ctx.resolver()
			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(out, "TOOL\tPATH\tSOURCE")
			for _, tool := range tools {
				loc, ok := resolver.Resolve(cmd.Context(), tool)
				if !ok {
					fmt.Fprintf(out, "%s\t-\tnot found\n", tool)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", tool, loc.Path, loc.Source)
			}
			return out.Flush()
		},
	}
}

func newEnvCmd(ctx *context) *cobra.Command {
	var all, showSecrets bool
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the environment the worker would receive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.loadSettings()
			if err != nil {
				return err
			}
			w := settings.Worker
			path, err := supervisor.SelectConfigFile(w)
			if err != nil {
				return err
			}
			cfg, err := envfile.Load(path)
			if err != nil {
				return err
			}

			layout := ctx.platformHost().Layout()
			base := os.Environ()
			log := ctx.logger()
			env := environ.Compose(base, cfg, ctx.resolver().Discover(cmd.Context()), environ.Options{
				Layout:   layout,
				Packaged: w.Packaged,
				Log:      &log,
			})

			inherited := environ.FromEnviron(base, layout.Windows())
			for _, entry := range env.Sorted() {
				key, value, _ := strings.Cut(entry, "=")
				if !all {
					if prev, ok := inherited.Get(key); ok && prev == value {
						continue
					}
				}
				if !showSecrets {
					value = cliutil.RedactValue(key, value)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", key, value)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include variables inherited unchanged")
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print credential values instead of masking them")
	return cmd
}

func newInstallCmd(ctx *context) *cobra.Command {
	var assumeYes bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the package runner if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst := ctx.installer()
			consent := promptConsent(cmd.InOrStdin(), cmd.ErrOrStderr(), isTerminal(os.Stdin), assumeYes)
			if _, err := inst.EnsureInstalled(cmd.Context(), consent); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is installed\n", platform.ToolRunner)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Install without asking")
	return cmd
}
