package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/kirad/internal/config"
	"github.com/Paintersrp/kirad/internal/envfile"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and update the worker config file",
	}
	cmd.AddCommand(newConfigGetCmd(ctx))
	cmd.AddCommand(newConfigSetCmd(ctx))
	cmd.AddCommand(newConfigListCmd(ctx))
	cmd.AddCommand(newConfigLintCmd(ctx))
	return cmd
}

func newConfigGetCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print one value from the worker config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _, err := loadWorkerConfig(ctx, false)
			if err != nil {
				return err
			}
			value, ok := file.Get(args[0])
			if !ok {
				return fmt.Errorf("%s is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigSetCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Write one value to the worker config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, path, err := loadWorkerConfig(ctx, true)
			if err != nil {
				return err
			}
			file.Set(args[0], args[1])
			if err := envfile.Save(path, file.Map(), envfile.DefaultSchema); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s in %s\n", args[0], path)
			return nil
		},
	}
}

func newConfigListCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keys set in the worker config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _, err := loadWorkerConfig(ctx, false)
			if err != nil {
				return err
			}
			keys := make([]string, 0, file.Len())
			for _, pair := range file.Pairs() {
				keys = append(keys, pair.Key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	return &cobra.Command{
		Use:   "lint [settings-file]",
		Short: "Validate a kirad settings file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.settingsFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no settings file given")
			}
			if _, err := config.Load(path); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			return nil
		},
	}
}

// loadWorkerConfig reads the fixed worker config file. When create is set
// a missing file yields an empty config rather than an error.
func loadWorkerConfig(ctx *context, create bool) (*envfile.File, string, error) {
	settings, err := ctx.loadSettings()
	if err != nil {
		return nil, "", err
	}
	path := settings.Worker.ConfigFile()
	file, err := envfile.Load(path)
	if err != nil {
		if create && errors.Is(err, fs.ErrNotExist) {
			return envfile.New(), path, nil
		}
		return nil, "", err
	}
	return file, path, nil
}
