package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/kirad/internal/bootstrap"
	"github.com/Paintersrp/kirad/internal/config"
	"github.com/Paintersrp/kirad/internal/logging"
	"github.com/Paintersrp/kirad/internal/platform"
	"github.com/Paintersrp/kirad/internal/resolve"
	"github.com/Paintersrp/kirad/internal/supervisor"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{}

	root := &cobra.Command{
		Use:   "kirad",
		Short: "Supervise the KIRA backend worker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			if ctx.logLevel != "" && !logging.SetLevel(ctx.logLevel) {
				return fmt.Errorf("unknown log level %q", ctx.logLevel)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&ctx.settingsFile, "settings", "s", os.Getenv("KIRAD_SETTINGS"), "Path to a YAML or TOML settings file")
	root.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newStopCmd(ctx))
	root.AddCommand(newStatusCmd(ctx))
	root.AddCommand(newResolveCmd(ctx))
	root.AddCommand(newEnvCmd(ctx))
	root.AddCommand(newInstallCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// context carries state shared by subcommands.
type context struct {
	settingsFile string
	logLevel     string

	// host is replaced in tests.
	host platform.Host

	mu       sync.Mutex
	settings *config.Settings
}

func (c *context) loadSettings() (*config.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settings != nil {
		return c.settings, nil
	}
	if c.settingsFile == "" {
		c.settings = config.Default()
		return c.settings, nil
	}
	settings, err := config.Load(c.settingsFile)
	if err != nil {
		return nil, err
	}
	c.settings = settings
	return c.settings, nil
}

func (c *context) logger() zerolog.Logger {
	return log.Logger
}

func (c *context) platformHost() platform.Host {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.host == nil {
		c.host = platform.Current(nil)
	}
	return c.host
}

func (c *context) resolver() *resolve.Resolver {
	return resolve.New(c.platformHost().Layout(), resolve.WithLogger(c.logger()))
}

func (c *context) supervisor(settings *config.Settings, opts ...supervisor.Option) *supervisor.Supervisor {
	base := []supervisor.Option{
		supervisor.WithResolver(c.resolver()),
		supervisor.WithLogger(c.logger()),
		supervisor.WithIdentity(supervisor.NewIdentity(settings.Worker.PIDFile())),
	}
	return supervisor.New(c.platformHost(), append(base, opts...)...)
}

func (c *context) installer() *bootstrap.Installer {
	return bootstrap.New(c.resolver(), bootstrap.WithLogger(c.logger()))
}
