// Package bootstrap installs the worker's package runner when it is missing.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Paintersrp/kirad/internal/cmdrun"
	"github.com/Paintersrp/kirad/internal/platform"
	"github.com/Paintersrp/kirad/internal/resolve"
)

// ErrDeclined is returned when the caller refuses the install.
var ErrDeclined = errors.New("install declined")

// InstallError reports a failed install command together with its output.
type InstallError struct {
	Tool     string
	ExitCode int
	Output   string
	Err      error
}

func (e *InstallError) Error() string {
	msg := fmt.Sprintf("install %s failed with exit code %d", e.Tool, e.ExitCode)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Consent asks the user whether tool may be installed.
type Consent func(ctx context.Context, tool string) bool

// Installer checks for and installs the runner tool.
type Installer struct {
	resolver *resolve.Resolver
	runner   cmdrun.Runner
	layout   platform.Layout
	log      zerolog.Logger
	tool     string

	getenv func(string) string
	setenv func(string, string) error
}

// Option customises an Installer.
type Option func(*Installer)

// WithRunner overrides the helper used for the liveness probe and install.
func WithRunner(r cmdrun.Runner) Option {
	return func(i *Installer) {
		if r != nil {
			i.runner = r
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(i *Installer) {
		i.log = l
	}
}

// New constructs an installer for the runner tool.
func New(resolver *resolve.Resolver, opts ...Option) *Installer {
	i := &Installer{
		resolver: resolver,
		runner:   cmdrun.ExecRunner{},
		layout:   resolver.Layout(),
		log:      zerolog.Nop(),
		tool:     platform.ToolRunner,
		getenv:   os.Getenv,
		setenv:   os.Setenv,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Present reports whether the tool resolves and answers "--version".
func (i *Installer) Present(ctx context.Context) bool {
	loc, ok := i.resolver.Resolve(ctx, i.tool)
	if !ok {
		return false
	}
	res := i.runner.Run(ctx, loc.Path, "--version")
	if !res.OK() {
		i.log.Warn().Str("path", loc.Path).Int("exit_code", res.ExitCode).Msg("tool found but not runnable")
		return false
	}
	i.log.Debug().Str("path", loc.Path).Str("version", res.FirstLine()).Msg("tool present")
	return true
}

// EnsureInstalled returns true when the tool is present or was installed.
// consent is only consulted when an install is needed; a nil consent
// declines.
func (i *Installer) EnsureInstalled(ctx context.Context, consent Consent) (bool, error) {
	if i.Present(ctx) {
		i.log.Info().Str("tool", i.tool).Msg("already installed")
		return true, nil
	}
	if consent == nil || !consent(ctx, i.tool) {
		return false, ErrDeclined
	}
	if err := i.Install(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Install runs the platform install command once and, on success, prepends
// the tool's directory to this process's PATH.
func (i *Installer) Install(ctx context.Context) error {
	name, args := i.layout.InstallCommand()
	i.log.Info().Str("tool", i.tool).Str("command", name+" "+strings.Join(args, " ")).Msg("installing")

	res := i.runner.Run(ctx, name, args...)
	output := res.Combined()
	if output != "" {
		i.log.Debug().Str("tool", i.tool).Msg(output)
	}
	if !res.OK() {
		return &InstallError{Tool: i.tool, ExitCode: res.ExitCode, Output: output, Err: res.Err}
	}

	dir := i.layout.InstallDir()
	if loc, ok := i.resolver.Resolve(ctx, i.tool); ok {
		dir = loc.Dir()
	}
	if err := i.prependPath(dir); err != nil {
		return fmt.Errorf("update PATH: %w", err)
	}
	i.log.Info().Str("tool", i.tool).Str("dir", dir).Msg("installed")
	return nil
}

func (i *Installer) prependPath(dir string) error {
	sep := i.layout.PathListSeparator()
	current := i.getenv("PATH")
	for _, entry := range strings.Split(current, sep) {
		if entry == dir {
			return nil
		}
	}
	if current == "" {
		return i.setenv("PATH", dir)
	}
	return i.setenv("PATH", dir+sep+current)
}
