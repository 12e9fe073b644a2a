package environ

import (
	"github.com/rs/zerolog"

	"github.com/Paintersrp/kirad/internal/envfile"
	"github.com/Paintersrp/kirad/internal/platform"
	"github.com/Paintersrp/kirad/internal/resolve"
)

const (
	// CLIPathKey tells the worker where the companion CLI lives so it can
	// skip its own discovery.
	CLIPathKey = "CLAUDE_CODE_CLI_PATH"
	// AppEnvKey selects the worker's settings profile.
	AppEnvKey = "APP_ENV"
)

// Options tune composition.
type Options struct {
	Layout   platform.Layout
	Packaged bool
	Log      *zerolog.Logger
}

// Compose layers the worker environment: base, then config file pairs, then
// tool directories prepended to PATH, then fixed platform overrides. Absent
// tools are skipped silently.
func Compose(base []string, cfg *envfile.File, d resolve.Discoveries, opts Options) *Set {
	log := zerolog.Nop()
	if opts.Log != nil {
		log = *opts.Log
	}
	layout := opts.Layout
	sep := layout.PathListSeparator()

	env := FromEnviron(base, layout.Windows())
	for _, p := range cfg.Pairs() {
		env.Set(p.Key, p.Value)
	}

	if d.ScriptRunner.Found() {
		dir := d.ScriptRunner.Dir()
		if env.PrependPath(dir, sep) {
			log.Debug().Str("dir", dir).Msg("added script runner to PATH")
		}
	}
	if d.CLI.Found() {
		env.Set(CLIPathKey, d.CLI.Path)
		env.PrependPath(d.CLI.Dir(), sep)
	}

	for key, value := range layout.EnvOverrides() {
		env.Set(key, value)
	}

	if opts.Packaged {
		env.Set(AppEnvKey, "production")
	} else {
		env.SetDefault(AppEnvKey, "dev")
	}
	return env
}
