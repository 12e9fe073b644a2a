// Package resolve locates the external tools the worker depends on.
//
// A desktop shell does not inherit the user's interactive PATH, so lookups
// probe conventional install locations first, then the native PATH lookup
// utility, and finally nvm-style version directories. Results are never
// cached: every supervision start resolves afresh.
package resolve

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Paintersrp/kirad/internal/cmdrun"
	"github.com/Paintersrp/kirad/internal/metrics"
	"github.com/Paintersrp/kirad/internal/platform"
)

// Source records how a tool was discovered.
type Source string

const (
	SourceFixedPath      Source = "fixed-path"
	SourceSearchPath     Source = "search-path"
	SourceVersionManager Source = "version-manager"
)

// Location is a resolved tool.
type Location struct {
	Tool   string
	Path   string
	Source Source
}

// Dir returns the directory containing the tool.
func (l Location) Dir() string {
	return filepath.Dir(l.Path)
}

// Found reports whether the location refers to a resolved tool.
func (l Location) Found() bool {
	return l.Path != ""
}

// versioned lists the tools that nvm installs per node version.
var versioned = map[string]bool{
	platform.ToolNPM: true,
	platform.ToolNPX: true,
	platform.ToolCLI: true,
}

// Resolver finds tools on the local host.
type Resolver struct {
	layout  platform.Layout
	runner  cmdrun.Runner
	log     zerolog.Logger
	isFile  func(string) bool
	readDir func(string) ([]os.DirEntry, error)
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithRunner overrides the helper used for PATH lookups and npm queries.
func WithRunner(r cmdrun.Runner) Option {
	return func(res *Resolver) {
		if r != nil {
			res.runner = r
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(res *Resolver) {
		res.log = l
	}
}

// WithFileCheck replaces the existence test applied to candidate paths.
func WithFileCheck(fn func(string) bool) Option {
	return func(res *Resolver) {
		if fn != nil {
			res.isFile = fn
		}
	}
}

// New constructs a resolver for the provided layout.
func New(layout platform.Layout, opts ...Option) *Resolver {
	r := &Resolver{
		layout:  layout,
		runner:  cmdrun.ExecRunner{},
		log:     zerolog.Nop(),
		isFile:  isFile,
		readDir: os.ReadDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Layout exposes the layout the resolver probes.
func (r *Resolver) Layout() platform.Layout {
	return r.layout
}

// Resolve locates tool. Absence is reported through the boolean.
func (r *Resolver) Resolve(ctx context.Context, tool string) (Location, bool) {
	loc, ok := r.resolve(ctx, tool)
	if ok {
		r.log.Debug().Str("tool", tool).Str("path", loc.Path).Str("source", string(loc.Source)).Msg("tool resolved")
		metrics.ObserveToolResolution(tool, string(loc.Source))
	} else {
		r.log.Debug().Str("tool", tool).Msg("tool not found")
		metrics.ObserveToolResolution(tool, "")
	}
	return loc, ok
}

func (r *Resolver) resolve(ctx context.Context, tool string) (Location, bool) {
	candidates := r.layout.FixedPaths(tool)
	if tool == platform.ToolCLI {
		if derived := r.derivedCLIPath(ctx); derived != "" {
			candidates = append([]string{derived}, candidates...)
		}
	}
	for _, path := range candidates {
		if r.isFile(path) {
			return Location{Tool: tool, Path: path, Source: SourceFixedPath}, true
		}
	}

	if path := r.searchPath(ctx, tool); path != "" {
		return Location{Tool: tool, Path: path, Source: SourceSearchPath}, true
	}

	if versioned[tool] {
		if path := r.versionManager(tool); path != "" {
			return Location{Tool: tool, Path: path, Source: SourceVersionManager}, true
		}
	}
	return Location{}, false
}

func (r *Resolver) searchPath(ctx context.Context, tool string) string {
	res := r.runner.Run(ctx, r.layout.WhichCommand(), tool)
	if !res.OK() {
		return ""
	}
	path := res.FirstLine()
	if path == "" || !filepath.IsAbs(path) {
		return ""
	}
	return path
}

// versionManager returns the tool from the highest installed node version
// that ships it.
func (r *Resolver) versionManager(tool string) string {
	root := r.layout.VersionRoot()
	entries, err := r.readDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn().Err(err).Str("root", root).Msg("read version manager root")
		}
		return ""
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			versions = append(versions, entry.Name())
		}
	}
	SortVersionsDesc(versions)
	for _, version := range versions {
		path := r.layout.VersionedPath(root, version, tool)
		if r.isFile(path) {
			return path
		}
	}
	return ""
}

// derivedCLIPath asks npm for its global module root and maps it to the
// sibling binary directory where a global CLI install lands.
func (r *Resolver) derivedCLIPath(ctx context.Context) string {
	var npm string
	for _, candidate := range r.layout.FixedPaths(platform.ToolNPM) {
		if r.isFile(candidate) {
			npm = candidate
			break
		}
	}
	if npm == "" {
		return ""
	}
	res := r.runner.Run(ctx, npm, "root", "-g")
	if !res.OK() {
		r.log.Warn().Str("npm", npm).Int("exit_code", res.ExitCode).Msg("npm root -g failed")
		return ""
	}
	bin := r.layout.GlobalBinFromRoot(res.FirstLine())
	if bin == "" {
		return ""
	}
	r.log.Debug().Str("bin", bin).Msg("npm global bin")
	return filepath.Join(bin, r.layout.ExeName(platform.ToolCLI))
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
