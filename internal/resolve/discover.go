package resolve

import (
	"context"

	"github.com/Paintersrp/kirad/internal/platform"
)

// Discoveries holds the optional tools layered into the worker environment.
// A zero Location means the tool was not found.
type Discoveries struct {
	ScriptRunner Location
	CLI          Location
}

// Discover resolves the optional worker tools. The script runner is resolved
// before the companion CLI because the CLI's PATH entry is layered on top.
func (r *Resolver) Discover(ctx context.Context) Discoveries {
	var d Discoveries
	if loc, ok := r.Resolve(ctx, platform.ToolNPX); ok {
		d.ScriptRunner = loc
	} else {
		r.log.Warn().Msg("npx not found, MCP servers launched through npx will fail")
	}
	if loc, ok := r.Resolve(ctx, platform.ToolCLI); ok {
		d.CLI = loc
	} else {
		r.log.Warn().Msg("claude CLI not found in any standard location")
	}
	return d
}
