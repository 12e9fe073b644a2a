package environ

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/kirad/internal/envfile"
	"github.com/Paintersrp/kirad/internal/platform"
	"github.com/Paintersrp/kirad/internal/resolve"
)

func mustParse(t *testing.T, text string) *envfile.File {
	t.Helper()
	f, err := envfile.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return f
}

func discoveries() resolve.Discoveries {
	return resolve.Discoveries{
		ScriptRunner: resolve.Location{Tool: "npx", Path: "/opt/node/bin/npx", Source: resolve.SourceVersionManager},
		CLI:          resolve.Location{Tool: "claude", Path: "/opt/claude/bin/claude", Source: resolve.SourceFixedPath},
	}
}

func TestComposeLayersInOrder(t *testing.T) {
	base := []string{"PATH=/usr/bin:/bin", "HOME=/home/kira", "BOT_NAME=inherited"}
	cfg := mustParse(t, "BOT_NAME=\"Kira\"\nSLACK_TEAM_ID=T1\n")

	env := Compose(base, cfg, discoveries(), Options{Layout: platform.Layout{GOOS: "linux"}})

	path, _ := env.Get(PathKey)
	require.Equal(t, "/opt/claude/bin:/opt/node/bin:/usr/bin:/bin", path)

	name, _ := env.Get("BOT_NAME")
	require.Equal(t, "Kira", name)

	cli, _ := env.Get(CLIPathKey)
	require.Equal(t, "/opt/claude/bin/claude", cli)

	appEnv, _ := env.Get(AppEnvKey)
	require.Equal(t, "dev", appEnv)

	_, ok := env.Get("PYTHONIOENCODING")
	require.False(t, ok)
}

func TestComposeIsIdempotent(t *testing.T) {
	base := []string{"PATH=/usr/bin"}
	cfg := mustParse(t, "A=1\n")
	opts := Options{Layout: platform.Layout{GOOS: "linux"}}

	first := Compose(base, cfg, discoveries(), opts)
	second := Compose(base, cfg, discoveries(), opts)
	require.Equal(t, first.Environ(), second.Environ())

	// Re-composing on top of an already composed environment must not
	// stack duplicate PATH entries.
	third := Compose(first.Environ(), cfg, discoveries(), opts)
	p1, _ := first.Get(PathKey)
	p3, _ := third.Get(PathKey)
	require.Equal(t, p1, p3)
}

func TestComposeSkipsMissingTools(t *testing.T) {
	env := Compose([]string{"PATH=/usr/bin"}, nil, resolve.Discoveries{}, Options{Layout: platform.Layout{GOOS: "darwin"}})
	path, _ := env.Get(PathKey)
	require.Equal(t, "/usr/bin", path)
	_, ok := env.Get(CLIPathKey)
	require.False(t, ok)
}

func TestComposeWindowsOverrides(t *testing.T) {
	base := []string{`Path=C:\Windows`, "PYTHONIOENCODING=cp949"}
	d := resolve.Discoveries{
		CLI: resolve.Location{Tool: "claude", Path: "/npm/claude.cmd"},
	}

	env := Compose(base, nil, d, Options{Layout: platform.Layout{GOOS: "windows"}, Packaged: true})

	path, _ := env.Get("PATH")
	require.Equal(t, `/npm;C:\Windows`, path)
	enc, _ := env.Get("PYTHONIOENCODING")
	require.Equal(t, "utf-8", enc)
	appEnv, _ := env.Get(AppEnvKey)
	require.Equal(t, "production", appEnv)

	require.Contains(t, env.Environ(), `Path=/npm;C:\Windows`)
}

func TestComposeConfigCanSetAppEnv(t *testing.T) {
	cfg := mustParse(t, "APP_ENV=staging\n")
	env := Compose(nil, cfg, resolve.Discoveries{}, Options{Layout: platform.Layout{GOOS: "linux"}})
	appEnv, _ := env.Get(AppEnvKey)
	require.Equal(t, "staging", appEnv)

	packaged := Compose(nil, cfg, resolve.Discoveries{}, Options{Layout: platform.Layout{GOOS: "linux"}, Packaged: true})
	appEnv, _ = packaged.Get(AppEnvKey)
	require.Equal(t, "production", appEnv)
}

func TestSetPrependPathEmpty(t *testing.T) {
	s := NewSet(false)
	require.True(t, s.PrependPath("/a", ":"))
	require.False(t, s.PrependPath("/a", ":"))
	require.False(t, s.PrependPath("", ":"))
	require.Equal(t, []string{"PATH=/a"}, s.Environ())
}
