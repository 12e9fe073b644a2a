package cli

import (
	"bytes"
	stdcontext "context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/kirad/internal/logmux"
	"github.com/Paintersrp/kirad/internal/supervisor"
)

func TestLinePrinterPlain(t *testing.T) {
	var buf bytes.Buffer
	p := newLinePrinter(&buf, false)
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	p.print(logmux.Event{Time: at, Severity: supervisor.SeverityError, Text: "ERROR: boom"})
	p.print(logmux.Event{Time: at, Stream: logmux.StreamSystem, Text: "dropped=4"})

	require.Equal(t, "09:30:00 ERROR: boom\n09:30:00 [kirad] dropped=4\n", buf.String())
}

func TestLinePrinterColoredKeepsText(t *testing.T) {
	p := newLinePrinter(nil, true)
	line := p.format(logmux.Event{Time: time.Now(), Severity: supervisor.SeverityWarning, Text: "WARNING: slow"})
	require.Contains(t, line, "WARNING: slow")
}

func TestPromptConsent(t *testing.T) {
	ctx := stdcontext.Background()

	var out bytes.Buffer
	require.True(t, promptConsent(strings.NewReader("yes\n"), &out, true, false)(ctx, "uv"))
	require.Contains(t, out.String(), "uv is required")

	require.False(t, promptConsent(strings.NewReader("\n"), &out, true, false)(ctx, "uv"))
	require.False(t, promptConsent(strings.NewReader("y\n"), &out, false, false)(ctx, "uv"))
	require.True(t, promptConsent(strings.NewReader(""), &out, false, true)(ctx, "uv"))
}
