package cli

import (
	"bufio"
	stdcontext "context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Paintersrp/kirad/internal/bootstrap"
	"github.com/Paintersrp/kirad/internal/logmux"
	"github.com/Paintersrp/kirad/internal/supervisor"
)

var (
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// linePrinter writes worker events, styled when the output is a terminal.
type linePrinter struct {
	out     io.Writer
	colored bool
}

func newLinePrinter(out io.Writer, colored bool) *linePrinter {
	return &linePrinter{out: out, colored: colored}
}

func (p *linePrinter) print(evt logmux.Event) {
	fmt.Fprintln(p.out, p.format(evt))
}

func (p *linePrinter) format(evt logmux.Event) string {
	ts := evt.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := ts.Format(time.TimeOnly)
	text := evt.Text
	if !p.colored {
		if evt.Stream == logmux.StreamSystem {
			return fmt.Sprintf("%s [%s] %s", stamp, logmux.StreamSystem, text)
		}
		return fmt.Sprintf("%s %s", stamp, text)
	}

	switch {
	case evt.Stream == logmux.StreamSystem:
		text = systemStyle.Render(text)
	case evt.Severity == supervisor.SeverityError:
		text = errorStyle.Render(text)
	case evt.Severity == supervisor.SeverityWarning:
		text = warningStyle.Render(text)
	}
	return timeStyle.Render(stamp) + " " + text
}

// promptConsent asks on out and reads the answer from in. Without a
// terminal the answer is no unless assumeYes is set.
func promptConsent(in io.Reader, out io.Writer, interactive, assumeYes bool) bootstrap.Consent {
	return func(_ stdcontext.Context, tool string) bool {
		if assumeYes {
			return true
		}
		if !interactive {
			return false
		}
		fmt.Fprintf(out, "%s is required but was not found. Install it now? [y/N] ", tool)
		line, _ := bufio.NewReader(in).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}
