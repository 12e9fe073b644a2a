package supervisor

import (
	"strings"
	"time"
)

// Severity classifies one line of worker output.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Stream names the pipe a line arrived on.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Classify derives a severity from the markers the worker's logger prints.
// Stream of origin does not matter.
func Classify(text string) Severity {
	switch {
	case strings.Contains(text, "ERROR:"), strings.Contains(text, "CRITICAL:"):
		return SeverityError
	case strings.Contains(text, "WARNING:"):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// LogLine is one non-blank line of worker output.
type LogLine struct {
	Time     time.Time
	RunID    string
	Stream   string
	Severity Severity
	Text     string
}

// Exit describes how a worker ended.
type Exit struct {
	Time  time.Time
	RunID string
	PID   int
	// Code is the exit status, or -1 when the worker died from a signal.
	Code int
	// Requested is set when the exit followed a Stop.
	Requested bool
}

// Outcome summarises the exit for display and metrics.
func (e Exit) Outcome() string {
	switch {
	case e.Requested:
		return "requested"
	case e.Code == 0:
		return "clean"
	default:
		return "crashed"
	}
}

// Result reports the outcome of Start.
type Result struct {
	OK      bool
	Message string
}

// Observer receives worker events. Calls are serialized.
type Observer interface {
	OnLogLine(LogLine)
	OnStopped(Exit)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	LogLine func(LogLine)
	Stopped func(Exit)
}

func (o ObserverFuncs) OnLogLine(line LogLine) {
	if o.LogLine != nil {
		o.LogLine(line)
	}
}

func (o ObserverFuncs) OnStopped(exit Exit) {
	if o.Stopped != nil {
		o.Stopped(exit)
	}
}
