package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Paintersrp/kirad/internal/logmux"
	"github.com/Paintersrp/kirad/internal/supervisor"
)

// LogRecord represents a worker event ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	RunID     string    `json:"run_id,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
}

// NewLogRecord converts a mux event into a structured record with secrets
// masked.
func NewLogRecord(event logmux.Event) LogRecord {
	level := string(event.Severity)
	if level == "" {
		level = string(supervisor.Classify(event.Text))
	}
	source := event.Stream
	if source == "" {
		source = logmux.StreamSystem
	}
	record := LogRecord{
		Timestamp: event.Time,
		RunID:     event.RunID,
		Level:     level,
		Message:   RedactSecrets(event.Text),
		Source:    source,
	}
	if event.Kind == logmux.KindStopped {
		code := event.Exit.Code
		record.ExitCode = &code
		record.Outcome = event.Exit.Outcome()
	}
	return record
}

// EncodeLogEvent encodes an event to JSON, reporting errors to stderr if needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event logmux.Event) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}
