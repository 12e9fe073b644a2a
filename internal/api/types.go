// Package api defines the local control surface over the supervised worker.
package api

import (
	stdcontext "context"
	"errors"
	"time"
)

var (
	ErrWorkerNotRunning = errors.New("server not running")
	ErrStartRefused     = errors.New("start refused")
	ErrEmptyInput       = errors.New("empty input")
)

// ExitReport describes the most recent worker exit.
type ExitReport struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id"`
	Code      int       `json:"code"`
	Outcome   string    `json:"outcome"`
	Requested bool      `json:"requested"`
	At        time.Time `json:"at"`
}

// StatusReport is the worker state at one instant.
type StatusReport struct {
	Running     bool        `json:"running"`
	PID         int         `json:"pid,omitempty"`
	RunID       string      `json:"run_id,omitempty"`
	Started     *time.Time  `json:"started,omitempty"`
	Uptime      string      `json:"uptime,omitempty"`
	LastExit    *ExitReport `json:"last_exit,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// StartResult mirrors the supervisor's start outcome.
type StartResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// SendRequest carries text written to the worker's stdin.
type SendRequest struct {
	Text string `json:"text"`
}

// Controller exposes worker operations required by control servers.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
	Start(stdcontext.Context) (*StartResult, error)
	Stop(stdcontext.Context) error
	Send(stdcontext.Context, string) error
}
