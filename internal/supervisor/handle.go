package supervisor

import (
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Handle is a running worker. Exported fields are fixed at spawn.
type Handle struct {
	RunID   string
	PID     int
	Started time.Time
	// Grouped is set when the worker leads its own process group.
	Grouped bool

	workDir string
	image   string
	grace   time.Duration
	cmd     *exec.Cmd

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	done      chan struct{}
	requested atomic.Bool

	// guarded by Supervisor.emitMu
	stopped bool
}

// Done is closed once the worker has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the worker has not yet been reaped.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *Handle) write(text string) error {
	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()
	_, err := io.WriteString(h.stdin, text)
	return err
}
