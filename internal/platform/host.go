package platform

import (
	"context"
	"os/exec"

	"github.com/Paintersrp/kirad/internal/cmdrun"
)

// Signal is the escalation level delivered to a worker.
type Signal int

const (
	// SignalTerminate requests a graceful exit.
	SignalTerminate Signal = iota
	// SignalKill forces the worker down.
	SignalKill
)

func (s Signal) String() string {
	if s == SignalKill {
		return "kill"
	}
	return "terminate"
}

// Sweep identifies stray worker processes by executable image and a
// substring of their command line.
type Sweep struct {
	Image   string
	Pattern string
}

// Host is the process-control capability of one OS family.
type Host interface {
	// Layout describes the install conventions of the host.
	Layout() Layout

	// SupportsGroups reports whether Detach yields a signalable process
	// group on this host.
	SupportsGroups() bool

	// Detach prepares cmd so that the worker leads its own process group.
	// It reports whether group signalling will be available afterwards.
	Detach(cmd *exec.Cmd) bool

	// Signal delivers sig to the group led by pid, or to pid alone when
	// group is false. A target that no longer exists is not an error.
	Signal(pid int, group bool, sig Signal) error

	// KillTree forcefully terminates pid and its descendants, then any
	// process matching sweep. It is best effort and never fails.
	KillTree(ctx context.Context, pid int, sweep Sweep)

	// Alive reports whether a process with the given id exists.
	Alive(ctx context.Context, pid int) bool

	// Owns reports whether pid still looks like a worker started by Detach:
	// its command line contains marker and, where groups are supported, it
	// leads its own process group. A recycled PID fails the check.
	Owns(ctx context.Context, pid int, marker string) bool
}

// Current returns the host implementation for the running OS family.
func Current(runner cmdrun.Runner) Host {
	if runner == nil {
		runner = cmdrun.ExecRunner{}
	}
	return newHost(DetectLayout(), runner)
}

// New returns the host implementation for the running OS family with an
// explicit layout.
func New(layout Layout, runner cmdrun.Runner) Host {
	if runner == nil {
		runner = cmdrun.ExecRunner{}
	}
	return newHost(layout, runner)
}
