//go:build !windows

package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/kirad/internal/cmdrun"
)

type unixHost struct {
	layout Layout
	runner cmdrun.Runner
}

func newHost(layout Layout, runner cmdrun.Runner) Host {
	return &unixHost{layout: layout, runner: runner}
}

func (h *unixHost) Layout() Layout {
	return h.layout
}

func (h *unixHost) SupportsGroups() bool {
	return true
}

func (h *unixHost) Detach(cmd *exec.Cmd) bool {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	return true
}

func (h *unixHost) Signal(pid int, group bool, sig Signal) error {
	if pid <= 0 {
		return nil
	}
	s := unix.SIGTERM
	if sig == SignalKill {
		s = unix.SIGKILL
	}
	if group {
		err := unix.Kill(-pid, s)
		if err == nil || errors.Is(err, unix.ESRCH) {
			return nil
		}
		// Fall back to the leader alone when the group is not ours to signal.
	}
	if err := unix.Kill(pid, s); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("send %s to pid %d: %w", sig, pid, err)
	}
	return nil
}

// KillTree relies on the worker having been started as a group leader; the
// sweep is not needed because every descendant shares the group.
func (h *unixHost) KillTree(_ context.Context, pid int, _ Sweep) {
	_ = h.Signal(pid, true, SignalKill)
}

func (h *unixHost) Alive(_ context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func (h *unixHost) Owns(ctx context.Context, pid int, marker string) bool {
	if pid <= 0 || marker == "" {
		return false
	}
	if pgid, err := unix.Getpgid(pid); err != nil || pgid != pid {
		return false
	}
	return strings.Contains(h.commandLine(ctx, pid), marker)
}

// commandLine reads procfs where available and asks ps elsewhere.
func (h *unixHost) commandLine(ctx context.Context, pid int) string {
	if data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/cmdline"); err == nil {
		return string(bytes.ReplaceAll(bytes.TrimRight(data, "\x00"), []byte{0}, []byte{' '}))
	}
	res := h.runner.Run(ctx, "ps", "-o", "command=", "-p", strconv.Itoa(pid))
	if !res.OK() {
		return ""
	}
	return res.FirstLine()
}
