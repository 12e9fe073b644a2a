//go:build windows

package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Paintersrp/kirad/internal/cmdrun"
)

type windowsHost struct {
	layout Layout
	runner cmdrun.Runner
}

func newHost(layout Layout, runner cmdrun.Runner) Host {
	return &windowsHost{layout: layout, runner: runner}
}

func (h *windowsHost) Layout() Layout {
	return h.layout
}

func (h *windowsHost) SupportsGroups() bool {
	return false
}

// Detach is a no-op: windows has no process group primitive that covers
// grandchildren, so descendants are found through KillTree instead.
func (h *windowsHost) Detach(*exec.Cmd) bool {
	return false
}

func (h *windowsHost) Signal(pid int, _ bool, _ Signal) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

func (h *windowsHost) KillTree(ctx context.Context, pid int, sweep Sweep) {
	if pid > 0 {
		h.runner.Run(ctx, "taskkill", "/PID", strconv.Itoa(pid), "/T", "/F")
	}
	if sweep.Image == "" || sweep.Pattern == "" {
		return
	}
	h.runner.Run(ctx, "powershell", "-NoProfile", "-Command", sweepScript(sweep))
}

func (h *windowsHost) Alive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	res := h.runner.Run(ctx, "tasklist", "/FI", "PID eq "+strconv.Itoa(pid), "/NH", "/FO", "CSV")
	if !res.OK() {
		return false
	}
	return strings.Contains(string(res.Stdout), `"`+strconv.Itoa(pid)+`"`)
}

func (h *windowsHost) Owns(ctx context.Context, pid int, marker string) bool {
	if pid <= 0 || marker == "" {
		return false
	}
	script := fmt.Sprintf(`(Get-CimInstance Win32_Process -Filter "ProcessId=%d").CommandLine`, pid)
	res := h.runner.Run(ctx, "powershell", "-NoProfile", "-Command", script)
	if !res.OK() {
		return false
	}
	return strings.Contains(string(res.Stdout), marker)
}

// sweepScript builds a PowerShell program that kills every process whose
// image matches sweep.Image and whose command line contains sweep.Pattern,
// children first.
func sweepScript(sweep Sweep) string {
	quote := func(s string) string {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return `function Kill-Tree($id) {
  Get-CimInstance Win32_Process | Where-Object { $_.ParentProcessId -eq $id } | ForEach-Object {
    Kill-Tree $_.ProcessId
    Stop-Process -Id $_.ProcessId -Force -ErrorAction SilentlyContinue
  }
}
Get-CimInstance Win32_Process | Where-Object {
  $_.Name -eq ` + quote(sweep.Image) + ` -and $_.CommandLine -and $_.CommandLine.Contains(` + quote(sweep.Pattern) + `)
} | ForEach-Object {
  Kill-Tree $_.ProcessId
  Stop-Process -Id $_.ProcessId -Force -ErrorAction SilentlyContinue
}`
}
