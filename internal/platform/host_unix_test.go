//go:build !windows

package platform

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalGroupTerminatesDescendants(t *testing.T) {
	host := New(unixLayout(), nil)

	cmd := exec.Command("/bin/sh", "-c", "sleep 30 & sleep 30; wait")
	require.True(t, host.Detach(cmd))
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	require.NoError(t, host.Signal(pid, true, SignalTerminate))
	select {
	case <-waitErr:
	case <-time.After(5 * time.Second):
		t.Fatal("worker group did not exit after terminate")
	}

	require.Eventually(t, func() bool {
		return !host.Alive(context.Background(), pid)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSignalMissingTargetIsNotAnError(t *testing.T) {
	host := New(unixLayout(), nil)

	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	host.Detach(cmd)
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	require.NoError(t, host.Signal(pid, true, SignalKill))
	require.NoError(t, host.Signal(pid, false, SignalKill))
	require.False(t, host.Alive(context.Background(), pid))
}

func TestAliveRejectsInvalidPID(t *testing.T) {
	host := New(unixLayout(), nil)
	require.False(t, host.Alive(context.Background(), 0))
	require.NoError(t, host.Signal(0, true, SignalKill))
}

func TestOwnsMatchesGroupLeaderCommandLine(t *testing.T) {
	if _, err := os.Stat("/proc/self/cmdline"); err != nil {
		t.Skip("needs procfs")
	}
	host := New(unixLayout(), nil)

	leader := exec.Command("/bin/sh", "-c", "while :; do sleep 0.05; done", "app.main")
	host.Detach(leader)
	require.NoError(t, leader.Start())
	t.Cleanup(func() {
		_ = host.Signal(leader.Process.Pid, true, SignalKill)
		_ = leader.Wait()
	})

	follower := exec.Command("/bin/sh", "-c", "while :; do sleep 0.05; done", "app.main")
	require.NoError(t, follower.Start())
	t.Cleanup(func() {
		_ = follower.Process.Kill()
		_ = follower.Wait()
	})

	ctx := context.Background()
	require.True(t, host.Owns(ctx, leader.Process.Pid, "app.main"))
	require.False(t, host.Owns(ctx, leader.Process.Pid, "other.module"))
	require.False(t, host.Owns(ctx, follower.Process.Pid, "app.main"), "not a group leader")
	require.False(t, host.Owns(ctx, leader.Process.Pid, ""))
	require.False(t, host.Owns(ctx, 0, "app.main"))
}
