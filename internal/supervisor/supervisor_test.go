//go:build !windows

package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Paintersrp/kirad/internal/cmdrun"
	"github.com/Paintersrp/kirad/internal/config"
	"github.com/Paintersrp/kirad/internal/platform"
	"github.com/Paintersrp/kirad/internal/resolve"
)

// fakeRunner stands in for uv: it ignores its arguments and behaves
// according to WORKER_MODE, which the worker config file supplies.
const fakeRunner = `#!/bin/sh
case "$WORKER_MODE" in
crash)
  echo "INFO: booting"
  echo "ERROR: boom" >&2
  exit 3
  ;;
echo)
  echo "ready"
  while read line; do echo "got $line"; done
  ;;
stubborn)
  trap '' TERM
  echo "ready"
  while :; do sleep 0.05; done
  ;;
orphan)
  ( trap '' TERM; while :; do sleep 0.05; done ) &
  echo "ready $!"
  wait
  ;;
*)
  echo "ready"
  echo "WARNING: app env $APP_ENV"
  exec sleep 30
  ;;
esac
`

type recorder struct {
	mu      sync.Mutex
	lines   []LogLine
	exits   []Exit
	stopped chan Exit
	ready   chan struct{}
	once    sync.Once
}

func newRecorder() *recorder {
	return &recorder{stopped: make(chan Exit, 4), ready: make(chan struct{})}
}

func (r *recorder) OnLogLine(line LogLine) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	if strings.Contains(line.Text, "ready") {
		r.once.Do(func() { close(r.ready) })
	}
}

func (r *recorder) OnStopped(exit Exit) {
	r.mu.Lock()
	r.exits = append(r.exits, exit)
	r.mu.Unlock()
	r.stopped <- exit
}

func (r *recorder) snapshot() ([]LogLine, []Exit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogLine(nil), r.lines...), append([]Exit(nil), r.exits...)
}

func (r *recorder) waitReady(t *testing.T) {
	t.Helper()
	select {
	case <-r.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reported ready")
	}
}

func (r *recorder) waitStopped(t *testing.T) Exit {
	t.Helper()
	select {
	case exit := <-r.stopped:
		return exit
	case <-time.After(5 * time.Second):
		t.Fatal("worker never stopped")
		return Exit{}
	}
}

type failingRunner struct{}

func (failingRunner) Run(context.Context, string, ...string) cmdrun.Result {
	return cmdrun.Result{ExitCode: 1}
}

type fixture struct {
	sup    *Supervisor
	rec    *recorder
	worker config.Worker
	home   string
}

// newFixture places the fake runner where the resolver expects uv and
// confines every existence check to the temp home.
func newFixture(t *testing.T, mode string, withRunner bool) *fixture {
	t.Helper()
	home := t.TempDir()
	layout := platform.Layout{GOOS: "linux", Home: home}
	if withRunner {
		path := filepath.Join(home, ".cargo", "bin", "uv")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(fakeRunner), 0o755))
	}

	configDir := filepath.Join(home, ".kira")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, config.ConfigFileName),
		[]byte("WORKER_MODE=\""+mode+"\"\n"), 0o600))

	worker := config.Worker{
		Interpreter: config.DefaultInterpreter,
		Entrypoint:  config.DefaultEntrypoint,
		GracePeriod: config.Duration{Duration: 200 * time.Millisecond},
		Image:       config.DefaultImage,
		ProjectRoot: home,
		ConfigDir:   configDir,
	}

	resolver := resolve.New(layout,
		resolve.WithRunner(failingRunner{}),
		resolve.WithFileCheck(func(path string) bool {
			if !strings.HasPrefix(path, home) {
				return false
			}
			info, err := os.Stat(path)
			return err == nil && !info.IsDir()
		}),
	)
	rec := newRecorder()
	sup := New(platform.New(layout, failingRunner{}),
		WithResolver(resolver),
		WithObserver(rec),
		WithEnviron(func() []string { return []string{"PATH=/usr/bin:/bin"} }),
	)
	t.Cleanup(func() { sup.Stop(context.Background()) })
	return &fixture{sup: sup, rec: rec, worker: worker, home: home}
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t, "idle", true)
	ctx := context.Background()

	res := f.sup.Start(ctx, f.worker)
	require.True(t, res.OK, res.Message)
	require.True(t, f.sup.IsRunning())
	f.rec.waitReady(t)
	require.Eventually(t, func() bool {
		lines, _ := f.rec.snapshot()
		for _, line := range lines {
			if strings.Contains(line.Text, "WARNING: app env dev") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	pid, err := NewIdentity(f.worker.PIDFile()).Read()
	require.NoError(t, err)
	require.Equal(t, f.sup.Handle().PID, pid)

	f.sup.Stop(ctx)
	require.False(t, f.sup.IsRunning())
	_, err = os.Stat(f.worker.PIDFile())
	require.True(t, os.IsNotExist(err))

	exit := f.rec.waitStopped(t)
	require.True(t, exit.Requested)
	require.Equal(t, "requested", exit.Outcome())

	lines, _ := f.rec.snapshot()
	var warned bool
	for _, line := range lines {
		if strings.Contains(line.Text, "WARNING: app env dev") {
			warned = line.Severity == SeverityWarning
		}
	}
	require.True(t, warned, "expected classified warning with dev profile, got %v", lines)

	logData, err := os.ReadFile(f.worker.LogFile())
	require.NoError(t, err)
	require.Contains(t, string(logData), "ready\n")
}

func TestStartTwiceRefused(t *testing.T) {
	f := newFixture(t, "idle", true)
	ctx := context.Background()

	require.True(t, f.sup.Start(ctx, f.worker).OK)
	pid := f.sup.Handle().PID

	res := f.sup.Start(ctx, f.worker)
	require.False(t, res.OK)
	require.Equal(t, "Server already running", res.Message)
	require.Equal(t, pid, f.sup.Handle().PID)
}

func TestOverlappingStartsSpawnOnce(t *testing.T) {
	f := newFixture(t, "idle", true)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.sup.Start(ctx, f.worker)
		}(i)
	}
	wg.Wait()

	started := 0
	for _, res := range results {
		if res.OK {
			started++
		}
	}
	require.Equal(t, 1, started)
}

func TestCrashEmitsSingleStoppedEvent(t *testing.T) {
	f := newFixture(t, "crash", true)

	require.True(t, f.sup.Start(context.Background(), f.worker).OK)
	exit := f.rec.waitStopped(t)
	require.Equal(t, 3, exit.Code)
	require.False(t, exit.Requested)
	require.Equal(t, "crashed", exit.Outcome())
	require.False(t, f.sup.IsRunning())
	last, ok := f.sup.LastExit()
	require.True(t, ok)
	require.Equal(t, exit, last)

	// A later Stop must not produce a second event.
	f.sup.Stop(context.Background())
	select {
	case extra := <-f.rec.stopped:
		t.Fatalf("unexpected second stopped event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	lines, exits := f.rec.snapshot()
	require.Len(t, exits, 1)
	severities := map[string]Severity{}
	for _, line := range lines {
		severities[line.Text] = line.Severity
	}
	require.Equal(t, SeverityInfo, severities["INFO: booting"])
	require.Equal(t, SeverityError, severities["ERROR: boom"])
}

func TestStopEscalatesToKill(t *testing.T) {
	f := newFixture(t, "stubborn", true)

	require.True(t, f.sup.Start(context.Background(), f.worker).OK)
	f.rec.waitReady(t)

	begin := time.Now()
	f.sup.Stop(context.Background())
	exit := f.rec.waitStopped(t)
	require.True(t, exit.Requested)
	require.Equal(t, -1, exit.Code)
	require.GreaterOrEqual(t, time.Since(begin), f.worker.GracePeriod.Duration)
}

// processGone treats zombies as gone: an orphan killed in a container may
// wait for a reaper that never comes.
func processGone(pid int) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return syscall.Kill(pid, 0) != nil
	}
	stat := string(data)
	if i := strings.LastIndexByte(stat, ')'); i >= 0 && i+2 < len(stat) {
		return stat[i+2] == 'Z'
	}
	return false
}

func TestStopKillsDescendantsThatIgnoreTerminate(t *testing.T) {
	f := newFixture(t, "orphan", true)

	require.True(t, f.sup.Start(context.Background(), f.worker).OK)
	f.rec.waitReady(t)

	var child int
	lines, _ := f.rec.snapshot()
	for _, line := range lines {
		if rest, ok := strings.CutPrefix(line.Text, "ready "); ok {
			child, _ = strconv.Atoi(strings.TrimSpace(rest))
		}
	}
	require.Positive(t, child, "descendant pid not reported: %v", lines)
	t.Cleanup(func() { _ = syscall.Kill(child, syscall.SIGKILL) })

	f.sup.Stop(context.Background())
	exit := f.rec.waitStopped(t)
	require.True(t, exit.Requested)

	require.Eventually(t, func() bool {
		return processGone(child)
	}, f.worker.GracePeriod.Duration+3*time.Second, 20*time.Millisecond)
}

func TestStopWithNothingRunning(t *testing.T) {
	f := newFixture(t, "idle", true)
	require.NoError(t, NewIdentity(f.worker.PIDFile()).Write(424242))

	f.sup.identity = NewIdentity(f.worker.PIDFile())
	f.sup.Stop(context.Background())
	f.sup.Stop(context.Background())

	_, err := os.Stat(f.worker.PIDFile())
	require.True(t, os.IsNotExist(err))
	_, exits := f.rec.snapshot()
	require.Empty(t, exits)
}

func TestSend(t *testing.T) {
	f := newFixture(t, "echo", true)
	require.ErrorIs(t, f.sup.Send("early"), ErrNotRunning)

	require.True(t, f.sup.Start(context.Background(), f.worker).OK)
	f.rec.waitReady(t)
	require.NoError(t, f.sup.Send("hello"))

	require.Eventually(t, func() bool {
		lines, _ := f.rec.snapshot()
		for _, line := range lines {
			if line.Text == "got hello" && line.Stream == StreamStdout {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	f.sup.Stop(context.Background())
	f.rec.waitStopped(t)
	require.ErrorIs(t, f.sup.Send("late"), ErrNotRunning)
}

func TestStartRefusesWithoutRunner(t *testing.T) {
	f := newFixture(t, "idle", false)

	res := f.sup.Start(context.Background(), f.worker)
	require.False(t, res.OK)
	require.Equal(t, "uv not found. Please install uv first.", res.Message)
	require.False(t, f.sup.IsRunning())
}

func TestStartRefusesWithoutConfig(t *testing.T) {
	f := newFixture(t, "idle", true)
	require.NoError(t, os.Remove(f.worker.ConfigFile()))

	f.worker.Packaged = true
	res := f.sup.Start(context.Background(), f.worker)
	require.False(t, res.OK)
	require.Equal(t, "Config file not found. Please configure first.", res.Message)

	f.worker.Packaged = false
	f.worker.DevConfigFile = filepath.Join(f.home, "dev.env")
	res = f.sup.Start(context.Background(), f.worker)
	require.False(t, res.OK)
	require.Contains(t, res.Message, "dev.env")
}

func TestStartFallsBackToDevConfig(t *testing.T) {
	f := newFixture(t, "crash", true)
	require.NoError(t, os.Remove(f.worker.ConfigFile()))
	f.worker.DevConfigFile = filepath.Join(f.home, "dev.env")
	require.NoError(t, os.WriteFile(f.worker.DevConfigFile, []byte("WORKER_MODE=crash\n"), 0o600))

	require.True(t, f.sup.Start(context.Background(), f.worker).OK)
	require.Equal(t, 3, f.rec.waitStopped(t).Code)
}

// startStale launches a detached stand-in for a worker left behind by an
// earlier kirad. Its $0 puts name on the command line.
func startStale(t *testing.T, name string) (*exec.Cmd, <-chan struct{}) {
	t.Helper()
	if _, err := os.Stat("/proc/self/cmdline"); err != nil {
		t.Skip("process identity checks need procfs")
	}
	cmd := exec.Command("/bin/sh", "-c", "while :; do sleep 0.05; done", name)
	platform.New(platform.Layout{GOOS: "linux"}, nil).Detach(cmd)
	require.NoError(t, cmd.Start())
	waited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(waited)
	}()
	t.Cleanup(func() { _ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) })
	return cmd, waited
}

func TestReapStaleWorker(t *testing.T) {
	f := newFixture(t, "idle", true)

	cmd, waited := startStale(t, f.worker.Target())
	require.NoError(t, NewIdentity(f.worker.PIDFile()).Write(cmd.Process.Pid))

	found, err := f.sup.Reap(context.Background(), f.worker)
	require.NoError(t, err)
	require.True(t, found)

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("stale worker survived reap")
	}
	_, err = os.Stat(f.worker.PIDFile())
	require.True(t, os.IsNotExist(err))
}

func TestReapLeavesRecycledPIDAlone(t *testing.T) {
	f := newFixture(t, "idle", true)

	cmd, waited := startStale(t, "unrelated-daemon")
	require.NoError(t, NewIdentity(f.worker.PIDFile()).Write(cmd.Process.Pid))

	found, err := f.sup.Reap(context.Background(), f.worker)
	require.NoError(t, err)
	require.False(t, found)

	select {
	case <-waited:
		t.Fatal("reap killed a process that is not the worker")
	case <-time.After(300 * time.Millisecond):
	}
	_, err = os.Stat(f.worker.PIDFile())
	require.True(t, os.IsNotExist(err))
}

func TestReapWithoutIdentity(t *testing.T) {
	f := newFixture(t, "idle", true)
	found, err := f.sup.Reap(context.Background(), f.worker)
	require.NoError(t, err)
	require.False(t, found)
}
