package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Paintersrp/kirad/internal/config"
	"github.com/Paintersrp/kirad/internal/envfile"
	"github.com/Paintersrp/kirad/internal/environ"
	"github.com/Paintersrp/kirad/internal/metrics"
	"github.com/Paintersrp/kirad/internal/platform"
	"github.com/Paintersrp/kirad/internal/resolve"
)

// ErrNotRunning is returned by Send when there is no live worker.
var ErrNotRunning = errors.New("server not running")

// drainTimeout bounds how long trailing output is awaited after the worker
// exits. Descendants holding the pipes open must not delay the stopped
// event indefinitely.
const drainTimeout = 500 * time.Millisecond

// Supervisor owns at most one worker.
type Supervisor struct {
	host     platform.Host
	resolver *resolve.Resolver
	observer Observer
	identity *Identity
	log      zerolog.Logger
	environ  func() []string
	now      func() time.Time

	mu       sync.Mutex
	handle   *Handle
	starting bool
	lastExit *Exit

	emitMu sync.Mutex
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithObserver sets the event sink.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.log = l
	}
}

// WithResolver overrides tool discovery.
func WithResolver(r *resolve.Resolver) Option {
	return func(s *Supervisor) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithIdentity sets the PID file. Without it the file named by the worker
// configuration passed to Start is used.
func WithIdentity(id *Identity) Option {
	return func(s *Supervisor) {
		s.identity = id
	}
}

// WithEnviron replaces the base environment the worker inherits.
func WithEnviron(fn func() []string) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.environ = fn
		}
	}
}

// New constructs a supervisor for host.
func New(host platform.Host, opts ...Option) *Supervisor {
	s := &Supervisor{
		host:     host,
		observer: ObserverFuncs{},
		log:      zerolog.Nop(),
		environ:  os.Environ,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = resolve.New(host.Layout(), resolve.WithLogger(s.log))
	}
	return s
}

// IsRunning reports whether a worker handle exists and has not exited.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil && s.handle.Alive()
}

// Handle returns the live handle, or nil.
func (s *Supervisor) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil || !s.handle.Alive() {
		return nil
	}
	return s.handle
}

// LastExit returns the most recent exit observed by this supervisor.
func (s *Supervisor) LastExit() (Exit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastExit == nil {
		return Exit{}, false
	}
	return *s.lastExit, true
}

// Start launches the worker described by w. Refusals are reported through
// the result, never as a panic or error.
func (s *Supervisor) Start(ctx context.Context, w config.Worker) Result {
	s.mu.Lock()
	if s.handle != nil && s.handle.Alive() {
		s.mu.Unlock()
		return Result{OK: false, Message: "Server already running"}
	}
	if s.starting {
		s.mu.Unlock()
		return Result{OK: false, Message: "Server already starting"}
	}
	s.starting = true
	if s.identity == nil {
		s.identity = NewIdentity(w.PIDFile())
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	h, err := s.spawn(ctx, w)
	if err != nil {
		s.log.Warn().Err(err).Msg("worker not started")
		return Result{OK: false, Message: err.Error()}
	}
	s.log.Info().Int("pid", h.PID).Str("run_id", h.RunID).Bool("grouped", h.Grouped).Msg("worker started")
	return Result{OK: true, Message: "Server started"}
}

// Send writes text followed by a newline to the worker's stdin.
func (s *Supervisor) Send(text string) error {
	h := s.Handle()
	if h == nil {
		return ErrNotRunning
	}
	if err := h.write(text + "\n"); err != nil {
		return fmt.Errorf("write to worker: %w", err)
	}
	return nil
}

// SelectConfigFile picks the worker config: the fixed file when packaged or
// when it exists, otherwise the development file.
func SelectConfigFile(w config.Worker) (string, error) {
	fixed := w.ConfigFile()
	if w.Packaged {
		if !fileExists(fixed) {
			return "", errors.New("Config file not found. Please configure first.")
		}
		return fixed, nil
	}
	if fileExists(fixed) {
		return fixed, nil
	}
	if w.DevConfigFile == "" || !fileExists(w.DevConfigFile) {
		return "", fmt.Errorf("Config file not found: %s", w.DevConfigFile)
	}
	return w.DevConfigFile, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (s *Supervisor) spawn(ctx context.Context, w config.Worker) (*Handle, error) {
	if err := os.MkdirAll(w.ConfigDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	path, err := SelectConfigFile(w)
	if err != nil {
		return nil, err
	}
	cfg, err := envfile.Load(path)
	if err != nil {
		return nil, err
	}

	discovered := s.resolver.Discover(ctx)
	runner, ok := s.resolver.Resolve(ctx, platform.ToolRunner)
	if !ok {
		return nil, errors.New("uv not found. Please install uv first.")
	}

	env := environ.Compose(s.environ(), cfg, discovered, environ.Options{
		Layout:   s.host.Layout(),
		Packaged: w.Packaged,
		Log:      &s.log,
	})

	logFile, err := os.OpenFile(w.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open worker log: %w", err)
	}

	// The worker must outlive any context handed to Start.
	cmd := exec.Command(runner.Path, w.Args()...)
	cmd.Dir = w.ProjectRoot
	cmd.Env = env.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	// Plain pipes rather than StdoutPipe so that Wait returns when the worker
	// exits even if a descendant still holds the write end.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		logFile.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("worker stderr: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	grouped := s.host.Detach(cmd)

	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		logFile.Close()
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}

	h := &Handle{
		RunID:   uuid.NewString(),
		PID:     cmd.Process.Pid,
		Started: s.now(),
		Grouped: grouped,
		workDir: w.ProjectRoot,
		image:   w.Image,
		grace:   w.GracePeriod.Duration,
		cmd:     cmd,
		stdin:   stdin,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()

	if err := s.identity.Write(h.PID); err != nil {
		s.log.Warn().Err(err).Msg("worker identity not persisted")
	}
	metrics.IncWorkerStarts()
	metrics.SetWorkerRunning(true)

	go s.supervise(h, stdoutR, stderrR, logFile)
	return h, nil
}

// supervise pumps output and reports the exit exactly once.
func (s *Supervisor) supervise(h *Handle, stdout, stderr *os.File, logFile *os.File) {
	sink := &lockedWriter{w: logFile}
	var streams sync.WaitGroup
	streams.Add(2)
	go s.pump(h, stdout, StreamStdout, sink, &streams)
	go s.pump(h, stderr, StreamStderr, sink, &streams)

	drained := make(chan struct{})
	go func() {
		streams.Wait()
		logFile.Close()
		close(drained)
	}()

	waitErr := h.cmd.Wait()
	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	if s.handle == h {
		s.handle = nil
	}
	s.mu.Unlock()
	close(h.done)

	select {
	case <-drained:
	case <-time.After(drainTimeout):
		s.log.Debug().Int("pid", h.PID).Msg("output still open after exit")
		stdout.Close()
		stderr.Close()
	}

	exit := Exit{
		Time:      s.now(),
		RunID:     h.RunID,
		PID:       h.PID,
		Code:      code,
		Requested: h.requested.Load(),
	}
	s.mu.Lock()
	s.lastExit = &exit
	s.mu.Unlock()
	metrics.SetWorkerRunning(false)
	metrics.IncWorkerExit(exit.Requested, exit.Code)

	var event *zerolog.Event
	if exit.Outcome() == "crashed" {
		event = s.log.Warn().AnErr("wait", waitErr)
	} else {
		event = s.log.Info()
	}
	event.Int("pid", exit.PID).Int("exit_code", exit.Code).Str("outcome", exit.Outcome()).Msg("worker exited")

	s.emitMu.Lock()
	h.stopped = true
	s.observer.OnStopped(exit)
	s.emitMu.Unlock()
}

func (s *Supervisor) pump(h *Handle, r io.ReadCloser, stream string, sink *lockedWriter, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()

	reader := bufio.NewReader(r)
	for {
		raw, err := reader.ReadString('\n')
		if raw != "" {
			sink.write(raw)
			s.emitLine(h, stream, strings.TrimRight(raw, "\r\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
				s.log.Debug().Err(err).Str("stream", stream).Msg("worker output closed")
			}
			return
		}
	}
}

func (s *Supervisor) emitLine(h *Handle, stream, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	line := LogLine{
		Time:     s.now(),
		RunID:    h.RunID,
		Stream:   stream,
		Severity: Classify(text),
		Text:     text,
	}
	metrics.IncLogLine(string(line.Severity))

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	// Output that outlived the drain window is dropped.
	if h.stopped {
		return
	}
	s.observer.OnLogLine(line)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, s)
}
