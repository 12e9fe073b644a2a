package supervisor

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/Paintersrp/kirad/internal/config"
	"github.com/Paintersrp/kirad/internal/platform"
)

// reapPoll is how often Reap checks whether a stale worker has gone.
const reapPoll = 50 * time.Millisecond

// Stop ends the current worker and removes the PID file. It never fails
// and is safe to call repeatedly or with nothing running. On a group-capable
// host it returns once SIGTERM is sent; SIGKILL follows to the whole group
// after the grace period.
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	id := s.identity
	s.mu.Unlock()

	defer func() {
		if id == nil {
			return
		}
		if err := id.Remove(); err != nil {
			s.log.Debug().Err(err).Msg("identity not removed")
		}
	}()

	if h == nil || !h.Alive() {
		return
	}
	h.requested.Store(true)
	s.log.Info().Int("pid", h.PID).Bool("grouped", h.Grouped).Msg("stopping worker")

	if !h.Grouped {
		s.host.KillTree(ctx, h.PID, platform.Sweep{Image: h.image, Pattern: h.workDir})
		return
	}

	if err := s.host.Signal(h.PID, true, platform.SignalTerminate); err != nil {
		s.log.Debug().Err(err).Int("pid", h.PID).Msg("terminate failed")
	}
	// Fires even after the leader exits: descendants may still hold the group.
	time.AfterFunc(h.grace, func() {
		if h.Alive() {
			s.log.Warn().Int("pid", h.PID).Dur("grace", h.grace).Msg("worker ignored terminate, killing")
		}
		if err := s.host.Signal(h.PID, true, platform.SignalKill); err != nil {
			s.log.Debug().Err(err).Int("pid", h.PID).Msg("kill failed")
		}
	})
}

// Reap terminates a worker left behind by an earlier host process, as
// recorded in the PID file, and removes the file. A recorded PID that now
// belongs to an unrelated process is not signalled. It reports whether a live
// worker was found. A worker owned by this supervisor is stopped instead.
func (s *Supervisor) Reap(ctx context.Context, w config.Worker) (bool, error) {
	if s.IsRunning() {
		s.Stop(ctx)
		return true, nil
	}

	s.mu.Lock()
	if s.identity == nil {
		s.identity = NewIdentity(w.PIDFile())
	}
	id := s.identity
	s.mu.Unlock()

	pid, err := id.Read()
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		_ = id.Remove()
		return false, err
	}
	defer func() { _ = id.Remove() }()

	if !s.host.Alive(ctx, pid) {
		s.log.Debug().Int("pid", pid).Msg("recorded worker already gone")
		return false, nil
	}
	if !s.host.Owns(ctx, pid, w.Target()) {
		s.log.Warn().Int("pid", pid).Str("target", w.Target()).Msg("recorded pid belongs to another process, leaving it alone")
		return false, nil
	}
	s.log.Info().Int("pid", pid).Msg("reaping stale worker")

	sweep := platform.Sweep{Image: w.Image, Pattern: w.ProjectRoot}
	if !s.host.SupportsGroups() {
		s.host.KillTree(ctx, pid, sweep)
		return true, nil
	}

	if err := s.host.Signal(pid, true, platform.SignalTerminate); err != nil {
		return true, err
	}
	grace := w.GracePeriod.Duration
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	ticker := time.NewTicker(reapPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.host.KillTree(context.Background(), pid, sweep)
			return true, ctx.Err()
		case <-deadline.C:
			s.log.Warn().Int("pid", pid).Dur("grace", grace).Msg("stale worker ignored terminate, killing")
			s.host.KillTree(ctx, pid, sweep)
			return true, nil
		case <-ticker.C:
			if !s.host.Alive(ctx, pid) {
				// Descendants that ignored terminate share the group.
				s.host.KillTree(ctx, pid, sweep)
				return true, nil
			}
		}
	}
}
