package logmux

import (
	"fmt"
	"sync"
	"time"

	"github.com/Paintersrp/kirad/internal/supervisor"
)

// StreamSystem marks events synthesized by the mux itself.
const StreamSystem = "kirad"

// Kind distinguishes output lines from the stopped notification.
type Kind int

const (
	KindLog Kind = iota
	KindStopped
)

// Event is one item delivered to a consumer.
type Event struct {
	Kind     Kind
	Time     time.Time
	RunID    string
	Stream   string
	Severity supervisor.Severity
	Text     string
	Exit     supervisor.Exit
}

// Mux adapts supervisor callbacks to a bounded channel. When the consumer
// cannot keep up, log lines are dropped and a synthesized warning reports
// how many were discarded. Stopped events are never dropped.
type Mux struct {
	out  chan Event
	done chan struct{}

	// sending is held for reading by senders so Close can wait them out.
	sending sync.RWMutex
	closed  bool

	mu      sync.Mutex
	dropped int
	runID   string

	closeOnce sync.Once
}

var _ supervisor.Observer = (*Mux)(nil)

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:  make(chan Event, size),
		done: make(chan struct{}),
	}
}

// Output exposes the event channel. It is closed by Close.
func (m *Mux) Output() <-chan Event {
	return m.out
}

// OnLogLine queues a line, dropping it if the channel is full.
func (m *Mux) OnLogLine(line supervisor.LogLine) {
	m.sending.RLock()
	defer m.sending.RUnlock()
	if m.closed {
		return
	}
	evt := Event{
		Kind:     KindLog,
		Time:     line.Time,
		RunID:    line.RunID,
		Stream:   line.Stream,
		Severity: line.Severity,
		Text:     line.Text,
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	if !m.flushPending() || !m.trySend(evt) {
		m.recordDrop(1, line.RunID)
	}
}

// OnStopped queues the exit, waiting for room if necessary. Pending drop
// counts are reported first.
func (m *Mux) OnStopped(exit supervisor.Exit) {
	m.sending.RLock()
	defer m.sending.RUnlock()
	if m.closed {
		return
	}
	if count, runID := m.takeDrops(); count > 0 {
		m.blockingSend(dropEvent(count, runID))
	}
	evt := Event{
		Kind:   KindStopped,
		Time:   exit.Time,
		RunID:  exit.RunID,
		Stream: StreamSystem,
		Text:   fmt.Sprintf("worker exited code=%d outcome=%s", exit.Code, exit.Outcome()),
		Exit:   exit,
	}
	if exit.Outcome() == "crashed" {
		evt.Severity = supervisor.SeverityError
	} else {
		evt.Severity = supervisor.SeverityInfo
	}
	m.blockingSend(evt)
}

// Close releases blocked senders, reports outstanding drops if there is
// room, and closes the output channel. Later events are discarded.
func (m *Mux) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.sending.Lock()
		defer m.sending.Unlock()
		m.closed = true
		if count, runID := m.takeDrops(); count > 0 {
			m.trySend(dropEvent(count, runID))
		}
		close(m.out)
	})
}

func (m *Mux) flushPending() bool {
	count, runID := m.takeDrops()
	if count == 0 {
		return true
	}
	if m.trySend(dropEvent(count, runID)) {
		return true
	}
	m.recordDrop(count, runID)
	return false
}

func (m *Mux) takeDrops() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, runID := m.dropped, m.runID
	m.dropped = 0
	return count, runID
}

func (m *Mux) recordDrop(count int, runID string) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += count
	if runID != "" {
		m.runID = runID
	}
}

func (m *Mux) trySend(evt Event) bool {
	select {
	case m.out <- evt:
		return true
	default:
		return false
	}
}

func (m *Mux) blockingSend(evt Event) {
	select {
	case m.out <- evt:
	case <-m.done:
	}
}

func dropEvent(count int, runID string) Event {
	return Event{
		Kind:     KindLog,
		Time:     time.Now(),
		RunID:    runID,
		Stream:   StreamSystem,
		Severity: supervisor.SeverityWarning,
		Text:     fmt.Sprintf("dropped=%d", count),
	}
}
