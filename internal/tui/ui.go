package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/kirad/internal/logmux"
	"github.com/Paintersrp/kirad/internal/supervisor"
)

const (
	statusTitle         = "Worker"
	logsTitle           = "Logs"
	filterPageName      = "filter"
	sendPageName        = "send"
	defaultLogRetention = 500
)

// Controller is the subset of worker control the UI drives.
type Controller interface {
	Start(ctx context.Context) supervisor.Result
	Stop(ctx context.Context)
	Send(text string) error
	Handle() *supervisor.Handle
}

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLogs sets the maximum number of log lines retained.
func WithMaxLogs(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLogs = n
		}
	}
}

// UI shows worker status and a live, filterable log.
type UI struct {
	app    *tview.Application
	pages  *tview.Pages
	status *tview.TextView
	logs   *tview.TextView
	ctl    Controller

	records    []logmux.Event
	filter     string
	filterExpr *regexp.Regexp
	maxLogs    int
	starts     int
	lastExit   *supervisor.Exit
	message    string

	mu sync.RWMutex

	// wake holds at most one pending redraw request from background
	// goroutines; logsDirty widens it to the log pane.
	wake      chan struct{}
	logsDirty atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a UI driving ctl.
func New(ctl Controller, opts ...Option) *UI {
	app := tview.NewApplication()
	status := tview.NewTextView().SetDynamicColors(true)
	status.SetBorder(true).SetTitle(statusTitle)

	logs := tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	logs.SetBorder(true).SetTitle(logsTitle)
	logs.SetChangedFunc(func() {
		app.Draw()
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(status, 4, 0, false).
		AddItem(logs, 0, 1, true)

	pages := tview.NewPages().AddPage("main", flex, true, true)

	ui := &UI{
		app:     app,
		pages:   pages,
		status:  status,
		logs:    logs,
		ctl:     ctl,
		maxLogs: defaultLogRetention,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ui)
	}

	app.SetRoot(pages, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.renderStatusLocked()
	ui.mu.Unlock()
	return ui
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and consumes events until Stop is
// invoked, ctx is cancelled, or events is closed and the user quits.
func (u *UI) Run(ctx context.Context, events <-chan logmux.Event) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEvents(ctx, events)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()
	// Not part of wg: a redraw queued as the loop exits is never run, so
	// the drawer cannot be waited for.
	go u.drawLoop(ctx)

	err := u.app.Run()
	cancel()
	u.wg.Wait()
	u.Stop()
	return err
}

// Stop terminates the application loop. The worker is left to the caller.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEvents(ctx context.Context, events <-chan logmux.Event) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			u.applyEvent(evt)
		case <-ticker.C:
			u.invalidate(false)
		}
	}
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	// Overlays receive their own input.
	if u.pages.HasPage(filterPageName) || u.pages.HasPage(sendPageName) {
		return event
	}
	if event.Key() != tcell.KeyRune {
		return event
	}
	switch event.Rune() {
	case 'q', 'Q':
		go u.Stop()
		return nil
	case '/':
		u.showFilterPrompt()
		return nil
	case 's':
		go u.StartWorker()
		return nil
	case 'x':
		go u.stopWorker()
		return nil
	case 'i':
		u.showSendPrompt()
		return nil
	case 'c':
		u.mu.Lock()
		u.records = nil
		u.mu.Unlock()
		u.render(true)
		return nil
	}
	return event
}

// StartWorker asks the controller to start the worker and records the
// result in the status pane.
func (u *UI) StartWorker() {
	if u.ctl == nil {
		return
	}
	res := u.ctl.Start(context.Background())
	u.mu.Lock()
	u.message = res.Message
	if res.OK {
		u.starts++
	}
	u.mu.Unlock()
	u.invalidate(false)
}

func (u *UI) stopWorker() {
	if u.ctl == nil {
		return
	}
	u.ctl.Stop(context.Background())
	u.mu.Lock()
	u.message = "stop requested"
	u.mu.Unlock()
	u.invalidate(false)
}

func (u *UI) showFilterPrompt() {
	u.mu.RLock()
	current := u.filter
	u.mu.RUnlock()

	input := tview.NewInputField().
		SetLabel("Regex filter: ").
		SetText(current).
		SetFieldWidth(40)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Apply", func() {
			u.applyFilter(input.GetText())
			u.closeOverlay(filterPageName)
		}).
		AddButton("Cancel", func() {
			u.closeOverlay(filterPageName)
		})
	form.SetBorder(true).SetTitle("Filter Logs")

	u.showOverlay(filterPageName, form, input)
}

func (u *UI) showSendPrompt() {
	input := tview.NewInputField().
		SetLabel("Send: ").
		SetFieldWidth(50)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Send", func() {
			u.send(input.GetText())
			u.closeOverlay(sendPageName)
		}).
		AddButton("Cancel", func() {
			u.closeOverlay(sendPageName)
		})
	form.SetBorder(true).SetTitle("Worker Input")

	u.showOverlay(sendPageName, form, input)
}

func (u *UI) showOverlay(name string, form *tview.Form, focus tview.Primitive) {
	grid := tview.NewGrid().
		SetColumns(0, 64, 0).
		SetRows(0, 7, 0).
		AddItem(form, 1, 1, 1, 1, 0, 0, true)
	u.pages.AddPage(name, grid, true, true)
	u.app.SetFocus(focus)
}

func (u *UI) closeOverlay(name string) {
	u.pages.RemovePage(name)
	u.app.SetFocus(u.logs)
}

func (u *UI) send(text string) {
	if u.ctl == nil || text == "" {
		return
	}
	msg := "sent"
	if err := u.ctl.Send(text); err != nil {
		msg = err.Error()
	}
	u.mu.Lock()
	u.message = msg
	u.mu.Unlock()
	u.render(false)
}

func (u *UI) applyFilter(expr string) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		u.mu.Lock()
		u.filter = ""
		u.filterExpr = nil
		u.mu.Unlock()
		u.render(true)
		return
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		u.showErrorModal(fmt.Sprintf("Invalid filter: %v", err))
		return
	}

	u.mu.Lock()
	u.filter = expr
	u.filterExpr = re
	u.mu.Unlock()
	u.render(true)
}

func (u *UI) showErrorModal(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) {
			u.closeOverlay(filterPageName)
		})

	u.pages.RemovePage(filterPageName)
	u.pages.AddPage(filterPageName, modal, true, true)
}

func (u *UI) applyEvent(evt logmux.Event) {
	u.mu.Lock()
	u.records = append(u.records, evt)
	if len(u.records) > u.maxLogs {
		trim := len(u.records) - u.maxLogs
		u.records = append([]logmux.Event(nil), u.records[trim:]...)
	}
	if evt.Kind == logmux.KindStopped {
		exit := evt.Exit
		u.lastExit = &exit
		u.message = ""
	}
	u.mu.Unlock()

	u.invalidate(true)
}

// invalidate requests a redraw from outside the UI goroutine. It never
// blocks; requests made while one is pending are merged.
func (u *UI) invalidate(updateLogs bool) {
	if updateLogs {
		u.logsDirty.Store(true)
	}
	select {
	case u.wake <- struct{}{}:
	default:
	}
}

func (u *UI) drawLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.wake:
		}
		select {
		case <-u.done:
			return
		default:
		}
		updateLogs := u.logsDirty.Swap(false)
		u.app.QueueUpdateDraw(func() { u.render(updateLogs) })
	}
}

// render redraws the panes. Callers outside the UI goroutine use
// invalidate instead.
func (u *UI) render(updateLogs bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.renderStatusLocked()
	if updateLogs {
		u.renderLogsLocked()
	}
}

func (u *UI) renderStatusLocked() {
	u.status.Clear()

	var h *supervisor.Handle
	if u.ctl != nil {
		h = u.ctl.Handle()
	}
	if h != nil {
		fmt.Fprintf(u.status, "[green]RUNNING[-]  pid=%d  run=%s  up=%s  starts=%d\n",
			h.PID, shortID(h.RunID), time.Since(h.Started).Truncate(time.Second), u.starts)
	} else {
		fmt.Fprintf(u.status, "[gray]STOPPED[-]  starts=%d\n", u.starts)
	}
	if u.lastExit != nil {
		fmt.Fprintf(u.status, "last exit: code=%d outcome=%s at %s  ",
			u.lastExit.Code, u.lastExit.Outcome(), u.lastExit.Time.Format(time.TimeOnly))
	}
	if u.message != "" {
		fmt.Fprint(u.status, tview.Escape(u.message))
	}

	if u.filter != "" {
		u.logs.SetTitle(fmt.Sprintf("%s /%s/", logsTitle, u.filter))
	} else {
		u.logs.SetTitle(logsTitle)
	}
}

func (u *UI) renderLogsLocked() {
	u.logs.Clear()
	for _, evt := range u.records {
		if u.filterExpr != nil && !u.filterExpr.MatchString(evt.Text) {
			continue
		}
		fmt.Fprintln(u.logs, formatLine(evt))
	}
	u.logs.ScrollToEnd()
}

// formatLine renders one event with a colour tag for its severity.
func formatLine(evt logmux.Event) string {
	color := "white"
	switch {
	case evt.Stream == logmux.StreamSystem && evt.Kind != logmux.KindStopped:
		color = "gray"
	case evt.Severity == supervisor.SeverityError:
		color = "red"
	case evt.Severity == supervisor.SeverityWarning:
		color = "yellow"
	case evt.Kind == logmux.KindStopped:
		color = "aqua"
	}
	ts := "--:--:--"
	if !evt.Time.IsZero() {
		ts = evt.Time.Format(time.TimeOnly)
	}
	return fmt.Sprintf("[%s]%s %s[-]", color, ts, tview.Escape(evt.Text))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
