package cli

import (
	stdcontext "context"
	"errors"
	"strings"
	"time"

	"github.com/Paintersrp/kirad/internal/api"
	"github.com/Paintersrp/kirad/internal/supervisor"
)

// apiController exposes a workerControl through the HTTP control surface.
type apiController struct {
	ctl workerControl
	now func() time.Time
}

func newAPIController(ctl workerControl) *apiController {
	return &apiController{ctl: ctl, now: time.Now}
}

func (c *apiController) Status(stdcontext.Context) (*api.StatusReport, error) {
	now := c.now()
	report := &api.StatusReport{GeneratedAt: now}
	if h := c.ctl.Handle(); h != nil && h.Alive() {
		started := h.Started
		report.Running = true
		report.PID = h.PID
		report.RunID = h.RunID
		report.Started = &started
		report.Uptime = now.Sub(started).Round(time.Second).String()
	}
	if exit, ok := c.ctl.sup.LastExit(); ok {
		report.LastExit = &api.ExitReport{
			PID:       exit.PID,
			RunID:     exit.RunID,
			Code:      exit.Code,
			Outcome:   exit.Outcome(),
			Requested: exit.Requested,
			At:        exit.Time,
		}
	}
	return report, nil
}

func (c *apiController) Start(ctx stdcontext.Context) (*api.StartResult, error) {
	// The worker must outlive the request that started it.
	res := c.ctl.Start(stdcontext.WithoutCancel(ctx))
	return &api.StartResult{OK: res.OK, Message: res.Message}, nil
}

func (c *apiController) Stop(ctx stdcontext.Context) error {
	if !c.ctl.sup.IsRunning() {
		return api.ErrWorkerNotRunning
	}
	c.ctl.Stop(ctx)
	return nil
}

func (c *apiController) Send(_ stdcontext.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return api.ErrEmptyInput
	}
	text = strings.TrimSuffix(strings.TrimSuffix(text, "\n"), "\r")
	if err := c.ctl.Send(text); err != nil {
		if errors.Is(err, supervisor.ErrNotRunning) {
			return api.ErrWorkerNotRunning
		}
		return err
	}
	return nil
}
