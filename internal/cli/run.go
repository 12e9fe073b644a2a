package cli

import (
	"bufio"
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	httpapi "github.com/Paintersrp/kirad/internal/api/http"
	"github.com/Paintersrp/kirad/internal/bootstrap"
	"github.com/Paintersrp/kirad/internal/cliutil"
	"github.com/Paintersrp/kirad/internal/config"
	"github.com/Paintersrp/kirad/internal/logmux"
	"github.com/Paintersrp/kirad/internal/metrics"
	"github.com/Paintersrp/kirad/internal/platform"
	"github.com/Paintersrp/kirad/internal/supervisor"
	"github.com/Paintersrp/kirad/internal/tui"
)

const eventBuffer = 256

type runOptions struct {
	assumeYes    bool
	metricsAddr  string
	apiAddr      string
	useTUI       bool
	forwardStdin bool
	jsonOutput   bool
}

func newRunCmd(ctx *context) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the worker and stream its output until it stops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.loadSettings()
			if err != nil {
				return err
			}
			if opts.useTUI && !isTerminal(os.Stdout) {
				return errors.New("--tui requires an interactive terminal")
			}
			if opts.useTUI && opts.jsonOutput {
				return errors.New("--tui and --json cannot be combined")
			}

			runCtx := cmd.Context()
			inst := ctx.installer()
			consent := promptConsent(cmd.InOrStdin(), cmd.ErrOrStderr(), isTerminal(os.Stdin), opts.assumeYes)
			if _, err := inst.EnsureInstalled(runCtx, consent); err != nil {
				if errors.Is(err, bootstrap.ErrDeclined) {
					return fmt.Errorf("%s is required to run the worker; rerun with --yes to install it", platform.ToolRunner)
				}
				return err
			}

			if opts.metricsAddr != "" {
				shutdown, err := serveMetrics(opts.metricsAddr)
				if err != nil {
					return err
				}
				defer shutdown()
				fmt.Fprintf(cmd.ErrOrStderr(), "Metrics listening on %s\n", opts.metricsAddr)
			}

			mux := logmux.New(eventBuffer)
			defer mux.Close()
			sup := ctx.supervisor(settings, supervisor.WithObserver(mux))
			ctl := workerControl{sup: sup, worker: settings.Worker}

			persist := false
			if opts.apiAddr != "" {
				server, err := httpapi.NewServer(httpapi.Config{
					Addr:       opts.apiAddr,
					Controller: newAPIController(ctl),
				})
				if err != nil {
					return err
				}
				apiCtx, cancelAPI := stdcontext.WithCancel(runCtx)
				defer cancelAPI()
				go func() {
					if err := server.Run(apiCtx); err != nil {
						log := ctx.logger()
						log.Error().Err(err).Str("addr", server.Addr()).Msg("control api stopped")
					}
				}()
				fmt.Fprintf(cmd.ErrOrStderr(), "Control API listening on %s\n", server.Addr())
				persist = true
			}

			if opts.useTUI {
				return runTUI(runCtx, ctl, mux)
			}

			res := ctl.Start(runCtx)
			if !res.OK {
				return errors.New(res.Message)
			}
			if opts.forwardStdin {
				go forwardInput(cmd.InOrStdin(), sup)
			}

			var sink func(logmux.Event)
			if opts.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				stderr := cmd.ErrOrStderr()
				sink = func(evt logmux.Event) { cliutil.EncodeLogEvent(enc, stderr, evt) }
			} else {
				printer := newLinePrinter(cmd.OutOrStdout(), isTerminal(os.Stdout))
				sink = printer.print
			}
			return streamUntilStopped(runCtx, sup, settings.Worker, mux.Output(), sink, persist)
		},
	}

	cmd.Flags().BoolVarP(&opts.assumeYes, "yes", "y", false, "Install missing tools without asking")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.useTUI, "tui", false, "Show the interactive log viewer")
	cmd.Flags().BoolVar(&opts.forwardStdin, "stdin", false, "Forward standard input lines to the worker")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Emit worker output as JSON lines")
	cmd.Flags().StringVar(&opts.apiAddr, "api-addr", "", "Serve the control API on this address and keep running after the worker exits")
	return cmd
}

// streamUntilStopped hands events to sink until the worker exits.
// Cancellation stops the worker and waits for its stopped event, bounded by
// the grace period. In persist mode a worker exit does not end the stream,
// so the worker can be started again through the control API.
func streamUntilStopped(ctx stdcontext.Context, sup *supervisor.Supervisor, w config.Worker, events <-chan logmux.Event, sink func(logmux.Event), persist bool) error {
	done := ctx.Done()
	var deadline <-chan time.Time
	stopping := false

	for {
		select {
		case <-done:
			done = nil
			if persist && !sup.IsRunning() {
				return nil
			}
			stopping = true
			sup.Stop(stdcontext.Background())
			timer := time.NewTimer(w.GracePeriod.Duration + 2*time.Second)
			defer timer.Stop()
			deadline = timer.C
		case <-deadline:
			return errors.New("worker did not report exit after stop")
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			sink(evt)
			if evt.Kind != logmux.KindStopped {
				continue
			}
			if persist && !stopping {
				continue
			}
			if evt.Exit.Outcome() == "crashed" {
				return fmt.Errorf("worker exited with code %d", evt.Exit.Code)
			}
			return nil
		}
	}
}

func forwardInput(r io.Reader, sup *supervisor.Supervisor) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := sup.Send(scanner.Text()); err != nil {
			return
		}
	}
}

// workerControl binds a supervisor to one worker configuration for the TUI.
type workerControl struct {
	sup    *supervisor.Supervisor
	worker config.Worker
}

func (c workerControl) Start(ctx stdcontext.Context) supervisor.Result {
	return c.sup.Start(ctx, c.worker)
}

func (c workerControl) Stop(ctx stdcontext.Context) {
	c.sup.Stop(ctx)
}

func (c workerControl) Send(text string) error {
	return c.sup.Send(text)
}

func (c workerControl) Handle() *supervisor.Handle {
	return c.sup.Handle()
}

func runTUI(ctx stdcontext.Context, ctl workerControl, mux *logmux.Mux) error {
	ui := tui.New(ctl)
	go ui.StartWorker()
	err := ui.Run(ctx, mux.Output())
	ctl.Stop(stdcontext.Background())
	return err
}

func serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}
	handler := http.NewServeMux()
	handler.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.Serve(ln)
	}()
	return func() {
		shutdownCtx, cancel := stdcontext.WithTimeout(stdcontext.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
