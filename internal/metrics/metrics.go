package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	workerRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kirad",
		Name:      "worker_running",
		Help:      "Whether the supervised worker is running (1=running, 0=stopped).",
	})

	workerStarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kirad",
		Name:      "worker_starts_total",
		Help:      "Total number of worker processes spawned.",
	})

	workerExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kirad",
		Name:      "worker_exits_total",
		Help:      "Worker exits by outcome (requested, clean, crashed).",
	}, []string{"outcome"})

	logLines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kirad",
		Name:      "log_lines_total",
		Help:      "Classified worker output lines by severity.",
	}, []string{"severity"})

	toolResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kirad",
		Name:      "tool_resolutions_total",
		Help:      "Tool lookups by tool and discovery source (source=none when absent).",
	}, []string{"tool", "source"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kirad",
		Name:      "build_info",
		Help:      "Build metadata for the running kirad binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(workerRunning, workerStarts, workerExits, logLines, toolResolutions, buildInfo)
}

// Registry returns the Prometheus registry containing all kirad metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetWorkerRunning records whether a worker is currently alive.
func SetWorkerRunning(running bool) {
	value := 0.0
	if running {
		value = 1.0
	}
	workerRunning.Set(value)
}

// IncWorkerStarts counts a successful spawn.
func IncWorkerStarts() {
	workerStarts.Inc()
}

// IncWorkerExit counts a worker exit. Requested stops take precedence over
// the exit code.
func IncWorkerExit(requested bool, code int) {
	outcome := "clean"
	switch {
	case requested:
		outcome = "requested"
	case code != 0:
		outcome = "crashed"
	}
	workerExits.WithLabelValues(outcome).Inc()
}

// IncLogLine counts a classified output line.
func IncLogLine(severity string) {
	if severity == "" {
		severity = "info"
	}
	logLines.WithLabelValues(severity).Inc()
}

// ObserveToolResolution counts a resolver outcome. An empty source marks a
// tool that could not be found.
func ObserveToolResolution(tool, source string) {
	if tool == "" {
		return
	}
	if source == "" {
		source = "none"
	}
	toolResolutions.WithLabelValues(tool, source).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
