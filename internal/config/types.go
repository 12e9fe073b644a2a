package config

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML and TOML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// UnmarshalYAML accepts duration strings such as "2s".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Settings configure the supervisor host.
type Settings struct {
	// ConfigDir holds the worker config file, the PID file and the log.
	ConfigDir string `yaml:"configDir" toml:"config_dir"`
	// ProjectRoot is the worker's working directory.
	ProjectRoot string `yaml:"projectRoot" toml:"project_root"`
	// Packaged selects the fixed config file and production profile.
	Packaged bool `yaml:"packaged" toml:"packaged"`
	// DevConfigFile is read when not packaged and the fixed file is absent.
	DevConfigFile string `yaml:"devConfigFile" toml:"dev_config_file"`

	Worker Worker `yaml:"worker" toml:"worker"`
}

// Worker describes how the backend worker is launched and stopped.
type Worker struct {
	Interpreter string `yaml:"interpreter" toml:"interpreter"`
	Entrypoint  string `yaml:"entrypoint" toml:"entrypoint"`
	// TestScript replaces the module entrypoint with a single script.
	TestScript string `yaml:"testScript" toml:"test_script"`
	// GracePeriod separates the terminate and kill signals on shutdown.
	GracePeriod Duration `yaml:"gracePeriod" toml:"grace_period"`
	// Image is the executable name matched when sweeping stray workers on
	// windows.
	Image string `yaml:"image" toml:"image"`

	// Resolved from Settings by Load/Default.
	ProjectRoot   string `yaml:"-" toml:"-"`
	ConfigDir     string `yaml:"-" toml:"-"`
	Packaged      bool   `yaml:"-" toml:"-"`
	DevConfigFile string `yaml:"-" toml:"-"`
}

const (
	ConfigFileName = "config.env"
	PIDFileName    = "server.pid"
	LogFileName    = "server.log"
)

// ConfigFile is the fixed worker config file.
func (w Worker) ConfigFile() string {
	return filepath.Join(w.ConfigDir, ConfigFileName)
}

// PIDFile is where the worker identity is persisted.
func (w Worker) PIDFile() string {
	return filepath.Join(w.ConfigDir, PIDFileName)
}

// LogFile receives raw worker output.
func (w Worker) LogFile() string {
	return filepath.Join(w.ConfigDir, LogFileName)
}

// Target is the script or module that identifies this worker on a
// command line.
func (w Worker) Target() string {
	if w.TestScript != "" {
		return w.TestScript
	}
	return w.Entrypoint
}

// Args returns the runner arguments that launch the worker.
func (w Worker) Args() []string {
	if w.TestScript != "" {
		return []string{"run", w.Interpreter, w.TestScript}
	}
	return []string{"run", w.Interpreter, "-m", w.Entrypoint}
}
