package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultInterpreter = "python"
	DefaultEntrypoint  = "app.main"
	DefaultGracePeriod = 2 * time.Second
	DefaultImage       = "python.exe"
)

// Default returns settings for a development checkout rooted at the current
// directory.
func Default() *Settings {
	s := &Settings{}
	s.applyDefaults("")
	return s
}

// Load reads settings from a YAML or TOML file, chosen by extension.
// Relative paths inside the file resolve against the file's directory.
func Load(path string) (*Settings, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open settings file: %w", err)
	}

	var s Settings
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".toml":
		md, err := toml.Decode(string(data), &s)
		if err != nil {
			return nil, fmt.Errorf("%s: decode: %w", absPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%s: unknown field %s", absPath, undecoded[0])
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: decode: %w", absPath, err)
		}
	}

	s.applyDefaults(filepath.Dir(absPath))
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &s, nil
}

func (s *Settings) applyDefaults(base string) {
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	if s.ConfigDir == "" {
		s.ConfigDir = filepath.Join("~", ".kira")
	}
	s.ConfigDir = resolvePath(base, s.ConfigDir)
	if s.ProjectRoot == "" {
		s.ProjectRoot = base
	}
	s.ProjectRoot = resolvePath(base, s.ProjectRoot)
	if s.DevConfigFile == "" {
		s.DevConfigFile = filepath.Join("app", "config", "env", "dev.env")
	}
	s.DevConfigFile = resolvePath(s.ProjectRoot, s.DevConfigFile)

	w := &s.Worker
	if w.Interpreter == "" {
		w.Interpreter = DefaultInterpreter
	}
	if w.Entrypoint == "" {
		w.Entrypoint = DefaultEntrypoint
	}
	if w.GracePeriod.Duration == 0 {
		w.GracePeriod.Duration = DefaultGracePeriod
	}
	if w.Image == "" {
		w.Image = DefaultImage
	}
	s.Sync()
}

// Sync copies the top-level paths into Worker. Call it after changing
// Settings fields directly.
func (s *Settings) Sync() {
	s.Worker.ProjectRoot = s.ProjectRoot
	s.Worker.ConfigDir = s.ConfigDir
	s.Worker.Packaged = s.Packaged
	s.Worker.DevConfigFile = s.DevConfigFile
}

func resolvePath(base, p string) string {
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	if filepath.IsAbs(p) || base == "" {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(base, p))
}
