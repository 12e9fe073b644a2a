package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that the settings describe a launchable worker.
func (s *Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.ConfigDir) == "" {
		errs = append(errs, errors.New("configDir is required"))
	}
	if strings.TrimSpace(s.ProjectRoot) == "" {
		errs = append(errs, errors.New("projectRoot is required"))
	}
	if err := s.Worker.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks the worker invocation.
func (w Worker) Validate() error {
	var errs []error
	if strings.TrimSpace(w.Interpreter) == "" {
		errs = append(errs, errors.New("worker.interpreter is required"))
	}
	if strings.TrimSpace(w.Entrypoint) == "" && strings.TrimSpace(w.TestScript) == "" {
		errs = append(errs, errors.New("worker.entrypoint is required"))
	}
	if w.GracePeriod.Duration <= 0 {
		errs = append(errs, fmt.Errorf("worker.gracePeriod must be positive, got %s", w.GracePeriod.Duration))
	}
	return errors.Join(errs...)
}
