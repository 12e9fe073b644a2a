package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Identity persists the worker's PID so a later host process can find a
// worker that outlived its supervisor.
type Identity struct {
	path string
}

// NewIdentity returns an identity stored at path.
func NewIdentity(path string) *Identity {
	return &Identity{path: path}
}

// Path returns the backing file.
func (i *Identity) Path() string {
	return i.path
}

// Write records pid, replacing any previous value.
func (i *Identity) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(i.path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

// Read returns the recorded pid. A missing file yields fs.ErrNotExist.
func (i *Identity) Read() (int, error) {
	data, err := os.ReadFile(i.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("identity %s holds no pid: %q", i.path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// Remove deletes the file. Absence is not an error.
func (i *Identity) Remove() error {
	if err := os.Remove(i.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove identity: %w", err)
	}
	return nil
}
