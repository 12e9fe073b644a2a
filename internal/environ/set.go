// Package environ composes the environment handed to the worker process.
package environ

import (
	"sort"
	"strings"
)

// PathKey is the name of the executable search variable.
const PathKey = "PATH"

// Set is an ordered mapping of environment variables. On windows variable
// names compare case-insensitively, matching the OS.
type Set struct {
	fold  bool
	keys  []string
	vals  map[string]string
	names map[string]string
}

// NewSet returns an empty set. fold selects case-insensitive names.
func NewSet(fold bool) *Set {
	return &Set{
		fold:  fold,
		vals:  make(map[string]string),
		names: make(map[string]string),
	}
}

// FromEnviron seeds a set from KEY=value strings such as os.Environ().
func FromEnviron(env []string, fold bool) *Set {
	s := NewSet(fold)
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		s.Set(key, value)
	}
	return s
}

func (s *Set) norm(key string) string {
	if s.fold {
		return strings.ToUpper(key)
	}
	return key
}

// Set assigns key, keeping the original position and spelling of an
// existing variable.
func (s *Set) Set(key, value string) {
	n := s.norm(key)
	if _, ok := s.vals[n]; !ok {
		s.keys = append(s.keys, n)
		s.names[n] = key
	}
	s.vals[n] = value
}

// SetDefault assigns key only when it is unset.
func (s *Set) SetDefault(key, value string) {
	if _, ok := s.Get(key); !ok {
		s.Set(key, value)
	}
}

// Get returns the value of key.
func (s *Set) Get(key string) (string, bool) {
	v, ok := s.vals[s.norm(key)]
	return v, ok
}

// Len reports the number of variables.
func (s *Set) Len() int {
	return len(s.keys)
}

// PrependPath places dir at the front of the PATH variable unless it is
// already one of its entries.
func (s *Set) PrependPath(dir, sep string) bool {
	if dir == "" {
		return false
	}
	current, _ := s.Get(PathKey)
	if current == "" {
		s.Set(PathKey, dir)
		return true
	}
	for _, entry := range strings.Split(current, sep) {
		if entry == dir {
			return false
		}
	}
	s.Set(PathKey, dir+sep+current)
	return true
}

// Environ returns KEY=value strings in insertion order, suitable for
// exec.Cmd.Env.
func (s *Set) Environ() []string {
	out := make([]string, 0, len(s.keys))
	for _, n := range s.keys {
		out = append(out, s.names[n]+"="+s.vals[n])
	}
	return out
}

// Sorted returns KEY=value strings ordered by name, for display.
func (s *Set) Sorted() []string {
	out := s.Environ()
	sort.Strings(out)
	return out
}
