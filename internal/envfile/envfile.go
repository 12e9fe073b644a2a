// Package envfile reads and writes the worker configuration file: KEY=value
// lines, '#' comments, and double-quoted values using \\, \" and \n escapes.
package envfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Pair is a single key/value assignment.
type Pair struct {
	Key   string
	Value string
}

// File is an ordered set of assignments. A repeated key keeps its first
// position and its last value.
type File struct {
	pairs []Pair
	index map[string]int
}

// New returns an empty file.
func New() *File {
	return &File{index: make(map[string]int)}
}

// Set assigns key.
func (f *File) Set(key, value string) {
	if i, ok := f.index[key]; ok {
		f.pairs[i].Value = value
		return
	}
	f.index[key] = len(f.pairs)
	f.pairs = append(f.pairs, Pair{Key: key, Value: value})
}

// Get returns the value for key.
func (f *File) Get(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	i, ok := f.index[key]
	if !ok {
		return "", false
	}
	return f.pairs[i].Value, true
}

// Pairs returns the assignments in file order.
func (f *File) Pairs() []Pair {
	if f == nil {
		return nil
	}
	return append([]Pair(nil), f.pairs...)
}

// Len reports the number of distinct keys.
func (f *File) Len() int {
	if f == nil {
		return 0
	}
	return len(f.pairs)
}

// Map returns the assignments as a map.
func (f *File) Map() map[string]string {
	out := make(map[string]string, f.Len())
	for _, p := range f.Pairs() {
		out[p.Key] = p.Value
	}
	return out
}

// Load parses the file at path.
func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer fh.Close()

	f, err := Parse(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse reads assignments from r. Lines without '=' are ignored.
func Parse(r io.Reader) (*File, error) {
	f := New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sep := strings.IndexByte(line, '=')
		if sep < 0 {
			continue
		}
		key := strings.TrimSpace(line[:sep])
		if key == "" {
			continue
		}
		f.Set(key, Unescape(stripQuotes(line[sep+1:])))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return f, nil
}

func stripQuotes(v string) string {
	if v != "" && (v[0] == '"' || v[0] == '\'') {
		v = v[1:]
	}
	if n := len(v); n > 0 && (v[n-1] == '"' || v[n-1] == '\'') {
		v = v[:n-1]
	}
	return v
}

var escapePattern = regexp.MustCompile(`\\([\\"n])`)

// Unescape reverses Escape.
func Unescape(v string) string {
	return escapePattern.ReplaceAllStringFunc(v, func(m string) string {
		switch m[1] {
		case 'n':
			return "\n"
		default:
			return m[1:]
		}
	})
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Escape encodes v for use inside a double-quoted value.
func Escape(v string) string {
	return escaper.Replace(v)
}
