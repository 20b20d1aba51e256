// Package classes keeps the ordered class list of a task. The position of a
// name in the list is the numeric class index written to label files.
package classes

import (
	"bufio"
	"crypto/md5"
	"errors"
	"fmt"
	"image/color"
	"os"
	"strings"
)

// DefaultUnknownLabel is the display label for class indices outside the
// registry.
const DefaultUnknownLabel = "unknown"

var (
	ErrUnknownClass   = errors.New("unknown class")
	ErrDuplicateClass = errors.New("duplicate class")
	ErrEmptyName      = errors.New("empty class name")
)

// UnknownClassError reports a class name that is not registered.
type UnknownClassError struct {
	Name string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownClass, e.Name)
}

func (e *UnknownClassError) Unwrap() error { return ErrUnknownClass }

// Registry is an ordered list of unique class names with derived colors.
type Registry struct {
	names  []string
	index  map[string]int
	colors map[string]color.RGBA
}

// New builds a registry from names. Names are trimmed; blank and repeated
// names are dropped.
func New(names ...string) *Registry {
	r := &Registry{}
	r.reset(names)
	return r
}

func (r *Registry) reset(names []string) {
	r.names = r.names[:0]
	r.index = make(map[string]int, len(names))
	r.colors = make(map[string]color.RGBA, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := r.index[n]; dup {
			continue
		}
		r.index[n] = len(r.names)
		r.names = append(r.names, n)
		r.colors[n] = ColorFor(n)
	}
}

// Load reads a class list file: one name per line, blank lines ignored.
// A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to open class list: %w", err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		names = append(names, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read class list: %w", err)
	}
	return New(names...), nil
}

// Save rewrites the class list file in full.
func (r *Registry) Save(path string) error {
	var b strings.Builder
	for _, n := range r.names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write class list: %w", err)
	}
	return nil
}

// Names returns a copy of the class names in index order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of classes.
func (r *Registry) Len() int { return len(r.names) }

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// IndexOf returns the serialization index of name.
func (r *Registry) IndexOf(name string) (int, error) {
	i, ok := r.index[name]
	if !ok {
		return -1, &UnknownClassError{Name: name}
	}
	return i, nil
}

// NameAt returns the class at index i; ok is false when i is out of range.
func (r *Registry) NameAt(i int) (string, bool) {
	if i < 0 || i >= len(r.names) {
		return "", false
	}
	return r.names[i], true
}

// Add appends a class.
func (r *Registry) Add(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if r.Has(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateClass, name)
	}
	r.reset(append(r.Names(), name))
	return nil
}

// Remove deletes a class; later classes shift down one index.
func (r *Registry) Remove(name string) bool {
	i, ok := r.index[name]
	if !ok {
		return false
	}
	names := r.Names()
	r.reset(append(names[:i], names[i+1:]...))
	return true
}

// Color returns the render color of name, which does not need to be
// registered.
func (r *Registry) Color(name string) color.RGBA {
	if c, ok := r.colors[name]; ok {
		return c
	}
	return ColorFor(name)
}

// ColorFor derives a stable color from the first 24 bits of the MD5 digest of
// the UTF-8 name. The result depends only on the name.
func ColorFor(name string) color.RGBA {
	sum := md5.Sum([]byte(name))
	return color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 0xff}
}

// Hex formats a color as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
