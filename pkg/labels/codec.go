// Package labels reads and writes the normalized per-image label format:
//
//	classIndex x_center y_center width height
//
// one box per line, geometry as fractions of the image width/height printed
// with six decimals.
package labels

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/classes"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Ext is the label file extension.
const Ext = ".txt"

var ErrMalformedLine = errors.New("malformed label line")

// LineError describes a skipped line.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// UnknownPolicy selects how boxes with an unregistered class are encoded.
type UnknownPolicy int

const (
	// PreserveUnknown writes an unknown box back under the index it was read
	// with, unless that index now names a registered class.
	PreserveUnknown UnknownPolicy = iota
	// RejectUnknown fails encoding when any box has no registered class.
	RejectUnknown
)

// ParsePolicy maps "preserve" and "reject" to a policy.
func ParsePolicy(s string) (UnknownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preserve":
		return PreserveUnknown, nil
	case "reject":
		return RejectUnknown, nil
	}
	return 0, fmt.Errorf("unknown class policy %q", s)
}

// Line is one parsed label record.
type Line struct {
	Index   int
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

// ParseLine parses a single record. Errors wrap ErrMalformedLine.
func ParseLine(s string) (Line, error) {
	fields := strings.Fields(s)
	if len(fields) != 5 {
		return Line{}, fmt.Errorf("%w: want 5 fields, got %d", ErrMalformedLine, len(fields))
	}
	idx, err := strconv.Atoi(fields[0])
	if err != nil {
		return Line{}, fmt.Errorf("%w: class index: %v", ErrMalformedLine, err)
	}
	var v [4]float64
	for i, f := range fields[1:] {
		v[i], err = strconv.ParseFloat(f, 64)
		if err != nil {
			return Line{}, fmt.Errorf("%w: field %d: %v", ErrMalformedLine, i+2, err)
		}
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return Line{}, fmt.Errorf("%w: field %d: %q is not finite", ErrMalformedLine, i+2, f)
		}
	}
	return Line{Index: idx, XCenter: v[0], YCenter: v[1], Width: v[2], Height: v[3]}, nil
}

// Format renders l with six-decimal geometry, without a trailing newline.
func (l Line) Format() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.Index, l.XCenter, l.YCenter, l.Width, l.Height)
}

// Codec converts between boxes and label text for one registry.
type Codec struct {
	Registry     *classes.Registry
	UnknownLabel string
	Policy       UnknownPolicy
}

// NewCodec creates a codec with the default unknown label and the preserve
// policy.
func NewCodec(reg *classes.Registry) *Codec {
	return &Codec{Registry: reg, UnknownLabel: classes.DefaultUnknownLabel}
}

// ParseAll parses every non-empty line of data. Malformed lines are returned
// as LineErrors and never stop parsing. Lines have no length limit.
func ParseAll(data []byte) ([]Line, []error) {
	var out []Line
	var skipped []error
	for n, raw := range bytes.Split(data, []byte("\n")) {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}
		l, err := ParseLine(text)
		if err != nil {
			skipped = append(skipped, &LineError{Line: n + 1, Text: abbreviate(text), Err: err})
			continue
		}
		out = append(out, l)
	}
	return out, skipped
}

// abbreviate keeps error messages for huge lines readable.
func abbreviate(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// Decode reads boxes for a width x height image. Malformed lines are skipped
// and returned as LineErrors; they never abort decoding.
func (c *Codec) Decode(r io.Reader, width, height float64) ([]types.Box, []error) {
	data, err := io.ReadAll(r)
	lines, skipped := ParseAll(data)
	if err != nil {
		skipped = append(skipped, fmt.Errorf("failed to read labels: %w", err))
	}

	boxes := make([]types.Box, 0, len(lines))
	for _, l := range lines {
		boxes = append(boxes, c.toBox(l, width, height))
	}
	return boxes, skipped
}

func (c *Codec) toBox(l Line, width, height float64) types.Box {
	b := types.Box{
		X1: (l.XCenter - l.Width/2) * width,
		Y1: (l.YCenter - l.Height/2) * height,
		X2: (l.XCenter + l.Width/2) * width,
		Y2: (l.YCenter + l.Height/2) * height,
	}
	if name, ok := c.Registry.NameAt(l.Index); ok {
		b.Class = name
	} else {
		b.Class = c.unknownLabel()
		b.Unknown = true
		b.RawIndex = l.Index
	}
	return annotation.Clamp(b, width, height)
}

// LineFor converts a box to its label record.
func (c *Codec) LineFor(b types.Box, width, height float64) (Line, error) {
	idx, err := c.indexFor(b)
	if err != nil {
		return Line{}, err
	}
	return Line{
		Index:   idx,
		XCenter: (b.X1 + b.X2) / 2 / width,
		YCenter: (b.Y1 + b.Y2) / 2 / height,
		Width:   (b.X2 - b.X1) / width,
		Height:  (b.Y2 - b.Y1) / height,
	}, nil
}

func (c *Codec) indexFor(b types.Box) (int, error) {
	if b.Unknown {
		if c.Policy == RejectUnknown || c.Collides(b) {
			return -1, &classes.UnknownClassError{Name: fmt.Sprintf("%s (index %d)", b.Class, b.RawIndex)}
		}
		return b.RawIndex, nil
	}
	return c.Registry.IndexOf(b.Class)
}

// Collides reports whether an unknown box's preserved index now belongs to a
// registered class. Writing it would silently relabel the box.
func (c *Codec) Collides(b types.Box) bool {
	return b.Unknown && b.RawIndex >= 0 && b.RawIndex < c.Registry.Len()
}

// Encode writes every box as one line. Nothing is written if any box fails.
func (c *Codec) Encode(w io.Writer, boxes []types.Box, width, height float64) error {
	var buf bytes.Buffer
	for _, b := range boxes {
		l, err := c.LineFor(b, width, height)
		if err != nil {
			return err
		}
		buf.WriteString(l.Format())
		buf.WriteByte('\n')
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Load reads the label file at path. A missing or empty file yields no boxes.
func (c *Codec) Load(path string, width, height float64) ([]types.Box, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read label file: %w", err)
	}
	boxes, skipped := c.Decode(bytes.NewReader(data), width, height)
	return boxes, skipped, nil
}

// Save persists boxes to path. An empty list removes the file; otherwise the
// file is rewritten in full through a temporary file and a rename.
func (c *Codec) Save(path string, boxes []types.Box, width, height float64) error {
	if len(boxes) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove label file: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := c.Encode(&buf, boxes, width, height); err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	return writeAtomic(path, buf.Bytes())
}

func (c *Codec) unknownLabel() string {
	if c.UnknownLabel == "" {
		return classes.DefaultUnknownLabel
	}
	return c.UnknownLabel
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp label file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write label file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to write label file: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to set label file mode: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to replace label file: %w", err)
	}
	return nil
}

// PathFor returns the label file that belongs to an image: same directory,
// same base name, .txt extension.
func PathFor(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + Ext
}

// HasLabels reports whether path exists and is non-empty.
func HasLabels(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
