// Package annotation holds the in-memory box list of the currently displayed
// image and keeps every box valid after each mutation.
//
// Every box satisfies 0 <= X1 < X2 <= width and 0 <= Y1 < Y2 <= height with
// an extent of at least one pixel per axis. Order is creation order, which is
// also the z-order: index 0 is drawn first and hit-tested last.
package annotation

import (
	"math"

	"github.com/menta2k/image-labeler/pkg/types"
)

// MinExtent is the smallest width or height a box may have, in image pixels.
const MinExtent = 1.0

// Set is the ordered box list for one image.
type Set struct {
	width  float64
	height float64
	boxes  []types.Box
}

// NewSet creates a set for a width x height image. The given boxes are
// clamped into the image before being stored.
func NewSet(width, height float64, boxes ...types.Box) *Set {
	s := &Set{width: width, height: height, boxes: make([]types.Box, 0, len(boxes))}
	for _, b := range boxes {
		s.boxes = append(s.boxes, Clamp(b, width, height))
	}
	return s
}

// Size returns the image dimensions the set is bound to.
func (s *Set) Size() (float64, float64) {
	return s.width, s.height
}

// Len returns the number of boxes.
func (s *Set) Len() int {
	return len(s.boxes)
}

// Boxes returns a copy of the boxes in z-order.
func (s *Set) Boxes() []types.Box {
	out := make([]types.Box, len(s.boxes))
	copy(out, s.boxes)
	return out
}

// At returns the box at index i.
func (s *Set) At(i int) (types.Box, bool) {
	if !s.valid(i) {
		return types.Box{}, false
	}
	return s.boxes[i], true
}

// Create appends a new box of the given class spanning r and returns its
// index.
func (s *Set) Create(class string, r types.Rect) int {
	b := types.Box{Class: class}.WithRect(r)
	s.boxes = append(s.boxes, Clamp(b, s.width, s.height))
	return len(s.boxes) - 1
}

// MoveBy translates box i by (dx, dy). Width and height are preserved; the
// translation is clamped so that the whole box stays inside the image.
func (s *Set) MoveBy(i int, dx, dy float64) bool {
	if !s.valid(i) {
		return false
	}
	b := s.boxes[i]
	return s.MoveTo(i, b.X1+dx, b.Y1+dy)
}

// MoveTo places the top-left corner of box i at (x, y), clamped so that the
// box stays inside the image without being reshaped.
func (s *Set) MoveTo(i int, x, y float64) bool {
	if !s.valid(i) {
		return false
	}
	b := s.boxes[i]
	w, h := b.X2-b.X1, b.Y2-b.Y1
	x = clamp(x, 0, math.Max(0, s.width-w))
	y = clamp(y, 0, math.Max(0, s.height-h))
	b.X1, b.Y1, b.X2, b.Y2 = x, y, x+w, y+h
	s.boxes[i] = Clamp(b, s.width, s.height)
	return true
}

// Resize moves the given corner of box i to p. Only the two coordinates owned
// by that corner change; corners may cross, after which the box is
// re-normalized. The returned corner is the one the dragged point occupies
// afterwards, so a drag past the opposite edge keeps following the pointer.
func (s *Set) Resize(i int, c types.Corner, p types.Point) (types.Corner, bool) {
	if !s.valid(i) || c < types.TopLeft || c > types.BottomRight {
		return c, false
	}
	b := s.boxes[i]
	fixed := c.Opposite().Of(b.Rect())
	left, top := c.IsLeft(), c.IsTop()
	if p.X != fixed.X {
		left = p.X < fixed.X
	}
	if p.Y != fixed.Y {
		top = p.Y < fixed.Y
	}
	s.boxes[i] = Clamp(b.WithRect(types.RectFromPoints(p, fixed)), s.width, s.height)
	return types.CornerAt(left, top), true
}

// SetClass assigns a class to box i. A previously unknown box becomes known.
func (s *Set) SetClass(i int, class string) bool {
	if !s.valid(i) {
		return false
	}
	b := s.boxes[i]
	b.Class = class
	b.Unknown, b.RawIndex = false, 0
	s.boxes[i] = b
	return true
}

// Replace overwrites box i wholesale, clamping it first.
func (s *Set) Replace(i int, b types.Box) bool {
	if !s.valid(i) {
		return false
	}
	s.boxes[i] = Clamp(b, s.width, s.height)
	return true
}

// Delete removes box i.
func (s *Set) Delete(i int) bool {
	if !s.valid(i) {
		return false
	}
	s.boxes = append(s.boxes[:i], s.boxes[i+1:]...)
	return true
}

// HitTest returns the index of the topmost box containing p (bounds
// inclusive), or -1.
func (s *Set) HitTest(p types.Point) int {
	for i := len(s.boxes) - 1; i >= 0; i-- {
		if s.boxes[i].Rect().Contains(p) {
			return i
		}
	}
	return -1
}

func (s *Set) valid(i int) bool {
	return i >= 0 && i < len(s.boxes)
}

// Clamp normalizes b so that its corners are sorted, lie inside a
// width x height image and span at least MinExtent per axis. A collapsed edge
// is grown toward the interior of the image.
func Clamp(b types.Box, width, height float64) types.Box {
	r := b.Rect().Canon()
	r.X1, r.X2 = clampSpan(r.X1, r.X2, width)
	r.Y1, r.Y2 = clampSpan(r.Y1, r.Y2, height)
	return b.WithRect(r)
}

func clampSpan(lo, hi, limit float64) (float64, float64) {
	lo = clamp(lo, 0, limit)
	hi = clamp(hi, 0, limit)
	if hi-lo >= MinExtent {
		return lo, hi
	}
	if lo+MinExtent <= limit {
		return lo, lo + MinExtent
	}
	return math.Max(0, limit-MinExtent), limit
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
