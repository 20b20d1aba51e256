package types

import "math"

// Point is a 2D point in either image or display space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Rect is an axis-aligned rectangle given by two corners.
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// RectFromPoints builds a normalized rectangle spanning a and b.
func RectFromPoints(a, b Point) Rect {
	return Rect{X1: a.X, Y1: a.Y, X2: b.X, Y2: b.Y}.Canon()
}

// Canon returns r with sorted corners so that X1 <= X2 and Y1 <= Y2.
func (r Rect) Canon() Rect {
	return Rect{
		X1: math.Min(r.X1, r.X2),
		Y1: math.Min(r.Y1, r.Y2),
		X2: math.Max(r.X1, r.X2),
		Y2: math.Max(r.Y1, r.Y2),
	}
}

// Contains reports whether p lies inside r, bounds inclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X1 && p.X <= r.X2 && p.Y >= r.Y1 && p.Y <= r.Y2
}

// Width returns X2 - X1.
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height returns Y2 - Y1.
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// Center returns the centre point of r.
func (r Rect) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// Corner identifies one of the four corners of a box.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomLeft
	BottomRight
)

// Corners lists every corner in a fixed order.
var Corners = [...]Corner{TopLeft, TopRight, BottomLeft, BottomRight}

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "tl"
	case TopRight:
		return "tr"
	case BottomLeft:
		return "bl"
	case BottomRight:
		return "br"
	}
	return "?"
}

// Opposite returns the diagonally opposite corner.
func (c Corner) Opposite() Corner {
	switch c {
	case TopLeft:
		return BottomRight
	case TopRight:
		return BottomLeft
	case BottomLeft:
		return TopRight
	}
	return TopLeft
}

// CornerAt returns the corner on the given sides.
func CornerAt(left, top bool) Corner {
	switch {
	case left && top:
		return TopLeft
	case top:
		return TopRight
	case left:
		return BottomLeft
	}
	return BottomRight
}

// IsLeft reports whether c is on the left edge.
func (c Corner) IsLeft() bool { return c == TopLeft || c == BottomLeft }

// IsTop reports whether c is on the top edge.
func (c Corner) IsTop() bool { return c == TopLeft || c == TopRight }

// Of returns the position of corner c on r.
func (c Corner) Of(r Rect) Point {
	switch c {
	case TopRight:
		return Point{X: r.X2, Y: r.Y1}
	case BottomLeft:
		return Point{X: r.X1, Y: r.Y2}
	case BottomRight:
		return Point{X: r.X2, Y: r.Y2}
	}
	return Point{X: r.X1, Y: r.Y1}
}

// Box is one annotation in image-pixel space.
//
// Unknown marks a box decoded from a label line whose class index is not in
// the registry; RawIndex then holds that index so it can be written back
// unchanged. Assigning a class clears both.
type Box struct {
	Class    string  `json:"class"`
	X1       float64 `json:"x1"`
	Y1       float64 `json:"y1"`
	X2       float64 `json:"x2"`
	Y2       float64 `json:"y2"`
	Unknown  bool    `json:"unknown,omitempty"`
	RawIndex int     `json:"raw_index,omitempty"`
}

// Rect returns the geometry of the box.
func (b Box) Rect() Rect {
	return Rect{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2}
}

// WithRect returns a copy of b with its geometry replaced by r.
func (b Box) WithRect(r Rect) Box {
	b.X1, b.Y1, b.X2, b.Y2 = r.X1, r.Y1, r.X2, r.Y2
	return b
}

// NormBox is a normalized bounding box with top-left coordinates in [0,1].
type NormBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Suggestion is a proposed box produced by a detector.
type Suggestion struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        NormBox `json:"box"`
}
