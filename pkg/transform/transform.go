// Package transform maps points between image pixel space and the display
// (canvas) space the image is rendered into.
//
// The image is fitted uniformly into the viewport without cropping and centred
// on both axes.
package transform

import (
	"math"

	"github.com/menta2k/image-labeler/pkg/types"
)

// Transform holds the fit of one image into one viewport.
type Transform struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	ImageW  float64 `json:"image_w"`
	ImageH  float64 `json:"image_h"`
}

// Fit computes the transform that fits an imageW x imageH image into a
// viewW x viewH viewport. It reports false for a degenerate viewport (either
// side <= 1) or an empty image, in which case nothing should be rendered.
func Fit(viewW, viewH, imageW, imageH float64) (Transform, bool) {
	if viewW <= 1 || viewH <= 1 || imageW <= 0 || imageH <= 0 {
		return Transform{}, false
	}
	scale := math.Min(viewW/imageW, viewH/imageH)
	return Transform{
		Scale:   scale,
		OffsetX: (viewW - imageW*scale) / 2,
		OffsetY: (viewH - imageH*scale) / 2,
		ImageW:  imageW,
		ImageH:  imageH,
	}, true
}

// Identity returns a unit-scale transform with no offset.
func Identity(imageW, imageH float64) Transform {
	return Transform{Scale: 1, ImageW: imageW, ImageH: imageH}
}

// ImageToDisplay converts an image-space point to display space.
func (t Transform) ImageToDisplay(p types.Point) types.Point {
	return types.Point{X: p.X*t.Scale + t.OffsetX, Y: p.Y*t.Scale + t.OffsetY}
}

// DisplayToImage converts a display-space point to image space. It is the
// exact inverse of ImageToDisplay and does not clamp.
func (t Transform) DisplayToImage(p types.Point) types.Point {
	return types.Point{X: (p.X - t.OffsetX) / t.Scale, Y: (p.Y - t.OffsetY) / t.Scale}
}

// RectToDisplay converts an image-space rectangle to display space.
func (t Transform) RectToDisplay(r types.Rect) types.Rect {
	a := t.ImageToDisplay(types.Point{X: r.X1, Y: r.Y1})
	b := t.ImageToDisplay(types.Point{X: r.X2, Y: r.Y2})
	return types.Rect{X1: a.X, Y1: a.Y, X2: b.X, Y2: b.Y}
}

// DisplayRect is the area of the viewport covered by the image.
func (t Transform) DisplayRect() types.Rect {
	return types.Rect{
		X1: t.OffsetX,
		Y1: t.OffsetY,
		X2: t.OffsetX + t.ImageW*t.Scale,
		Y2: t.OffsetY + t.ImageH*t.Scale,
	}
}

// Contains reports whether a display-space point falls on the image.
func (t Transform) Contains(p types.Point) bool {
	return t.DisplayRect().Contains(p)
}

// Clamp pulls a display-space point onto the image's display rectangle.
func (t Transform) Clamp(p types.Point) types.Point {
	r := t.DisplayRect()
	return types.Point{X: clamp(p.X, r.X1, r.X2), Y: clamp(p.Y, r.Y1, r.Y2)}
}

// DisplaySize returns the pixel size of the scaled bitmap, at least 1x1.
func (t Transform) DisplaySize() (int, int) {
	w := int(t.ImageW * t.Scale)
	h := int(t.ImageH * t.Scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
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
