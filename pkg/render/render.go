// Package render draws annotation overlays onto a bitmap: box outlines in
// their class colour, corner handles, centre crosses and class captions.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/image-labeler/pkg/transform"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Palette resolves a class label to its display colour. *classes.Registry
// satisfies it.
type Palette interface {
	Color(name string) color.RGBA
}

// Options controls what is drawn.
type Options struct {
	// Stroke is the outline width in pixels; 0 picks one from the bitmap size.
	Stroke          int
	HandleHalfWidth int
	Captions        bool
	Handles         bool
	Centers         bool
	// Preview is an in-progress rubber band in display space.
	Preview *types.Rect
}

// DefaultOptions draws everything with 5px handles.
func DefaultOptions() Options {
	return Options{HandleHalfWidth: 5, Captions: true, Handles: true, Centers: true}
}

var (
	previewColor = color.NRGBA{255, 255, 255, 255}
	captionBG    = color.NRGBA{0, 0, 0, 255}
	captionFG    = color.NRGBA{255, 255, 255, 255}
)

// Annotate copies base and draws boxes on it. base must already be scaled to
// tf's display size (see imageio.Display); box coordinates are image space.
func Annotate(base image.Image, boxes []types.Box, pal Palette, tf transform.Transform, opts Options) *image.NRGBA {
	dst := imaging.Clone(base)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()

	stroke := opts.Stroke
	if stroke <= 0 {
		stroke = int(math.Max(2, 0.003*float64(min(w, h))))
	}
	// Bitmap origin is the top-left of the image's display rectangle.
	toBitmap := func(r types.Rect) image.Rectangle {
		d := tf.RectToDisplay(r)
		return image.Rect(
			round(d.X1-tf.OffsetX), round(d.Y1-tf.OffsetY),
			round(d.X2-tf.OffsetX), round(d.Y2-tf.OffsetY),
		)
	}

	for _, b := range boxes {
		c := toNRGBA(pal.Color(b.Class))
		r := toBitmap(b.Rect())
		drawBox(dst, r, c, stroke)

		if opts.Handles {
			hw := opts.HandleHalfWidth
			for _, p := range []image.Point{r.Min, {r.Max.X, r.Min.Y}, {r.Min.X, r.Max.Y}, r.Max} {
				fillRect(dst, image.Rect(p.X-hw, p.Y-hw, p.X+hw, p.Y+hw), c)
			}
		}
		if opts.Centers {
			cx, cy := (r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2
			arm := max(4, stroke*3)
			drawHLine(dst, cy, cx-arm, cx+arm, c)
			drawVLine(dst, cx, cy-arm, cy+arm, c)
		}
		if opts.Captions {
			drawCaption(dst, r.Min, b.Class)
		}
	}

	if opts.Preview != nil {
		p := opts.Preview.Canon()
		r := image.Rect(
			round(p.X1-tf.OffsetX), round(p.Y1-tf.OffsetY),
			round(p.X2-tf.OffsetX), round(p.Y2-tf.OffsetY),
		)
		drawBox(dst, r, previewColor, 1)
	}
	return dst
}

// drawCaption writes label on a black strip just above at, or inside the
// box when there is no room above.
func drawCaption(img *image.NRGBA, at image.Point, label string) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(captionFG), Face: face}
	tw := d.MeasureString(label).Ceil() + 4
	th := face.Height + 2

	top := at.Y - th
	if top < 0 {
		top = at.Y
	}
	bg := image.Rect(at.X, top, at.X+tw, top+th)
	fillRect(img, bg, captionBG)
	d.Dot = fixed.P(at.X+2, top+face.Ascent+1)
	d.DrawString(label)
}

func toNRGBA(c color.RGBA) color.NRGBA {
	return color.NRGBA{c.R, c.G, c.B, 255}
}

func round(v float64) int {
	return int(math.Round(v))
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Dx() < 1 {
		r.Max.X = r.Min.X + 1
	}
	if r.Dy() < 1 {
		r.Max.Y = r.Min.Y + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, x1 = max(x0, 0), min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0, y1 = max(y0, 0), min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
