package render

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menta2k/image-labeler/pkg/classes"
	"github.com/menta2k/image-labeler/pkg/transform"
	"github.com/menta2k/image-labeler/pkg/types"
)

type fixedPalette color.RGBA

func (p fixedPalette) Color(string) color.RGBA { return color.RGBA(p) }

var (
	red  = color.NRGBA{255, 0, 0, 255}
	gray = color.NRGBA{90, 90, 90, 255}
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(gray), image.Point{}, draw.Src)
	return img
}

func TestAnnotateDrawsOutlineCrossAndHandles(t *testing.T) {
	base := createTestImage(100, 100)
	boxes := []types.Box{{Class: "cat", X1: 10, Y1: 10, X2: 50, Y2: 40}}

	out := Annotate(base, boxes, fixedPalette{255, 0, 0, 255}, transform.Identity(100, 100), DefaultOptions())

	assert.Equal(t, red, out.NRGBAAt(42, 10), "top edge")
	assert.Equal(t, red, out.NRGBAAt(10, 32), "left edge")
	assert.Equal(t, red, out.NRGBAAt(30, 28), "centre cross")
	assert.Equal(t, red, out.NRGBAAt(52, 42), "bottom-right handle")
	assert.Equal(t, gray, out.NRGBAAt(40, 30), "interior")
	assert.Equal(t, gray, out.NRGBAAt(80, 80), "outside")
	assert.Equal(t, gray, base.NRGBAAt(42, 10), "base must not be modified")
}

func TestAnnotateCaptionAboveBox(t *testing.T) {
	base := createTestImage(200, 200)
	boxes := []types.Box{{Class: "dog", X1: 20, Y1: 60, X2: 120, Y2: 150}}

	out := Annotate(base, boxes, classes.New("dog"), transform.Identity(200, 200), Options{Stroke: 1, Captions: true})

	assert.Equal(t, captionBG, out.NRGBAAt(21, 47))
	assert.Equal(t, gray, out.NRGBAAt(21, 40))
}

func TestAnnotateRespectsTransform(t *testing.T) {
	tf, ok := transform.Fit(300, 100, 200, 100)
	assert.True(t, ok)
	w, h := tf.DisplaySize()
	base := createTestImage(w, h)
	boxes := []types.Box{{Class: "x", X1: 100, Y1: 20, X2: 180, Y2: 80}}

	out := Annotate(base, boxes, fixedPalette{255, 0, 0, 255}, tf, Options{Stroke: 1})

	assert.Equal(t, red, out.NRGBAAt(100, 50))
	assert.Equal(t, red, out.NRGBAAt(179, 50))
	assert.Equal(t, gray, out.NRGBAAt(150, 50))
}

func TestAnnotatePreview(t *testing.T) {
	base := createTestImage(100, 100)
	preview := types.Rect{X1: 70, Y1: 70, X2: 20, Y2: 20}
	opts := Options{Preview: &preview}

	out := Annotate(base, nil, fixedPalette{}, transform.Identity(100, 100), opts)

	assert.Equal(t, previewColor, out.NRGBAAt(20, 45))
	assert.Equal(t, previewColor, out.NRGBAAt(45, 69))
	assert.Equal(t, gray, out.NRGBAAt(45, 45))
}

func BenchmarkAnnotate(b *testing.B) {
	base := createTestImage(1280, 720)
	var boxes []types.Box
	for i := 0; i < 50; i++ {
		x := float64(i * 20)
		boxes = append(boxes, types.Box{Class: "c", X1: x, Y1: x / 2, X2: x + 100, Y2: x/2 + 80})
	}
	pal := classes.New("c")
	tf := transform.Identity(1280, 720)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Annotate(base, boxes, pal, tf, DefaultOptions())
	}
}
