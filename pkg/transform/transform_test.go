package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-labeler/pkg/types"
)

func TestFitLandscapeIntoSquare(t *testing.T) {
	tf, ok := Fit(1000, 1000, 800, 400)
	require.True(t, ok)

	assert.InDelta(t, 1.25, tf.Scale, 1e-9)
	assert.InDelta(t, 0, tf.OffsetX, 1e-9)
	assert.InDelta(t, 250, tf.OffsetY, 1e-9)

	w, h := tf.DisplaySize()
	assert.Equal(t, 1000, w)
	assert.Equal(t, 500, h)
}

func TestFitDegenerateViewport(t *testing.T) {
	for _, tc := range []struct{ w, h float64 }{{1, 500}, {500, 1}, {0, 0}, {-3, 10}} {
		_, ok := Fit(tc.w, tc.h, 100, 100)
		assert.False(t, ok, "viewport %vx%v", tc.w, tc.h)
	}
	_, ok := Fit(100, 100, 0, 10)
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	tf, ok := Fit(1366, 700, 1920, 1080)
	require.True(t, ok)

	for _, p := range []types.Point{{X: 0, Y: 0}, {X: 1920, Y: 1080}, {X: 123.4, Y: 987.6}} {
		back := tf.DisplayToImage(tf.ImageToDisplay(p))
		assert.InDelta(t, p.X, back.X, 1e-9)
		assert.InDelta(t, p.Y, back.Y, 1e-9)
	}
}

func TestContainsAndClamp(t *testing.T) {
	tf, ok := Fit(1000, 1000, 800, 400)
	require.True(t, ok)

	assert.True(t, tf.Contains(types.Pt(500, 250)))
	assert.True(t, tf.Contains(types.Pt(1000, 750)))
	assert.False(t, tf.Contains(types.Pt(500, 249.9)))
	assert.False(t, tf.Contains(types.Pt(500, 900)))

	c := tf.Clamp(types.Pt(-20, 900))
	assert.Equal(t, types.Pt(0, 750), c)

	img := tf.DisplayToImage(c)
	assert.InDelta(t, 0, img.X, 1e-9)
	assert.InDelta(t, 400, img.Y, 1e-9)
}

func TestIdentity(t *testing.T) {
	tf := Identity(800, 600)
	p := tf.ImageToDisplay(types.Pt(100, 200))
	assert.Equal(t, types.Pt(100, 200), p)
	assert.Equal(t, types.Rect{X1: 0, Y1: 0, X2: 800, Y2: 600}, tf.DisplayRect())
}
