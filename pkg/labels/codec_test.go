package labels

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-labeler/pkg/classes"
	"github.com/menta2k/image-labeler/pkg/types"
)

func TestEncodeScenario(t *testing.T) {
	c := NewCodec(classes.New("person", "car"))
	var buf bytes.Buffer
	boxes := []types.Box{{Class: "person", X1: 100, Y1: 100, X2: 300, Y2: 200}}

	require.NoError(t, c.Encode(&buf, boxes, 800, 600))
	assert.Equal(t, "0 0.250000 0.250000 0.250000 0.166667\n", buf.String())
}

func TestDecodeScenario(t *testing.T) {
	c := NewCodec(classes.New("person", "car"))
	boxes, skipped := c.Decode(strings.NewReader("1 0.5 0.5 0.5 0.5\n"), 400, 400)

	assert.Empty(t, skipped)
	require.Len(t, boxes, 1)
	assert.Equal(t, types.Box{Class: "car", X1: 100, Y1: 100, X2: 300, Y2: 300}, boxes[0])
}

func TestDecodeSkipsMalformedLines(t *testing.T) {
	c := NewCodec(classes.New("a"))
	input := strings.Join([]string{
		"0 0.5 0.5 0.2 0.2",
		"",
		"0 0.5 0.5 0.2",
		"x 0.5 0.5 0.2 0.2",
		"0 0,5 0.5 0.2 0.2",
		"0 0.5 0.5 0.2 0.2 9",
		"   0\t0.25  0.25 0.1 0.1  ",
	}, "\n")

	boxes, skipped := c.Decode(strings.NewReader(input), 100, 100)
	assert.Len(t, boxes, 2)
	require.Len(t, skipped, 4)
	for _, err := range skipped {
		assert.True(t, errors.Is(err, ErrMalformedLine), "%v", err)
	}
	var le *LineError
	require.True(t, errors.As(skipped[0], &le))
	assert.Equal(t, 3, le.Line)
}

func TestDecodeUnknownIndex(t *testing.T) {
	c := NewCodec(classes.New("a", "b"))
	boxes, _ := c.Decode(strings.NewReader("5 0.5 0.5 0.5 0.5\n"), 200, 100)
	require.Len(t, boxes, 1)

	b := boxes[0]
	assert.Equal(t, classes.DefaultUnknownLabel, b.Class)
	assert.True(t, b.Unknown)
	assert.Equal(t, 5, b.RawIndex)

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, boxes, 200, 100))
	assert.Equal(t, "5 0.500000 0.500000 0.500000 0.500000\n", buf.String())

	c.Policy = RejectUnknown
	err := c.Encode(&bytes.Buffer{}, boxes, 200, 100)
	assert.ErrorIs(t, err, classes.ErrUnknownClass)
}

func TestDecodeSurvivesHugeLine(t *testing.T) {
	c := NewCodec(classes.New("a", "b"))
	path := filepath.Join(t.TempDir(), "img.txt")
	content := "0 0.5 0.5 0.2 0.2\n" + strings.Repeat("x", 70000) + "\n1 0.25 0.25 0.1 0.1\n0 0.75 0.75 0.1 0.1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	boxes, skipped, err := c.Load(path, 100, 100)
	require.NoError(t, err)
	require.Len(t, boxes, 3)
	require.Len(t, skipped, 1)
	assert.ErrorIs(t, skipped[0], ErrMalformedLine)
	var le *LineError
	require.True(t, errors.As(skipped[0], &le))
	assert.Equal(t, 2, le.Line)
	assert.Less(t, len(le.Text), 100)

	require.NoError(t, c.Save(path, boxes, 100, 100))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0 0.500000 0.500000 0.200000 0.200000\n1 0.250000 0.250000 0.100000 0.100000\n0 0.750000 0.750000 0.100000 0.100000\n", string(data))
}

func TestDecodeRejectsNonFiniteValues(t *testing.T) {
	c := NewCodec(classes.New("a"))
	input := "0 NaN NaN NaN NaN\n0 0.5 Inf 0.2 0.2\n0 0.5 0.5 -inf 0.2\n0 0.5 0.5 0.2 0.2\n"

	boxes, skipped := c.Decode(strings.NewReader(input), 100, 100)
	assert.Len(t, boxes, 1)
	require.Len(t, skipped, 3)
	for _, err := range skipped {
		assert.ErrorIs(t, err, ErrMalformedLine)
	}

	_, err := ParseLine("0 0.5 0.5 0.2 NaN")
	assert.ErrorIs(t, err, ErrMalformedLine)
}

func TestEncodeCollidingUnknownIndexFails(t *testing.T) {
	c := NewCodec(classes.New("dog"))
	gone := types.Box{Class: "unknown", Unknown: true, RawIndex: 0, X1: 10, Y1: 10, X2: 20, Y2: 20}
	assert.True(t, c.Collides(gone))

	err := c.Encode(&bytes.Buffer{}, []types.Box{gone}, 100, 100)
	assert.ErrorIs(t, err, classes.ErrUnknownClass)
	assert.Contains(t, err.Error(), "index 0")

	outside := gone
	outside.RawIndex = 1
	assert.False(t, c.Collides(outside))
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, []types.Box{outside}, 100, 100))
	assert.Equal(t, "1 0.150000 0.150000 0.100000 0.100000\n", buf.String())
}

func TestParseAll(t *testing.T) {
	lines, skipped := ParseAll([]byte("0 0.5 0.5 0.2 0.2\r\n\nbad\n3 0.1 0.1 0.1 0.1"))
	assert.Equal(t, []Line{
		{Index: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.2, Height: 0.2},
		{Index: 3, XCenter: 0.1, YCenter: 0.1, Width: 0.1, Height: 0.1},
	}, lines)
	require.Len(t, skipped, 1)
	var le *LineError
	require.True(t, errors.As(skipped[0], &le))
	assert.Equal(t, 3, le.Line)
}

func TestEncodeUnregisteredClassFails(t *testing.T) {
	c := NewCodec(classes.New("a"))
	var buf bytes.Buffer
	err := c.Encode(&buf, []types.Box{{Class: "a", X2: 5, Y2: 5}, {Class: "b", X2: 5, Y2: 5}}, 10, 10)
	assert.ErrorIs(t, err, classes.ErrUnknownClass)
	assert.Zero(t, buf.Len())
}

func TestDecodeClampsOutOfRangeGeometry(t *testing.T) {
	c := NewCodec(classes.New("a"))
	boxes, _ := c.Decode(strings.NewReader("0 0.875 0.5 0.25 2.0\n"), 100, 100)
	require.Len(t, boxes, 1)
	assert.Equal(t, types.Rect{X1: 75, Y1: 0, X2: 100, Y2: 100}, boxes[0].Rect())
}

func TestRoundTripWithinTolerance(t *testing.T) {
	c := NewCodec(classes.New("a", "b", "c"))
	const w, h = 1917.0, 1013.0
	in := []types.Box{
		{Class: "a", X1: 13.37, Y1: 7.77, X2: 455.123, Y2: 300.9},
		{Class: "c", X1: 0, Y1: 0, X2: w, Y2: h},
		{Class: "b", X1: 1000.5, Y1: 500.25, X2: 1001.5, Y2: 501.25},
	}

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, in, w, h))
	out, skipped := c.Decode(&buf, w, h)
	require.Empty(t, skipped)
	require.Len(t, out, len(in))

	for i := range in {
		assert.Equal(t, in[i].Class, out[i].Class)
		assert.InDelta(t, in[i].X1/w, out[i].X1/w, 1e-4)
		assert.InDelta(t, in[i].Y1/h, out[i].Y1/h, 1e-4)
		assert.InDelta(t, in[i].X2/w, out[i].X2/w, 1e-4)
		assert.InDelta(t, in[i].Y2/h, out[i].Y2/h, 1e-4)
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	c := NewCodec(classes.New("a", "b"))
	path := filepath.Join(t.TempDir(), "img.txt")
	boxes := []types.Box{
		{Class: "b", X1: 10.123456, Y1: 20, X2: 55.5, Y2: 80},
		{Class: "a", X1: 1, Y1: 1, X2: 2, Y2: 2},
	}

	require.NoError(t, c.Save(path, boxes, 640, 480))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, c.Save(path, boxes, 640, 480))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSaveEmptyRemovesFile(t *testing.T) {
	c := NewCodec(classes.New("a"))
	path := filepath.Join(t.TempDir(), "img.txt")

	require.NoError(t, c.Save(path, []types.Box{{Class: "a", X1: 1, Y1: 1, X2: 5, Y2: 5}}, 10, 10))
	assert.True(t, HasLabels(path))

	require.NoError(t, c.Save(path, nil, 10, 10))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, c.Save(path, nil, 10, 10))
}

func TestLoadMissingAndEmpty(t *testing.T) {
	c := NewCodec(classes.New("a"))
	dir := t.TempDir()

	boxes, skipped, err := c.Load(filepath.Join(dir, "none.txt"), 10, 10)
	require.NoError(t, err)
	assert.Empty(t, boxes)
	assert.Empty(t, skipped)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	boxes, _, err = c.Load(empty, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, boxes)
	assert.False(t, HasLabels(empty))
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("task", "images", "img_01.txt"), PathFor(filepath.Join("task", "images", "img_01.jpg")))
	assert.Equal(t, "a.b.txt", PathFor("a.b.png"))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Reject")
	require.NoError(t, err)
	assert.Equal(t, RejectUnknown, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PreserveUnknown, p)

	_, err = ParsePolicy("remap")
	assert.Error(t, err)
}

func BenchmarkEncode(b *testing.B) {
	c := NewCodec(classes.New("a", "b"))
	boxes := make([]types.Box, 100)
	for i := range boxes {
		f := float64(i)
		boxes[i] = types.Box{Class: "a", X1: f, Y1: f, X2: f + 10, Y2: f + 20}
	}
	var buf bytes.Buffer

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		_ = c.Encode(&buf, boxes, 1920, 1080)
	}
}
