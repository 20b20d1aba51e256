package editor

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-labeler/pkg/classes"
	"github.com/menta2k/image-labeler/pkg/imageio"
	"github.com/menta2k/image-labeler/pkg/interaction"
	"github.com/menta2k/image-labeler/pkg/render"
	"github.com/menta2k/image-labeler/pkg/task"
	"github.com/menta2k/image-labeler/pkg/types"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

type fixture struct {
	root   string
	images string
	ed     *Editor
}

// newFixture builds Tasks/demo with three 200x100 images a, b, c, opens it
// and sets a 400x200 viewport (scale 2, no offset).
func newFixture(t *testing.T, classList string, labelFiles map[string]string) *fixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Tasks")
	images := filepath.Join(root, "demo", "images")
	require.NoError(t, os.MkdirAll(images, 0o755))
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, imageio.Save(createTestImage(200, 100), filepath.Join(images, name+".png"), "png", 90, false))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "demo", "classes.txt"), []byte(classList), 0o644))
	for name, content := range labelFiles {
		require.NoError(t, os.WriteFile(filepath.Join(images, name+".txt"), []byte(content), 0o644))
	}

	ed := New(DefaultOptions(root))
	require.NoError(t, ed.OpenTask("demo"))
	_, ok := ed.Resize(400, 200)
	require.True(t, ok)
	return &fixture{root: root, images: images, ed: ed}
}

func (f *fixture) label(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.images, name+".txt"))
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

func TestOpenTaskLoadsClassesAndFirstImage(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", map[string]string{"a": "1 0.5 0.5 0.2 0.2\n"})

	assert.Equal(t, []string{"cat", "dog"}, f.ed.Classes())
	assert.Equal(t, "cat", f.ed.Selected())
	assert.Equal(t, 0, f.ed.Index())
	assert.Equal(t, 3, f.ed.Len())
	w, h := f.ed.ImageSize()
	assert.Equal(t, 200.0, w)
	assert.Equal(t, 100.0, h)

	boxes := f.ed.Boxes()
	require.Len(t, boxes, 1)
	assert.Equal(t, "dog", boxes[0].Class)
	assert.InDelta(t, 80, boxes[0].X1, 1e-9)
	assert.InDelta(t, 60, boxes[0].Y2, 1e-9)
	assert.Len(t, f.ed.Handles(), 4)
}

func TestDrawSavesOnSwitch(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", nil)

	f.ed.PointerDown(interaction.Primary, types.Pt(20, 20))
	f.ed.PointerMove(types.Pt(80, 60))
	preview, drawing := f.ed.Preview()
	require.True(t, drawing)
	assert.Equal(t, types.Rect{X1: 20, Y1: 20, X2: 80, Y2: 60}, preview)
	res := f.ed.PointerUp(types.Pt(120, 80))
	assert.Equal(t, interaction.OpCreate, res.Op)
	assert.True(t, f.ed.Dirty())
	assert.Empty(t, f.label(t, "a"), "nothing is written before switching")

	require.NoError(t, f.ed.Next())
	assert.Equal(t, 1, f.ed.Index())
	assert.Equal(t, "0 0.175000 0.250000 0.250000 0.300000\n", f.label(t, "a"))
	assert.False(t, f.ed.Dirty())

	require.NoError(t, f.ed.Prev())
	require.NoError(t, f.ed.Prev())
	assert.Equal(t, 2, f.ed.Index(), "prev wraps to the last image")
	require.NoError(t, f.ed.Next())
	assert.Equal(t, 0, f.ed.Index(), "next wraps to the first image")
	assert.Len(t, f.ed.Boxes(), 1)
}

func TestDeletingLastBoxRemovesLabelFile(t *testing.T) {
	f := newFixture(t, "cat\n", map[string]string{"a": "0 0.5 0.5 0.2 0.2\n"})

	res := f.ed.PointerDown(interaction.Secondary, types.Pt(200, 100))
	assert.Equal(t, interaction.OpDelete, res.Op)
	require.NoError(t, f.ed.Close())

	_, err := os.Stat(filepath.Join(f.images, "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestClickReclassifies(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", map[string]string{"a": "0 0.5 0.5 0.2 0.2\n"})
	require.NoError(t, f.ed.SelectClass("dog"))

	f.ed.PointerDown(interaction.Primary, types.Pt(200, 100))
	res := f.ed.PointerUp(types.Pt(200, 100))
	assert.Equal(t, interaction.OpReclassify, res.Op)
	require.NoError(t, f.ed.Save())
	assert.True(t, strings.HasPrefix(f.label(t, "a"), "1 "))

	var unknown *classes.UnknownClassError
	assert.ErrorAs(t, f.ed.SelectClass("zebra"), &unknown)
	assert.Equal(t, "dog", f.ed.Selected())
}

func TestUnknownIndexSurvivesEditing(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", map[string]string{"a": "5 0.5 0.5 0.2 0.2\n"})

	boxes := f.ed.Boxes()
	require.Len(t, boxes, 1)
	assert.True(t, boxes[0].Unknown)
	assert.Equal(t, "unknown", boxes[0].Class)

	f.ed.PointerDown(interaction.Primary, types.Pt(200, 100))
	f.ed.PointerMove(types.Pt(220, 100))
	res := f.ed.PointerUp(types.Pt(220, 100))
	assert.Equal(t, interaction.OpNone, res.Op)
	require.NoError(t, f.ed.Next())

	assert.Equal(t, "5 0.550000 0.500000 0.200000 0.200000\n", f.label(t, "a"))
}

func TestSetClasses(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", map[string]string{"a": "0 0.25 0.5 0.1 0.1\n1 0.5 0.5 0.2 0.2\n"})
	require.NoError(t, f.ed.SelectClass("dog"))
	require.True(t, f.ed.CanEditClasses())

	require.NoError(t, f.ed.SetClasses([]string{"cat", "bird"}))
	assert.Equal(t, "cat", f.ed.Selected())
	assert.Equal(t, []string{"cat", "bird"}, f.ed.Classes())

	data, err := os.ReadFile(filepath.Join(f.root, "demo", "classes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "cat\nbird\n", string(data))

	boxes := f.ed.Boxes()
	assert.Equal(t, "cat", boxes[0].Class)
	assert.True(t, boxes[1].Unknown)
	assert.Equal(t, 1, boxes[1].RawIndex)

	// Index 1 is bird now; writing it back would turn the dog box into a bird.
	assert.ErrorIs(t, f.ed.Save(), classes.ErrUnknownClass)
	assert.ErrorIs(t, f.ed.Next(), classes.ErrUnknownClass)
	assert.Equal(t, 0, f.ed.Index())
	assert.Equal(t, "0 0.250000 0.500000 0.100000 0.100000\n1 0.500000 0.500000 0.200000 0.200000\n", f.label(t, "a"))

	require.NoError(t, f.ed.SelectClass("bird"))
	f.ed.PointerDown(interaction.Primary, types.Pt(200, 100))
	assert.Equal(t, interaction.OpReclassify, f.ed.PointerUp(types.Pt(200, 100)).Op)
	require.NoError(t, f.ed.Save())
	assert.Equal(t, "0 0.250000 0.500000 0.100000 0.100000\n1 0.500000 0.500000 0.200000 0.200000\n", f.label(t, "a"))
	assert.Equal(t, "bird", f.ed.Boxes()[1].Class)
}

func TestSetClassesRemovingLastClassKeepsIndex(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", map[string]string{"a": "0 0.25 0.5 0.1 0.1\n1 0.5 0.5 0.2 0.2\n"})

	require.NoError(t, f.ed.SetClasses([]string{"cat"}))
	require.NoError(t, f.ed.Save())
	assert.Equal(t, "0 0.250000 0.500000 0.100000 0.100000\n1 0.500000 0.500000 0.200000 0.200000\n", f.label(t, "a"))
}

func TestSetClassesRemovingFirstClassNeedsReclassify(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", map[string]string{"a": "0 0.25 0.5 0.1 0.1\n1 0.5 0.5 0.2 0.2\n"})

	require.NoError(t, f.ed.SetClasses([]string{"dog"}))
	boxes := f.ed.Boxes()
	assert.True(t, boxes[0].Unknown)
	assert.Equal(t, "dog", boxes[1].Class)

	assert.ErrorIs(t, f.ed.Close(), classes.ErrUnknownClass)
	assert.Equal(t, "0 0.250000 0.500000 0.100000 0.100000\n1 0.500000 0.500000 0.200000 0.200000\n", f.label(t, "a"))

	f.ed.PointerDown(interaction.Secondary, types.Pt(100, 100))
	require.NoError(t, f.ed.Close())
	assert.Equal(t, "0 0.500000 0.500000 0.200000 0.200000\n", f.label(t, "a"))
}

func TestSetClassesLocked(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", nil)
	require.NoError(t, os.MkdirAll(filepath.Join(filepath.Dir(f.root), "Result", "dog"), 0o755))

	assert.False(t, f.ed.CanEditClasses())
	assert.ErrorIs(t, f.ed.SetClasses([]string{"cat"}), task.ErrClassesLocked)
	assert.Equal(t, []string{"cat", "dog"}, f.ed.Classes())
}

func TestStats(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", map[string]string{
		"a": "0 0.2 0.2 0.1 0.1\n1 0.6 0.6 0.1 0.1\n",
		"b": "1 0.5 0.5 0.1 0.1\nbroken\n",
	})

	s, err := f.ed.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Position)
	assert.Equal(t, 3, s.Dataset.Images)
	assert.Equal(t, 2, s.Dataset.LabeledImages)
	assert.Equal(t, 1, s.Dataset.Skipped)
	assert.Len(t, s.Current, 2)
	assert.Equal(t, 1, s.Dataset.Classes[0].Count)
	assert.Equal(t, 2, s.Dataset.Classes[1].Count)
	assert.Contains(t, s.String(), "Current image: 1/3")
}

type fakeSuggester struct {
	out     []types.Suggestion
	classes []string
}

func (f *fakeSuggester) Suggest(_ context.Context, _ image.Image, classes []string) ([]types.Suggestion, error) {
	f.classes = classes
	return f.out, nil
}

func TestSuggest(t *testing.T) {
	f := newFixture(t, "cat\ndog\n", nil)
	s := &fakeSuggester{out: []types.Suggestion{
		{Label: "dog", Confidence: 0.9, Box: types.NormBox{X: 0.1, Y: 0.1, W: 0.25, H: 0.5}},
		{Label: "zebra", Confidence: 0.5, Box: types.NormBox{X: 0.5, Y: 0.2, W: 0.25, H: 0.25}},
		{Label: "cat", Confidence: 0.1, Box: types.NormBox{X: 0, Y: 0, W: 0.5, H: 0.5}},
	}}

	n, err := f.ed.Suggest(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"cat", "dog"}, s.classes)
	assert.True(t, f.ed.Dirty())

	boxes := f.ed.Boxes()
	require.Len(t, boxes, 2)
	assert.Equal(t, "dog", boxes[0].Class)
	assert.InDelta(t, 20, boxes[0].X1, 1e-9)
	assert.InDelta(t, 70, boxes[0].X2, 1e-9)
	assert.Equal(t, "cat", boxes[1].Class)
}

func TestSuggestWithoutClasses(t *testing.T) {
	f := newFixture(t, "", nil)
	_, err := f.ed.Suggest(context.Background(), &fakeSuggester{})
	assert.ErrorIs(t, err, ErrNoClassSelected)
}

func TestExport(t *testing.T) {
	f := newFixture(t, "cat\n", map[string]string{"b": "0 0.5 0.5 0.2 0.2\n"})

	f.ed.PointerDown(interaction.Primary, types.Pt(20, 20))
	f.ed.PointerUp(types.Pt(120, 80))

	out, err := f.ed.Export()
	require.NoError(t, err)
	assert.Equal(t, []task.Exported{{Task: "demo", Images: 2}}, out)

	result := filepath.Join(filepath.Dir(f.root), "Result", "demo")
	for _, name := range []string{"a.png", "a.txt", "b.png", "b.txt"} {
		assert.FileExists(t, filepath.Join(result, name))
	}
	assert.Equal(t, 1, f.ed.Len())
	assert.Equal(t, filepath.Join(f.images, "c.png"), f.ed.ImagePath())
}

func TestRender(t *testing.T) {
	f := newFixture(t, "cat\n", map[string]string{"a": "0 0.5 0.5 0.2 0.2\n"})

	out, err := f.ed.Render(render.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 200), out.Bounds())

	c := classes.ColorFor("cat")
	assert.Equal(t, color.NRGBA{c.R, c.G, c.B, 255}, out.NRGBAAt(200, 119))
}

func TestDegenerateViewportIgnoresInput(t *testing.T) {
	f := newFixture(t, "cat\n", nil)
	_, ok := f.ed.Resize(1, 300)
	assert.False(t, ok)

	res := f.ed.PointerDown(interaction.Primary, types.Pt(20, 20))
	assert.Equal(t, interaction.OpNone, res.Op)
	assert.Equal(t, interaction.Idle, f.ed.Mode())
	assert.Nil(t, f.ed.Handles())
}

func TestErrorsWithoutTask(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Tasks")
	require.NoError(t, os.MkdirAll(root, 0o755))
	ed := New(DefaultOptions(root))

	assert.ErrorIs(t, ed.OpenTask("missing"), task.ErrMissingDirectory)
	assert.ErrorIs(t, ed.Next(), ErrNoImage)
	assert.ErrorIs(t, ed.Open(0), ErrNoTask)
	_, err := ed.Image()
	assert.ErrorIs(t, err, ErrNoImage)
	assert.NoError(t, ed.Close())

	res := ed.PointerDown(interaction.Primary, types.Pt(1, 1))
	assert.Equal(t, -1, res.Index)
}
