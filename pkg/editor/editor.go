// Package editor is the annotation engine a host UI drives. It owns the task,
// the class registry, the current image's annotation set and the gesture
// state machine, and persists labels when the user leaves an image.
//
// An Editor is not safe for concurrent use; hosts call it from their event
// loop.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/classes"
	"github.com/menta2k/image-labeler/pkg/detection"
	"github.com/menta2k/image-labeler/pkg/imageio"
	"github.com/menta2k/image-labeler/pkg/interaction"
	"github.com/menta2k/image-labeler/pkg/labels"
	"github.com/menta2k/image-labeler/pkg/render"
	"github.com/menta2k/image-labeler/pkg/stats"
	"github.com/menta2k/image-labeler/pkg/task"
	"github.com/menta2k/image-labeler/pkg/transform"
	"github.com/menta2k/image-labeler/pkg/types"
)

var (
	ErrNoImage         = errors.New("no image loaded")
	ErrNoClassSelected = errors.New("no class selected")
	ErrNoTask          = errors.New("no task opened")
)

// Options configures an Editor.
type Options struct {
	Layout        task.Layout
	Interaction   interaction.Config
	UnknownLabel  string
	UnknownPolicy labels.UnknownPolicy
	// MinConfidence drops weaker suggestions.
	MinConfidence float64
	Logger        *slog.Logger
}

// DefaultOptions returns options for a task tree at root.
func DefaultOptions(root string) Options {
	return Options{
		Layout:        task.DefaultLayout(root),
		Interaction:   interaction.DefaultConfig(),
		UnknownLabel:  classes.DefaultUnknownLabel,
		MinConfidence: 0.3,
	}
}

// Editor is the engine state for one open task.
type Editor struct {
	opts    Options
	log     *slog.Logger
	loader  *imageio.Loader
	machine *interaction.Machine

	task     *task.Task
	reg      *classes.Registry
	codec    *labels.Codec
	selected string

	index     int
	imagePath string
	width     float64
	height    float64
	img       image.Image
	set       *annotation.Set
	dirty     bool

	viewW, viewH float64
}

// New creates an editor with no task opened.
func New(opts Options) *Editor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.UnknownLabel == "" {
		opts.UnknownLabel = classes.DefaultUnknownLabel
	}
	reg := classes.New()
	return &Editor{
		opts:    opts,
		log:     logger,
		loader:  imageio.NewWithConfig(imageio.Config{Extensions: opts.Layout.Extensions}),
		machine: interaction.New(opts.Interaction),
		reg:     reg,
		codec:   newCodec(reg, opts),
		index:   -1,
	}
}

func newCodec(reg *classes.Registry, opts Options) *labels.Codec {
	c := labels.NewCodec(reg)
	c.UnknownLabel = opts.UnknownLabel
	c.Policy = opts.UnknownPolicy
	return c
}

// Tasks lists the task names under the configured root.
func (e *Editor) Tasks() ([]string, error) {
	return e.opts.Layout.List()
}

// OpenTask saves pending edits, then loads the named task and its first
// image.
func (e *Editor) OpenTask(name string) error {
	if err := e.Save(); err != nil {
		return err
	}

	t, err := e.opts.Layout.Open(name)
	if err != nil {
		return err
	}
	reg, err := t.Classes()
	if err != nil {
		return err
	}

	e.task = t
	e.reg = reg
	e.codec = newCodec(reg, e.opts)
	e.selected = ""
	if names := reg.Names(); len(names) > 0 {
		e.selected = names[0]
	}
	e.clearImage()
	e.log.Info("task opened",
		slog.String("task", name),
		slog.Int("images", len(t.Images)),
		slog.Int("classes", reg.Len()))

	if len(t.Images) == 0 {
		return nil
	}
	return e.Open(0)
}

func (e *Editor) clearImage() {
	e.index = -1
	e.imagePath = ""
	e.width, e.height = 0, 0
	e.img = nil
	e.set = nil
	e.dirty = false
	e.machine.Attach(nil)
	e.machine.SetTransform(transform.Transform{}, false)
}

// Task returns the open task or nil.
func (e *Editor) Task() *task.Task { return e.task }

// Registry returns the class registry of the open task.
func (e *Editor) Registry() *classes.Registry { return e.reg }

// Index returns the current image index, -1 when none.
func (e *Editor) Index() int { return e.index }

// Len returns the number of images in the task.
func (e *Editor) Len() int {
	if e.task == nil {
		return 0
	}
	return len(e.task.Images)
}

// ImagePath returns the current image file.
func (e *Editor) ImagePath() string { return e.imagePath }

// ImageSize returns the current image's pixel size.
func (e *Editor) ImageSize() (float64, float64) { return e.width, e.height }

// Dirty reports unsaved edits.
func (e *Editor) Dirty() bool { return e.dirty }

// Open saves the current image's labels and loads image i.
func (e *Editor) Open(i int) error {
	if e.task == nil {
		return ErrNoTask
	}
	if err := e.Save(); err != nil {
		return err
	}

	path, err := e.task.Image(i)
	if err != nil {
		return err
	}
	w, h, err := e.loader.Size(path)
	if err != nil {
		return err
	}

	fw, fh := float64(w), float64(h)
	boxes, skipped, err := e.codec.Load(labels.PathFor(path), fw, fh)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		e.log.Debug("skipped label line", slog.String("image", path), slog.String("err", s.Error()))
	}

	e.index = i
	e.imagePath = path
	e.width, e.height = fw, fh
	e.img = nil
	e.set = annotation.NewSet(fw, fh, boxes...)
	e.dirty = false
	e.machine.Attach(e.set)
	e.applyView()

	e.log.Info("image opened",
		slog.Int("index", i),
		slog.String("image", path),
		slog.Int("boxes", e.set.Len()),
		slog.Int("skipped", len(skipped)))
	return nil
}

// Next moves to the following image, wrapping to the first.
func (e *Editor) Next() error {
	n := e.Len()
	if n == 0 {
		return ErrNoImage
	}
	return e.Open((e.index + 1) % n)
}

// Prev moves to the previous image, wrapping to the last.
func (e *Editor) Prev() error {
	n := e.Len()
	if n == 0 {
		return ErrNoImage
	}
	return e.Open((e.index - 1 + n) % n)
}

// Save persists the current set if it has unsaved edits. An empty set
// removes the label file.
func (e *Editor) Save() error {
	if e.set == nil || !e.dirty {
		return nil
	}
	path := labels.PathFor(e.imagePath)
	if err := e.codec.Save(path, e.set.Boxes(), e.width, e.height); err != nil {
		return fmt.Errorf("failed to save labels for %s: %w", e.imagePath, err)
	}
	e.dirty = false
	if e.set.Len() == 0 {
		e.log.Info("labels removed", slog.String("file", path))
	} else {
		e.log.Info("labels saved", slog.String("file", path), slog.Int("boxes", e.set.Len()))
	}
	return nil
}

// Close saves pending edits.
func (e *Editor) Close() error {
	return e.Save()
}

// Resize sets the viewport size. It reports false while the viewport is too
// small to show the image; pointer input is ignored until then.
func (e *Editor) Resize(viewW, viewH float64) (transform.Transform, bool) {
	e.viewW, e.viewH = viewW, viewH
	return e.applyView()
}

func (e *Editor) applyView() (transform.Transform, bool) {
	if e.set == nil {
		return transform.Transform{}, false
	}
	tf, ok := transform.Fit(e.viewW, e.viewH, e.width, e.height)
	e.machine.SetTransform(tf, ok)
	return tf, ok
}

// Transform returns the current display transform.
func (e *Editor) Transform() (transform.Transform, bool) {
	return e.machine.Transform()
}

// PointerDown forwards a press in display space to the state machine.
func (e *Editor) PointerDown(btn interaction.Button, p types.Point) interaction.Result {
	return e.track(e.machine.PointerDown(btn, p, e.selected))
}

// PointerMove forwards pointer motion.
func (e *Editor) PointerMove(p types.Point) interaction.Result {
	return e.track(e.machine.PointerMove(p))
}

// PointerUp forwards a release.
func (e *Editor) PointerUp(p types.Point) interaction.Result {
	return e.track(e.machine.PointerUp(p))
}

func (e *Editor) track(r interaction.Result) interaction.Result {
	if r.Dirty {
		e.dirty = true
	}
	if r.Op != interaction.OpNone && r.Op != interaction.OpMove && r.Op != interaction.OpResize {
		e.log.Debug("annotation changed", slog.String("op", r.Op.String()), slog.Int("index", r.Index))
	}
	return r
}

// Mode returns the gesture in progress.
func (e *Editor) Mode() interaction.Mode { return e.machine.Mode() }

// Boxes returns a copy of the current boxes.
func (e *Editor) Boxes() []types.Box {
	if e.set == nil {
		return nil
	}
	return e.set.Boxes()
}

// Handles returns the resize handles for the current boxes.
func (e *Editor) Handles() interaction.HandleIndex {
	return e.machine.Handles()
}

// Preview returns the rubber band while drawing.
func (e *Editor) Preview() (types.Rect, bool) {
	return e.machine.Preview()
}

// Classes returns the class names in index order.
func (e *Editor) Classes() []string { return e.reg.Names() }

// Selected returns the class new boxes get.
func (e *Editor) Selected() string { return e.selected }

// SelectClass changes the class for new boxes and click-to-reclassify.
func (e *Editor) SelectClass(name string) error {
	if !e.reg.Has(name) {
		return &classes.UnknownClassError{Name: name}
	}
	e.selected = name
	return nil
}

// ColorFor returns the display colour of a class.
func (e *Editor) ColorFor(name string) color.RGBA {
	return e.reg.Color(name)
}

// SetClasses replaces the class list and rewrites the class file. Boxes whose
// class disappeared become unknown and keep their previous index. If that
// index now belongs to another class the boxes must be reclassified or
// deleted before the image can be saved. The selection resets to the first
// class.
func (e *Editor) SetClasses(names []string) error {
	if e.task == nil {
		return ErrNoTask
	}
	reg := classes.New(names...)
	if err := e.task.SaveClasses(e.reg.Names(), reg); err != nil {
		return err
	}

	old := e.reg
	e.reg = reg
	e.codec = newCodec(reg, e.opts)
	e.selected = ""
	if n := reg.Names(); len(n) > 0 {
		e.selected = n[0]
	}

	if e.set != nil {
		collisions := 0
		for i, b := range e.set.Boxes() {
			if !b.Unknown && !reg.Has(b.Class) {
				idx, err := old.IndexOf(b.Class)
				if err != nil {
					continue
				}
				b.Class = e.opts.UnknownLabel
				b.Unknown = true
				b.RawIndex = idx
				e.set.Replace(i, b)
				e.dirty = true
			}
			if e.codec.Collides(b) {
				collisions++
			}
		}
		if collisions > 0 {
			e.log.Warn("boxes of removed classes need a new class before saving",
				slog.String("image", e.imagePath),
				slog.Int("boxes", collisions))
		}
	}
	e.log.Info("classes updated", slog.String("task", e.task.Name), slog.Int("classes", reg.Len()))
	return nil
}

// CanEditClasses reports whether SetClasses is allowed.
func (e *Editor) CanEditClasses() bool {
	return e.opts.Layout.CanEditClasses(e.reg.Names())
}

// Stats saves pending edits and summarizes the task.
func (e *Editor) Stats() (stats.Summary, error) {
	if e.task == nil {
		return stats.Summary{}, ErrNoTask
	}
	if err := e.Save(); err != nil {
		return stats.Summary{}, err
	}
	ds, err := stats.Scan(e.task.Images, e.reg)
	if err != nil {
		return stats.Summary{}, err
	}
	return stats.Summary{
		Position: e.index + 1,
		Current:  stats.CountBoxes(e.Boxes(), e.reg),
		Dataset:  ds,
	}, nil
}

// Image decodes the current image once and caches it.
func (e *Editor) Image() (image.Image, error) {
	if e.set == nil {
		return nil, ErrNoImage
	}
	if e.img == nil {
		img, err := e.loader.Open(e.imagePath)
		if err != nil {
			return nil, err
		}
		e.img = img
	}
	return e.img, nil
}

// Render draws the current image at display size with its annotations and
// any rubber band. Without a usable viewport the image is drawn at full size.
func (e *Editor) Render(opts render.Options) (*image.NRGBA, error) {
	img, err := e.Image()
	if err != nil {
		return nil, err
	}
	tf, ok := e.machine.Transform()
	if !ok {
		tf = transform.Identity(e.width, e.height)
	}
	if p, drawing := e.machine.Preview(); drawing {
		opts.Preview = &p
	}
	if opts.HandleHalfWidth == 0 {
		opts.HandleHalfWidth = int(e.machine.Config().HandleHalfWidth)
	}
	return render.Annotate(imageio.Display(img, tf), e.Boxes(), e.reg, tf, opts), nil
}

// Suggest asks s for boxes and adds those at or above MinConfidence. A
// suggestion whose label is a registered class keeps it; others get the
// selected class. It returns the number of boxes added.
func (e *Editor) Suggest(ctx context.Context, s detection.Suggester) (int, error) {
	if e.selected == "" {
		return 0, ErrNoClassSelected
	}
	img, err := e.Image()
	if err != nil {
		return 0, err
	}

	suggestions, err := s.Suggest(ctx, img, e.reg.Names())
	if err != nil {
		return 0, fmt.Errorf("suggestion failed: %w", err)
	}

	added := 0
	for _, sg := range suggestions {
		if sg.Confidence < e.opts.MinConfidence {
			continue
		}
		class := e.selected
		if e.reg.Has(sg.Label) {
			class = sg.Label
		}
		r := types.Rect{
			X1: sg.Box.X * e.width,
			Y1: sg.Box.Y * e.height,
			X2: (sg.Box.X + sg.Box.W) * e.width,
			Y2: (sg.Box.Y + sg.Box.H) * e.height,
		}
		e.set.Create(class, r)
		added++
	}
	if added > 0 {
		e.dirty = true
	}
	e.log.Info("suggestions applied",
		slog.String("image", e.imagePath),
		slog.Int("received", len(suggestions)),
		slog.Int("added", added))
	return added, nil
}

// Export saves, moves every labeled image of every task to the result
// directory and reloads the open task.
func (e *Editor) Export() ([]task.Exported, error) {
	if err := e.Save(); err != nil {
		return nil, err
	}
	names, err := e.opts.Layout.List()
	if err != nil {
		return nil, err
	}
	out, err := e.opts.Layout.Export(names)
	if err != nil {
		return out, err
	}
	for _, x := range out {
		e.log.Info("exported", slog.String("task", x.Task), slog.Int("images", x.Images))
	}

	if e.task != nil {
		if err := e.OpenTask(e.task.Name); err != nil {
			return out, err
		}
	}
	return out, nil
}
