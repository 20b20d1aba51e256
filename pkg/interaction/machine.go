// Package interaction turns pointer gestures in display space into edits of an
// annotation set.
//
// A gesture runs from PointerDown to PointerUp. On press the target is
// resolved in priority order: a corner handle starts a resize, a box body
// starts a drag (and possibly a click-to-reclassify), empty image area starts
// drawing a new box. Presses outside the image are ignored. The secondary
// button deletes the topmost box under the pointer.
package interaction

import (
	"math"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/transform"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Button identifies the pointer button of a press.
type Button int

const (
	Primary Button = iota
	Secondary
)

// Mode is the gesture currently in progress.
type Mode int

const (
	Idle Mode = iota
	Drawing
	Dragging
	Resizing
)

func (m Mode) String() string {
	switch m {
	case Drawing:
		return "drawing"
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	}
	return "idle"
}

// Op names the model change an event caused.
type Op int

const (
	OpNone Op = iota
	OpCreate
	OpMove
	OpResize
	OpReclassify
	OpDelete
)

func (o Op) String() string {
	return [...]string{"none", "create", "move", "resize", "reclassify", "delete"}[o]
}

// Result is returned for every event.
type Result struct {
	Op Op
	// Index is the affected box, -1 when none.
	Index int
	// Dirty is set when the annotation set changed and should be persisted.
	Dirty bool
	// Redraw is set when anything visible changed, including the preview.
	Redraw bool
}

var noChange = Result{Index: -1}

// Config tunes hit-testing in display pixels.
type Config struct {
	HandleHalfWidth float64
	MinDrawDistance float64
}

// DefaultConfig returns 5px handles and a 5px draw threshold.
func DefaultConfig() Config {
	return Config{HandleHalfWidth: 5, MinDrawDistance: 5}
}

// Machine is the gesture state machine. It is not safe for concurrent use.
type Machine struct {
	cfg   Config
	set   *annotation.Set
	tf    transform.Transform
	hasTF bool

	mode       Mode
	press      types.Point
	anchor     types.Point
	cursor     types.Point
	class      string
	active     int
	corner     types.Corner
	grab       types.Point
	pending    string
	hasPending bool
	moved      bool
}

// New creates an idle machine.
func New(cfg Config) *Machine {
	if cfg.HandleHalfWidth <= 0 {
		cfg.HandleHalfWidth = DefaultConfig().HandleHalfWidth
	}
	if cfg.MinDrawDistance < 0 {
		cfg.MinDrawDistance = 0
	}
	return &Machine{cfg: cfg, active: -1}
}

// Config returns the machine configuration.
func (m *Machine) Config() Config { return m.cfg }

// Attach binds the machine to a set and cancels any gesture in progress.
func (m *Machine) Attach(set *annotation.Set) {
	m.set = set
	m.Reset()
}

// SetTransform installs the current display transform. ok=false disables
// input until a usable transform arrives.
func (m *Machine) SetTransform(tf transform.Transform, ok bool) {
	m.tf, m.hasTF = tf, ok
}

// Transform returns the display transform in use.
func (m *Machine) Transform() (transform.Transform, bool) {
	return m.tf, m.hasTF
}

// Mode returns the current gesture mode.
func (m *Machine) Mode() Mode { return m.mode }

// Active returns the box being dragged or resized, or -1.
func (m *Machine) Active() int {
	if m.mode == Dragging || m.mode == Resizing {
		return m.active
	}
	return -1
}

// Reset abandons the current gesture.
func (m *Machine) Reset() {
	m.mode = Idle
	m.active = -1
	m.pending, m.hasPending = "", false
	m.moved = false
	m.class = ""
}

// Preview returns the rubber-band rectangle in display space while drawing.
func (m *Machine) Preview() (types.Rect, bool) {
	if m.mode != Drawing {
		return types.Rect{}, false
	}
	return types.RectFromPoints(m.anchor, m.cursor), true
}

// Handles builds the handle index for the current boxes.
func (m *Machine) Handles() HandleIndex {
	if m.set == nil || !m.hasTF {
		return nil
	}
	return BuildHandles(m.set.Boxes(), m.tf, m.cfg.HandleHalfWidth)
}

func (m *Machine) ready() bool {
	return m.set != nil && m.hasTF
}

// PointerDown starts a gesture at display point p. class is the currently
// selected class: it labels newly drawn boxes and is the target of a
// click-to-reclassify. An empty class disables drawing and reclassifying.
func (m *Machine) PointerDown(btn Button, p types.Point, class string) Result {
	if !m.ready() {
		return noChange
	}
	if btn == Secondary {
		return m.deleteAt(p)
	}
	m.Reset()
	m.press, m.cursor = p, p

	if h, ok := m.Handles().Find(p); ok {
		m.mode = Resizing
		m.active = h.Box
		m.corner = h.Corner
		return noChange
	}

	ip := m.tf.DisplayToImage(p)
	if i := m.set.HitTest(ip); i >= 0 {
		b, _ := m.set.At(i)
		m.mode = Dragging
		m.active = i
		tl := m.tf.ImageToDisplay(types.Point{X: b.X1, Y: b.Y1})
		m.grab = p.Sub(tl)
		if class != "" && (b.Class != class || b.Unknown) {
			m.pending, m.hasPending = class, true
		}
		return noChange
	}

	if !m.tf.Contains(p) || class == "" {
		return noChange
	}
	m.mode = Drawing
	m.class = class
	m.anchor = m.tf.Clamp(p)
	m.cursor = m.anchor
	return Result{Index: -1, Redraw: true}
}

// PointerMove advances the gesture to display point p.
func (m *Machine) PointerMove(p types.Point) Result {
	if !m.ready() || m.mode == Idle {
		return noChange
	}
	if !m.moved && p == m.press {
		return noChange
	}
	m.moved = true
	p = m.tf.Clamp(p)
	m.cursor = p

	switch m.mode {
	case Drawing:
		return Result{Index: -1, Redraw: true}
	case Dragging:
		ip := m.tf.DisplayToImage(p.Sub(m.grab))
		if !m.set.MoveTo(m.active, ip.X, ip.Y) {
			m.Reset()
			return noChange
		}
		return Result{Op: OpMove, Index: m.active, Dirty: true, Redraw: true}
	case Resizing:
		corner, ok := m.set.Resize(m.active, m.corner, m.tf.DisplayToImage(p))
		if !ok {
			m.Reset()
			return noChange
		}
		m.corner = corner
		return Result{Op: OpResize, Index: m.active, Dirty: true, Redraw: true}
	}
	return noChange
}

// PointerUp finishes the gesture at display point p. The machine is always
// Idle afterwards.
func (m *Machine) PointerUp(p types.Point) Result {
	defer m.Reset()
	if !m.ready() {
		return noChange
	}

	switch m.mode {
	case Drawing:
		end := m.tf.Clamp(p)
		if math.Abs(end.X-m.anchor.X) < m.cfg.MinDrawDistance || math.Abs(end.Y-m.anchor.Y) < m.cfg.MinDrawDistance {
			return Result{Index: -1, Redraw: true}
		}
		r := types.RectFromPoints(m.tf.DisplayToImage(m.anchor), m.tf.DisplayToImage(end))
		i := m.set.Create(m.class, r)
		return Result{Op: OpCreate, Index: i, Dirty: true, Redraw: true}
	case Dragging:
		if !m.moved && m.hasPending && m.set.SetClass(m.active, m.pending) {
			return Result{Op: OpReclassify, Index: m.active, Dirty: true, Redraw: true}
		}
	}
	return noChange
}

// deleteAt removes the topmost box under p. It may interrupt a gesture: the
// active index is shifted or the gesture dropped as needed.
func (m *Machine) deleteAt(p types.Point) Result {
	i := m.set.HitTest(m.tf.DisplayToImage(p))
	if i < 0 || !m.set.Delete(i) {
		return noChange
	}
	if m.mode == Dragging || m.mode == Resizing {
		switch {
		case i == m.active:
			m.Reset()
		case i < m.active:
			m.active--
		}
	}
	return Result{Op: OpDelete, Index: i, Dirty: true, Redraw: true}
}
