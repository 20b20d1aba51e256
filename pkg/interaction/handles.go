package interaction

import (
	"github.com/menta2k/image-labeler/pkg/transform"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Handle is a square resize hotspot centred on a box corner, in display
// space.
type Handle struct {
	Box    int
	Corner types.Corner
	Rect   types.Rect
}

// HandleIndex is the list of handles for one render pass, in z-order.
type HandleIndex []Handle

// BuildHandles lays out four handles per box with the given half-width.
func BuildHandles(boxes []types.Box, tf transform.Transform, halfWidth float64) HandleIndex {
	out := make(HandleIndex, 0, len(boxes)*4)
	for i, b := range boxes {
		dr := tf.RectToDisplay(b.Rect())
		for _, c := range types.Corners {
			p := c.Of(dr)
			out = append(out, Handle{
				Box:    i,
				Corner: c,
				Rect:   types.Rect{X1: p.X - halfWidth, Y1: p.Y - halfWidth, X2: p.X + halfWidth, Y2: p.Y + halfWidth},
			})
		}
	}
	return out
}

// Find returns the handle under a display point. Handles of later (upper)
// boxes win over earlier ones.
func (hs HandleIndex) Find(p types.Point) (Handle, bool) {
	for i := len(hs) - 1; i >= 0; i-- {
		if hs[i].Rect.Contains(p) {
			return hs[i], true
		}
	}
	return Handle{}, false
}
