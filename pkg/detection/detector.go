// Package detection proposes bounding boxes for an image so the user starts
// from suggestions instead of an empty canvas.
package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"regexp"
	"sort"
	"strings"

	"github.com/menta2k/image-labeler/pkg/client"
	"github.com/menta2k/image-labeler/pkg/imageio"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Suggester proposes boxes for img. classes lists the labels the caller
// can accept; implementations may ignore it. Boxes are normalized with a
// top-left origin.
type Suggester interface {
	Suggest(ctx context.Context, img image.Image, classes []string) ([]types.Suggestion, error)
}

// DefaultPrompt asks for every object. %s is replaced by the class list.
const DefaultPrompt = `You are an object detector for a labeling tool.

Find every object in the image that belongs to one of these classes:
%s

Return JSON only:
{
  "objects": [
    {"label": "class name", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- x, y is the top-left corner; all values are normalized to [0,1] (NOT pixels).
- Use the class names exactly as listed.
- Boxes must tightly enclose the object.
- If nothing is found, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ModelConfig configures a ModelSuggester.
type ModelConfig struct {
	Model string
	// Prompt overrides DefaultPrompt; it must contain one %s.
	Prompt string
	// SendSize caps the longer side of the image sent to the model.
	SendSize    int
	SendQuality int
}

// ModelSuggester asks a vision model for boxes.
type ModelSuggester struct {
	client client.VisionClient
	config ModelConfig
}

// NewModelSuggester creates a suggester backed by a vision client.
func NewModelSuggester(c client.VisionClient, config ModelConfig) *ModelSuggester {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.SendSize <= 0 {
		config.SendSize = 1024
	}
	if config.SendQuality <= 0 {
		config.SendQuality = 85
	}
	return &ModelSuggester{client: c, config: config}
}

// Suggest implements Suggester.
func (s *ModelSuggester) Suggest(ctx context.Context, img image.Image, classes []string) ([]types.Suggestion, error) {
	imgB64, err := imageio.EncodeBase64(img, "jpg", s.config.SendSize, s.config.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	list := "- any object"
	if len(classes) > 0 {
		list = "- " + strings.Join(classes, "\n- ")
	}
	raw, err := s.client.Query(ctx, s.config.Model, fmt.Sprintf(s.config.Prompt, list), imgB64)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	sw, sh := sentSize(b.Dx(), b.Dy(), s.config.SendSize)
	return ParseSuggestions(raw, sw, sh)
}

func sentSize(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

type modelObject struct {
	Label      string        `json:"label"`
	Confidence *float64      `json:"confidence"`
	Box        types.NormBox `json:"box"`
}

type modelAnswer struct {
	Objects []modelObject `json:"objects"`
}

// ParseSuggestions extracts suggestions from a model answer. It tolerates
// code fences, comments, trailing commas and a bare array instead of the
// {"objects": [...]} wrapper. Boxes given in pixels of a w x h image are
// normalized. Objects with an empty box are dropped. The result is sorted by
// descending confidence.
func ParseSuggestions(raw string, w, h int) ([]types.Suggestion, error) {
	raw = sanitizeModelJSON(raw)
	if raw == "" {
		return nil, fmt.Errorf("no JSON found in model response")
	}

	var objects []modelObject
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &objects); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
	} else {
		var answer modelAnswer
		if err := json.Unmarshal([]byte(raw), &answer); err != nil {
			return nil, fmt.Errorf("failed to parse model response: %w", err)
		}
		objects = answer.Objects
	}

	out := make([]types.Suggestion, 0, len(objects))
	for _, o := range objects {
		box := normalizeBox(o.Box, w, h)
		if box.W <= 0 || box.H <= 0 {
			continue
		}
		conf := 1.0
		if o.Confidence != nil {
			conf = clamp(*o.Confidence, 0, 1)
		}
		out = append(out, types.Suggestion{
			Label:      strings.TrimSpace(o.Label),
			Confidence: conf,
			Box:        box,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas, and
// keeps the outermost JSON object or array.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	obj := strings.Index(raw, "{")
	arr := strings.Index(raw, "[")
	switch {
	case arr >= 0 && (obj < 0 || arr < obj):
		if end := strings.LastIndex(raw, "]"); end > arr {
			return strings.TrimSpace(raw[arr : end+1])
		}
	case obj >= 0:
		if end := strings.LastIndex(raw, "}"); end > obj {
			return strings.TrimSpace(raw[obj : end+1])
		}
	}
	return ""
}

// normalizeBox clamps a box into [0,1], converting from pixels of a w x h
// image when any value exceeds 1.
func normalizeBox(b types.NormBox, w, h int) types.NormBox {
	if (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) && w > 0 && h > 0 {
		b = types.NormBox{
			X: b.X / float64(w),
			Y: b.Y / float64(h),
			W: b.W / float64(w),
			H: b.H / float64(h),
		}
	}
	if b.X < 0 {
		b.W += b.X
	}
	if b.Y < 0 {
		b.H += b.Y
	}
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.NormBox{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
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
