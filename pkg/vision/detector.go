package vision

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/menta2k/image-labeler/pkg/types"
)

// SaliencySuggester proposes boxes around high-contrast regions without any
// model. It does not know class names; suggestions carry an empty label.
type SaliencySuggester struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for saliency detection
type DetectionConfig struct {
	EdgeThreshold   float64
	ContrastWeight  float64
	ColorWeight     float64
	MinSubjectRatio float64
	// MaxRegions caps the number of suggestions.
	MaxRegions int
	// MaxOverlap is the IoU above which a weaker region is suppressed.
	MaxOverlap float64
}

// New creates a new SaliencySuggester with default configuration
func New() *SaliencySuggester {
	return &SaliencySuggester{
		config: DetectionConfig{
			EdgeThreshold:   0.01,
			ContrastWeight:  0.3,
			ColorWeight:     0.2,
			MinSubjectRatio: 0.01,
			MaxRegions:      5,
			MaxOverlap:      0.3,
		},
	}
}

// NewWithConfig creates a new SaliencySuggester with custom configuration
func NewWithConfig(config DetectionConfig) *SaliencySuggester {
	if config.MaxRegions <= 0 {
		config.MaxRegions = 5
	}
	if config.MaxOverlap <= 0 {
		config.MaxOverlap = 0.3
	}
	return &SaliencySuggester{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// IoU returns the intersection over union of two regions.
func (r Region) IoU(o Region) float64 {
	ix := min(r.X+r.Width, o.X+o.Width) - max(r.X, o.X)
	iy := min(r.Y+r.Height, o.Y+o.Height) - max(r.Y, o.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	return float64(inter) / float64(r.Area()+o.Area()-inter)
}

// Suggest implements detection.Suggester. Confidence is the region score
// relative to the best region.
func (d *SaliencySuggester) Suggest(ctx context.Context, img image.Image, _ []string) ([]types.Suggestion, error) {
	regions, err := d.DetectRegions(ctx, img)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, nil
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	best := regions[0].Score
	out := make([]types.Suggestion, 0, len(regions))
	for _, r := range regions {
		conf := 1.0
		if best > 0 {
			conf = r.Score / best
		}
		out = append(out, types.Suggestion{
			Confidence: conf,
			Box: types.NormBox{
				X: float64(r.X) / w,
				Y: float64(r.Y) / h,
				W: float64(r.Width) / w,
				H: float64(r.Height) / h,
			},
		})
	}
	return out, nil
}

// DetectRegions returns non-overlapping salient regions, best first.
func (d *SaliencySuggester) DetectRegions(ctx context.Context, img image.Image) ([]Region, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	saliencyMap := d.calculateSaliencyMap(img)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	regions := d.findImportantRegions(saliencyMap, width, height)
	filtered := d.filterAndScoreRegions(regions, width, height)
	return d.suppress(filtered), nil
}

func (d *SaliencySuggester) calculateSaliencyMap(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	saliencyMap := make([][]float64, height)
	for i := range saliencyMap {
		saliencyMap[i] = make([]float64, width)
	}

	neighbors := [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}

	// Edge strength against the 8 neighbours plus brightness.
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			r1, g1, b1, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			var edgeStrength float64
			for _, offset := range neighbors {
				r2, g2, b2, _ := img.At(x+offset[0]+bounds.Min.X, y+offset[1]+bounds.Min.Y).RGBA()
				dr := float64(r1) - float64(r2)
				dg := float64(g1) - float64(g2)
				db := float64(b1) - float64(b2)
				edgeStrength += math.Sqrt(dr*dr + dg*dg + db*db)
			}
			edgeStrength /= 8.0 * 65535.0

			brightness := (float64(r1) + float64(g1) + float64(b1)) / (3.0 * 65535.0)
			saliencyMap[y][x] = d.config.ContrastWeight*edgeStrength + d.config.ColorWeight*brightness
		}
	}

	return saliencyMap
}

func (d *SaliencySuggester) findImportantRegions(saliencyMap [][]float64, width, height int) []Region {
	var regions []Region

	windowSizes := []int{width / 16, width / 12, width / 8, width / 4, width / 3}

	for _, windowSize := range windowSizes {
		if windowSize < 8 || windowSize > height {
			continue
		}
		step := max(1, windowSize/8)

		for y := 0; y <= height-windowSize; y += step {
			for x := 0; x <= width-windowSize; x += step {
				score := calculateRegionScore(saliencyMap, x, y, windowSize, windowSize)
				if score > d.config.EdgeThreshold {
					regions = append(regions, Region{X: x, Y: y, Width: windowSize, Height: windowSize, Score: score})
				}
			}
		}
	}

	return regions
}

func calculateRegionScore(saliencyMap [][]float64, x, y, width, height int) float64 {
	var totalScore float64
	count := 0

	for ry := y; ry < y+height && ry < len(saliencyMap); ry++ {
		for rx := x; rx < x+width && rx < len(saliencyMap[ry]); rx++ {
			totalScore += saliencyMap[ry][rx]
			count++
		}
	}

	if count == 0 {
		return 0
	}
	return totalScore / float64(count)
}

func (d *SaliencySuggester) filterAndScoreRegions(regions []Region, imageWidth, imageHeight int) []Region {
	minArea := int(float64(imageWidth*imageHeight) * d.config.MinSubjectRatio)

	var filtered []Region
	for _, region := range regions {
		if region.Area() >= minArea {
			filtered = append(filtered, region)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
	return filtered
}

// suppress keeps the best regions whose overlap with every kept region stays
// at or below MaxOverlap.
func (d *SaliencySuggester) suppress(regions []Region) []Region {
	var kept []Region
	for _, r := range regions {
		ok := true
		for _, k := range kept {
			if r.IoU(k) > d.config.MaxOverlap {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, r)
			if len(kept) == d.config.MaxRegions {
				break
			}
		}
	}
	return kept
}
