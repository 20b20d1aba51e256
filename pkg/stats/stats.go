// Package stats aggregates class counts for the current image and for every
// label file of a task. It only reads.
package stats

import (
	"fmt"
	"os"
	"strings"

	"github.com/menta2k/image-labeler/pkg/classes"
	"github.com/menta2k/image-labeler/pkg/labels"
	"github.com/menta2k/image-labeler/pkg/types"
)

// ClassCount is a class label with its box count.
type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

// Dataset holds counts over all label files of a task.
type Dataset struct {
	Images        int          `json:"images"`
	LabeledImages int          `json:"labeled_images"`
	Classes       []ClassCount `json:"classes"`
	// Unknown counts boxes whose class index is outside the registry.
	Unknown int `json:"unknown"`
	// Skipped counts malformed lines.
	Skipped int `json:"skipped"`
}

// Summary is the full statistics view.
type Summary struct {
	Position int          `json:"position"`
	Current  []ClassCount `json:"current"`
	Dataset  Dataset      `json:"dataset"`
}

// CountBoxes counts boxes per class. Registered classes come first in
// registry order, other labels follow in first-seen order. Classes with no
// boxes are omitted.
func CountBoxes(boxes []types.Box, reg *classes.Registry) []ClassCount {
	counts := make(map[string]int)
	var extra []string
	for _, b := range boxes {
		if counts[b.Class] == 0 && !reg.Has(b.Class) {
			extra = append(extra, b.Class)
		}
		counts[b.Class]++
	}
	return ordered(counts, reg.Names(), extra)
}

// Scan reads the label file of every image. Missing and empty files count as
// zero boxes; malformed lines are skipped like the codec does. Only I/O
// failures other than a missing file abort the scan.
func Scan(images []string, reg *classes.Registry) (Dataset, error) {
	ds := Dataset{Images: len(images)}
	counts := make(map[string]int)

	for _, img := range images {
		path := labels.PathFor(img)
		if !labels.HasLabels(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return ds, fmt.Errorf("failed to read labels for %s: %w", img, err)
		}
		ds.LabeledImages++

		lines, skipped := labels.ParseAll(data)
		ds.Skipped += len(skipped)
		for _, l := range lines {
			if name, ok := reg.NameAt(l.Index); ok {
				counts[name]++
			} else {
				ds.Unknown++
			}
		}
	}

	ds.Classes = ordered(counts, reg.Names(), nil)
	return ds, nil
}

func ordered(counts map[string]int, names, extra []string) []ClassCount {
	out := make([]ClassCount, 0, len(counts))
	for _, n := range append(names, extra...) {
		if c := counts[n]; c > 0 {
			out = append(out, ClassCount{Class: n, Count: c})
		}
	}
	return out
}

// String renders the summary as the plain text statistics panel.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current image: %d/%d\n", s.Position, s.Dataset.Images)
	fmt.Fprintf(&b, "Labeled images: %d/%d\n\n", s.Dataset.LabeledImages, s.Dataset.Images)
	b.WriteString("Classes in current image:\n")
	for _, c := range s.Current {
		fmt.Fprintf(&b, "  %s: %d\n", c.Class, c.Count)
	}
	b.WriteString("\nClasses in all annotations:\n")
	for _, c := range s.Dataset.Classes {
		fmt.Fprintf(&b, "  %s: %d\n", c.Class, c.Count)
	}
	if s.Dataset.Unknown > 0 {
		fmt.Fprintf(&b, "  (unknown index): %d\n", s.Dataset.Unknown)
	}
	return b.String()
}
