// Package segmentation applies a fitted classifier to every pixel of an image's
// feature maps and converts the resulting label map into binary and color masks.
package segmentation

import (
	"fmt"
	"runtime"

	"pixelseg/internal/models"
	"pixelseg/pkg/classifier"
	"pixelseg/pkg/features"
	"pixelseg/pkg/filters"
	"pixelseg/pkg/labels"
)

// LabelMap is the per-pixel classification of one image.
type LabelMap struct {
	Width  int
	Height int
	Labels []models.Label
}

// NewLabelMap allocates a width×height map of zero labels.
func NewLabelMap(width, height int) *LabelMap {
	return &LabelMap{
		Width:  width,
		Height: height,
		Labels: make([]models.Label, width*height),
	}
}

// At returns the label at (x, y).
func (m *LabelMap) At(x, y int) models.Label {
	return m.Labels[y*m.Width+x]
}

// Options controls what SegmentImage produces besides the label map.
type Options struct {
	// Binary requests a 0/255 foreground mask.
	Binary bool

	// ForegroundLabels are the labels mapped to 255. Empty means
	// labels.DefaultForeground.
	ForegroundLabels []models.Label

	// Color requests an RGBA rendering of the label map using Table.
	Color bool

	// Table supplies label colors. nil means labels.ClassicTable().
	Table *labels.Table

	// Workers bounds the goroutines used for classification. Values below 1 mean
	// runtime.NumCPU().
	Workers int
}

// Result is the output of SegmentImage. Binary and Color are nil unless requested.
type Result struct {
	Labels *LabelMap
	Binary []uint8
	Color  *models.Image
}

// Segment classifies every pixel of set with clf using one goroutine per CPU.
func Segment(set *features.Set, clf *classifier.Classifier) (*LabelMap, error) {
	return SegmentWithWorkers(set, clf, runtime.NumCPU())
}

// SegmentWithWorkers is Segment with an explicit goroutine budget. The classifier is
// only read, so the result does not depend on workers.
func SegmentWithWorkers(set *features.Set, clf *classifier.Classifier, workers int) (*LabelMap, error) {
	if set == nil {
		return nil, fmt.Errorf("no feature maps to segment")
	}
	if err := clf.CheckFeatures(set.Names()); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	out := NewLabelMap(set.Width(), set.Height())
	filters.ParallelRows(out.Height, workers, func(y0, y1 int) {
		vec := make([]float64, 0, set.Len())
		for y := y0; y < y1; y++ {
			row := out.Labels[y*out.Width : (y+1)*out.Width]
			for x := range row {
				vec = set.VectorAtInto(vec, x, y)
				row[x] = clf.Predict(vec)
			}
		}
	})
	return out, nil
}

// SegmentImage segments img from its feature maps and builds the masks requested by
// opts. set must have been extracted from img.
func SegmentImage(img *models.Image, set *features.Set, clf *classifier.Classifier, opts Options) (*Result, error) {
	if img == nil || set == nil {
		return nil, fmt.Errorf("image and feature maps are required")
	}
	if img.Width != set.Width() || img.Height != set.Height() {
		return nil, fmt.Errorf("image is %dx%d but feature maps are %dx%d",
			img.Width, img.Height, set.Width(), set.Height())
	}

	labelMap, err := SegmentWithWorkers(set, clf, opts.Workers)
	if err != nil {
		return nil, err
	}

	res := &Result{Labels: labelMap}
	if opts.Binary {
		res.Binary = ToBinaryMask(labelMap, opts.ForegroundLabels)
	}
	if opts.Color {
		table := opts.Table
		if table == nil {
			table = labels.ClassicTable()
		}
		res.Color = ToColorMask(labelMap, table)
	}
	return res, nil
}

// ToBinaryMask maps foreground labels to 255 and everything else to 0. An empty
// foreground list means labels.DefaultForeground.
func ToBinaryMask(m *LabelMap, foreground []models.Label) []uint8 {
	if len(foreground) == 0 {
		foreground = labels.DefaultForeground
	}
	fg := make(map[models.Label]bool, len(foreground))
	for _, l := range foreground {
		fg[l] = true
	}

	out := make([]uint8, len(m.Labels))
	for i, l := range m.Labels {
		if fg[l] {
			out[i] = 255
		}
	}
	return out
}

// ToColorMask renders each label with its table color at full opacity. Labels
// missing from the table are drawn in labels.UnknownColor.
func ToColorMask(m *LabelMap, table *labels.Table) *models.Image {
	out := models.NewImage(m.Width, m.Height)
	for i, l := range m.Labels {
		c := table.Color(l)
		out.Pix[i*4+0] = c[0]
		out.Pix[i*4+1] = c[1]
		out.Pix[i*4+2] = c[2]
		out.Pix[i*4+3] = 255
	}
	return out
}
