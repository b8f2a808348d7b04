// Package labels holds the sparse per-pixel label mask painted by the user and the
// table of label names and display colors.
package labels

import (
	"fmt"
	"image"
	"math"
	"sort"

	"golang.org/x/exp/maps"

	"pixelseg/internal/models"
)

// Mask is a W×H array of label ids. 0 means unlabeled.
type Mask struct {
	Width  int
	Height int
	Labels []models.Label
}

// NewMask creates an all-unlabeled mask.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Labels: make([]models.Label, width*height),
	}
}

// InBounds reports whether (x, y) lies inside the mask.
func (m *Mask) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

// At returns the label at (x, y), or 0 outside the mask.
func (m *Mask) At(x, y int) models.Label {
	if !m.InBounds(x, y) {
		return models.Unlabeled
	}
	return m.Labels[y*m.Width+x]
}

// Set assigns a single pixel. Out-of-range coordinates are ignored.
func (m *Mask) Set(x, y int, label models.Label) {
	if m.InBounds(x, y) {
		m.Labels[y*m.Width+x] = label
	}
}

// Paint stamps a circular brush of the given size centred on (x, y). Pixels whose
// offset from the centre is at most floor(size/2) receive label; the brush is
// clipped at the mask edges. A centre outside the mask paints nothing.
func (m *Mask) Paint(x, y, size int, label models.Label) {
	if !m.InBounds(x, y) {
		return
	}
	half := size / 2
	if half < 0 {
		half = 0
	}

	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			px, py := x+dx, y+dy
			if !m.InBounds(px, py) {
				continue
			}
			if math.Sqrt(float64(dx*dx+dy*dy)) <= float64(half) {
				m.Labels[py*m.Width+px] = label
			}
		}
	}
}

// Erase is Paint with the unlabeled id.
func (m *Mask) Erase(x, y, size int) {
	m.Paint(x, y, size, models.Unlabeled)
}

// Clear resets every pixel to unlabeled.
func (m *Mask) Clear() {
	for i := range m.Labels {
		m.Labels[i] = models.Unlabeled
	}
}

// Counts returns the number of pixels per non-zero label.
func (m *Mask) Counts() map[models.Label]int {
	counts := make(map[models.Label]int)
	for _, l := range m.Labels {
		if l != models.Unlabeled {
			counts[l]++
		}
	}
	return counts
}

// DistinctLabels returns the non-zero labels present, ascending.
func (m *Mask) DistinctLabels() []models.Label {
	ids := maps.Keys(m.Counts())
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LabeledCount returns how many pixels carry a non-zero label.
func (m *Mask) LabeledCount() int {
	n := 0
	for _, l := range m.Labels {
		if l != models.Unlabeled {
			n++
		}
	}
	return n
}

// Crop returns a new mask holding the pixels of r. r must lie inside the mask.
func (m *Mask) Crop(r image.Rectangle) (*Mask, error) {
	if r.Empty() || !r.In(image.Rect(0, 0, m.Width, m.Height)) {
		return nil, fmt.Errorf("crop rectangle %v outside %dx%d mask", r, m.Width, m.Height)
	}
	out := NewMask(r.Dx(), r.Dy())
	for y := 0; y < r.Dy(); y++ {
		src := (r.Min.Y+y)*m.Width + r.Min.X
		copy(out.Labels[y*out.Width:(y+1)*out.Width], m.Labels[src:src+r.Dx()])
	}
	return out, nil
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := NewMask(m.Width, m.Height)
	copy(out.Labels, m.Labels)
	return out
}
