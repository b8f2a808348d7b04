package classifier

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"pixelseg/internal/models"
	"pixelseg/pkg/features"
	"pixelseg/pkg/labels"
)

// Samples is a training set in collection order.
type Samples []Sample

// SamplesFromMask collects one sample per labeled pixel of mask, scanning in
// row-major order. Pixels whose feature vector is empty are skipped.
func SamplesFromMask(set *features.Set, mask *labels.Mask) (Samples, error) {
	if set == nil || mask == nil {
		return nil, fmt.Errorf("feature set and label mask are required")
	}
	if set.Width() != mask.Width || set.Height() != mask.Height {
		return nil, fmt.Errorf("label mask is %dx%d but feature maps are %dx%d",
			mask.Width, mask.Height, set.Width(), set.Height())
	}

	var out Samples
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			label := mask.Labels[y*mask.Width+x]
			if label == models.Unlabeled {
				continue
			}
			v := set.VectorAt(x, y)
			if len(v) == 0 {
				continue
			}
			out = append(out, Sample{Vector: v, Label: label})
		}
	}
	return out, nil
}

// Dims returns the common vector length, or an error when lengths differ.
func (s Samples) Dims() (int, error) {
	if len(s) == 0 {
		return 0, ErrNoSamples
	}
	dims := len(s[0].Vector)
	for i, sample := range s {
		if len(sample.Vector) != dims {
			return 0, fmt.Errorf("sample %d has %d features, expected %d", i, len(sample.Vector), dims)
		}
	}
	return dims, nil
}

// Matrix returns the samples as an n×d matrix, one row per sample.
func (s Samples) Matrix() (*mat.Dense, error) {
	dims, err := s.Dims()
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		return nil, fmt.Errorf("samples have no features")
	}
	m := mat.NewDense(len(s), dims, nil)
	for i, sample := range s {
		m.SetRow(i, sample.Vector)
	}
	return m, nil
}

// Counts returns the number of samples per label.
func (s Samples) Counts() map[models.Label]int {
	counts := make(map[models.Label]int)
	for _, sample := range s {
		counts[sample.Label]++
	}
	return counts
}

// ClassStats summarizes the samples of one label.
type ClassStats struct {
	Label  models.Label
	Count  int
	Mean   []float64
	StdDev []float64
}

// ClassSummary returns per-label feature means and standard deviations, ordered by
// label. Samples must share a vector length.
func (s Samples) ClassSummary() ([]ClassStats, error) {
	m, err := s.Matrix()
	if err != nil {
		return nil, err
	}
	_, dims := m.Dims()

	rows := make(map[models.Label][]int)
	for i, sample := range s {
		rows[sample.Label] = append(rows[sample.Label], i)
	}
	ids := make([]models.Label, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]ClassStats, 0, len(ids))
	for _, id := range ids {
		idx := rows[id]
		cs := ClassStats{
			Label:  id,
			Count:  len(idx),
			Mean:   make([]float64, dims),
			StdDev: make([]float64, dims),
		}
		col := make([]float64, len(idx))
		for j := 0; j < dims; j++ {
			for r, i := range idx {
				col[r] = m.At(i, j)
			}
			if len(col) > 1 {
				cs.Mean[j], cs.StdDev[j] = stat.MeanStdDev(col, nil)
			} else {
				cs.Mean[j] = col[0]
			}
		}
		out = append(out, cs)
	}
	return out, nil
}
