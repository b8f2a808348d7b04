package segmentation

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"pixelseg/internal/models"
	"pixelseg/pkg/labels"
)

// Summary describes how the pixels of a label map are distributed over classes.
type Summary struct {
	// Total is the number of pixels in the map.
	Total int

	// Counts holds the number of pixels per label.
	Counts map[models.Label]int

	// Fractions holds Counts divided by Total.
	Fractions map[models.Label]float64

	// ForegroundFraction is the share of pixels whose label is in the
	// default foreground set (Cell, Nucleus, Membrane).
	ForegroundFraction float64
}

// Labels returns the labels present in the summary, ascending.
func (s Summary) Labels() []models.Label {
	out := make([]models.Label, 0, len(s.Counts))
	for l := range s.Counts {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Summarize counts the pixels of each label.
func Summarize(m *LabelMap) Summary {
	s := Summary{
		Total:     len(m.Labels),
		Counts:    make(map[models.Label]int),
		Fractions: make(map[models.Label]float64),
	}
	for _, l := range m.Labels {
		s.Counts[l]++
	}
	if s.Total == 0 {
		return s
	}

	for l, n := range s.Counts {
		s.Fractions[l] = float64(n) / float64(s.Total)
	}
	fg := 0
	for _, l := range labels.DefaultForeground {
		fg += s.Counts[l]
	}
	s.ForegroundFraction = float64(fg) / float64(s.Total)
	return s
}

// ClassScore holds the agreement between predicted and reference pixels of one label.
type ClassScore struct {
	Label     models.Label
	Reference int // labeled pixels of this class
	Predicted int // labeled pixels predicted as this class
	Correct   int
	Precision float64
	Recall    float64
	Dice      float64
}

// Evaluation compares a label map against a reference label mask. Only pixels that
// carry a label in the reference are scored.
type Evaluation struct {
	Labeled  int
	Correct  int
	Accuracy float64
	PerClass []ClassScore

	// MacroDice is the unweighted mean Dice score over reference classes.
	MacroDice float64
}

// Evaluate scores m against the labeled pixels of ref. It is typically called with
// the training mask to report how well the classifier reproduces the user's strokes.
func Evaluate(m *LabelMap, ref *labels.Mask) (Evaluation, error) {
	var ev Evaluation
	if m.Width != ref.Width || m.Height != ref.Height {
		return ev, fmt.Errorf("label map is %dx%d but reference mask is %dx%d",
			m.Width, m.Height, ref.Width, ref.Height)
	}

	scores := make(map[models.Label]*ClassScore)
	score := func(l models.Label) *ClassScore {
		s, ok := scores[l]
		if !ok {
			s = &ClassScore{Label: l}
			scores[l] = s
		}
		return s
	}

	for i, want := range ref.Labels {
		if want == models.Unlabeled {
			continue
		}
		got := m.Labels[i]
		ev.Labeled++
		score(want).Reference++
		score(got).Predicted++
		if got == want {
			ev.Correct++
			score(want).Correct++
		}
	}
	if ev.Labeled == 0 {
		return ev, nil
	}
	ev.Accuracy = float64(ev.Correct) / float64(ev.Labeled)

	ids := make([]models.Label, 0, len(scores))
	for l := range scores {
		ids = append(ids, l)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var dice []float64
	for _, l := range ids {
		s := scores[l]
		if s.Predicted > 0 {
			s.Precision = float64(s.Correct) / float64(s.Predicted)
		}
		s.Dice = 2 * float64(s.Correct) / float64(s.Reference+s.Predicted)
		if s.Reference > 0 {
			s.Recall = float64(s.Correct) / float64(s.Reference)
			dice = append(dice, s.Dice)
		}
		ev.PerClass = append(ev.PerClass, *s)
	}
	if len(dice) > 0 {
		ev.MacroDice = stat.Mean(dice, nil)
	}
	return ev, nil
}
