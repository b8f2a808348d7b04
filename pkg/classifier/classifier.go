// Package classifier implements the instance-based pixel classifier: it stores every
// labeled feature vector verbatim and predicts by distance-weighted k-nearest-neighbour
// voting.
//
// A fitted *Classifier is never modified, so any number of goroutines may call
// Predict on it. Refitting produces a new value; Holder publishes it.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"pixelseg/internal/models"
)

// DefaultK is the neighbourhood size used when no option overrides it.
const DefaultK = 5

// DefaultLabel is returned whenever a prediction cannot be made.
const DefaultLabel = models.Background

// exactMatchVote is the vote of a neighbour at distance exactly 0.
const exactMatchVote = 1000.0

// distanceEpsilon keeps inverse-distance votes finite.
const distanceEpsilon = 1e-6

var (
	// ErrNoSamples is wrapped by the TrainingError returned when fitting on nothing.
	ErrNoSamples = errors.New("no training samples")

	// ErrFeatureMismatch reports a feature set whose maps differ from the ones the
	// classifier was fitted on.
	ErrFeatureMismatch = errors.New("feature maps do not match the trained classifier")
)

// TrainingError is returned by Fit when a classifier cannot be built.
type TrainingError struct {
	Reason string
	Err    error
}

func (e *TrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("training failed: %s: %v", e.Reason, e.Err)
	}
	return "training failed: " + e.Reason
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// Sample is one labeled feature vector.
type Sample struct {
	Vector []float64
	Label  models.Label
}

// Neighbor is one of the k nearest training samples of a query.
type Neighbor struct {
	// Index is the position of the sample in the training set
	Index    int
	Label    models.Label
	Distance float64
}

// Prediction explains a single classification.
type Prediction struct {
	Label     models.Label
	Votes     map[models.Label]float64
	Neighbors []Neighbor
}

// Classifier is a fitted, immutable k-NN model.
type Classifier struct {
	samples      Samples
	featureNames []string
	k            int
	requested    IndexKind
	index        neighborIndex
}

// Option configures Fit.
type Option func(*Classifier)

// WithK sets the maximum number of neighbours that vote. Values below 1 are ignored.
func WithK(k int) Option {
	return func(c *Classifier) {
		if k >= 1 {
			c.k = k
		}
	}
}

// WithFeatureNames records the ordered feature map names the samples were built from.
func WithFeatureNames(names []string) Option {
	return func(c *Classifier) {
		c.featureNames = append([]string(nil), names...)
	}
}

// WithIndex selects the neighbour search structure.
func WithIndex(kind IndexKind) Option {
	return func(c *Classifier) {
		c.requested = kind
	}
}

// Fit stores a copy of samples and returns a trained classifier. It fails with a
// *TrainingError wrapping ErrNoSamples when samples is empty. Vectors are neither
// normalized nor required to share a length.
func Fit(samples []Sample, opts ...Option) (*Classifier, error) {
	if len(samples) == 0 {
		return nil, &TrainingError{Reason: "no labeled samples supplied", Err: ErrNoSamples}
	}

	c := &Classifier{
		k:         DefaultK,
		requested: IndexLinear,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.samples = make(Samples, len(samples))
	for i, s := range samples {
		c.samples[i] = Sample{
			Vector: append([]float64(nil), s.Vector...),
			Label:  s.Label,
		}
	}

	switch c.requested {
	case IndexKDTree:
		if idx, ok := newKDTreeIndex(c.samples); ok {
			c.index = idx
			break
		}
		c.index = linearIndex{samples: c.samples}
	case IndexLinear, "":
		c.index = linearIndex{samples: c.samples}
	default:
		return nil, &TrainingError{Reason: fmt.Sprintf("unknown index %q", c.requested)}
	}

	return c, nil
}

// Trained reports whether c holds a fitted state. A nil classifier is untrained.
func (c *Classifier) Trained() bool {
	return c != nil && len(c.samples) > 0
}

// Len returns the number of stored samples.
func (c *Classifier) Len() int {
	if c == nil {
		return 0
	}
	return len(c.samples)
}

// K returns the configured neighbourhood size.
func (c *Classifier) K() int {
	return c.k
}

// Index returns the neighbour search structure actually in use. A k-d tree request
// falls back to the linear scan when sample vectors differ in length.
func (c *Classifier) Index() IndexKind {
	return c.index.kind()
}

// FeatureNames returns the feature map names recorded at fit time.
func (c *Classifier) FeatureNames() []string {
	return append([]string(nil), c.featureNames...)
}

// Samples returns a copy of the training set.
func (c *Classifier) Samples() Samples {
	out := make(Samples, len(c.samples))
	copy(out, c.samples)
	return out
}

// Labels returns the distinct labels in the training set, ascending.
func (c *Classifier) Labels() []models.Label {
	seen := make(map[models.Label]bool)
	var out []models.Label
	for _, s := range c.samples {
		if !seen[s.Label] {
			seen[s.Label] = true
			out = append(out, s.Label)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckFeatures verifies that names matches, in order, the feature maps recorded at
// fit time. A classifier fitted without recorded names accepts anything.
func (c *Classifier) CheckFeatures(names []string) error {
	if !c.Trained() || c.featureNames == nil {
		return nil
	}
	if len(names) != len(c.featureNames) {
		return fmt.Errorf("%w: trained on %v, got %v", ErrFeatureMismatch, c.featureNames, names)
	}
	for i := range names {
		if names[i] != c.featureNames[i] {
			return fmt.Errorf("%w: trained on %v, got %v", ErrFeatureMismatch, c.featureNames, names)
		}
	}
	return nil
}

// Predict returns the label of vector. An untrained classifier or an empty vector
// yields DefaultLabel; Predict never fails.
func (c *Classifier) Predict(vector []float64) models.Label {
	if !c.Trained() || len(vector) == 0 {
		return DefaultLabel
	}
	return vote(c.index.nearest(vector, c.neighbours()), nil)
}

// PredictDetail is Predict with the neighbours and votes that produced the label.
func (c *Classifier) PredictDetail(vector []float64) Prediction {
	if !c.Trained() || len(vector) == 0 {
		return Prediction{Label: DefaultLabel}
	}
	neighbors := c.index.nearest(vector, c.neighbours())
	votes := make(map[models.Label]float64)
	label := vote(neighbors, votes)
	return Prediction{Label: label, Votes: votes, Neighbors: neighbors}
}

func (c *Classifier) neighbours() int {
	if c.k > len(c.samples) {
		return len(c.samples)
	}
	return c.k
}

// vote accumulates 1/(d+ε) per label, or exactMatchVote for d == 0, and returns the
// label with the highest total. Equal totals go to the lowest label id. When votes
// is non-nil the totals are written into it.
func vote(neighbors []Neighbor, votes map[models.Label]float64) models.Label {
	var (
		labels []models.Label
		totals []float64
	)
	for _, n := range neighbors {
		w := exactMatchVote
		if n.Distance > 0 {
			w = 1 / (n.Distance + distanceEpsilon)
		}
		found := false
		for i, l := range labels {
			if l == n.Label {
				totals[i] += w
				found = true
				break
			}
		}
		if !found {
			labels = append(labels, n.Label)
			totals = append(totals, w)
		}
	}

	best := DefaultLabel
	bestVote := -1.0
	for i, l := range labels {
		if votes != nil {
			votes[l] = totals[i]
		}
		if totals[i] > bestVote || (totals[i] == bestVote && l < best) {
			best = l
			bestVote = totals[i]
		}
	}
	return best
}

// Distance is the Euclidean distance over the common prefix of a and b.
func Distance(a, b []float64) float64 {
	return math.Sqrt(squaredDistance(a, b))
}

func squaredDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for j := 0; j < n; j++ {
		diff := a[j] - b[j]
		sum += diff * diff
	}
	return sum
}
