package classifier

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sync"
	"testing"

	"pixelseg/internal/models"
	"pixelseg/pkg/features"
	"pixelseg/pkg/filters"
	"pixelseg/pkg/labels"
)

func TestFitRejectsEmptyTrainingSet(t *testing.T) {
	c, err := Fit(nil)
	if err == nil {
		t.Fatal("Expected error for empty training set")
	}
	if c != nil {
		t.Errorf("Expected no classifier on error")
	}
	if !errors.Is(err, ErrNoSamples) {
		t.Errorf("Expected ErrNoSamples, got %v", err)
	}
	var te *TrainingError
	if !errors.As(err, &te) {
		t.Errorf("Expected *TrainingError, got %T", err)
	}
}

func TestFitRejectsUnknownIndex(t *testing.T) {
	_, err := Fit([]Sample{{Vector: []float64{1}, Label: 1}}, WithIndex("ball-tree"))
	if err == nil {
		t.Error("Expected error for unknown index kind")
	}
}

func TestPredictExactMatches(t *testing.T) {
	c, err := Fit([]Sample{
		{Vector: []float64{0, 0}, Label: models.Cell},
		{Vector: []float64{10, 10}, Label: models.Background},
	})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if got := c.Predict([]float64{0, 0}); got != models.Cell {
		t.Errorf("Predict([0 0]) = %d, want 1", got)
	}
	if got := c.Predict([]float64{10, 10}); got != models.Background {
		t.Errorf("Predict([10 10]) = %d, want 2", got)
	}
	if got := c.Predict([]float64{1, 1}); got != models.Cell {
		t.Errorf("Predict([1 1]) = %d, want 1", got)
	}
}

func TestPredictUntrainedAndEmpty(t *testing.T) {
	var c *Classifier
	if got := c.Predict([]float64{1, 2, 3}); got != DefaultLabel {
		t.Errorf("Expected untrained classifier to predict %d, got %d", DefaultLabel, got)
	}
	if c.Trained() {
		t.Errorf("Expected nil classifier to be untrained")
	}

	trained, _ := Fit([]Sample{{Vector: []float64{1}, Label: models.Nucleus}})
	if got := trained.Predict(nil); got != DefaultLabel {
		t.Errorf("Expected empty vector to predict %d, got %d", DefaultLabel, got)
	}
	if got := trained.Predict([]float64{100}); got != models.Nucleus {
		t.Errorf("Expected single-sample classifier to predict 3, got %d", got)
	}
}

func TestPredictTieGoesToLowestLabel(t *testing.T) {
	c, _ := Fit([]Sample{
		{Vector: []float64{0}, Label: models.Nucleus},
		{Vector: []float64{2}, Label: models.Cell},
	})
	if got := c.Predict([]float64{1}); got != models.Cell {
		t.Errorf("Expected tie to resolve to label 1, got %d", got)
	}
}

func TestPredictEqualDistancesKeepTrainingOrder(t *testing.T) {
	samples := []Sample{
		{Vector: []float64{2}, Label: models.Membrane},
		{Vector: []float64{-2}, Label: models.Nucleus},
		{Vector: []float64{5}, Label: models.Cell},
	}
	for _, kind := range []IndexKind{IndexLinear, IndexKDTree} {
		c, _ := Fit(samples, WithK(1), WithIndex(kind))
		d := c.PredictDetail([]float64{0})
		if d.Label != models.Membrane {
			t.Errorf("%s: expected earlier sample to win, got %d", kind, d.Label)
		}
		if len(d.Neighbors) != 1 || d.Neighbors[0].Index != 0 {
			t.Errorf("%s: unexpected neighbours %+v", kind, d.Neighbors)
		}
	}
}

func TestPredictDetailVotes(t *testing.T) {
	c, _ := Fit([]Sample{
		{Vector: []float64{0, 0}, Label: models.Cell},
		{Vector: []float64{3, 4}, Label: models.Background},
		{Vector: []float64{0, 0}, Label: models.Cell},
	})
	d := c.PredictDetail([]float64{0, 0})

	if d.Label != models.Cell {
		t.Fatalf("Expected label 1, got %d", d.Label)
	}
	if d.Votes[models.Cell] != 2000 {
		t.Errorf("Expected two exact matches to vote 2000, got %f", d.Votes[models.Cell])
	}
	want := 1 / (5 + 1e-6)
	if math.Abs(d.Votes[models.Background]-want) > 1e-12 {
		t.Errorf("Expected inverse-distance vote %f, got %f", want, d.Votes[models.Background])
	}
	if len(d.Neighbors) != 3 {
		t.Fatalf("Expected k = min(5, 3) neighbours, got %d", len(d.Neighbors))
	}
	if d.Neighbors[0].Index != 0 || d.Neighbors[1].Index != 2 || d.Neighbors[2].Index != 1 {
		t.Errorf("Unexpected neighbour order %+v", d.Neighbors)
	}
}

func TestPredictKLimitsVoters(t *testing.T) {
	samples := []Sample{
		{Vector: []float64{0}, Label: models.Nucleus},
		{Vector: []float64{1.5}, Label: models.Cell},
		{Vector: []float64{1.6}, Label: models.Cell},
		{Vector: []float64{1.7}, Label: models.Cell},
	}
	all, _ := Fit(samples)
	one, _ := Fit(samples, WithK(1))

	query := []float64{0.5}
	if got := all.Predict(query); got != models.Cell {
		t.Errorf("Expected three closer cell samples to outvote, got %d", got)
	}
	if got := one.Predict(query); got != models.Nucleus {
		t.Errorf("Expected k=1 to follow the single nearest sample, got %d", got)
	}
	if one.K() != 1 || all.K() != DefaultK {
		t.Errorf("Unexpected K values %d and %d", one.K(), all.K())
	}
}

func TestDistanceUsesCommonPrefix(t *testing.T) {
	if got := Distance([]float64{3, 4, 100}, []float64{0, 0}); got != 5 {
		t.Errorf("Expected prefix distance 5, got %f", got)
	}

	c, _ := Fit([]Sample{
		{Vector: []float64{0, 0, 0}, Label: models.Cell},
		{Vector: []float64{9}, Label: models.Background},
	}, WithIndex(IndexKDTree))
	if c.Index() != IndexLinear {
		t.Errorf("Expected mixed-length samples to fall back to linear, got %s", c.Index())
	}
	if got := c.Predict([]float64{8, 50}); got != models.Background {
		t.Errorf("Expected prefix comparison to pick label 2, got %d", got)
	}
}

func TestKDTreeMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := make([]Sample, 400)
	for i := range samples {
		// small integer grid so that equal distances are common
		samples[i] = Sample{
			Vector: []float64{float64(rng.Intn(8)), float64(rng.Intn(8)), float64(rng.Intn(8))},
			Label:  models.Label(1 + rng.Intn(4)),
		}
	}

	linear, err := Fit(samples, WithIndex(IndexLinear))
	if err != nil {
		t.Fatal(err)
	}
	tree, err := Fit(samples, WithIndex(IndexKDTree))
	if err != nil {
		t.Fatal(err)
	}
	if tree.Index() != IndexKDTree {
		t.Fatalf("Expected k-d tree index, got %s", tree.Index())
	}

	for i := 0; i < 300; i++ {
		q := []float64{rng.Float64() * 8, rng.Float64() * 8, rng.Float64() * 8}
		if i%3 == 0 {
			q = []float64{float64(rng.Intn(8)), float64(rng.Intn(8)), float64(rng.Intn(8))}
		}
		a := linear.PredictDetail(q)
		b := tree.PredictDetail(q)
		if !reflect.DeepEqual(a.Neighbors, b.Neighbors) {
			t.Fatalf("query %v: linear %+v, tree %+v", q, a.Neighbors, b.Neighbors)
		}
		if a.Label != b.Label {
			t.Fatalf("query %v: linear label %d, tree label %d", q, a.Label, b.Label)
		}
	}

	// query of a different length goes through the linear scan
	if got, want := tree.Predict([]float64{1}), linear.Predict([]float64{1}); got != want {
		t.Errorf("Expected short query to match linear result %d, got %d", want, got)
	}
}

func TestParseIndex(t *testing.T) {
	for in, want := range map[string]IndexKind{"": IndexLinear, "Linear": IndexLinear, "kdtree": IndexKDTree, " kd-tree ": IndexKDTree} {
		got, err := ParseIndex(in)
		if err != nil || got != want {
			t.Errorf("ParseIndex(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseIndex("annoy"); err == nil {
		t.Error("Expected error for unknown index")
	}
}

func TestCheckFeatures(t *testing.T) {
	c, _ := Fit([]Sample{{Vector: []float64{1, 2}, Label: 1}},
		WithFeatureNames([]string{features.Raw, features.Gaussian}))

	if err := c.CheckFeatures([]string{features.Raw, features.Gaussian}); err != nil {
		t.Errorf("Expected matching names to pass, got %v", err)
	}
	if err := c.CheckFeatures([]string{features.Raw}); !errors.Is(err, ErrFeatureMismatch) {
		t.Errorf("Expected ErrFeatureMismatch for missing map, got %v", err)
	}
	if err := c.CheckFeatures([]string{features.Gaussian, features.Raw}); !errors.Is(err, ErrFeatureMismatch) {
		t.Errorf("Expected ErrFeatureMismatch for reordered maps, got %v", err)
	}

	anon, _ := Fit([]Sample{{Vector: []float64{1}, Label: 1}})
	if err := anon.CheckFeatures([]string{"anything"}); err != nil {
		t.Errorf("Expected classifier without names to accept any set, got %v", err)
	}
}

func TestFitCopiesSamples(t *testing.T) {
	samples := []Sample{{Vector: []float64{0}, Label: models.Cell}, {Vector: []float64{9}, Label: models.Nucleus}}
	c, _ := Fit(samples)
	samples[0].Vector[0] = 9
	samples[0].Label = models.Membrane

	if got := c.Predict([]float64{0}); got != models.Cell {
		t.Errorf("Expected classifier to be unaffected by caller changes, got %d", got)
	}
	if got := c.Labels(); !reflect.DeepEqual(got, []models.Label{models.Cell, models.Nucleus}) {
		t.Errorf("Labels = %v", got)
	}
}

func TestSamplesFromMask(t *testing.T) {
	set := features.NewSet(3, 2)
	buf := filters.NewBuffer(3, 2)
	for i := range buf.Data {
		buf.Data[i] = float32(i)
	}
	set.Add(features.Raw, buf)

	mask := labels.NewMask(3, 2)
	mask.Set(2, 0, models.Cell)
	mask.Set(0, 1, models.Background)
	mask.Set(2, 1, models.Cell)

	samples, err := SamplesFromMask(set, mask)
	if err != nil {
		t.Fatalf("SamplesFromMask failed: %v", err)
	}
	want := Samples{
		{Vector: []float64{2}, Label: models.Cell},
		{Vector: []float64{3}, Label: models.Background},
		{Vector: []float64{5}, Label: models.Cell},
	}
	if !reflect.DeepEqual(samples, want) {
		t.Errorf("Samples = %+v, want %+v", samples, want)
	}
	if got := samples.Counts(); got[models.Cell] != 2 || got[models.Background] != 1 {
		t.Errorf("Unexpected counts %v", got)
	}

	if _, err := SamplesFromMask(set, labels.NewMask(2, 2)); err == nil {
		t.Error("Expected error for mismatched mask shape")
	}
}

func TestSamplesMatrixAndClassSummary(t *testing.T) {
	samples := Samples{
		{Vector: []float64{1, 10}, Label: models.Background},
		{Vector: []float64{3, 30}, Label: models.Background},
		{Vector: []float64{5, 50}, Label: models.Cell},
	}

	m, err := samples.Matrix()
	if err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	if r, c := m.Dims(); r != 3 || c != 2 {
		t.Fatalf("Expected 3x2 matrix, got %dx%d", r, c)
	}
	if m.At(1, 1) != 30 {
		t.Errorf("Expected m[1][1] = 30, got %f", m.At(1, 1))
	}

	summary, err := samples.ClassSummary()
	if err != nil {
		t.Fatalf("ClassSummary failed: %v", err)
	}
	if len(summary) != 2 || summary[0].Label != models.Cell || summary[1].Label != models.Background {
		t.Fatalf("Unexpected summary order %+v", summary)
	}
	if !reflect.DeepEqual(summary[1].Mean, []float64{2, 20}) || summary[1].Count != 2 {
		t.Errorf("Unexpected background stats %+v", summary[1])
	}
	if !reflect.DeepEqual(summary[0].Mean, []float64{5, 50}) || summary[0].StdDev[0] != 0 {
		t.Errorf("Unexpected cell stats %+v", summary[0])
	}

	ragged := Samples{{Vector: []float64{1}}, {Vector: []float64{1, 2}}}
	if _, err := ragged.Matrix(); err == nil {
		t.Error("Expected error for ragged samples")
	}
}

func TestHolderPublishesConcurrently(t *testing.T) {
	var h Holder
	if h.Trained() {
		t.Fatal("Expected empty holder to be untrained")
	}

	first, _ := Fit([]Sample{{Vector: []float64{0}, Label: models.Cell}})
	second, _ := Fit([]Sample{{Vector: []float64{0}, Label: models.Nucleus}})
	h.Publish(first)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got := h.Current().Predict([]float64{0})
				if got != models.Cell && got != models.Nucleus {
					t.Errorf("Unexpected prediction %d", got)
					return
				}
			}
		}()
	}
	h.Publish(second)
	wg.Wait()

	if got := h.Current().Predict([]float64{0}); got != models.Nucleus {
		t.Errorf("Expected latest classifier, got %d", got)
	}
	h.Publish(nil)
	if h.Trained() {
		t.Error("Expected holder to be untrained after publishing nil")
	}
}
