package features

import (
	"image/color"
	"math"
	"reflect"
	"testing"

	"pixelseg/internal/models"
	"pixelseg/pkg/filters"
)

// createTestImage builds a small image with a bright square in the middle
func createTestImage(width, height int) *models.Image {
	img := models.Uniform(width, height, color.RGBA{R: 40, G: 40, B: 40, A: 255})
	for y := height / 4; y < 3*height/4; y++ {
		for x := width / 4; x < 3*width/4; x++ {
			img.SetRGBA(x, y, 220, 200, 180, 255)
		}
	}
	return img
}

func TestExtractEmptySelectionReturnsRawOnly(t *testing.T) {
	img := createTestImage(8, 6)
	set := NewExtractor().Extract(img, nil)

	if !reflect.DeepEqual(set.Names(), []string{Raw}) {
		t.Fatalf("Expected only raw map, got %v", set.Names())
	}

	raw, _ := set.Get(Raw)
	gray := filters.Grayscale(img)
	if !reflect.DeepEqual(raw.Data, gray.Data) {
		t.Errorf("Expected raw map to equal the grayscale buffer")
	}
}

func TestExtractOrderIsIndependentOfSelectionOrder(t *testing.T) {
	img := createTestImage(10, 10)
	e := NewExtractor()

	a := e.Extract(img, []string{Sobel, Gaussian, Hessian})
	b := e.Extract(img, []string{Hessian, Sobel, Gaussian, Sobel})

	want := []string{Raw, Gaussian, Sobel, Hessian}
	if !reflect.DeepEqual(a.Names(), want) {
		t.Errorf("Expected %v, got %v", want, a.Names())
	}
	if !reflect.DeepEqual(a.Names(), b.Names()) {
		t.Errorf("Expected identical order, got %v and %v", a.Names(), b.Names())
	}
}

func TestExtractIgnoresUnknownAndDisabledNames(t *testing.T) {
	img := createTestImage(6, 6)
	e := NewExtractor()
	e.EnableGabor = false

	set := e.Extract(img, []string{"membrane-projections", Gabor, Laplacian, ""})
	if !reflect.DeepEqual(set.Names(), []string{Raw, Laplacian}) {
		t.Errorf("Expected raw and laplacian only, got %v", set.Names())
	}

	if got := e.Available(); !reflect.DeepEqual(got, []string{Gaussian, Laplacian, Gradient, Sobel, Hessian, DoG}) {
		t.Errorf("Unexpected available filters %v", got)
	}
}

func TestExtractAllMapsShareShape(t *testing.T) {
	img := createTestImage(13, 7)
	set := NewExtractor().Extract(img, KnownFilters())

	if set.Len() != len(KnownFilters())+1 {
		t.Fatalf("Expected %d maps, got %d", len(KnownFilters())+1, set.Len())
	}
	for _, name := range set.Names() {
		buf, ok := set.Get(name)
		if !ok {
			t.Fatalf("Missing map %s", name)
		}
		if buf.Width != 13 || buf.Height != 7 || len(buf.Data) != 13*7 {
			t.Errorf("Map %s has shape %dx%d (%d values)", name, buf.Width, buf.Height, len(buf.Data))
		}
	}
}

func TestExtractMatchesFilterBank(t *testing.T) {
	img := createTestImage(9, 9)
	e := NewExtractor()
	e.GaussianSigma = 2.0

	set := e.Extract(img, []string{Gaussian, Gabor})
	gray := filters.Grayscale(img)

	gauss, _ := set.Get(Gaussian)
	if !reflect.DeepEqual(gauss.Data, filters.GaussianBlur(gray, 2.0).Data) {
		t.Errorf("Gaussian map does not match GaussianBlur with the configured sigma")
	}
	gabor, _ := set.Get(Gabor)
	if !reflect.DeepEqual(gabor.Data, filters.Gabor(gray).Data) {
		t.Errorf("Gabor map does not match filters.Gabor")
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	img := createTestImage(12, 12)
	e := NewExtractor()
	a := e.Extract(img, KnownFilters())
	b := e.Extract(img, KnownFilters())
	for _, name := range a.Names() {
		x, _ := a.Get(name)
		y, _ := b.Get(name)
		if !reflect.DeepEqual(x.Data, y.Data) {
			t.Errorf("Map %s differs between runs", name)
		}
	}
}

func TestVectorAt(t *testing.T) {
	set := NewSet(3, 2)
	first := filters.NewBuffer(3, 2)
	second := filters.NewBuffer(3, 2)
	for i := range first.Data {
		first.Data[i] = float32(i)
		second.Data[i] = float32(10 * i)
	}
	if err := set.Add("first", first); err != nil {
		t.Fatal(err)
	}
	if err := set.Add("second", second); err != nil {
		t.Fatal(err)
	}

	if got := set.VectorAt(2, 1); !reflect.DeepEqual(got, []float64{5, 50}) {
		t.Errorf("VectorAt(2,1) = %v, want [5 50]", got)
	}
	if got := VectorAt(set, 0, 0); !reflect.DeepEqual(got, []float64{0, 0}) {
		t.Errorf("VectorAt(0,0) = %v, want [0 0]", got)
	}
	for _, p := range [][2]int{{-1, 0}, {3, 0}, {0, 2}} {
		if got := set.VectorAt(p[0], p[1]); len(got) != 0 {
			t.Errorf("Expected empty vector for %v, got %v", p, got)
		}
	}
}

func TestVectorAtDropsNonFiniteValues(t *testing.T) {
	set := NewSet(2, 1)
	a := filters.NewBuffer(2, 1)
	b := filters.NewBuffer(2, 1)
	c := filters.NewBuffer(2, 1)
	a.Data = []float32{1, 2}
	b.Data = []float32{float32(math.NaN()), float32(math.Inf(1))}
	c.Data = []float32{3, 4}
	set.Add("a", a)
	set.Add("b", b)
	set.Add("c", c)

	if got := set.VectorAt(0, 0); !reflect.DeepEqual(got, []float64{1, 3}) {
		t.Errorf("Expected NaN column to be dropped, got %v", got)
	}
	if got := set.VectorAt(1, 0); !reflect.DeepEqual(got, []float64{2, 4}) {
		t.Errorf("Expected Inf column to be dropped, got %v", got)
	}

	clean := set.Sanitized()
	if got := clean.VectorAt(0, 0); !reflect.DeepEqual(got, []float64{1, 0, 3}) {
		t.Errorf("Expected sanitized vector [1 0 3], got %v", got)
	}
	if !math.IsNaN(float64(b.Data[0])) {
		t.Errorf("Sanitized must not modify the original map")
	}
	ca, _ := clean.Get("a")
	if ca != a {
		t.Errorf("Expected finite maps to be shared by the sanitized set")
	}
}

func TestSetAddRejectsShapeMismatch(t *testing.T) {
	set := NewSet(4, 4)
	if err := set.Add("bad", filters.NewBuffer(4, 3)); err == nil {
		t.Error("Expected error for mismatched shape")
	}
	if err := set.Add("nil", nil); err == nil {
		t.Error("Expected error for nil map")
	}
	if set.Len() != 0 {
		t.Errorf("Expected set to stay empty, got %d maps", set.Len())
	}
}

func TestSetAddReplaceKeepsPosition(t *testing.T) {
	set := NewSet(1, 1)
	set.Add("a", filters.Constant(1, 1, 1))
	set.Add("b", filters.Constant(1, 1, 2))
	set.Add("a", filters.Constant(1, 1, 3))

	if !reflect.DeepEqual(set.Names(), []string{"a", "b"}) {
		t.Fatalf("Expected order [a b], got %v", set.Names())
	}
	if got := set.VectorAt(0, 0); !reflect.DeepEqual(got, []float64{3, 2}) {
		t.Errorf("Expected [3 2], got %v", got)
	}
}

func TestStats(t *testing.T) {
	set := NewSet(2, 2)
	buf := filters.NewBuffer(2, 2)
	buf.Data = []float32{1, 2, 3, float32(math.NaN())}
	set.Add("m", buf)

	stats := set.Stats()
	if len(stats) != 1 {
		t.Fatalf("Expected one entry, got %d", len(stats))
	}
	s := stats[0]
	if s.Mean != 2 || s.Min != 1 || s.Max != 3 || s.NonFinite != 1 {
		t.Errorf("Unexpected stats %+v", s)
	}
	if math.Abs(s.StdDev-1) > 1e-12 {
		t.Errorf("Expected sample std dev 1, got %f", s.StdDev)
	}
}

func TestExtractorSubstituteNonFinite(t *testing.T) {
	e := NewExtractor()
	e.SubstituteNonFinite = true

	gray := filters.Constant(3, 3, 0.5)
	gray.Data[4] = float32(math.Inf(1))
	set := e.ExtractGray(gray, nil)

	if got := set.VectorAt(1, 1); !reflect.DeepEqual(got, []float64{0}) {
		t.Errorf("Expected Inf to become 0, got %v", got)
	}
}
