// Package features turns an image into an ordered set of per-pixel feature maps and
// assembles per-pixel feature vectors from that set.
package features

import (
	"sync"

	"pixelseg/internal/models"
	"pixelseg/pkg/filters"
)

// Feature map names understood by the extractor.
const (
	Raw       = "raw"
	Gaussian  = "gaussian"
	Laplacian = "laplacian"
	Gradient  = "gradient"
	Sobel     = "sobel"
	Gabor     = "gabor"
	Hessian   = "hessian"
	DoG       = "dog"
)

// bankOrder is the column order of the optional maps. The raw map always comes first.
var bankOrder = []string{Gaussian, Laplacian, Gradient, Sobel, Gabor, Hessian, DoG}

// KnownFilters returns the selectable filter names in column order.
func KnownFilters() []string {
	names := make([]string, len(bankOrder))
	copy(names, bankOrder)
	return names
}

// IsKnown reports whether name is a selectable filter.
func IsKnown(name string) bool {
	for _, n := range bankOrder {
		if n == name {
			return true
		}
	}
	return false
}

// Extractor runs the grayscale converter and a selected subset of the filter bank.
// The zero value is not usable; create one with NewExtractor.
type Extractor struct {
	// GaussianSigma is the σ used for the "gaussian" map
	GaussianSigma float64

	// DoGSigmas are the two σ values of the "dog" map
	DoGSigmas [2]float64

	// EnableGabor and EnableHessian switch the two heavier filters on or off.
	// A disabled filter behaves like an unknown name.
	EnableGabor   bool
	EnableHessian bool

	// SubstituteNonFinite makes the extractor replace NaN/Inf values in every
	// map with 0, so vectors never change length per pixel.
	SubstituteNonFinite bool
}

// NewExtractor returns an extractor with every filter enabled and default parameters.
func NewExtractor() *Extractor {
	return &Extractor{
		GaussianSigma: 1.0,
		DoGSigmas:     [2]float64{1.0, 1.6},
		EnableGabor:   true,
		EnableHessian: true,
	}
}

// Available returns the filters this extractor will honour, in column order.
func (e *Extractor) Available() []string {
	names := make([]string, 0, len(bankOrder))
	for _, name := range bankOrder {
		if e.enabled(name) {
			names = append(names, name)
		}
	}
	return names
}

func (e *Extractor) enabled(name string) bool {
	switch name {
	case Gabor:
		return e.EnableGabor
	case Hessian:
		return e.EnableHessian
	default:
		return IsKnown(name)
	}
}

func (e *Extractor) run(name string, gray *filters.Buffer) *filters.Buffer {
	switch name {
	case Gaussian:
		return filters.GaussianBlur(gray, e.GaussianSigma)
	case Laplacian:
		return filters.Laplacian(gray)
	case Gradient:
		return filters.GradientMagnitude(gray)
	case Sobel:
		return filters.SobelMagnitude(gray)
	case Gabor:
		return filters.Gabor(gray)
	case Hessian:
		return filters.HessianDeterminant(gray)
	case DoG:
		return filters.DifferenceOfGaussians(gray, e.DoGSigmas[0], e.DoGSigmas[1])
	}
	return nil
}

// Extract converts img to grayscale and computes the selected feature maps.
// The result always contains "raw" first. Unknown or disabled names are ignored.
func (e *Extractor) Extract(img *models.Image, selected []string) *Set {
	return e.ExtractGray(filters.Grayscale(img), selected)
}

// ExtractGray computes the selected feature maps from an existing grayscale buffer.
// Selected filters run concurrently; the set is assembled in column order so the
// same selection always yields the same vector layout.
func (e *Extractor) ExtractGray(gray *filters.Buffer, selected []string) *Set {
	wanted := make(map[string]bool, len(selected))
	for _, name := range selected {
		if e.enabled(name) {
			wanted[name] = true
		}
	}

	var names []string
	for _, name := range bankOrder {
		if wanted[name] {
			names = append(names, name)
		}
	}

	results := make([]*filters.Buffer, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = e.run(name, gray)
		}(i, name)
	}
	wg.Wait()

	set := NewSet(gray.Width, gray.Height)
	set.add(Raw, gray)
	for i, name := range names {
		set.add(name, results[i])
	}

	if e.SubstituteNonFinite {
		set = set.Sanitized()
	}
	return set
}
