package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"pixelseg/pkg/filters"
)

// Set is an insertion-ordered collection of same-shaped feature maps for one image.
// The insertion order is the column order of every feature vector built from it.
type Set struct {
	width  int
	height int
	names  []string
	maps   map[string]*filters.Buffer
}

// NewSet creates an empty set for a width×height image.
func NewSet(width, height int) *Set {
	return &Set{
		width:  width,
		height: height,
		maps:   make(map[string]*filters.Buffer),
	}
}

// Add appends a map under name. Re-adding an existing name replaces the buffer
// but keeps its original position.
func (s *Set) Add(name string, buf *filters.Buffer) error {
	if buf == nil {
		return fmt.Errorf("feature map %q is nil", name)
	}
	if buf.Width != s.width || buf.Height != s.height {
		return fmt.Errorf("feature map %q is %dx%d, set is %dx%d", name, buf.Width, buf.Height, s.width, s.height)
	}
	if len(buf.Data) != buf.Width*buf.Height {
		return fmt.Errorf("feature map %q has %d values, expected %d", name, len(buf.Data), buf.Width*buf.Height)
	}
	s.add(name, buf)
	return nil
}

func (s *Set) add(name string, buf *filters.Buffer) {
	if _, ok := s.maps[name]; !ok {
		s.names = append(s.names, name)
	}
	s.maps[name] = buf
}

// Width of every map in the set.
func (s *Set) Width() int { return s.width }

// Height of every map in the set.
func (s *Set) Height() int { return s.height }

// Len returns the number of maps.
func (s *Set) Len() int { return len(s.names) }

// Names returns the map names in column order.
func (s *Set) Names() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Get returns the map stored under name.
func (s *Set) Get(name string) (*filters.Buffer, bool) {
	buf, ok := s.maps[name]
	return buf, ok
}

// VectorAt assembles the feature vector of pixel (x, y).
func (s *Set) VectorAt(x, y int) []float64 {
	return s.VectorAtInto(make([]float64, 0, len(s.names)), x, y)
}

// VectorAtInto is VectorAt appending into dst[:0], for allocation-free loops.
//
// Values are read in column order. NaN and ±Inf entries are dropped rather than
// replaced, so a pixel whose maps produce non-finite values yields a shorter
// vector and every later column shifts left. Out-of-range coordinates yield an
// empty vector.
func (s *Set) VectorAtInto(dst []float64, x, y int) []float64 {
	dst = dst[:0]
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return dst
	}

	idx := y*s.width + x
	for _, name := range s.names {
		buf := s.maps[name]
		if idx >= len(buf.Data) {
			continue
		}
		v := float64(buf.Data[idx])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		dst = append(dst, v)
	}
	return dst
}

// VectorAt is the package-level form of Set.VectorAt.
func VectorAt(set *Set, x, y int) []float64 {
	return set.VectorAt(x, y)
}

// Sanitized returns a set where NaN and ±Inf values are replaced by 0. Maps
// without non-finite values are shared, not copied.
func (s *Set) Sanitized() *Set {
	out := NewSet(s.width, s.height)
	for _, name := range s.names {
		buf := s.maps[name]
		var clean *filters.Buffer
		for i, v := range buf.Data {
			f := float64(v)
			if !math.IsNaN(f) && !math.IsInf(f, 0) {
				continue
			}
			if clean == nil {
				clean = filters.NewBuffer(buf.Width, buf.Height)
				copy(clean.Data, buf.Data)
			}
			clean.Data[i] = 0
		}
		if clean == nil {
			clean = buf
		}
		out.add(name, clean)
	}
	return out
}

// MapStats summarizes the finite values of one feature map.
type MapStats struct {
	Name      string
	Mean      float64
	StdDev    float64
	Min       float64
	Max       float64
	NonFinite int
}

// Stats returns summary statistics per map, in column order.
func (s *Set) Stats() []MapStats {
	out := make([]MapStats, 0, len(s.names))
	for _, name := range s.names {
		buf := s.maps[name]
		values := make([]float64, 0, len(buf.Data))
		ms := MapStats{Name: name, Min: math.Inf(1), Max: math.Inf(-1)}
		for _, v := range buf.Data {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				ms.NonFinite++
				continue
			}
			values = append(values, f)
			ms.Min = math.Min(ms.Min, f)
			ms.Max = math.Max(ms.Max, f)
		}
		if len(values) == 0 {
			ms.Min, ms.Max = 0, 0
		} else {
			ms.Mean = stat.Mean(values, nil)
			if len(values) > 1 {
				ms.StdDev = stat.StdDev(values, nil)
			}
		}
		out = append(out, ms)
	}
	return out
}
