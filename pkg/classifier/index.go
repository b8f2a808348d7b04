package classifier

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// IndexKind names a neighbour search structure.
type IndexKind string

const (
	// IndexLinear scans every sample for each query.
	IndexLinear IndexKind = "linear"
	// IndexKDTree searches a k-d tree built over the samples. It returns exactly the
	// neighbours the linear scan would, including ties.
	IndexKDTree IndexKind = "kdtree"
)

// ParseIndex converts a configuration value into an IndexKind.
func ParseIndex(s string) (IndexKind, error) {
	switch IndexKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", IndexLinear:
		return IndexLinear, nil
	case IndexKDTree, "kd-tree":
		return IndexKDTree, nil
	default:
		return "", fmt.Errorf("unknown neighbour index %q (want linear or kdtree)", s)
	}
}

// neighborIndex returns the k nearest samples of a query ordered by ascending
// distance, equal distances in training order.
type neighborIndex interface {
	nearest(query []float64, k int) []Neighbor
	kind() IndexKind
}

type linearIndex struct {
	samples Samples
}

func (linearIndex) kind() IndexKind { return IndexLinear }

// nearest keeps a bounded insertion-sorted list of the best k. A sample only displaces
// the current worst when strictly closer, which is the order a stable sort of all
// distances would produce.
func (l linearIndex) nearest(query []float64, k int) []Neighbor {
	best := make([]Neighbor, 0, k)
	for i, s := range l.samples {
		d := Distance(query, s.Vector)
		if len(best) == k && d >= best[k-1].Distance {
			continue
		}
		j := len(best)
		for j > 0 && best[j-1].Distance > d {
			j--
		}
		if len(best) < k {
			best = append(best, Neighbor{})
		}
		copy(best[j+1:], best[j:len(best)-1])
		best[j] = Neighbor{Index: i, Label: s.Label, Distance: d}
	}
	return best
}

// samplePoint is a training vector stored in the k-d tree
type samplePoint struct {
	coords []float64
	index  int
}

// Compare implements the kdtree.Comparable interface
func (p samplePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(samplePoint)
	return p.coords[d] - q.coords[d]
}

// Dims returns the number of dimensions for the KD-tree
func (p samplePoint) Dims() int { return len(p.coords) }

// Distance returns the squared Euclidean distance between two points, summed in the
// same order as squaredDistance so both indexes agree bit for bit.
func (p samplePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(samplePoint)
	return squaredDistance(p.coords, q.coords)
}

// samplePoints is a collection of samplePoint that satisfies kdtree.Interface
type samplePoints []samplePoint

func (p samplePoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p samplePoints) Len() int                              { return len(p) }
func (p samplePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p samplePoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{samplePoints: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{samplePoints: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for samplePoints
type pointPlane struct {
	samplePoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	return p.samplePoints[i].coords[p.Dim] < p.samplePoints[j].coords[p.Dim]
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{samplePoints: p.samplePoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.samplePoints[i], p.samplePoints[j] = p.samplePoints[j], p.samplePoints[i]
}

type kdTreeIndex struct {
	tree    *kdtree.Tree
	dims    int
	samples Samples
	linear  linearIndex
}

// newKDTreeIndex builds the tree. It reports false when the samples do not share a
// single non-zero dimension, in which case the caller falls back to the linear scan.
func newKDTreeIndex(samples Samples) (*kdTreeIndex, bool) {
	dims := len(samples[0].Vector)
	if dims == 0 {
		return nil, false
	}
	points := make(samplePoints, len(samples))
	for i, s := range samples {
		if len(s.Vector) != dims {
			return nil, false
		}
		points[i] = samplePoint{coords: s.Vector, index: i}
	}

	return &kdTreeIndex{
		tree:    kdtree.New(points, true),
		dims:    dims,
		samples: samples,
		linear:  linearIndex{samples: samples},
	}, true
}

func (*kdTreeIndex) kind() IndexKind { return IndexKDTree }

// nearest finds the k-th smallest distance with an NKeeper, then gathers every sample
// within that radius with a DistKeeper so that ties at the boundary are resolved by
// training order rather than by tree layout.
func (t *kdTreeIndex) nearest(query []float64, k int) []Neighbor {
	if len(query) != t.dims {
		return t.linear.nearest(query, k)
	}
	q := samplePoint{coords: query, index: -1}

	keeper := kdtree.NewNKeeper(k)
	t.tree.NearestSet(keeper, q)

	radius := 0.0
	for _, item := range keeper.Heap {
		// Skip the sentinel value
		if item.Comparable == nil {
			continue
		}
		radius = math.Max(radius, item.Dist)
	}

	within := kdtree.NewDistKeeper(radius)
	t.tree.NearestSet(within, q)

	out := make([]Neighbor, 0, within.Len())
	for _, item := range within.Heap {
		if item.Comparable == nil {
			continue
		}
		p := item.Comparable.(samplePoint)
		out = append(out, Neighbor{
			Index:    p.index,
			Label:    t.samples[p.index].Label,
			Distance: math.Sqrt(item.Dist),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Index < out[j].Index
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
