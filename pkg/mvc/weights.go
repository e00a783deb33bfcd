package mvc

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagekit/pkg/mesh"
)

// Weights holds one coordinate per reference vertex.
type Weights []float64

// Sum returns the sum of all weights.
func (w Weights) Sum() float64 {
	return floats.Sum(w)
}

// IsDefined reports whether the weights are finite and not all zero.
func (w Weights) IsDefined() bool {
	if floats.HasNaN(w) {
		return false
	}
	nonZero := false
	for _, v := range w {
		if math.IsInf(v, 0) {
			return false
		}
		if v != 0 {
			nonZero = true
		}
	}
	return nonZero
}

// Apply returns the weighted sum of points. Undefined weights produce the
// NaN sentinel.
func (w Weights) Apply(points []mesh.Point3) mesh.Point3 {
	if len(points) != len(w) || !w.IsDefined() {
		return mesh.NaN()
	}
	var out mesh.Point3
	for i, v := range w {
		if v != 0 {
			out = r3.Add(out, r3.Scale(v, points[i]))
		}
	}
	return out
}

// normalize scales w to sum to one. Weights whose sum is not finite or
// vanishes relative to their magnitude are zeroed.
func (w Weights) normalize(eps float64) {
	total := floats.Sum(w)
	if math.IsNaN(total) || math.IsInf(total, 0) || math.Abs(total) <= eps*floats.Norm(w, 1) {
		for i := range w {
			w[i] = 0
		}
		return
	}
	floats.Scale(1/total, w)
}

// Sparse drops weights with magnitude <= prune, renormalizing the rest.
// A prune of zero keeps every non-zero weight unchanged.
func (w Weights) Sparse(prune float64) Sparse {
	var sp Sparse
	var total float64
	for i, v := range w {
		if v == 0 || math.Abs(v) <= prune {
			continue
		}
		sp.Index = append(sp.Index, i)
		sp.Value = append(sp.Value, v)
		total += v
	}
	if prune > 0 && total != 0 && !math.IsNaN(total) {
		floats.Scale(1/total, sp.Value)
	}
	return sp
}

// Sparse is a compressed weight vector: parallel index and value slices.
type Sparse struct {
	Index []int
	Value []float64
}

// Len returns the number of stored weights.
func (s Sparse) Len() int {
	return len(s.Index)
}

// IsDefined reports whether the vector holds at least one finite weight and
// no NaN or infinite one.
func (s Sparse) IsDefined() bool {
	if len(s.Value) == 0 || floats.HasNaN(s.Value) {
		return false
	}
	for _, v := range s.Value {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Sum returns the sum of the stored weights.
func (s Sparse) Sum() float64 {
	return floats.Sum(s.Value)
}

// Dense expands the vector to n entries.
func (s Sparse) Dense(n int) Weights {
	w := make(Weights, n)
	for k, i := range s.Index {
		if i < n {
			w[i] = s.Value[k]
		}
	}
	return w
}

// Apply returns the weighted sum of points, or the NaN sentinel for an
// undefined vector.
func (s Sparse) Apply(points []mesh.Point3) mesh.Point3 {
	if !s.IsDefined() {
		return mesh.NaN()
	}
	var out mesh.Point3
	for k, i := range s.Index {
		out = r3.Add(out, r3.Scale(s.Value[k], points[i]))
	}
	return out
}
