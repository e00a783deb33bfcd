// Package mvc computes 3D mean value coordinates of a point with respect to
// a closed triangle mesh.
//
// For a closed, non self-intersecting mesh the weights form a partition of
// unity and reproduce the query point from the mesh vertices. The method
// follows Ju, Schaefer and Warren, "Mean Value Coordinates for Closed
// Triangular Meshes" (2005).
package mvc

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagekit/pkg/mesh"
)

// DefaultEpsilon is the tolerance used for vertex coincidence, the in-plane
// test and clamping of near-zero denominators.
const DefaultEpsilon = 1e-8

// Solver computes mean value coordinates. The zero value uses DefaultEpsilon.
type Solver struct {
	Epsilon float64
}

// Solve computes the weights of q against ref with the default tolerance.
func Solve(ref *mesh.Mesh, q mesh.Point3) Weights {
	return Solver{}.Solve(ref, q)
}

func (s Solver) eps() float64 {
	if s.Epsilon > 0 {
		return s.Epsilon
	}
	return DefaultEpsilon
}

// Solve computes one weight per vertex of ref for the query point q.
//
// A mesh without triangles, or a query whose contributions cancel out,
// yields all-zero weights; callers treat that as undefined.
func (s Solver) Solve(ref *mesh.Mesh, q mesh.Point3) Weights {
	eps := s.eps()
	n := len(ref.Points)
	w := make(Weights, n)
	if len(ref.Triangles) == 0 {
		return w
	}

	d := make([]float64, n)
	u := make([]mesh.Point3, n)
	for i, p := range ref.Points {
		v := r3.Sub(p, q)
		d[i] = r3.Norm(v)
		if d[i] < eps {
			w[i] = 1
			return w
		}
		u[i] = r3.Scale(1/d[i], v)
	}

	var (
		theta [3]float64
		sinT  [3]float64
		c     [3]float64
		sn    [3]float64
	)
	for ti, tri := range ref.Triangles {
		if ref.Area(ti) <= eps*eps {
			continue
		}

		for k := 0; k < 3; k++ {
			a, b := u[tri[(k+1)%3]], u[tri[(k+2)%3]]
			theta[k] = math.Atan2(r3.Norm(r3.Cross(a, b)), r3.Dot(a, b))
			sinT[k] = math.Sin(theta[k])
		}
		h := (theta[0] + theta[1] + theta[2]) / 2

		if math.Pi-h < eps {
			// q lies inside this triangle
			return planar(n, tri, sinT, d)
		}

		sign := 1.0
		if r3.Dot(u[tri[0]], r3.Cross(u[tri[1]], u[tri[2]])) < 0 {
			sign = -1
		}

		skip := false
		for k := 0; k < 3; k++ {
			den := sinT[(k+1)%3] * sinT[(k+2)%3]
			if den <= 0 {
				// q is on the line through an edge
				skip = true
				break
			}
			c[k] = clamp(2*math.Sin(h)*math.Sin(h-theta[k])/den-1, -1, 1)
			sn[k] = sign * math.Sqrt(1-c[k]*c[k])
			if math.Abs(sn[k]) <= eps {
				// q is in the triangle's plane but outside it
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		for k := 0; k < 3; k++ {
			k1, k2 := (k+1)%3, (k+2)%3
			num := theta[k] - c[k1]*theta[k2] - c[k2]*theta[k1]
			den := d[tri[k]] * sinT[k1] * sn[k2]
			w[tri[k]] += num / den
		}
	}

	w.normalize(eps)
	return w
}

// planar returns 2D barycentric weights for a query inside triangle tri.
func planar(n int, tri mesh.Triangle, sinT [3]float64, d []float64) Weights {
	w := make(Weights, n)
	var total float64
	for k := 0; k < 3; k++ {
		v := sinT[k] * d[tri[(k+1)%3]] * d[tri[(k+2)%3]]
		w[tri[k]] += v
		total += v
	}
	if total > 0 {
		for k := 0; k < 3; k++ {
			w[tri[k]] /= total
		}
	}
	return w
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
