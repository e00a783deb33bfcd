// Package mesh provides the triangulated surface snapshots the deformation
// engine works on.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh errors.
var (
	ErrIndexOutOfRange = errors.New("triangle index out of range")
	ErrPointCount      = errors.New("point count mismatch")
)

// Point3 is a control point position. A NaN coordinate marks a position
// that could not be computed.
type Point3 = r3.Vec

// Triangle is a triple of control point indices.
type Triangle [3]int

// Mesh is a triangulated surface: an ordered point list and the triangles
// connecting them. Point order is the control point index and never changes.
type Mesh struct {
	Points    []Point3
	Triangles []Triangle
}

// New builds a mesh and validates its triangle indices.
func New(points []Point3, triangles []Triangle) (*Mesh, error) {
	m := &Mesh{Points: points, Triangles: triangles}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that every triangle index is in [0, len(Points)).
func (m *Mesh) Validate() error {
	n := len(m.Points)
	for ti, tri := range m.Triangles {
		for _, idx := range tri {
			if idx < 0 || idx >= n {
				return fmt.Errorf("%w: triangle %d references %d (points=%d)", ErrIndexOutOfRange, ti, idx, n)
			}
		}
	}
	return nil
}

// SharesTopology reports whether other has the same point count and the
// same triangle list. Coordinates are not compared.
func (m *Mesh) SharesTopology(other *Mesh) bool {
	if other == nil || len(m.Points) != len(other.Points) || len(m.Triangles) != len(other.Triangles) {
		return false
	}
	for i := range m.Triangles {
		if m.Triangles[i] != other.Triangles[i] {
			return false
		}
	}
	return true
}

// WithPoints returns a mesh with this mesh's topology and the given
// coordinates. The triangle slice is shared, the point slice is copied.
func (m *Mesh) WithPoints(points []Point3) (*Mesh, error) {
	if len(points) != len(m.Points) {
		return nil, fmt.Errorf("%w: have %d, got %d", ErrPointCount, len(m.Points), len(points))
	}
	pts := make([]Point3, len(points))
	copy(pts, points)
	return &Mesh{Points: pts, Triangles: m.Triangles}, nil
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	pts := make([]Point3, len(m.Points))
	copy(pts, m.Points)
	tris := make([]Triangle, len(m.Triangles))
	copy(tris, m.Triangles)
	return &Mesh{Points: pts, Triangles: tris}
}

// Map returns a copy of the mesh with f applied to every point.
func (m *Mesh) Map(f func(Point3) Point3) *Mesh {
	out := m.Clone()
	for i, p := range out.Points {
		out.Points[i] = f(p)
	}
	return out
}

// Centroid returns the average of all points.
func (m *Mesh) Centroid() Point3 {
	return CentroidOf(m.Points, nil)
}

// CentroidOf averages points, skipping indices for which skip returns true
// and points with NaN coordinates. With nothing left it returns a NaN point.
func CentroidOf(points []Point3, skip func(i int) bool) Point3 {
	var sum Point3
	n := 0
	for i, p := range points {
		if (skip != nil && skip(i)) || IsNaN(p) {
			continue
		}
		sum = r3.Add(sum, p)
		n++
	}
	if n == 0 {
		return NaN()
	}
	return r3.Scale(1/float64(n), sum)
}

// IsClosed reports whether every edge is shared by exactly two triangles.
func (m *Mesh) IsClosed() bool {
	return len(m.Triangles) > 0 && m.OpenEdges() == 0
}

// OpenEdges counts undirected edges not shared by exactly two triangles.
func (m *Mesh) OpenEdges() int {
	type edge struct{ a, b int }
	counts := make(map[edge]int, len(m.Triangles)*3/2)
	for _, tri := range m.Triangles {
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			if a > b {
				a, b = b, a
			}
			counts[edge{a, b}]++
		}
	}
	open := 0
	for _, c := range counts {
		if c != 2 {
			open++
		}
	}
	return open
}

// Area returns the area of triangle ti.
func (m *Mesh) Area(ti int) float64 {
	tri := m.Triangles[ti]
	a, b, c := m.Points[tri[0]], m.Points[tri[1]], m.Points[tri[2]]
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

// DegenerateTriangles returns the indices of triangles with area <= eps.
func (m *Mesh) DegenerateTriangles(eps float64) []int {
	var out []int
	for i := range m.Triangles {
		if m.Area(i) <= eps {
			out = append(out, i)
		}
	}
	return out
}

// NaN returns the sentinel point.
func NaN() Point3 {
	nan := math.NaN()
	return Point3{X: nan, Y: nan, Z: nan}
}

// IsNaN reports whether any coordinate of p is NaN.
func IsNaN(p Point3) bool {
	return math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z)
}

// HasNaN returns the indices of NaN points.
func HasNaN(points []Point3) []int {
	var out []int
	for i, p := range points {
		if IsNaN(p) {
			out = append(out, i)
		}
	}
	return out
}
