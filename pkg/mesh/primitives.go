package mesh

import "gonum.org/v1/gonum/spatial/r3"

// Tetrahedron returns the unit corner tetrahedron (origin and the three unit
// axis points) with outward-facing triangles.
func Tetrahedron() *Mesh {
	return &Mesh{
		Points: []Point3{
			{X: 0, Y: 0, Z: 0},
			{X: 1, Y: 0, Z: 0},
			{X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1},
		},
		Triangles: []Triangle{
			{0, 2, 1},
			{0, 1, 3},
			{0, 3, 2},
			{1, 2, 3},
		},
	}
}

// Box returns an axis-aligned box spanning min to max as 12 outward-facing
// triangles.
func Box(min, max Point3) *Mesh {
	pts := make([]Point3, 8)
	for i := range pts {
		p := min
		if i&1 != 0 {
			p.X = max.X
		}
		if i&2 != 0 {
			p.Y = max.Y
		}
		if i&4 != 0 {
			p.Z = max.Z
		}
		pts[i] = p
	}
	return &Mesh{
		Points: pts,
		Triangles: []Triangle{
			{0, 2, 3}, {0, 3, 1}, // -Z
			{4, 5, 7}, {4, 7, 6}, // +Z
			{0, 1, 5}, {0, 5, 4}, // -Y
			{2, 6, 7}, {2, 7, 3}, // +Y
			{0, 4, 6}, {0, 6, 2}, // -X
			{1, 3, 7}, {1, 7, 5}, // +X
		},
	}
}

// Octahedron returns a regular octahedron around center.
func Octahedron(center Point3, radius float64) *Mesh {
	axes := []Point3{
		{X: 1}, {X: -1},
		{Y: 1}, {Y: -1},
		{Z: 1}, {Z: -1},
	}
	pts := make([]Point3, len(axes))
	for i, a := range axes {
		pts[i] = r3.Add(center, r3.Scale(radius, a))
	}
	return &Mesh{
		Points: pts,
		Triangles: []Triangle{
			{0, 2, 4}, {2, 1, 4}, {1, 3, 4}, {3, 0, 4},
			{2, 0, 5}, {1, 2, 5}, {3, 1, 5}, {0, 3, 5},
		},
	}
}
