package retarget

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagekit/pkg/mesh"
)

// Mode selects how a weight table moves a dependent mesh.
type Mode int

// Deformation modes.
const (
	// PerVertexElastic places every dependent vertex at its own weighted
	// sum of the deformed reference points. Used for cages.
	PerVertexElastic Mode = iota
	// RigidTransform translates the whole dependent mesh by the shift of
	// its elastic centroid. Used for attachment markers.
	RigidTransform
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case PerVertexElastic:
		return "PerVertexElastic"
	case RigidTransform:
		return "RigidTransform"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Retarget computes new positions for dependent from the deformed
// reference mesh. Neither input is modified.
//
// Vertices with undefined weights are returned as NaN points. Corrections
// apply to PerVertexElastic only.
func Retarget(t *WeightTable, deformed, dependent *mesh.Mesh, mode Mode, corrections []Correction) ([]mesh.Point3, error) {
	if len(deformed.Points) != t.refPoints || len(deformed.Triangles) != t.refTris {
		return nil, fmt.Errorf("%w: table built for %d points/%d triangles, got %d/%d",
			ErrTopologyMismatch, t.refPoints, t.refTris, len(deformed.Points), len(deformed.Triangles))
	}
	if len(dependent.Points) != t.Len() {
		return nil, fmt.Errorf("%w: table has %d vertices, mesh has %d",
			ErrDependentMismatch, t.Len(), len(dependent.Points))
	}

	switch mode {
	case PerVertexElastic:
		out := elastic(t, deformed.Points)
		if err := applyCorrections(t, deformed.Points, out, corrections); err != nil {
			return nil, err
		}
		return out, nil
	case RigidTransform:
		return rigid(t, deformed.Points, dependent.Points), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}
}

func elastic(t *WeightTable, ref []mesh.Point3) []mesh.Point3 {
	out := make([]mesh.Point3, t.Len())
	for i := range out {
		out[i] = t.Apply(i, ref)
	}
	return out
}

func rigid(t *WeightTable, ref, original []mesh.Point3) []mesh.Point3 {
	moved := elastic(t, ref)
	undefined := func(i int) bool { return mesh.IsNaN(moved[i]) }

	before := mesh.CentroidOf(original, undefined)
	after := mesh.CentroidOf(moved, nil)
	shift := r3.Sub(after, before)

	out := make([]mesh.Point3, len(original))
	for i, p := range original {
		out[i] = r3.Add(p, shift)
	}
	return out
}

func applyCorrections(t *WeightTable, ref, out []mesh.Point3, corrections []Correction) error {
	for _, c := range corrections {
		if c.Vertex < 0 || c.Vertex >= len(out) || c.Source < 0 || c.Source >= len(out) {
			return fmt.Errorf("%w: vertex %d from %d (mesh has %d)", ErrCorrectionOutOfRange, c.Vertex, c.Source, len(out))
		}
	}
	for _, c := range corrections {
		out[c.Vertex] = c.Mirror.Mirror(t.Apply(c.Source, ref))
	}
	return nil
}
