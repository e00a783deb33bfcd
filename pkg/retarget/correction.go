package retarget

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Faultbox/cagekit/pkg/mesh"
)

// Axis names the coordinate negated by a mirrored correction.
type Axis int

// Mirror axes.
const (
	AxisNone Axis = iota
	AxisX
	AxisY
	AxisZ
)

// String returns the lower-case axis name.
func (a Axis) String() string {
	switch a {
	case AxisNone:
		return "none"
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// ParseAxis parses "x", "y", "z" or "" / "none".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AxisNone, nil
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	}
	return AxisNone, fmt.Errorf("unknown mirror axis %q", s)
}

// Mirror negates the axis coordinate of p.
func (a Axis) Mirror(p mesh.Point3) mesh.Point3 {
	switch a {
	case AxisX:
		p.X = -p.X
	case AxisY:
		p.Y = -p.Y
	case AxisZ:
		p.Z = -p.Z
	}
	return p
}

// Correction makes Vertex borrow the weights of Source, mirroring the
// result across the Mirror axis plane. It targets individual cage vertices
// whose own weights are known to be unusable.
type Correction struct {
	Vertex int
	Source int
	Mirror Axis
}

// CorrectionKey identifies a corrected vertex of a named cage.
type CorrectionKey struct {
	Cage   string
	Vertex int
}

// CorrectionTable holds per-cage vertex corrections. A disabled table
// yields no corrections.
type CorrectionTable struct {
	Enabled bool
	entries map[CorrectionKey]Correction
}

// NewCorrectionTable returns an empty table.
func NewCorrectionTable(enabled bool) *CorrectionTable {
	return &CorrectionTable{Enabled: enabled, entries: make(map[CorrectionKey]Correction)}
}

// DefaultCorrections returns the known correction for the full-body
// template cage: vertex 11 takes the weights of vertex 21 mirrored on X.
// The cause of the bad weights at vertex 11 is not understood, so the
// table is disabled unless the caller opts in.
func DefaultCorrections() *CorrectionTable {
	t := NewCorrectionTable(false)
	t.Add("Cage", Correction{Vertex: 11, Source: 21, Mirror: AxisX})
	return t
}

// Add registers c for cage, replacing any correction of the same vertex.
func (t *CorrectionTable) Add(cage string, c Correction) {
	if t.entries == nil {
		t.entries = make(map[CorrectionKey]Correction)
	}
	t.entries[CorrectionKey{Cage: cage, Vertex: c.Vertex}] = c
}

// Len returns the number of registered corrections.
func (t *CorrectionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// For returns the corrections registered for cage, ordered by vertex.
// It returns nil when the table is nil or disabled.
func (t *CorrectionTable) For(cage string) []Correction {
	if t == nil || !t.Enabled {
		return nil
	}
	var out []Correction
	for k, c := range t.entries {
		if k.Cage == cage {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Vertex < out[j].Vertex })
	return out
}

// Each calls fn for every registered correction, enabled or not, ordered by
// cage name and vertex.
func (t *CorrectionTable) Each(fn func(cage string, c Correction)) {
	if t == nil {
		return
	}
	keys := make([]CorrectionKey, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Cage != keys[j].Cage {
			return keys[i].Cage < keys[j].Cage
		}
		return keys[i].Vertex < keys[j].Vertex
	})
	for _, k := range keys {
		fn(k.Cage, t.entries[k])
	}
}
