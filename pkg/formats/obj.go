// Package formats provides readers and writers for the mesh interchange
// files the command line tools accept.
package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Faultbox/cagekit/pkg/mesh"
)

// OBJ format errors.
var (
	ErrNoVertices   = errors.New("OBJ contains no vertices")
	ErrMalformedOBJ = errors.New("malformed OBJ record")
	ErrBadFaceIndex = errors.New("OBJ face index out of range")
)

// defaultObjectName names geometry that precedes any o/g record.
const defaultObjectName = "default"

// OBJObject is one named object of a Wavefront OBJ file.
//
// Its points are the vertices its faces reference plus any vertex declared
// inside its block that no face in the file uses, in file order. Groups
// that share vertices each get their own copy.
type OBJObject struct {
	Name string
	Mesh *mesh.Mesh
	// Faces keeps the source polygons (local indices) for writing.
	Faces [][]int
	// Vertices maps each local point to its zero-based file vertex, or is
	// nil for objects added in code.
	Vertices []int
}

// OBJ is a parsed Wavefront OBJ scene.
type OBJ struct {
	Objects []*OBJObject
	byName  map[string]*OBJObject
}

// NewOBJ returns an empty scene.
func NewOBJ() *OBJ {
	return &OBJ{byName: make(map[string]*OBJObject)}
}

// Add appends a triangle-only object. An existing object of the same name
// is shadowed for lookups.
func (o *OBJ) Add(name string, m *mesh.Mesh) *OBJObject {
	obj := &OBJObject{Name: name, Mesh: m}
	for _, tri := range m.Triangles {
		obj.Faces = append(obj.Faces, []int{tri[0], tri[1], tri[2]})
	}
	o.Objects = append(o.Objects, obj)
	o.byName[name] = obj
	return obj
}

// Object returns the named object or nil.
func (o *OBJ) Object(name string) *OBJObject {
	return o.byName[name]
}

// Lookup returns the mesh of the named object.
func (o *OBJ) Lookup(name string) (*mesh.Mesh, bool) {
	obj, ok := o.byName[name]
	if !ok {
		return nil, false
	}
	return obj.Mesh, true
}

// Names returns object names in file order.
func (o *OBJ) Names() []string {
	names := make([]string, len(o.Objects))
	for i, obj := range o.Objects {
		names[i] = obj.Name
	}
	return names
}

// objBuilder accumulates one object while parsing.
type objBuilder struct {
	name     string
	declared []int   // file vertices declared inside the block
	faces    [][]int // file vertices, zero-based
}

func (b *objBuilder) empty() bool {
	return len(b.declared) == 0 && len(b.faces) == 0
}

// ParseOBJ parses a Wavefront OBJ file from raw bytes. Only positions and
// faces are read; polygons are fan-triangulated.
//
// An "o" record starts a new object. A "g" record starts one only while no
// "o" has been seen; after that it is a face group of the current object.
// Faces may reference any vertex declared earlier in the file.
func ParseOBJ(data []byte) (*OBJ, error) {
	var (
		points   []mesh.Point3
		builders []*objBuilder
		sawO     bool
	)
	cur := &objBuilder{name: defaultObjectName}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		row := strings.TrimSpace(scanner.Text())
		if row == "" || strings.HasPrefix(row, "#") {
			continue
		}
		fields := strings.Fields(row)

		switch fields[0] {
		case "o", "g":
			if fields[0] == "g" && sawO {
				continue
			}
			sawO = sawO || fields[0] == "o"
			name := strings.TrimSpace(row[len(fields[0]):])
			if name == "" {
				name = defaultObjectName
			}
			if !cur.empty() {
				builders = append(builders, cur)
			}
			cur = &objBuilder{name: name}

		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrMalformedOBJ, lineNo)
			}
			var xyz [3]float64
			for i := 0; i < 3; i++ {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedOBJ, lineNo, err)
				}
				xyz[i] = f
			}
			cur.declared = append(cur.declared, len(points))
			points = append(points, mesh.Point3{X: xyz[0], Y: xyz[1], Z: xyz[2]})

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: face needs 3 vertices", ErrMalformedOBJ, lineNo)
			}
			poly := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				idx, err := parseFaceIndex(ref, len(points))
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedOBJ, lineNo, err)
				}
				if idx < 0 || idx >= len(points) {
					return nil, fmt.Errorf("%w: line %d: object %q references vertex %d of %d",
						ErrBadFaceIndex, lineNo, cur.name, idx+1, len(points))
				}
				poly = append(poly, idx)
			}
			cur.faces = append(cur.faces, poly)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading OBJ: %w", err)
	}
	if !cur.empty() {
		builders = append(builders, cur)
	}
	if len(points) == 0 {
		return nil, ErrNoVertices
	}

	used := make([]bool, len(points))
	for _, b := range builders {
		for _, poly := range b.faces {
			for _, g := range poly {
				used[g] = true
			}
		}
	}

	scene := NewOBJ()
	for _, b := range builders {
		obj := b.finish(points, used)
		if len(obj.Vertices) == 0 {
			continue
		}
		scene.Objects = append(scene.Objects, obj)
		scene.byName[obj.Name] = obj
	}
	return scene, nil
}

// parseFaceIndex converts "v", "v/vt", "v/vt/vn" or "v//vn" to a zero-based
// file vertex index. Negative indices are relative to the vertices read
// so far.
func parseFaceIndex(ref string, seen int) (int, error) {
	if slash := strings.IndexByte(ref, '/'); slash >= 0 {
		ref = ref[:slash]
	}
	vi, err := strconv.Atoi(ref)
	if err != nil {
		return 0, err
	}
	switch {
	case vi < 0:
		return seen + vi, nil
	case vi > 0:
		return vi - 1, nil
	default:
		return 0, fmt.Errorf("vertex index 0")
	}
}

// finish collects the object's points and rewrites its faces to local
// indices. used marks file vertices referenced by any face.
func (b *objBuilder) finish(points []mesh.Point3, used []bool) *OBJObject {
	owned := make(map[int]bool)
	for _, poly := range b.faces {
		for _, g := range poly {
			owned[g] = true
		}
	}
	for _, g := range b.declared {
		if !used[g] {
			owned[g] = true
		}
	}

	obj := &OBJObject{Name: b.name, Vertices: make([]int, 0, len(owned))}
	for g := range owned {
		obj.Vertices = append(obj.Vertices, g)
	}
	sort.Ints(obj.Vertices)

	local := make(map[int]int, len(obj.Vertices))
	m := &mesh.Mesh{Points: make([]mesh.Point3, len(obj.Vertices))}
	for li, g := range obj.Vertices {
		local[g] = li
		m.Points[li] = points[g]
	}
	for _, poly := range b.faces {
		face := make([]int, len(poly))
		for i, g := range poly {
			face[i] = local[g]
		}
		obj.Faces = append(obj.Faces, face)
		for i := 2; i < len(face); i++ {
			m.Triangles = append(m.Triangles, mesh.Triangle{face[0], face[i-1], face[i]})
		}
	}
	obj.Mesh = m
	return obj
}

// ParseOBJFile parses an OBJ file from disk.
func ParseOBJFile(path string) (*OBJ, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OBJ file: %w", err)
	}
	return ParseOBJ(data)
}

// WriteOBJ writes every object of the scene. A file vertex shared by
// several parsed objects is written once, with the position held by the
// first object. NaN coordinates are written as "nan" so that downstream
// tools can flag them.
func WriteOBJ(w io.Writer, scene *OBJ) error {
	bw := bufio.NewWriter(w)
	written := make(map[int]int) // file vertex -> 1-based output index
	next := 1
	for _, obj := range scene.Objects {
		fmt.Fprintf(bw, "o %s\n", obj.Name)
		out := make([]int, len(obj.Mesh.Points))
		for li, p := range obj.Mesh.Points {
			if obj.Vertices != nil {
				if idx, ok := written[obj.Vertices[li]]; ok {
					out[li] = idx
					continue
				}
				written[obj.Vertices[li]] = next
			}
			fmt.Fprintf(bw, "v %s %s %s\n", formatCoord(p.X), formatCoord(p.Y), formatCoord(p.Z))
			out[li] = next
			next++
		}
		for _, poly := range obj.Faces {
			bw.WriteString("f")
			for _, idx := range poly {
				fmt.Fprintf(bw, " %d", out[idx])
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// WriteOBJFile writes the scene to path, creating parent directories.
func WriteOBJFile(path string, scene *OBJ) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteOBJ(f, scene); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatCoord(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
