package campaign

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/cagekit/pkg/formats"
	"github.com/Faultbox/cagekit/pkg/mesh"
	"github.com/Faultbox/cagekit/pkg/retarget"
)

type mapScene map[string]*mesh.Mesh

func (s mapScene) Lookup(name string) (*mesh.Mesh, bool) {
	m, ok := s[name]
	return m, ok
}

func bodies() (template, target *mesh.Mesh) {
	template = mesh.Box(mesh.Point3{X: -1, Y: -1, Z: -1}, mesh.Point3{X: 1, Y: 1, Z: 1})
	target = template.Map(func(p mesh.Point3) mesh.Point3 { return r3.Scale(2, p) })
	return template, target
}

func hatMarker() *mesh.Mesh {
	return mesh.Tetrahedron().Map(func(p mesh.Point3) mesh.Point3 {
		return r3.Add(r3.Scale(0.1, p), mesh.Point3{X: 0.3, Y: 0.4, Z: 0.5})
	})
}

func newTestDriver(t *testing.T, catalog *Catalog, opts Options) (*Driver, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return New(catalog, opts, zap.New(core)), logs
}

func near(a, b mesh.Point3) bool {
	return scalar.EqualWithinAbs(a.X, b.X, 1e-9) &&
		scalar.EqualWithinAbs(a.Y, b.Y, 1e-9) &&
		scalar.EqualWithinAbs(a.Z, b.Z, 1e-9)
}

func TestRunRetargetsCagesAndAttachments(t *testing.T) {
	template, target := bodies()
	cage := mesh.Octahedron(mesh.Point3{}, 0.5)
	hat := hatMarker()
	origCage := cage.Clone()
	origHat := hat.Clone()

	scene := mapScene{"Head_OuterCage": cage, "Hat_Att": hat}
	d, logs := newTestDriver(t, DefaultCatalog(), Options{
		Build:   retarget.BuildOptions{Workers: 2, BatchSize: 2},
		Workers: 3,
	})

	report, err := d.Run(context.Background(), scene, template, target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.ID == "" {
		t.Error("expected campaign ID")
	}

	counts := report.Counts()
	if counts[StatusRetargeted] != 2 {
		t.Errorf("expected 2 retargeted, got %d", counts[StatusRetargeted])
	}
	wantMissing := len(DefaultCatalog().Entries) - 2
	if counts[StatusMissing] != wantMissing {
		t.Errorf("expected %d missing, got %d", wantMissing, counts[StatusMissing])
	}
	if counts[StatusFailed] != 0 {
		t.Errorf("expected no failures, got %v", report.Failed())
	}

	// Cage vertices follow the scale.
	for i, p := range cage.Points {
		if want := r3.Scale(2, origCage.Points[i]); !near(p, want) {
			t.Errorf("cage vertex %d: expected %v, got %v", i, want, p)
		}
	}

	// The marker is translated by the shift of its centroid, not scaled.
	shift := r3.Sub(hat.Centroid(), origHat.Centroid())
	if want := origHat.Centroid(); !near(shift, want) {
		t.Errorf("expected marker shift %v, got %v", want, shift)
	}
	for i, p := range hat.Points {
		if want := r3.Add(origHat.Points[i], shift); !near(p, want) {
			t.Errorf("marker vertex %d: expected %v, got %v", i, want, p)
		}
	}

	res, ok := report.Result("Hat_Att")
	if !ok || res.Category != CategoryAttachment || res.Vertices != 4 || res.Bone != "Head" {
		t.Errorf("unexpected Hat_Att result %+v", res)
	}
	if n := logs.FilterMessage("entry retargeted").FilterField(zap.String("bone", "Head")).Len(); n != 2 {
		t.Errorf("expected both Head entries to log their bone, got %d", n)
	}

	if n := logs.FilterMessage("catalog entry not found, skipping").Len(); n != wantMissing {
		t.Errorf("expected %d missing-entry records, got %d", wantMissing, n)
	}
	if logs.FilterMessage("campaign finished").Len() != 1 {
		t.Error("expected campaign summary record")
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	template, target := bodies()
	cage := mesh.Octahedron(mesh.Point3{}, 0.5)
	orig := cage.Clone()

	catalog := &Catalog{Entries: []Entry{
		{Name: "Body_OuterCage", Category: CategoryCage},
		{Name: "Head_OuterCage", Category: CategoryCage},
	}}
	scene := mapScene{"Body_OuterCage": template, "Head_OuterCage": cage}
	d, logs := newTestDriver(t, catalog, Options{})

	report, err := d.Run(context.Background(), scene, template, target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Name != "Body_OuterCage" || !errors.Is(failed[0].Err, ErrAliasedMesh) {
		t.Fatalf("expected Body_OuterCage to fail with ErrAliasedMesh, got %+v", failed)
	}
	if res, _ := report.Result("Head_OuterCage"); res.Status != StatusRetargeted {
		t.Errorf("expected Head_OuterCage retargeted, got %v", res.Status)
	}
	if !near(cage.Points[0], r3.Scale(2, orig.Points[0])) {
		t.Errorf("expected cage to be retargeted, got %v", cage.Points[0])
	}
	if !near(template.Points[0], mesh.Point3{X: -1, Y: -1, Z: -1}) {
		t.Errorf("template must not change, got %v", template.Points[0])
	}
	if logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("failed to retarget entry").Len() != 1 {
		t.Error("expected one failure warning")
	}
}

func TestRunCorrectionOutOfRangeFailsEntry(t *testing.T) {
	template, target := bodies()
	corrections := retarget.NewCorrectionTable(true)
	corrections.Add("Head_OuterCage", retarget.Correction{Vertex: 40, Source: 0, Mirror: retarget.AxisX})

	cage := mesh.Octahedron(mesh.Point3{}, 0.5)
	orig := cage.Clone()
	catalog := &Catalog{Entries: []Entry{{Name: "Head_OuterCage", Category: CategoryCage}}}
	d, _ := newTestDriver(t, catalog, Options{Corrections: corrections})

	report, err := d.Run(context.Background(), mapScene{"Head_OuterCage": cage}, template, target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	res, _ := report.Result("Head_OuterCage")
	if res.Status != StatusFailed || !errors.Is(res.Err, retarget.ErrCorrectionOutOfRange) {
		t.Errorf("expected correction failure, got %+v", res)
	}
	for i := range cage.Points {
		if cage.Points[i] != orig.Points[i] {
			t.Fatalf("failed entry must keep its points, vertex %d moved", i)
		}
	}
}

func TestRunAppliesCorrections(t *testing.T) {
	template, target := bodies()
	corrections := retarget.NewCorrectionTable(true)
	// Octahedron vertex 1 is -X, vertex 0 is +X.
	corrections.Add("Cage", retarget.Correction{Vertex: 1, Source: 0, Mirror: retarget.AxisX})

	cage := mesh.Octahedron(mesh.Point3{X: 0.1}, 0.5)
	attachment := mesh.Octahedron(mesh.Point3{X: 0.1}, 0.5)
	catalog := &Catalog{Entries: []Entry{
		{Name: "Cage", Category: CategoryCage},
		{Name: "Root_Att", Category: CategoryAttachment},
	}}
	d, _ := newTestDriver(t, catalog, Options{Corrections: corrections})

	if _, err := d.Run(context.Background(), mapScene{"Cage": cage, "Root_Att": attachment}, template, target); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// +X lands at 2*(0.6) = 1.2, so the mirrored -X vertex is -1.2 rather
	// than the scaled 2*(-0.4).
	if want := (mesh.Point3{X: -1.2}); !near(cage.Points[1], want) {
		t.Errorf("expected corrected vertex %v, got %v", want, cage.Points[1])
	}
	// Attachments never take corrections.
	if got := r3.Norm(r3.Sub(attachment.Points[1], attachment.Points[0])); !scalar.EqualWithinAbs(got, 1, 1e-9) {
		t.Errorf("expected rigid attachment, got width %v", got)
	}
}

func TestRunDegenerateTemplateWritesNaN(t *testing.T) {
	template := &mesh.Mesh{
		Points:    []mesh.Point3{{X: 0}, {X: 1}, {X: 2}},
		Triangles: []mesh.Triangle{{0, 1, 2}},
	}
	target := template.Clone()
	cage := &mesh.Mesh{Points: []mesh.Point3{{Y: 1}, {Y: 2}}}

	catalog := &Catalog{Entries: []Entry{{Name: "Head_OuterCage", Category: CategoryCage}}}
	d, logs := newTestDriver(t, catalog, Options{})

	report, err := d.Run(context.Background(), mapScene{"Head_OuterCage": cage}, template, target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Degenerate() != 2 {
		t.Errorf("expected 2 degenerate vertices, got %d", report.Degenerate())
	}
	if len(mesh.HasNaN(cage.Points)) != 2 {
		t.Errorf("expected NaN write-back, got %v", cage.Points)
	}
	if logs.FilterMessage("NaN weight vector produced").Len() != 1 {
		t.Error("expected NaN warning")
	}
	if logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet("not closed").Len() != 1 {
		t.Error("expected open template warning")
	}
}

func TestRunBadBodiesFailEveryEntry(t *testing.T) {
	template, _ := bodies()
	cage := mesh.Octahedron(mesh.Point3{}, 0.5)
	orig := cage.Clone()
	scene := mapScene{"Head_OuterCage": cage, "Hat_Att": hatMarker()}

	tests := []struct {
		name             string
		template, target *mesh.Mesh
		want             error
	}{
		{"topology mismatch", template, mesh.Tetrahedron(), retarget.ErrTopologyMismatch},
		{"empty template", &mesh.Mesh{Points: []mesh.Point3{{}}}, &mesh.Mesh{Points: []mesh.Point3{{}}}, retarget.ErrEmptyReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, logs := newTestDriver(t, DefaultCatalog(), Options{})
			report, err := d.Run(context.Background(), scene, tt.template, tt.target)
			if err != nil {
				t.Fatalf("Run should not abort, got %v", err)
			}

			failed := report.Failed()
			if len(failed) != 2 {
				t.Fatalf("expected both found entries to fail, got %d", len(failed))
			}
			for _, res := range failed {
				if !errors.Is(res.Err, tt.want) {
					t.Errorf("%s: expected %v, got %v", res.Name, tt.want, res.Err)
				}
			}
			if report.Counts()[StatusMissing] != len(DefaultCatalog().Entries)-2 {
				t.Error("expected absent entries to stay missing")
			}
			if cage.Points[0] != orig.Points[0] {
				t.Error("failed entry must keep its points")
			}
			if logs.FilterMessageSnippet("every entry will fail").Len() != 1 {
				t.Error("expected campaign warning")
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	template, target := bodies()
	cage := mesh.Octahedron(mesh.Point3{}, 0.5)
	orig := cage.Clone()
	d, _ := newTestDriver(t, DefaultCatalog(), Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := d.Run(ctx, mapScene{"Head_OuterCage": cage}, template, target)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report == nil {
		t.Fatal("expected partial report")
	}
	if report.Counts()[StatusRetargeted] != 0 {
		t.Error("expected nothing retargeted")
	}
	for i := range cage.Points {
		if cage.Points[i] != orig.Points[i] {
			t.Fatalf("cancelled run must not move vertex %d", i)
		}
	}
}

func TestRunWithOBJScene(t *testing.T) {
	template, target := bodies()
	scene := formats.NewOBJ()
	scene.Add("Body", template)
	scene.Add("Hat_Att", hatMarker())

	d, _ := newTestDriver(t, nil, Options{})
	report, err := d.Run(context.Background(), scene, template, target)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res, _ := report.Result("Hat_Att"); res.Status != StatusRetargeted {
		t.Errorf("expected Hat_Att retargeted, got %v (%v)", res.Status, res.Err)
	}
}
