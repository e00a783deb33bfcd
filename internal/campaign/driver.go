package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/cagekit/internal/logger"
	"github.com/Faultbox/cagekit/pkg/mesh"
	"github.com/Faultbox/cagekit/pkg/retarget"
)

// ErrAliasedMesh is returned for an entry whose sub-mesh is the template or
// target mesh itself.
var ErrAliasedMesh = errors.New("catalog entry resolves to the template or target mesh")

// Scene resolves catalog names to sub-meshes owned by the host. Points of
// a resolved mesh are overwritten in place.
type Scene interface {
	Lookup(name string) (*mesh.Mesh, bool)
}

// Options configures a Driver.
type Options struct {
	Build       retarget.BuildOptions
	Corrections *retarget.CorrectionTable
	Workers     int // entries processed concurrently, 0 = 1
}

// Driver retargets every catalog entry found in a scene from the template
// body onto the target body.
type Driver struct {
	catalog *Catalog
	opts    Options
	log     *zap.Logger
}

// New creates a driver. A nil catalog means DefaultCatalog and a nil logger
// means the global one.
func New(catalog *Catalog, opts Options, log *zap.Logger) *Driver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if log == nil {
		log = logger.Log
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Driver{catalog: catalog, opts: opts, log: log}
}

// Catalog returns the driver's catalog.
func (d *Driver) Catalog() *Catalog {
	return d.catalog
}

// Run retargets every catalog entry. Missing entries and per-entry failures
// are recorded in the report and never abort the run. A template that
// cannot serve as a reference for the target fails every entry found in
// the scene. The only error returned is ctx's; the report then lists the
// entries completed so far.
func (d *Driver) Run(ctx context.Context, scene Scene, template, target *mesh.Mesh) (*Report, error) {
	report := &Report{
		ID:      uuid.NewString(),
		Results: make([]EntryResult, len(d.catalog.Entries)),
	}
	log := d.log.With(zap.String("campaign", report.ID))
	start := time.Now()

	pre := CheckBodies(template, target)
	if pre != nil {
		log.Warn("template cannot drive target, every entry will fail", zap.Error(pre))
	} else if open := template.OpenEdges(); open > 0 {
		log.Warn("template mesh is not closed, weights outside it may be unreliable",
			zap.Int("open_edges", open))
	}
	log.Info("campaign started",
		zap.Int("entries", len(d.catalog.Entries)),
		zap.Int("template_points", len(template.Points)),
		zap.Int("workers", d.opts.Workers))

	for i, e := range d.catalog.Entries {
		report.Results[i] = EntryResult{Name: e.Name, Category: e.Category, Bone: e.Bone, Status: StatusCanceled}
	}

	// Worker pool
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < d.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				report.Results[i] = d.runEntry(ctx, log, scene, template, target, d.catalog.Entries[i], pre)
			}
		}()
	}

	for i := range d.catalog.Entries {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	report.Duration = time.Since(start)
	counts := report.Counts()
	log.Info("campaign finished",
		zap.Int("retargeted", counts[StatusRetargeted]),
		zap.Int("missing", counts[StatusMissing]),
		zap.Int("failed", counts[StatusFailed]),
		zap.Int("canceled", counts[StatusCanceled]),
		zap.Int("degenerate_vertices", report.Degenerate()),
		zap.Duration("duration", report.Duration))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (d *Driver) runEntry(ctx context.Context, log *zap.Logger, scene Scene, template, target *mesh.Mesh, e Entry, pre error) (res EntryResult) {
	res = EntryResult{Name: e.Name, Category: e.Category, Bone: e.Bone}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()
	log = log.With(zap.String("entry", e.Name), zap.Stringer("category", e.Category))
	if e.Bone != "" {
		log = log.With(zap.String("bone", e.Bone))
	}

	dep, ok := scene.Lookup(e.Name)
	if !ok || dep == nil {
		log.Info("catalog entry not found, skipping")
		res.Status = StatusMissing
		return res
	}
	res.Vertices = len(dep.Points)

	if pre != nil {
		return d.fail(log, res, pre)
	}
	if dep == template || dep == target {
		return d.fail(log, res, ErrAliasedMesh)
	}

	opts := d.opts.Build
	opts.Label = e.Name
	if opts.Progress == nil {
		opts.Progress = logger.ProgressSink(log)
	}
	table, err := retarget.Build(ctx, template, dep, opts)
	if err != nil {
		if ctx.Err() != nil {
			res.Status = StatusCanceled
			res.Err = err
			return res
		}
		return d.fail(log, res, err)
	}

	var corrections []retarget.Correction
	if e.Category == CategoryCage {
		corrections = d.opts.Corrections.For(e.Name)
	}
	moved, err := retarget.Retarget(table, target, dep, e.Category.Mode(), corrections)
	if err != nil {
		return d.fail(log, res, err)
	}

	if nan := mesh.HasNaN(moved); len(nan) > 0 {
		res.Degenerate = len(nan)
		log.Warn("NaN weight vector produced",
			zap.Int("vertices", len(nan)),
			zap.Ints("first", nan[:min(len(nan), 8)]))
	}
	copy(dep.Points, moved)

	res.Status = StatusRetargeted
	log.Debug("entry retargeted",
		zap.Int("vertices", res.Vertices),
		zap.Stringer("mode", e.Category.Mode()),
		zap.Int("corrections", len(corrections)))
	return res
}

// CheckBodies reports why template cannot be a reference for target.
func CheckBodies(template, target *mesh.Mesh) error {
	if len(template.Triangles) == 0 {
		return retarget.ErrEmptyReference
	}
	if err := template.Validate(); err != nil {
		return fmt.Errorf("template: %w", err)
	}
	if !template.SharesTopology(target) {
		return fmt.Errorf("%w: template has %d points/%d triangles, target has %d/%d",
			retarget.ErrTopologyMismatch, len(template.Points), len(template.Triangles),
			len(target.Points), len(target.Triangles))
	}
	return nil
}

func (d *Driver) fail(log *zap.Logger, res EntryResult, err error) EntryResult {
	log.Warn("failed to retarget entry", zap.Error(err))
	res.Status = StatusFailed
	res.Err = err
	return res
}
