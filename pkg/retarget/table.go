// Package retarget builds mean value coordinate weight tables for dependent
// meshes (cages and attachments) and re-applies them to a deformed
// reference mesh.
package retarget

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/Faultbox/cagekit/pkg/mesh"
	"github.com/Faultbox/cagekit/pkg/mvc"
)

// DefaultBatchSize is the number of dependent vertices solved per job.
const DefaultBatchSize = 64

// ProgressSink receives coarse build progress. It is observational only.
type ProgressSink interface {
	Progress(message string, step, total int)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(message string, step, total int)

// Progress calls f.
func (f ProgressFunc) Progress(message string, step, total int) {
	f(message, step, total)
}

// BuildOptions configures Build.
type BuildOptions struct {
	Solver    mvc.Solver
	Workers   int     // 0 = runtime.NumCPU()
	BatchSize int     // 0 = DefaultBatchSize
	Prune     float64 // drop weights with |w| <= Prune and renormalize
	Progress  ProgressSink
	Label     string // prefix for progress messages
}

// WeightTable maps each dependent vertex to its weights against one fixed
// undeformed reference mesh.
type WeightTable struct {
	vectors    []mvc.Sparse
	refPoints  int
	refTris    int
	degenerate []int
}

// Len returns the number of dependent vertices.
func (t *WeightTable) Len() int {
	return len(t.vectors)
}

// ReferencePointCount returns the point count of the reference mesh the
// table was built against.
func (t *WeightTable) ReferencePointCount() int {
	return t.refPoints
}

// ReferenceTriangleCount returns the triangle count of the reference mesh.
func (t *WeightTable) ReferenceTriangleCount() int {
	return t.refTris
}

// Vector returns the weights of dependent vertex i.
func (t *WeightTable) Vector(i int) mvc.Sparse {
	return t.vectors[i]
}

// Degenerate returns the dependent vertices whose weights are undefined.
func (t *WeightTable) Degenerate() []int {
	return t.degenerate
}

// Apply evaluates dependent vertex i against points.
func (t *WeightTable) Apply(i int, points []mesh.Point3) mesh.Point3 {
	return t.vectors[i].Apply(points)
}

// Build solves every vertex of dependent against ref. Vertices are solved
// in batches on a worker pool; ctx is checked between batches and a
// cancelled build returns no table.
func Build(ctx context.Context, ref, dependent *mesh.Mesh, opts BuildOptions) (*WeightTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ref.Triangles) == 0 {
		return nil, ErrEmptyReference
	}
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	total := len(dependent.Points)
	table := &WeightTable{
		vectors:   make([]mvc.Sparse, total),
		refPoints: len(ref.Points),
		refTris:   len(ref.Triangles),
	}

	// Worker pool
	jobs := make(chan int, workers*2)
	done := make(chan int, workers*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range jobs {
				end := min(start+batch, total)
				for i := start; i < end; i++ {
					table.vectors[i] = opts.Solver.Solve(ref, dependent.Points[i]).Sparse(opts.Prune)
				}
				done <- end - start
			}
		}()
	}

	// Send work
	go func() {
		defer close(jobs)
		for start := 0; start < total; start += batch {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- start:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	step := 0
	for n := range done {
		step += n
		report(opts, step, total)
	}

	if err := ctx.Err(); err != nil && step < total {
		return nil, err
	}

	for i, v := range table.vectors {
		if !v.IsDefined() {
			table.degenerate = append(table.degenerate, i)
		}
	}
	return table, nil
}

// report forwards progress to the sink. A panicking sink is ignored.
func report(opts BuildOptions, step, total int) {
	if opts.Progress == nil {
		return
	}
	defer func() { _ = recover() }()
	msg := "solving weights"
	if opts.Label != "" {
		msg = opts.Label + ": " + msg
	}
	opts.Progress.Progress(msg, step, total)
}
