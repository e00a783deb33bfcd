// cagetool is a CLI utility for fitting cages and attachments onto avatar
// bodies with mean value coordinates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/cagekit/internal/campaign"
	"github.com/Faultbox/cagekit/internal/config"
	"github.com/Faultbox/cagekit/internal/logger"
	"github.com/Faultbox/cagekit/pkg/formats"
	"github.com/Faultbox/cagekit/pkg/mesh"
	"github.com/Faultbox/cagekit/pkg/mvc"
	"github.com/Faultbox/cagekit/pkg/retarget"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Sugar.Debugf("Config: %+v", cfg)

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "retarget":
		err = cmdRetarget(cfg, args)
	case "solve":
		err = cmdSolve(cfg, args)
	case "info":
		err = cmdInfo(args)
	case "catalog":
		err = cmdCatalog(cfg, args)
	case "check":
		err = cmdCheck(cfg)
	case "config":
		err = cmdConfig(cfg, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cagetool - cage and attachment fitting utility

Usage:
  cagetool [flags] <command> [options]

Commands:
  retarget <template.obj> <target.obj> <out.obj>  Fit every catalog entry onto the target body
  solve <mesh.obj> <object> <x> <y> <z>           Print the weights of one point
  info <file.obj>                                 Show objects and mesh statistics
  catalog [-yaml]                                 List the catalog entries
  check                                           Run the tetrahedron self-check
  config [-save] [-o <path>]                      Print the effective config or save it

Flags:
  -config <path>   config file (default ./cagekit.yaml or the user config dir)
  -catalog <path>  YAML catalog replacing the built-in R15 one
  -workers <n>     weight solver workers per entry
  -corrections     enable the per-vertex correction table
  -debug           debug logging
  -log-file <path> also write JSON logs to a file

Examples:
  cagetool retarget template.obj avatar.obj fitted.obj
  cagetool -corrections -workers 8 retarget template.obj avatar.obj fitted.obj
  cagetool solve template.obj Body 0 1.2 0.1
  cagetool catalog -yaml > catalog.yaml
  cagetool -corrections config -save`)
}

func usageError(usage string) error {
	return fmt.Errorf("usage: cagetool %s", usage)
}

func loadCatalog(cfg *config.Config) (*campaign.Catalog, error) {
	if cfg.Campaign.CatalogFile == "" {
		return campaign.DefaultCatalog(), nil
	}
	return campaign.LoadCatalog(cfg.Campaign.CatalogFile)
}

func lookupBody(scene *formats.OBJ, name, file string) (*mesh.Mesh, error) {
	m, ok := scene.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s: object %q not found (have %v)", file, name, scene.Names())
	}
	return m, nil
}

func cmdRetarget(cfg *config.Config, args []string) error {
	if len(args) < 3 {
		return usageError("retarget <template.obj> <target.obj> <out.obj>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := retargetFiles(ctx, cfg, args[0], args[1], args[2])
	if report != nil {
		printReport(report)
	}
	return err
}

// retargetFiles fits the catalog entries of the template scene onto the
// target body and writes the scene with the target body in place of the
// template. Nothing is written when the bodies cannot be paired or the run
// is cancelled.
func retargetFiles(ctx context.Context, cfg *config.Config, templatePath, targetPath, outPath string) (*campaign.Report, error) {
	scene, err := formats.ParseOBJFile(templatePath)
	if err != nil {
		return nil, err
	}
	targetScene, err := formats.ParseOBJFile(targetPath)
	if err != nil {
		return nil, err
	}
	template, err := lookupBody(scene, cfg.Campaign.TemplateObject, templatePath)
	if err != nil {
		return nil, err
	}
	target, err := lookupBody(targetScene, cfg.Campaign.TargetObject, targetPath)
	if err != nil {
		return nil, err
	}
	if err := campaign.CheckBodies(template, target); err != nil {
		return nil, fmt.Errorf("%s -> %s: %w", templatePath, targetPath, err)
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	corrections, err := cfg.CorrectionTable()
	if err != nil {
		return nil, err
	}

	driver := campaign.New(catalog, campaign.Options{
		Build:       cfg.BuildOptions(),
		Corrections: corrections,
		Workers:     cfg.Campaign.Workers,
	}, logger.Log)

	report, err := driver.Run(ctx, scene, template, target)
	if err != nil {
		return report, err
	}

	copy(template.Points, target.Points)
	if err := formats.WriteOBJFile(outPath, scene); err != nil {
		return report, err
	}
	logger.Info("wrote retargeted scene", zap.String("path", outPath))
	return report, nil
}

func printReport(r *campaign.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Campaign %s (%v)\n\n", r.ID, r.Duration)
	fmt.Fprintln(w, "ENTRY\tBONE\tCATEGORY\tSTATUS\tVERTICES\tNAN\tTIME")
	for _, res := range r.Results {
		if res.Status == campaign.StatusMissing {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%v\n",
			res.Name, res.Bone, res.Category, res.Status, res.Vertices, res.Degenerate, res.Duration)
	}
	w.Flush()

	counts := r.Counts()
	fmt.Printf("\n%d retargeted, %d missing, %d failed, %d canceled\n",
		counts[campaign.StatusRetargeted], counts[campaign.StatusMissing],
		counts[campaign.StatusFailed], counts[campaign.StatusCanceled])
	for _, res := range r.Failed() {
		fmt.Printf("  %s: %v\n", res.Name, res.Err)
	}
}

func cmdSolve(cfg *config.Config, args []string) error {
	if len(args) < 5 {
		return usageError("solve <mesh.obj> <object> <x> <y> <z>")
	}
	scene, err := formats.ParseOBJFile(args[0])
	if err != nil {
		return err
	}
	ref, err := lookupBody(scene, args[1], args[0])
	if err != nil {
		return err
	}

	var xyz [3]float64
	for i := range xyz {
		v, err := strconv.ParseFloat(args[2+i], 64)
		if err != nil {
			return fmt.Errorf("coordinate %d: %w", i, err)
		}
		xyz[i] = v
	}
	q := mesh.Point3{X: xyz[0], Y: xyz[1], Z: xyz[2]}

	w := mvc.Solver{Epsilon: cfg.Solver.Epsilon}.Solve(ref, q)
	sparse := w.Sparse(cfg.Solver.PruneEpsilon)
	if !sparse.IsDefined() {
		return fmt.Errorf("weights of %v are undefined against %s", q, args[1])
	}

	order := make([]int, sparse.Len())
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return abs(sparse.Value[order[a]]) > abs(sparse.Value[order[b]])
	})

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERTEX\tWEIGHT")
	for _, k := range order {
		fmt.Fprintf(tw, "%d\t%.9f\n", sparse.Index[k], sparse.Value[k])
	}
	tw.Flush()

	back := sparse.Apply(ref.Points)
	fmt.Printf("\nsum:         %.12f\n", sparse.Sum())
	fmt.Printf("reproduced:  (%g, %g, %g)\n", back.X, back.Y, back.Z)
	fmt.Printf("error:       %g\n", r3.Norm(r3.Sub(back, q)))
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func cmdInfo(args []string) error {
	if len(args) < 1 {
		return usageError("info <file.obj>")
	}
	scene, err := formats.ParseOBJFile(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("File:    %s\n", args[0])
	fmt.Printf("Objects: %d\n\n", len(scene.Objects))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OBJECT\tPOINTS\tTRIANGLES\tOPEN EDGES\tDEGENERATE\tCENTROID")
	for _, obj := range scene.Objects {
		m := obj.Mesh
		c := m.Centroid()
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t(%.4g, %.4g, %.4g)\n",
			obj.Name, len(m.Points), len(m.Triangles), m.OpenEdges(),
			len(m.DegenerateTriangles(mvc.DefaultEpsilon)), c.X, c.Y, c.Z)
	}
	return w.Flush()
}

func cmdCatalog(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	asYAML := fs.Bool("yaml", false, "Print the catalog as YAML")
	fs.Parse(args)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	if *asYAML {
		data, err := catalog.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tMODE\tBONE")
	for _, e := range catalog.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Category, e.Category.Mode(), e.Bone)
	}
	w.Flush()
	fmt.Printf("\n%d cages, %d attachments\n",
		catalog.Count(campaign.CategoryCage), catalog.Count(campaign.CategoryAttachment))
	return nil
}

func cmdConfig(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	save := fs.Bool("save", false, "Save to the user config directory")
	out := fs.String("o", "", "Save to this path")
	fs.Parse(args)

	path, err := saveConfig(cfg, *save, *out)
	if err != nil {
		return err
	}
	if path == "" {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}
	fmt.Printf("Saved: %s\n", path)
	return nil
}

// saveConfig persists cfg to out, or to the user config directory when
// toUserDir is set. It returns the written path, empty when neither is
// requested.
func saveConfig(cfg *config.Config, toUserDir bool, out string) (string, error) {
	switch {
	case out != "":
		return out, cfg.SaveTo(out)
	case toUserDir:
		return filepath.Join(config.ConfigDir(), "config.yaml"), cfg.Save()
	default:
		return "", nil
	}
}

func cmdCheck(cfg *config.Config) error {
	if err := selfCheck(cfg.BuildOptions()); err != nil {
		fmt.Println("FAIL")
		return err
	}
	fmt.Println("OK")
	return nil
}

// selfCheck moves the centroid of the unit tetrahedron through a uniform
// scale of 2 and expects equal weights and a doubled position.
func selfCheck(opts retarget.BuildOptions) error {
	const tol = 1e-9

	ref := mesh.Tetrahedron()
	deformed := ref.Map(func(p mesh.Point3) mesh.Point3 { return r3.Scale(2, p) })
	query := &mesh.Mesh{Points: []mesh.Point3{ref.Centroid()}}

	table, err := retarget.Build(context.Background(), ref, query, opts)
	if err != nil {
		return err
	}
	w := table.Vector(0).Dense(len(ref.Points))
	for i, v := range w {
		if abs(v-0.25) > tol {
			return fmt.Errorf("weight %d is %g, expected 0.25", i, v)
		}
	}

	moved, err := retarget.Retarget(table, deformed, query, retarget.PerVertexElastic, nil)
	if err != nil {
		return err
	}
	want := mesh.Point3{X: 0.5, Y: 0.5, Z: 0.5}
	if d := r3.Norm(r3.Sub(moved[0], want)); d > tol {
		return fmt.Errorf("centroid moved to %v, expected %v", moved[0], want)
	}
	return nil
}
