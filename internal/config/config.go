// Package config handles cagekit configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/cagekit/pkg/mvc"
	"github.com/Faultbox/cagekit/pkg/retarget"
)

// Config holds all cagekit settings.
type Config struct {
	Solver      SolverConfig      `yaml:"solver"`
	Builder     BuilderConfig     `yaml:"builder"`
	Campaign    CampaignConfig    `yaml:"campaign"`
	Corrections CorrectionsConfig `yaml:"corrections"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SolverConfig holds mean value coordinate tolerances.
type SolverConfig struct {
	Epsilon      float64 `yaml:"epsilon"`
	PruneEpsilon float64 `yaml:"prune_epsilon"` // 0 keeps every nonzero weight
}

// BuilderConfig holds weight table build settings.
type BuilderConfig struct {
	Workers   int `yaml:"workers"` // 0 = one per CPU
	BatchSize int `yaml:"batch_size"`
}

// CampaignConfig holds campaign driver settings.
type CampaignConfig struct {
	Workers        int    `yaml:"workers"`
	TemplateObject string `yaml:"template_object"`
	TargetObject   string `yaml:"target_object"`
	CatalogFile    string `yaml:"catalog_file"` // empty = built-in R15 catalog
}

// CorrectionsConfig holds the per-vertex correction table.
type CorrectionsConfig struct {
	Enabled bool              `yaml:"enabled"`
	Entries []CorrectionEntry `yaml:"entries"`
}

// CorrectionEntry overwrites a cage vertex with a mirrored copy of another.
type CorrectionEntry struct {
	Cage   string `yaml:"cage"`
	Vertex int    `yaml:"vertex"`
	Source int    `yaml:"source"`
	Mirror string `yaml:"mirror"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Solver: SolverConfig{
			Epsilon:      mvc.DefaultEpsilon,
			PruneEpsilon: 0,
		},
		Builder: BuilderConfig{
			Workers:   0,
			BatchSize: retarget.DefaultBatchSize,
		},
		Campaign: CampaignConfig{
			Workers:        2,
			TemplateObject: "Body",
			TargetObject:   "Body",
		},
		Corrections: defaultCorrections(),
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// defaultCorrections mirrors retarget.DefaultCorrections.
func defaultCorrections() CorrectionsConfig {
	table := retarget.DefaultCorrections()
	cc := CorrectionsConfig{Enabled: table.Enabled}
	table.Each(func(cage string, c retarget.Correction) {
		cc.Entries = append(cc.Entries, CorrectionEntry{
			Cage:   cage,
			Vertex: c.Vertex,
			Source: c.Source,
			Mirror: c.Mirror.String(),
		})
	})
	return cc
}

// BuildOptions returns the weight table build options.
func (c *Config) BuildOptions() retarget.BuildOptions {
	return retarget.BuildOptions{
		Solver:    mvc.Solver{Epsilon: c.Solver.Epsilon},
		Workers:   c.Builder.Workers,
		BatchSize: c.Builder.BatchSize,
		Prune:     c.Solver.PruneEpsilon,
	}
}

// CorrectionTable converts the corrections section.
func (c *Config) CorrectionTable() (*retarget.CorrectionTable, error) {
	t := retarget.NewCorrectionTable(c.Corrections.Enabled)
	for i, e := range c.Corrections.Entries {
		if e.Cage == "" {
			return nil, fmt.Errorf("correction %d: missing cage name", i)
		}
		axis, err := retarget.ParseAxis(e.Mirror)
		if err != nil {
			return nil, fmt.Errorf("correction %d: %w", i, err)
		}
		t.Add(e.Cage, retarget.Correction{Vertex: e.Vertex, Source: e.Source, Mirror: axis})
	}
	return t, nil
}
