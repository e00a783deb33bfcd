package config

import "flag"

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagWorkers     = flag.Int("workers", 0, "Weight solver workers per entry")
	flagCorrections = flag.Bool("corrections", false, "Enable the per-vertex correction table")
	flagCatalog     = flag.String("catalog", "", "Path to a YAML catalog replacing the built-in one")
	flagLogFile     = flag.String("log-file", "", "Also write JSON logs to this file")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagWorkers > 0 {
		cfg.Builder.Workers = *flagWorkers
	}
	if *flagCorrections {
		cfg.Corrections.Enabled = true
	}
	if *flagCatalog != "" {
		cfg.Campaign.CatalogFile = *flagCatalog
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
}
