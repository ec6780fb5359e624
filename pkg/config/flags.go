package config

import (
	"flag"
	"strings"
	"time"
)

// Flags holds command-line overrides. Only flags the user actually set
// are applied, so unset flags never clobber file or environment values.
type Flags struct {
	ConfigFile string

	addr         string
	workers      int
	toolTimeout  time.Duration
	reportDir    string
	reportFormat string
	scriptDir    string
	noWatch      bool
	screenshot   bool
	harvesterDir string
	otlp         string
	natsURL      string
	logLevel     string
	logFormat    string
	noMetrics    bool
}

// BindFlags registers the shared flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	def := Default()

	// === CONFIG ===
	fs.StringVar(&f.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&f.ConfigFile, "c", "", "Config file (alias)")

	// === SERVER ===
	fs.StringVar(&f.addr, "addr", def.Server.Addr, "HTTP listen address")
	fs.BoolVar(&f.noMetrics, "no-metrics", false, "Disable the /metrics endpoint")

	// === JOBS ===
	fs.IntVar(&f.workers, "workers", def.Jobs.Workers, "Concurrent tools per job")
	fs.DurationVar(&f.toolTimeout, "tool-timeout", def.Jobs.ToolTimeout, "Per-tool timeout")

	// === REPORTS ===
	fs.StringVar(&f.reportDir, "report-dir", def.Reports.Dir, "Directory for reports, records and screenshots")
	fs.StringVar(&f.reportFormat, "format", def.Reports.Format, "Report format: html, pdf, none")

	// === PLUGINS ===
	fs.StringVar(&f.scriptDir, "scripts", def.Plugins.ScriptDir, "Directory of .tengo script tools")
	fs.BoolVar(&f.noWatch, "no-watch", false, "Do not hot-reload script tools")
	fs.BoolVar(&f.screenshot, "screenshot", false, "Enable the web_screenshot tool (needs Chrome)")
	fs.StringVar(&f.harvesterDir, "harvester-dir", "", "theHarvester uv project directory")

	// === TELEMETRY ===
	fs.StringVar(&f.otlp, "otlp", "", "OTLP gRPC endpoint for traces")
	fs.StringVar(&f.natsURL, "nats", "", "NATS server URL for the event bridge")

	// === LOGGING ===
	fs.StringVar(&f.logLevel, "log-level", def.Log.Level, "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", def.Log.Format, "Log format: text, json")
	return f
}

// Apply copies every flag set on fs into cfg.
func (f *Flags) Apply(cfg *Config, fs *flag.FlagSet) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "addr":
			cfg.Server.Addr = f.addr
		case "no-metrics":
			cfg.Server.Metrics = !f.noMetrics
		case "workers":
			cfg.Jobs.Workers = f.workers
		case "tool-timeout":
			cfg.Jobs.ToolTimeout = f.toolTimeout
		case "report-dir":
			cfg.Reports.Dir = f.reportDir
		case "format":
			cfg.Reports.Format = strings.ToLower(f.reportFormat)
		case "scripts":
			cfg.Plugins.ScriptDir = f.scriptDir
		case "no-watch":
			cfg.Plugins.Watch = !f.noWatch
		case "screenshot":
			cfg.Plugins.Screenshot.Enabled = f.screenshot
		case "harvester-dir":
			cfg.Plugins.Harvester.ProjectDir = f.harvesterDir
		case "otlp":
			cfg.Telemetry.OTLPEndpoint = f.otlp
		case "nats":
			cfg.NATS.URL = f.natsURL
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		}
	})
}

// Resolve runs the full layering for a parsed flag set: file, environment,
// flags, validation.
func (f *Flags) Resolve(fs *flag.FlagSet, lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := Load(f.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	f.Apply(cfg, fs)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
