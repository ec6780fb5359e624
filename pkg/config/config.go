// Package config loads nadscan settings. Values are layered: built-in
// defaults, then an optional YAML file, then NADSCAN_* environment
// variables, then command-line flags, and the result is validated once.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/duration"
)

// Config is the full application configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Jobs      Jobs      `yaml:"jobs"`
	Reports   Reports   `yaml:"reports"`
	Plugins   Plugins   `yaml:"plugins"`
	Telemetry Telemetry `yaml:"telemetry"`
	NATS      NATS      `yaml:"nats"`
	Log       Log       `yaml:"log"`
}

// Server controls the HTTP transport.
type Server struct {
	Addr            string        `yaml:"addr"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics"`
	MCP             bool          `yaml:"mcp"`
}

// Jobs controls the job manager.
type Jobs struct {
	Workers          int           `yaml:"workers"`
	ReplayLimit      int           `yaml:"replay_limit"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	Retention        time.Duration `yaml:"retention"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
}

// Reports controls exports.
type Reports struct {
	Dir      string `yaml:"dir"`
	Format   string `yaml:"format"`
	Branding string `yaml:"branding"`
	// Records toggles the JSONL export.
	Records bool `yaml:"records"`
}

// Plugins configures the builtin tools and script loading.
type Plugins struct {
	ScriptDir string `yaml:"script_dir"`
	Watch     bool   `yaml:"watch"`
	// Disabled names builtin tools that are not registered.
	Disabled []string `yaml:"disabled"`

	Nmap       Nmap       `yaml:"nmap"`
	DNS        DNS        `yaml:"dns"`
	Search     Search     `yaml:"search"`
	HTTPProbe  HTTPProbe  `yaml:"http_probe"`
	Screenshot Screenshot `yaml:"screenshot"`
	Harvester  Harvester  `yaml:"harvester"`
}

type Nmap struct {
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`
}

type DNS struct {
	Workers  int           `yaml:"workers"`
	MaxHosts int           `yaml:"max_hosts"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Search struct {
	URL     string        `yaml:"url"`
	Rate    float64       `yaml:"rate"`
	Timeout time.Duration `yaml:"timeout"`
}

type HTTPProbe struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Screenshot struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// Harvester is registered only when ProjectDir is set.
type Harvester struct {
	ProjectDir string `yaml:"project_dir"`
	OutputDir  string `yaml:"output_dir"`
}

// Telemetry configures OTLP trace export. An empty endpoint disables it.
type Telemetry struct {
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	Insecure     bool              `yaml:"insecure"`
	Headers      map[string]string `yaml:"headers"`
	ServiceName  string            `yaml:"service_name"`
	SampleRatio  float64           `yaml:"sample_ratio"`
}

// NATS configures the event bridge. An empty URL disables it.
type NATS struct {
	URL               string `yaml:"url"`
	SubjectPrefix     string `yaml:"subject_prefix"`
	AcceptSubmissions bool   `yaml:"accept_submissions"`
}

// Log configures logrus.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            defaults.ListenAddr,
			Heartbeat:       duration.Heartbeat,
			ShutdownTimeout: duration.ShutdownDrain,
			Metrics:         true,
			MCP:             true,
		},
		Jobs: Jobs{
			Workers:          defaults.JobWorkers,
			ReplayLimit:      defaults.ReplayLimit,
			ToolTimeout:      duration.ToolTimeout,
			Retention:        duration.JobRetention,
			CleanupInterval:  duration.CleanupInterval,
			SubscriberBuffer: defaults.SubscriberBuffer,
		},
		Reports: Reports{
			Dir:     defaults.ReportDir,
			Format:  defaults.ReportFormat,
			Records: true,
		},
		Plugins: Plugins{
			ScriptDir: "plugins",
			Watch:     true,
			Nmap:      Nmap{Binary: defaults.NmapBinary, Args: []string{"-sV"}},
			DNS: DNS{
				Workers:  defaults.DNSWorkers,
				MaxHosts: defaults.DNSMaxHosts,
				Timeout:  duration.DNSLookup,
			},
			Search: Search{
				URL:     defaults.SearchURL,
				Rate:    defaults.SearchRate,
				Timeout: duration.SearchRequest,
			},
			HTTPProbe:  HTTPProbe{Timeout: duration.HTTPProbe},
			Screenshot: Screenshot{Timeout: duration.Screenshot},
		},
		Telemetry: Telemetry{
			Insecure:    true,
			ServiceName: defaults.ToolName,
			SampleRatio: 1,
		},
		NATS: NATS{SubjectPrefix: defaults.NATSSubjectPrefix},
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default value. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations. It returns the first problem
// found, wrapped in ErrInvalidConfig or ErrMissingRequired.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr", ErrMissingRequired)
	}
	if c.Server.Heartbeat <= 0 {
		return fmt.Errorf("%w: server.heartbeat must be positive", ErrInvalidConfig)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("%w: jobs.workers must be at least 1, got %d", ErrInvalidConfig, c.Jobs.Workers)
	}
	if c.Jobs.ReplayLimit < 1 || c.Jobs.ReplayLimit > defaults.ReplayLimit {
		return fmt.Errorf("%w: jobs.replay_limit must be in 1..%d, got %d", ErrInvalidConfig, defaults.ReplayLimit, c.Jobs.ReplayLimit)
	}
	if c.Jobs.ToolTimeout <= 0 {
		return fmt.Errorf("%w: jobs.tool_timeout must be positive", ErrInvalidConfig)
	}
	if c.Jobs.Retention < 0 {
		return fmt.Errorf("%w: jobs.retention must not be negative", ErrInvalidConfig)
	}
	if c.Jobs.SubscriberBuffer < 1 {
		return fmt.Errorf("%w: jobs.subscriber_buffer must be at least 1", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Reports.Dir) == "" {
		return fmt.Errorf("%w: reports.dir", ErrMissingRequired)
	}
	if !slices.Contains([]string{"html", "pdf", "none"}, c.Reports.Format) {
		return fmt.Errorf("%w: reports.format must be html, pdf or none, got %q", ErrInvalidConfig, c.Reports.Format)
	}
	if c.Plugins.Search.Rate <= 0 {
		return fmt.Errorf("%w: plugins.search.rate must be positive", ErrInvalidConfig)
	}
	if c.Plugins.DNS.Workers < 1 || c.Plugins.DNS.MaxHosts < 1 {
		return fmt.Errorf("%w: plugins.dns workers and max_hosts must be at least 1", ErrInvalidConfig)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: telemetry.sample_ratio must be in 0..1", ErrInvalidConfig)
	}
	if c.NATS.URL != "" && strings.TrimSpace(c.NATS.SubjectPrefix) == "" {
		return fmt.Errorf("%w: nats.subject_prefix", ErrMissingRequired)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger() *logrus.Logger {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		l.SetLevel(lvl)
	}
	if c.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stderr)
	return l
}
