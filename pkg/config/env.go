package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NADSCAN_"

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

func setString(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error { *dst(c) = v; return nil }
}

func setInt(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func setBool(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func setDuration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"ADDR", setString(func(c *Config) *string { return &c.Server.Addr })},
	{"HEARTBEAT", setDuration(func(c *Config) *time.Duration { return &c.Server.Heartbeat })},
	{"METRICS", setBool(func(c *Config) *bool { return &c.Server.Metrics })},
	{"WORKERS", setInt(func(c *Config) *int { return &c.Jobs.Workers })},
	{"TOOL_TIMEOUT", setDuration(func(c *Config) *time.Duration { return &c.Jobs.ToolTimeout })},
	{"RETENTION", setDuration(func(c *Config) *time.Duration { return &c.Jobs.Retention })},
	{"REPORT_DIR", setString(func(c *Config) *string { return &c.Reports.Dir })},
	{"REPORT_FORMAT", setString(func(c *Config) *string { return &c.Reports.Format })},
	{"BRANDING", setString(func(c *Config) *string { return &c.Reports.Branding })},
	{"SCRIPT_DIR", setString(func(c *Config) *string { return &c.Plugins.ScriptDir })},
	{"NMAP_BINARY", setString(func(c *Config) *string { return &c.Plugins.Nmap.Binary })},
	{"SEARCH_URL", setString(func(c *Config) *string { return &c.Plugins.Search.URL })},
	{"SCREENSHOT", setBool(func(c *Config) *bool { return &c.Plugins.Screenshot.Enabled })},
	{"HARVESTER_DIR", setString(func(c *Config) *string { return &c.Plugins.Harvester.ProjectDir })},
	{"HARVESTER_OUTPUT", setString(func(c *Config) *string { return &c.Plugins.Harvester.OutputDir })},
	{"OTLP_ENDPOINT", setString(func(c *Config) *string { return &c.Telemetry.OTLPEndpoint })},
	{"OTLP_INSECURE", setBool(func(c *Config) *bool { return &c.Telemetry.Insecure })},
	{"NATS_URL", setString(func(c *Config) *string { return &c.NATS.URL })},
	{"NATS_PREFIX", setString(func(c *Config) *string { return &c.NATS.SubjectPrefix })},
	{"LOG_LEVEL", setString(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", setString(func(c *Config) *string { return &c.Log.Format })},
}

// legacyEnv maps variable names older deployments export to their
// NADSCAN_* equivalent. The NADSCAN_ name wins when both are set.
var legacyEnv = map[string]string{
	"SHODAN_SEARCH_URL":         "SEARCH_URL",
	"FILEPATH_THE_HARVESTER":    "HARVESTER_DIR",
	"OUTPUT_PATH_THE_HARVESTER": "HARVESTER_OUTPUT",
}

// ApplyEnv overlays environment variables using lookup, which is
// os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok {
			for legacy, target := range legacyEnv {
				if target == b.name {
					v, ok = lookup(legacy)
				}
			}
		}
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, EnvPrefix, b.name, v, err)
		}
	}
	return nil
}
