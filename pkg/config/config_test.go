package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, 100, cfg.Jobs.ReplayLimit)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.ToolTimeout)
	assert.Equal(t, "html", cfg.Reports.Format)
	assert.False(t, cfg.Plugins.Screenshot.Enabled)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nadscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: "127.0.0.1:9000"
  heartbeat: 5s
jobs:
  workers: 8
plugins:
  nmap:
    args: ["-sT", "-Pn"]
  screenshot:
    enabled: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, 8, cfg.Jobs.Workers)
	assert.Equal(t, []string{"-sT", "-Pn"}, cfg.Plugins.Nmap.Args)
	assert.True(t, cfg.Plugins.Screenshot.Enabled)
	// untouched keys keep defaults
	assert.Equal(t, 100, cfg.Jobs.ReplayLimit)
	assert.Equal(t, "nmap", cfg.Plugins.Nmap.Binary)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs: [unclosed"), 0o600))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"NADSCAN_ADDR":          ":9999",
		"NADSCAN_WORKERS":       "2",
		"NADSCAN_TOOL_TIMEOUT":  "30s",
		"NADSCAN_SCREENSHOT":    "true",
		"NADSCAN_LOG_LEVEL":     "debug",
		"NADSCAN_REPORT_FORMAT": " pdf ",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Equal(t, 30*time.Second, cfg.Jobs.ToolTimeout)
	assert.True(t, cfg.Plugins.Screenshot.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "pdf", cfg.Reports.Format)
}

func TestApplyEnv_LegacyNames(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		"SHODAN_SEARCH_URL":      "http://gw/search",
		"FILEPATH_THE_HARVESTER": "/opt/theHarvester",
	})))
	assert.Equal(t, "http://gw/search", cfg.Plugins.Search.URL)
	assert.Equal(t, "/opt/theHarvester", cfg.Plugins.Harvester.ProjectDir)

	cfg = Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		"SHODAN_SEARCH_URL":  "http://legacy",
		"NADSCAN_SEARCH_URL": "http://current",
	})))
	assert.Equal(t, "http://current", cfg.Plugins.Search.URL)
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{"NADSCAN_WORKERS": "many"}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "NADSCAN_WORKERS")
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   error
	}{
		"empty addr":       {func(c *Config) { c.Server.Addr = " " }, ErrMissingRequired},
		"zero heartbeat":   {func(c *Config) { c.Server.Heartbeat = 0 }, ErrInvalidConfig},
		"zero workers":     {func(c *Config) { c.Jobs.Workers = 0 }, ErrInvalidConfig},
		"replay too large": {func(c *Config) { c.Jobs.ReplayLimit = 101 }, ErrInvalidConfig},
		"bad format":       {func(c *Config) { c.Reports.Format = "docx" }, ErrInvalidConfig},
		"no report dir":    {func(c *Config) { c.Reports.Dir = "" }, ErrMissingRequired},
		"bad level":        {func(c *Config) { c.Log.Level = "loud" }, ErrInvalidConfig},
		"bad log format":   {func(c *Config) { c.Log.Format = "xml" }, ErrInvalidConfig},
		"nats no prefix": {func(c *Config) {
			c.NATS.URL = "nats://localhost:4222"
			c.NATS.SubjectPrefix = ""
		}, ErrMissingRequired},
		"sample ratio": {func(c *Config) { c.Telemetry.SampleRatio = 2 }, ErrInvalidConfig},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}
}

func TestFlags_OnlySetFlagsApply(t *testing.T) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	f := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-workers", "6", "-no-watch"}))

	cfg := Default()
	cfg.Server.Addr = ":7000" // from a file, say
	f.Apply(cfg, fs)

	assert.Equal(t, 6, cfg.Jobs.Workers)
	assert.False(t, cfg.Plugins.Watch)
	assert.Equal(t, ":7000", cfg.Server.Addr, "unset flag must not reset file value")
}

func TestFlags_ResolvePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jobs:\n  workers: 3\nlog:\n  level: warn\n"), 0o600))

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	f := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-c", path, "-log-level", "error"}))

	cfg, err := f.Resolve(fs, env(map[string]string{
		"NADSCAN_WORKERS":   "5",
		"NADSCAN_LOG_LEVEL": "debug",
	}))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Jobs.Workers, "env beats file")
	assert.Equal(t, "error", cfg.Log.Level, "flag beats env")
}

func TestFlags_ResolveValidates(t *testing.T) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	f := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-format", "docx"}))
	_, err := f.Resolve(fs, env(nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	l := cfg.NewLogger()
	assert.Equal(t, "debug", l.GetLevel().String())
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "nadscan.example.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	def := Default()
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Jobs, cfg.Jobs)
	assert.Equal(t, def.Plugins.Search, cfg.Plugins.Search)
	assert.Empty(t, cfg.NATS.URL)
}
