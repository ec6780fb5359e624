// Package harvester runs theHarvester OSINT collector from a local uv
// project and returns the JSON report it writes.
package harvester

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/plugin"
	"github.com/nadscan/nadscan/pkg/proc"
	"github.com/nadscan/nadscan/pkg/strutil"
)

// Name is the registry name of the tool.
const Name = "theharvester"

// MetaOptions is the meta key holding per-job options.
const MetaOptions = "harvester_opts"

// DefaultSources are queried when the job names none.
var DefaultSources = []string{"brave", "censys", "duckduckgo", "otx", "urlscan"}

// Options mirror theHarvester's command-line switches.
type Options struct {
	Limit      int      `json:"limit,omitempty"`
	Start      int      `json:"start,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	DNSServer  string   `json:"dns_server,omitempty"`
	DNSResolve any      `json:"dns_resolve,omitempty"`
	DNSLookup  bool     `json:"dns_lookup,omitempty"`
	DNSBrute   bool     `json:"dns_brute,omitempty"`
	Wordlist   string   `json:"wordlist,omitempty"`
	TakeOver   bool     `json:"take_over,omitempty"`
	APIScan    bool     `json:"api_scan,omitempty"`
	Quiet      bool     `json:"quiet,omitempty"`
	Proxies    bool     `json:"proxies,omitempty"`
	Shodan     bool     `json:"shodan,omitempty"`
	Screenshot string   `json:"screenshot,omitempty"`
}

// Result is the tool output.
type Result struct {
	Results map[string]any `json:"results"`
	Meta    ResultMeta     `json:"meta"`
}

type ResultMeta struct {
	Cmd  string `json:"cmd"`
	HTML string `json:"html"`
	JSON string `json:"json"`
}

// Config locates the theHarvester project.
type Config struct {
	ProjectDir string
	OutputDir  string
	// JSONWait bounds how long to wait for the report file to appear.
	JSONWait time.Duration
	Runner   proc.Runner
}

// Tool runs theHarvester.
type Tool struct {
	cfg Config
}

// New creates the tool.
func New(cfg Config) *Tool {
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaults.ReportDir
	}
	if cfg.JSONWait <= 0 {
		cfg.JSONWait = 10 * time.Second
	}
	if cfg.Runner == nil {
		cfg.Runner = proc.Exec{}
	}
	return &Tool{cfg: cfg}
}

// Description implements plugin.Describer.
func (t *Tool) Description() string {
	return "OSINT collection with theHarvester (emails, hosts, subdomains)"
}

// Run implements plugin.Tool.
func (t *Tool) Run(ctx context.Context, target string, emit plugin.EmitFunc, meta plugin.Meta) (any, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, plugin.ErrEmptyTarget
	}
	var opts Options
	if raw := meta.Map(MetaOptions); raw != nil {
		if err := jsonutil.Convert(raw, &opts); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", MetaOptions, err)
		}
	}

	outDir := meta.String(plugin.MetaReportDir)
	if outDir == "" {
		outDir = t.cfg.OutputDir
	}
	outDir, err := filepath.Abs(outDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	short := meta.JobID()
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		short = "run"
	}
	base := filepath.Join(outDir, "theharvester_"+short)
	htmlPath, xmlPath, jsonPath := base+".html", base+".xml", base+".json"
	for _, p := range []string{htmlPath, xmlPath, jsonPath} {
		_ = os.Remove(p)
	}

	cmd := proc.Cmd{
		Name: "uv",
		Args: BuildArgs(target, base, opts),
		Dir:  t.cfg.ProjectDir,
		Env:  proc.EnvWithout("VIRTUAL_ENV"),
	}
	display := strutil.ShellJoin(cmd.Argv())
	emit(map[string]any{"cmd": display})

	res, err := t.cfg.Runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if s := string(res.Stdout); s != "" {
		emit(map[string]any{"stdout": strutil.Head(s, defaults.OutputHeadLimit)})
	}
	if s := string(res.Stderr); s != "" {
		emit(map[string]any{"stderr": strutil.Head(s, defaults.OutputHeadLimit)})
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("theHarvester returned %d", res.ExitCode)
	}

	data, err := waitForJSON(ctx, jsonPath, t.cfg.JSONWait)
	if err != nil {
		emit(map[string]any{"warn": fmt.Sprintf("could not read %s: %v", jsonPath, err)})
		data = map[string]any{}
	}

	return Result{
		Results: data,
		Meta: ResultMeta{
			Cmd:  strutil.ShellJoin(cmd.Args[2:]),
			HTML: htmlPath,
			JSON: jsonPath,
		},
	}, nil
}

// BuildArgs renders the uv command line. Output always goes to base so
// theHarvester writes base.json next to the other formats.
func BuildArgs(target, base string, o Options) []string {
	args := []string{"run", "theHarvester", "-d", target, "-f", base}

	sources := o.Sources
	if len(sources) == 0 {
		sources = DefaultSources
	}
	for _, s := range sources {
		args = append(args, "-b", s)
	}
	if o.Limit > 0 {
		args = append(args, "-l", strconv.Itoa(o.Limit))
	}
	if o.Start > 0 {
		args = append(args, "-S", strconv.Itoa(o.Start))
	}
	if o.DNSLookup {
		args = append(args, "-n")
	}
	if o.DNSBrute {
		args = append(args, "-c")
	}
	if o.DNSServer != "" {
		args = append(args, "-e", o.DNSServer)
	}
	switch v := o.DNSResolve.(type) {
	case bool:
		if v {
			args = append(args, "-r")
		}
	case string:
		if v != "" {
			args = append(args, "-r", v)
		}
	}
	if o.TakeOver {
		args = append(args, "-t")
	}
	if o.Proxies {
		args = append(args, "-p")
	}
	if o.Shodan {
		args = append(args, "-s")
	}
	if o.APIScan {
		args = append(args, "-a")
	}
	if o.Quiet {
		args = append(args, "-q")
	}
	if o.Screenshot != "" {
		args = append(args, "--screenshot", o.Screenshot)
	}
	if o.Wordlist != "" {
		args = append(args, "-w", o.Wordlist)
	}
	return args
}

// waitForJSON polls for a non-trivial, valid JSON file. Slow filesystems
// can publish the report a moment after the process exits.
func waitForJSON(ctx context.Context, path string, wait time.Duration) (map[string]any, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 2 {
			var out map[string]any
			if lastErr = jsonutil.Unmarshal(data, &out); lastErr == nil {
				return out, nil
			}
		} else if err != nil {
			lastErr = err
		}
		if time.Now().After(deadline) {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
