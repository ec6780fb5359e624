// Package tools registers the builtin scan and enumeration tools.
// Each tool lives in its own subpackage; this package only decides which
// of them a given configuration enables.
package tools

import (
	"fmt"
	"net"
	"slices"

	"github.com/nadscan/nadscan/pkg/config"
	"github.com/nadscan/nadscan/pkg/plugin"
	"github.com/nadscan/nadscan/pkg/tools/dnsreverse"
	"github.com/nadscan/nadscan/pkg/tools/harvester"
	"github.com/nadscan/nadscan/pkg/tools/httpprobe"
	"github.com/nadscan/nadscan/pkg/tools/localenum"
	"github.com/nadscan/nadscan/pkg/tools/nmap"
	"github.com/nadscan/nadscan/pkg/tools/screenshot"
	"github.com/nadscan/nadscan/pkg/tools/search"
)

// Builtins returns the tools cfg enables, keyed by name. The screenshot
// tool needs Chrome and is opt-in; theHarvester is registered only when
// its project directory is known.
func Builtins(cfg config.Plugins, reportDir string) map[string]plugin.Tool {
	out := map[string]plugin.Tool{
		nmap.Name:      nmap.New(cfg.Nmap.Binary, nmap.WithArgs(cfg.Nmap.Args)),
		localenum.Name: localenum.New(),
		dnsreverse.Name: dnsreverse.New(dnsreverse.Config{
			Workers:  cfg.DNS.Workers,
			MaxHosts: cfg.DNS.MaxHosts,
			Timeout:  cfg.DNS.Timeout,
		}, net.DefaultResolver),
		search.Name: search.New(search.Config{
			URL:     cfg.Search.URL,
			Rate:    cfg.Search.Rate,
			Timeout: cfg.Search.Timeout,
		}),
		httpprobe.Name: httpprobe.New(cfg.HTTPProbe.Timeout),
	}
	if cfg.Screenshot.Enabled {
		out[screenshot.Name] = screenshot.New(screenshot.Config{
			Timeout:   cfg.Screenshot.Timeout,
			OutputDir: reportDir,
		})
	}
	if cfg.Harvester.ProjectDir != "" {
		outDir := cfg.Harvester.OutputDir
		if outDir == "" {
			outDir = reportDir
		}
		out[harvester.Name] = harvester.New(harvester.Config{
			ProjectDir: cfg.Harvester.ProjectDir,
			OutputDir:  outDir,
		})
	}
	for _, name := range cfg.Disabled {
		delete(out, name)
	}
	return out
}

// Register adds every enabled builtin to reg in name order and returns
// the names registered.
func Register(reg *plugin.Registry, cfg config.Plugins, reportDir string) ([]string, error) {
	builtins := Builtins(cfg, reportDir)
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := reg.Register(name, builtins[name]); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	return names, nil
}
