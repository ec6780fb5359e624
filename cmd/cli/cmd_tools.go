package main

import (
	"flag"
	"os"

	"github.com/nadscan/nadscan/pkg/config"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/plugin"
	"github.com/nadscan/nadscan/pkg/tools"
	"github.com/nadscan/nadscan/pkg/ui"
)

// runTools lists the builtin tools plus any scripts in the script dir.
func runTools(args []string) {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the listing as JSON")
	fs.Usage = usageFor(fs, "tools [flags]", "List the tools a job can run.")
	cfg := parseConfig(fs, args)

	reg, err := loadRegistry(cfg)
	if err != nil {
		exitWithError("%v", err)
	}

	if *asJSON {
		enc := jsonutil.NewStreamEncoder(os.Stdout)
		enc.SetIndent("  ")
		if err := enc.Encode(reg.Describe()); err != nil {
			exitWithError("encode: %v", err)
		}
		return
	}

	term := ui.Detect(os.Stdout, nil)
	term.Apply()
	ui.NewPrinter(os.Stdout, term).Tools(reg.Describe())
}

// loadRegistry builds a registry without starting the job manager.
func loadRegistry(cfg *config.Config) (*plugin.Registry, error) {
	reg := plugin.NewRegistry()
	if _, err := tools.Register(reg, cfg.Plugins, cfg.Reports.Dir); err != nil {
		return nil, err
	}
	if cfg.Plugins.ScriptDir != "" {
		plugin.NewScriptWatcher(cfg.Plugins.ScriptDir, reg, cfg.NewLogger()).LoadAll()
	}
	return reg, nil
}
