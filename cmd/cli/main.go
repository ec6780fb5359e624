package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nadscan/nadscan/pkg/config"
	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/ui"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve", "server":
		runServe(os.Args[2:])
	case "run", "scan":
		runJob(os.Args[2:])
	case "mcp":
		runMCP(os.Args[2:])
	case "tools", "list-tools":
		runTools(os.Args[2:])
	case "-v", "--version", "version":
		fmt.Printf("%s %s\n", defaults.ToolName, defaults.Version)
	case "-h", "--help", "help":
		printUsage()
	default:
		exitWithUsage(fmt.Sprintf("unknown command %q", os.Args[1]), defaults.ToolName+" <serve|run|mcp|tools|version> [flags]")
	}
}

func printUsage() {
	term := ui.Detect(os.Stdout, nil)
	term.Apply()
	p := ui.NewPrinter(os.Stdout, term)
	p.Banner(defaults.Version)

	fmt.Println(ui.SectionStyle.Render("COMMANDS"))
	fmt.Println()
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("serve  "), "HTTP API, SSE event stream, /metrics and MCP endpoints")
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("run    "), "Run one job in the foreground and stream its events")
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("mcp    "), "MCP server on stdio for IDE and agent integrations")
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("tools  "), "List registered tools")
	fmt.Printf("  %s  %s\n", ui.StatValueStyle.Render("version"), "Print the version")
	fmt.Println()

	fmt.Println(ui.SectionStyle.Render("EXAMPLES"))
	fmt.Println()
	fmt.Printf("    %s\n", ui.ConfigValueStyle.Render("nadscan serve -addr :8080 -config nadscan.yaml"))
	fmt.Printf("    %s\n", ui.ConfigValueStyle.Render("nadscan run -tools 'dns_*,http_probe' example.org"))
	fmt.Printf("    %s\n", ui.ConfigValueStyle.Render("nadscan run -json -tools nmap 10.0.0.5 > events.jsonl"))
	fmt.Println()
	p.Help("Every flag can also be set in the config file or as a NADSCAN_* variable.")
}

// parseConfig parses args on fs with the shared flags bound and returns the
// layered configuration. Parse errors exit through fs.
func parseConfig(fs *flag.FlagSet, args []string) *config.Config {
	flags := config.BindFlags(fs)
	_ = fs.Parse(args)
	cfg, err := flags.Resolve(fs, os.LookupEnv)
	if err != nil {
		exitWithError("config: %v", err)
	}
	return cfg
}

func usageFor(fs *flag.FlagSet, synopsis, description string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s\n\n%s\n\nFlags:\n", defaults.ToolName, synopsis, description)
		fs.PrintDefaults()
	}
}
