package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nadscan/nadscan/internal/app"
)

// runMCP serves MCP over stdin/stdout. Stdout belongs to the protocol, so
// nothing but logs on stderr is printed.
func runMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	fs.Usage = usageFor(fs, "mcp [flags]", "Serve MCP on stdio for IDE and agent integrations.")
	cfg := parseConfig(fs, args)
	cfg.Server.MCP = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, cfg.NewLogger())
	if err != nil {
		exitWithError("startup: %v", err)
	}
	runErr := a.MCP.RunStdio(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = a.Close(shutdownCtx)
	if runErr != nil && ctx.Err() == nil {
		exitWithError("mcp: %v", runErr)
	}
}
