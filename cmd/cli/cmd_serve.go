package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nadscan/nadscan/internal/app"
	"github.com/nadscan/nadscan/pkg/config"
	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/ui"
)

// runServe starts the HTTP transport and blocks until SIGINT or SIGTERM.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Usage = usageFor(fs, "serve [flags]", "Serve the job API, the SSE event stream, /metrics and MCP.")
	cfg := parseConfig(fs, args)

	term := ui.Detect(os.Stderr, nil)
	term.Apply()
	p := ui.NewPrinter(os.Stderr, term)
	p.Banner(defaults.Version)
	p.ConfigBanner(serveOptions(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := cfg.NewLogger()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		exitWithError("startup: %v", err)
	}

	srv := a.HTTP.HTTPServer(cfg.Server.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	p.Success("listening on " + cfg.Server.Addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = a.Close(context.Background())
			exitWithError("listen: %v", err)
		}
	}
	stop()

	p.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// SSE streams end when the bus closes, so close the app before waiting
	// on in-flight requests.
	if err := a.Close(shutdownCtx); err != nil {
		p.Warning("close: " + err.Error())
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		p.Warning("http shutdown: " + err.Error())
	}
}

func serveOptions(cfg *config.Config) []ui.Option {
	opts := []ui.Option{
		{Name: "Listen", Value: cfg.Server.Addr},
		{Name: "Workers", Value: strconv.Itoa(cfg.Jobs.Workers)},
		{Name: "Reports", Value: cfg.Reports.Dir + " (" + cfg.Reports.Format + ")"},
		{Name: "Scripts", Value: cfg.Plugins.ScriptDir},
		{Name: "Heartbeat", Value: cfg.Server.Heartbeat.String()},
		{Name: "OTLP", Value: cfg.Telemetry.OTLPEndpoint},
		{Name: "NATS", Value: cfg.NATS.URL},
	}
	if cfg.Server.Metrics {
		opts = append(opts, ui.Option{Name: "Metrics", Value: "/metrics"})
	}
	if cfg.Server.MCP {
		opts = append(opts, ui.Option{Name: "MCP", Value: "/mcp, /sse"})
	}
	return opts
}
