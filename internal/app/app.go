// Package app assembles a running nadscan instance from its configuration.
// Every long-lived object is owned by App; nothing lives in package state.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nadscan/nadscan/pkg/config"
	"github.com/nadscan/nadscan/pkg/correlation"
	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/eventbus"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/mcpserver"
	"github.com/nadscan/nadscan/pkg/metrics"
	"github.com/nadscan/nadscan/pkg/natsbridge"
	"github.com/nadscan/nadscan/pkg/plugin"
	"github.com/nadscan/nadscan/pkg/report"
	"github.com/nadscan/nadscan/pkg/server"
	"github.com/nadscan/nadscan/pkg/tools"
	"github.com/nadscan/nadscan/pkg/tracing"
)

// App owns the bus, the registry, the job manager and every optional
// integration built from the configuration.
type App struct {
	Config *config.Config
	Log    *logrus.Logger

	Bus      *eventbus.Bus
	Registry *plugin.Registry
	Jobs     *jobs.Manager
	// Metrics is nil when server.metrics is off.
	Metrics *metrics.Collector
	// MCP is nil when server.mcp is off.
	MCP  *mcpserver.Server
	HTTP *server.Server

	watcher  *plugin.ScriptWatcher
	provider *sdktrace.TracerProvider
	natsConn *nats.Conn
	natsSub  *nats.Subscription

	// ctx bounds background consumers and the script watcher.
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	consumers sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New builds the application. ctx bounds startup work such as dialing the
// OTLP collector and NATS. On error everything already started is closed.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = cfg.NewLogger()
	}

	bg, cancel := context.WithCancel(context.Background())
	a := &App{
		Config: cfg,
		Log:    log,
		ctx:    bg,
		cancel: cancel,
	}
	if err := a.build(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	log := a.Log.WithField("component", "app")

	a.Bus = eventbus.New(
		eventbus.WithLogger(a.Log),
		eventbus.WithDefaultBuffer(cfg.Jobs.SubscriberBuffer),
	)

	// === TOOLS ===
	a.Registry = plugin.NewRegistry()
	names, err := tools.Register(a.Registry, cfg.Plugins, cfg.Reports.Dir)
	if err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}
	log.WithField("tools", names).Info("REGISTERED builtin tools")

	if dir := cfg.Plugins.ScriptDir; dir != "" {
		a.watcher = plugin.NewScriptWatcher(dir, a.Registry, a.Log)
		a.watcher.LoadAll()
		if cfg.Plugins.Watch {
			a.goRun(func(ctx context.Context) {
				if err := a.watcher.Watch(ctx); err != nil {
					log.WithError(err).Warn("script watcher stopped")
				}
			})
		}
	}

	// === EXPORTS ===
	if cfg.Reports.Dir != "" {
		if err := os.MkdirAll(cfg.Reports.Dir, 0o755); err != nil {
			return fmt.Errorf("report dir: %w", err)
		}
	}
	branding, err := report.LoadBranding(cfg.Reports.Branding)
	if err != nil {
		return fmt.Errorf("branding: %w", err)
	}
	reporter, err := report.NewReporter(report.Format(cfg.Reports.Format), cfg.Reports.Dir, branding)
	if err != nil {
		return err
	}

	jobsCfg := jobs.Config{
		Tools:           a.Registry,
		Bus:             a.Bus,
		Correlator:      correlation.New(),
		Reports:         reporter,
		Workers:         cfg.Jobs.Workers,
		ReplayLimit:     cfg.Jobs.ReplayLimit,
		ToolTimeout:     cfg.Jobs.ToolTimeout,
		Retention:       cfg.Jobs.Retention,
		CleanupInterval: cfg.Jobs.CleanupInterval,
		ReportDir:       cfg.Reports.Dir,
		Logger:          a.Log,
	}
	if cfg.Reports.Records {
		jobsCfg.Records = report.NewRecordWriter(cfg.Reports.Dir)
	}
	a.Jobs = jobs.NewManager(jobsCfg)

	// === OBSERVERS ===
	if cfg.Server.Metrics {
		a.Metrics = metrics.New(a.Bus)
		a.consume(a.Metrics.Run)
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		a.provider, err = tracing.NewProvider(ctx, tracing.Options{
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		a.consume(tracing.New(a.provider, a.Log).Run)
		log.WithField("endpoint", cfg.Telemetry.OTLPEndpoint).Info("TRACING enabled")
	}

	if cfg.NATS.URL != "" {
		a.natsConn, err = natsbridge.Connect(cfg.NATS.URL, a.Log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		bridge := natsbridge.New(a.natsConn, cfg.NATS.SubjectPrefix, a.Log)
		a.consume(bridge.Forward)
		if cfg.NATS.AcceptSubmissions {
			a.natsSub, err = bridge.Listen(a.Jobs, a.Registry)
			if err != nil {
				return fmt.Errorf("nats listen: %w", err)
			}
		}
	}

	// === TRANSPORTS ===
	srvCfg := server.Config{
		Jobs:         a.Jobs,
		Tools:        a.Registry,
		Bus:          a.Bus,
		ReportDir:    cfg.Reports.Dir,
		Heartbeat:    cfg.Server.Heartbeat,
		StreamBuffer: cfg.Jobs.SubscriberBuffer,
		Logger:       a.Log,
	}
	if a.Metrics != nil {
		srvCfg.Metrics = a.Metrics.Handler()
	}
	if cfg.Server.MCP {
		a.MCP = mcpserver.New(mcpserver.Config{
			Jobs:      a.Jobs,
			Tools:     a.Registry,
			Bus:       a.Bus,
			Heartbeat: cfg.Server.Heartbeat,
			Logger:    a.Log,
		})
		srvCfg.MCP = a.MCP.Handler()
		srvCfg.MCPSSE = a.MCP.SSEHandler()
	}
	a.HTTP = server.New(srvCfg)
	return nil
}

// consume subscribes an in-process consumer and runs it until the bus
// closes or the app stops.
func (a *App) consume(run func(context.Context, *eventbus.Subscription)) {
	sub := a.Bus.Subscribe(eventbus.WithBuffer(defaults.ConsumerBuffer))
	a.consumers.Add(1)
	go func() {
		defer a.consumers.Done()
		run(a.ctx, sub)
	}()
}

func (a *App) goRun(fn func(context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.ctx)
	}()
}

// Close stops taking NATS submissions, drains running jobs within ctx,
// lets consumers see the final events, then releases connections and
// flushes traces. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.natsSub != nil {
			errs = append(errs, a.natsSub.Unsubscribe())
		}
		if a.Jobs != nil {
			if err := a.Jobs.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("jobs: %w", err))
			}
		}
		// Closing the bus ends each consumer once its queue is drained.
		if a.Bus != nil {
			a.Bus.Close()
		}
		a.consumers.Wait()
		a.cancel()
		a.wg.Wait()

		if a.natsConn != nil {
			if err := a.natsConn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				errs = append(errs, fmt.Errorf("nats: %w", err))
			}
		}
		if a.provider != nil {
			if err := a.provider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracing: %w", err))
			}
		}
		a.closeErr = errors.Join(errs...)
		a.Log.WithField("component", "app").Info("CLOSED")
	})
	return a.closeErr
}
