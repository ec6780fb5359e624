// Package server exposes the job manager over HTTP: a small JSON API, an
// SSE event stream, and mount points for the Prometheus and MCP handlers.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/duration"
	"github.com/nadscan/nadscan/pkg/eventbus"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/plugin"
)

// JobService is the slice of *jobs.Manager the HTTP surface needs.
type JobService interface {
	Enqueue(target string, tools []string, meta plugin.Meta) (string, error)
	Get(id string) (jobs.View, bool)
	List() []jobs.View
	Events(id string) ([]events.Event, bool)
	Cancel(id string) error
	ActiveCount() int
}

// ToolCatalog lists and resolves tool names.
type ToolCatalog interface {
	Describe() []plugin.Info
	Expand(selectors []string) ([]string, error)
}

// Config wires the handler to its collaborators. Jobs, Tools and Bus are
// required; Metrics, MCP and MCPSSE are mounted only when set.
type Config struct {
	Jobs  JobService
	Tools ToolCatalog
	Bus   *eventbus.Bus

	// Metrics is served at /metrics.
	Metrics http.Handler
	// MCP is the streamable MCP transport, served at /mcp.
	MCP http.Handler
	// MCPSSE is the legacy MCP SSE transport, served at /sse.
	MCPSSE http.Handler

	// ReportDir is where report and records files live.
	ReportDir string
	// Heartbeat is the idle interval after which /api/events writes a
	// keepalive comment. Zero means duration.Heartbeat.
	Heartbeat time.Duration
	// StreamBuffer is the per-stream subscription buffer.
	StreamBuffer int

	Logger logrus.FieldLogger
}

// Server holds the router and its dependencies.
type Server struct {
	cfg    Config
	log    logrus.FieldLogger
	router chi.Router
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = duration.Heartbeat
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = defaults.SubscriberBuffer
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = defaults.ReportDir
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	s := &Server{
		cfg: cfg,
		log: cfg.Logger.WithField("component", "server"),
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer returns an *http.Server for addr with nadscan's timeouts. No
// write timeout is set because event streams are long-lived.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: duration.ReadHeaderTimeout,
		IdleTimeout:       duration.IdleTimeout,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(recovery(s.log))
	r.Use(securityHeaders)
	r.Use(cors)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tools", s.handleTools)
		r.Get("/events", s.handleEvents)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Post("/cancel", s.handleCancelJob)
				r.Get("/report", s.handleReport)
				r.Get("/records", s.handleRecords)
			})
		})
	})

	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}
	if s.cfg.MCP != nil {
		r.Handle("/mcp", s.cfg.MCP)
	}
	if s.cfg.MCPSSE != nil {
		r.Handle("/sse", s.cfg.MCPSSE)
	}
	return r
}
