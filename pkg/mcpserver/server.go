package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/duration"
	"github.com/nadscan/nadscan/pkg/eventbus"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/plugin"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// The SDK defines LoggingLevel as a bare string type without constants.
const (
	logInfo    mcp.LoggingLevel = "info"
	logWarning mcp.LoggingLevel = "warning"
)

// JobService is the slice of *jobs.Manager the MCP tools drive.
type JobService interface {
	Enqueue(target string, tools []string, meta plugin.Meta) (string, error)
	Get(id string) (jobs.View, bool)
	List() []jobs.View
	Wait(ctx context.Context, id string) (jobs.View, error)
	Cancel(id string) error
}

// ToolCatalog lists and resolves tool names.
type ToolCatalog interface {
	Describe() []plugin.Info
	Expand(selectors []string) ([]string, error)
}

// Config wires the server. Jobs and Tools are required. When Bus is set,
// get_job forwards the job's progress events to the client while it waits.
type Config struct {
	Jobs  JobService
	Tools ToolCatalog
	Bus   *eventbus.Bus

	// MaxWait caps get_job's wait_seconds. Zero means duration.MaxWait.
	MaxWait time.Duration
	// Heartbeat is the keepalive interval of the legacy SSE transport.
	Heartbeat time.Duration

	Logger logrus.FieldLogger
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wraps the MCP server with the nadscan tools and resources.
type Server struct {
	mcp *mcp.Server
	cfg Config
	log logrus.FieldLogger
}

// MCPServer returns the underlying MCP server for direct access (e.g., testing).
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// New creates a server with every tool and resource registered.
func New(cfg Config) *Server {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = duration.MaxWait
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = duration.Heartbeat
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	s := &Server{
		cfg: cfg,
		log: cfg.Logger.WithField("component", "mcp"),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    defaults.ToolName,
			Title:   "nadscan job orchestrator",
			Version: defaults.Version,
		},
		&mcp.ServerOptions{
			Instructions: serverInstructions,
		},
	)

	s.registerTools()
	s.registerResources()
	return s
}

const serverInstructions = `nadscan runs network assessment tools against a target as one job and correlates their results into findings.

Typical flow:
1. list_tools to see what can run ("dns_*" style globs are accepted).
2. create_job with a target and tools, keep the returned job_id.
3. get_job with wait_seconds to block until the job is done, then read results, errors and findings.

Jobs never fail as a whole: each tool either lands in results or in errors.`

// RunStdio runs the MCP server over stdin/stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	s.log.Info("STDIO transport")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.mcp },
		&mcp.StreamableHTTPOptions{},
	)
}

// SSEHandler returns the legacy SSE transport with keepalive comments so
// proxies do not reap idle connections.
func (s *Server) SSEHandler() http.Handler {
	sse := mcp.NewSSEHandler(
		func(*http.Request) *mcp.Server { return s.mcp },
		nil,
	)
	return sseKeepAlive(sse, s.cfg.Heartbeat)
}

// ---------------------------------------------------------------------------
// Helpers: session notifications
// ---------------------------------------------------------------------------

// notifyProgress sends a progress notification when the request carried a
// progress token.
func notifyProgress(ctx context.Context, req *mcp.CallToolRequest, progress, total float64, message string) {
	if req.Session == nil || req.Params == nil {
		return
	}
	token := req.Params.GetProgressToken()
	if token == nil {
		return
	}
	_ = req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

// logToSession sends a structured log message to the client.
func logToSession(ctx context.Context, req *mcp.CallToolRequest, level mcp.LoggingLevel, data any) {
	if req.Session == nil {
		return
	}
	_ = req.Session.Log(ctx, &mcp.LoggingMessageParams{
		Level:  level,
		Logger: defaults.ToolName,
		Data:   data,
	})
}

// forwardProgress relays one job's progress and log events to the session
// until ctx ends.
func (s *Server) forwardProgress(ctx context.Context, req *mcp.CallToolRequest, jobID string) {
	if s.cfg.Bus == nil {
		return
	}
	sub := s.cfg.Bus.Subscribe(eventbus.ForJob(jobID))
	go func() {
		defer s.cfg.Bus.Unsubscribe(sub)
		eventbus.Consume(ctx, sub, func(e events.Event) {
			switch e.Kind() {
			case events.KindProgress:
				p, _ := e.Int("progress")
				notifyProgress(ctx, req, float64(p), 100, e.String("tool"))
			case events.KindLog:
				level := logInfo
				if e.String("level") == "error" || e.String("level") == "warning" {
					level = logWarning
				}
				logToSession(ctx, req, level, e.Payload())
			}
		})
	}()
}

// ---------------------------------------------------------------------------
// Helpers: result builders
// ---------------------------------------------------------------------------

// textResult creates a CallToolResult with a single text content block.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// jsonResult marshals v to indented JSON and wraps it in a CallToolResult.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := jsonutil.MarshalIndent(v, "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return textResult(string(data)), nil
}

// errorResult creates an IsError result so the model can read the error
// and correct its call.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// enrichedError is errorResult with recovery guidance in a JSON envelope.
func enrichedError(msg string, recoverySteps []string) *mcp.CallToolResult {
	type errResponse struct {
		Error         string   `json:"error"`
		RecoverySteps []string `json:"recovery_steps"`
	}
	data, _ := jsonutil.MarshalIndent(errResponse{
		Error:         msg,
		RecoverySteps: recoverySteps,
	}, "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments from a tool call into dst.
func parseArgs(req *mcp.CallToolRequest, dst any) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := jsonutil.Unmarshal(req.Params.Arguments, dst); err != nil {
		return fmt.Errorf("parsing tool arguments: %w", err)
	}
	return nil
}
