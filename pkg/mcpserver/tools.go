package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/plugin"
)

func (s *Server) registerTools() {
	s.addCreateJobTool()
	s.addGetJobTool()
	s.addCancelJobTool()
	s.addListJobsTool()
	s.addListToolsTool()
}

// jobSummary is the list_jobs entry: a view without results or events.
type jobSummary struct {
	ID         string      `json:"id"`
	Target     string      `json:"target"`
	Tools      []string    `json:"tools"`
	Status     jobs.Status `json:"status"`
	Progress   int         `json:"progress"`
	Results    int         `json:"results"`
	Errors     int         `json:"errors"`
	Findings   int         `json:"findings"`
	CreatedAt  time.Time   `json:"created_at"`
	ReportFile string      `json:"report_file,omitempty"`
}

func summarize(v jobs.View) jobSummary {
	return jobSummary{
		ID:         v.ID,
		Target:     v.Target,
		Tools:      v.Tools,
		Status:     v.Status,
		Progress:   v.Progress,
		Results:    len(v.Results),
		Errors:     len(v.Errors),
		Findings:   len(v.Findings),
		CreatedAt:  v.CreatedAt,
		ReportFile: v.ReportFile,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// create_job
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addCreateJobTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "create_job",
			Title: "Create Job",
			Description: `Start a job that runs the given tools concurrently against one target. Returns immediately with a job_id.

Tool selectors may be exact names or globs ("dns_*", "*"). Call list_tools first if unsure what exists.
Unknown names are not rejected here: they show up in the job's errors map.

FOLLOW UP with get_job {"job_id": "...", "wait_seconds": 30}.

EXAMPLE: {"target": "10.0.0.5", "tools": ["nmap", "dns_*"]}`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target": map[string]any{
						"type":        "string",
						"description": "Host, IP, CIDR or URL to examine. May be empty for host-local tools such as local_enum.",
					},
					"tools": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Tool names or glob selectors.",
					},
					"meta": map[string]any{
						"type":        "object",
						"description": "Optional per-job options forwarded to every tool.",
					},
				},
				"required": []string{"tools"},
			},
			Annotations: &mcp.ToolAnnotations{
				Title:         "Create Job",
				OpenWorldHint: boolPtr(true),
			},
		},
		s.handleCreateJob,
	)
}

func (s *Server) handleCreateJob(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Target string      `json:"target"`
		Tools  []string    `json:"tools"`
		Meta   plugin.Meta `json:"meta"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	tools, err := s.cfg.Tools.Expand(args.Tools)
	if err != nil {
		return enrichedError(err.Error(), []string{
			"Use exact tool names or simple globs such as \"dns_*\".",
			"Call list_tools to see the registered names.",
		}), nil
	}

	id, err := s.cfg.Jobs.Enqueue(args.Target, tools, args.Meta)
	if err != nil {
		return errorResult(fmt.Sprintf("creating job: %v", err)), nil
	}
	s.log.WithField("job_id", id).Debug("MCP job created")

	return jsonResult(map[string]any{
		"job_id": id,
		"status": jobs.StatusQueued,
		"tools":  tools,
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// get_job
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addGetJobTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "get_job",
			Title: "Get Job",
			Description: fmt.Sprintf(`Fetch a job with its results, errors, findings and recent events.

With wait_seconds > 0 the call blocks until the job is done or the wait elapses (capped at %d seconds) and returns the latest state either way. Progress notifications are sent while waiting when the request carries a progress token.

status is "queued", "running" or "done". A done job may still have entries in errors: tools fail independently.

EXAMPLE: {"job_id": "5f0c...", "wait_seconds": 30}`, int(s.cfg.MaxWait/time.Second)),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"job_id": map[string]any{
						"type":        "string",
						"description": "The job id returned by create_job.",
					},
					"wait_seconds": map[string]any{
						"type":        "integer",
						"minimum":     0,
						"maximum":     int(s.cfg.MaxWait / time.Second),
						"description": "Long-poll until done for at most this many seconds.",
					},
				},
				"required": []string{"job_id"},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
				Title:          "Get Job",
			},
		},
		s.handleGetJob,
	)
}

func (s *Server) handleGetJob(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		JobID       string `json:"job_id"`
		WaitSeconds int    `json:"wait_seconds"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.JobID == "" {
		return errorResult(`job_id is required. Example: {"job_id": "5f0c..."}`), nil
	}

	v, ok := s.cfg.Jobs.Get(args.JobID)
	if !ok {
		return notFound(args.JobID), nil
	}
	if args.WaitSeconds <= 0 || v.Status.IsTerminal() {
		return jsonResult(v)
	}

	wait := min(time.Duration(args.WaitSeconds)*time.Second, s.cfg.MaxWait)
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	s.forwardProgress(wctx, req, args.JobID)

	v, err := s.cfg.Jobs.Wait(wctx, args.JobID)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return notFound(args.JobID), nil
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return jsonResult(v)
}

func notFound(id string) *mcp.CallToolResult {
	return enrichedError(
		fmt.Sprintf("job %q not found", id),
		[]string{
			"Verify the job_id returned by create_job.",
			"Finished jobs are pruned after the retention period; use list_jobs to see what is kept.",
		},
	)
}

// ═══════════════════════════════════════════════════════════════════════════
// cancel_job
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addCancelJobTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "cancel_job",
			Title: "Cancel Job",
			Description: `Cancel a job cooperatively. Tools that have not started are recorded as cancelled; running tools finish. The job still reaches done.

EXAMPLE: {"job_id": "5f0c..."}`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"job_id": map[string]any{
						"type":        "string",
						"description": "The job id to cancel.",
					},
				},
				"required": []string{"job_id"},
			},
			Annotations: &mcp.ToolAnnotations{
				IdempotentHint: true,
				Title:          "Cancel Job",
			},
		},
		s.handleCancelJob,
	)
}

func (s *Server) handleCancelJob(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		JobID string `json:"job_id"`
	}
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := s.cfg.Jobs.Cancel(args.JobID); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return notFound(args.JobID), nil
		}
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{"job_id": args.JobID, "cancelled": true})
}

// ═══════════════════════════════════════════════════════════════════════════
// list_jobs
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addListJobsTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:        "list_jobs",
			Title:       "List Jobs",
			Description: `List every known job, oldest first, with status, progress and outcome counts. Use get_job for the full results.`,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
				Title:          "List Jobs",
			},
		},
		s.handleListJobs,
	)
}

func (s *Server) handleListJobs(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	views := s.cfg.Jobs.List()
	out := make([]jobSummary, 0, len(views))
	for _, v := range views {
		out = append(out, summarize(v))
	}
	return jsonResult(map[string]any{"count": len(out), "jobs": out})
}

// ═══════════════════════════════════════════════════════════════════════════
// list_tools
// ═══════════════════════════════════════════════════════════════════════════

func (s *Server) addListToolsTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:        "list_tools",
			Title:       "List Tools",
			Description: `List the scan and enumeration tools a job can run, with descriptions and whether each is builtin or a script.`,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
				Title:          "List Tools",
			},
		},
		s.handleListTools,
	)
}

func (s *Server) handleListTools(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := s.cfg.Tools.Describe()
	return jsonResult(map[string]any{"count": len(infos), "tools": infos})
}

// boolPtr returns a pointer to b. Used for optional bool fields in the SDK.
func boolPtr(b bool) *bool { return &b }
