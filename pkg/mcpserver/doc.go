// Package mcpserver exposes the nadscan job manager as a Model Context
// Protocol (MCP) server so AI assistants can start jobs, follow them and
// read their results.
//
// # Tools
//
//   - create_job: submit a target and tool selectors, returns the job id
//   - get_job:    fetch a job, optionally long-polling with wait_seconds
//   - cancel_job: cooperatively cancel a job
//   - list_jobs:  summaries of every known job
//   - list_tools: registered tools with descriptions
//
// # Resources
//
//   - nadscan://version      server version and tool inventory
//   - nadscan://jobs/{id}    a job view including its replay buffer
//
// # Transports
//
//   - stdio:  RunStdio, used by IDE integrations
//   - HTTP:   Handler (streamable, mounted at /mcp) and SSEHandler (legacy)
//
// # Usage
//
//	srv := mcpserver.New(mcpserver.Config{Jobs: mgr, Tools: reg, Bus: bus})
//	err := srv.RunStdio(ctx)
package mcpserver
