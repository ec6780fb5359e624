// Package duration provides canonical time constants for nadscan.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.ToolTimeout)
//	ticker := time.NewTicker(duration.Heartbeat)
package duration

import "time"

// ============================================================================
// JOB LIFECYCLE
// ============================================================================

const (
	// ToolTimeout bounds a single tool invocation (10min)
	ToolTimeout = 10 * time.Minute

	// JobRetention is how long finished jobs stay queryable (24h)
	JobRetention = 24 * time.Hour

	// CleanupInterval is the retention sweep period (5min)
	CleanupInterval = 5 * time.Minute

	// ShutdownDrain is the default wait for running jobs on shutdown (10s)
	ShutdownDrain = 10 * time.Second
)

// ============================================================================
// TRANSPORT
// ============================================================================

const (
	// Heartbeat is the SSE keep-alive interval on idle streams (15s)
	Heartbeat = 15 * time.Second

	// ReadHeaderTimeout protects the HTTP server from slow headers (10s)
	ReadHeaderTimeout = 10 * time.Second

	// IdleTimeout closes idle keep-alive connections (120s)
	IdleTimeout = 120 * time.Second

	// MaxWait caps get_job long-polling (60s)
	MaxWait = 60 * time.Second
)

// ============================================================================
// PLUGIN TIMEOUTS
// ============================================================================

const (
	// DNSLookup bounds one PTR lookup (1.5s)
	DNSLookup = 1500 * time.Millisecond

	// SearchRequest bounds a search gateway call (30s)
	SearchRequest = 30 * time.Second

	// HTTPProbe bounds an HTTP probe (15s)
	HTTPProbe = 15 * time.Second

	// Screenshot bounds a headless browser capture (45s)
	Screenshot = 45 * time.Second

	// WatchDebounce coalesces bursts of file events (250ms)
	WatchDebounce = 250 * time.Millisecond
)
