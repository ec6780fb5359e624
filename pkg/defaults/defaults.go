// Package defaults provides canonical default values for nadscan.
// Config defaults, tool names and file naming all reference this package
// instead of repeating literals.
package defaults

// Version is the current nadscan version
const Version = "0.9.0"

// ToolName is the binary and service name.
const ToolName = "nadscan"

// ============================================================================
// JOB ORCHESTRATION
// ============================================================================

const (
	// JobWorkers caps concurrent tool invocations inside one job (4)
	JobWorkers = 4

	// ReplayLimit is the number of recent events a job keeps for replay (100)
	ReplayLimit = 100

	// SubscriberBuffer is the delivery queue size of a bus subscription (256)
	SubscriberBuffer = 256

	// ConsumerBuffer is the queue size for in-process consumers such as
	// metrics and tracing, which must keep up with every job (4096)
	ConsumerBuffer = 4096
)

// ============================================================================
// EVENT KINDS AND PAYLOAD KEYS
// ============================================================================

const (
	// KeyJobID is always present in an event payload.
	KeyJobID = "job_id"

	// LogToolExport tags record-export log events.
	LogToolExport = "export"

	// LogToolReport tags report-export log events.
	LogToolReport = "report"

	// LogToolOrchestrator tags pipeline failures.
	LogToolOrchestrator = "orchestrator"
)

// ============================================================================
// SERVER
// ============================================================================

const (
	// ListenAddr is the default HTTP listen address.
	ListenAddr = ":8080"

	// MaxRequestBody caps JSON request bodies (1 MiB)
	MaxRequestBody = 1 << 20

	// ContentTypeJSON is the JSON media type.
	ContentTypeJSON = "application/json"

	// ContentTypeSSE is the server-sent events media type.
	ContentTypeSSE = "text/event-stream"
)

// ============================================================================
// REPORTS
// ============================================================================

const (
	// ReportDir is where records, reports and screenshots are written.
	ReportDir = "reports/output"

	// ReportFormat is the default human-readable report format.
	ReportFormat = "html"
)

// ============================================================================
// PLUGINS
// ============================================================================

const (
	// NmapBinary is looked up on PATH.
	NmapBinary = "nmap"

	// DNSWorkers is the reverse-DNS lookup parallelism (16)
	DNSWorkers = 16

	// DNSMaxHosts caps how many addresses of a CIDR are looked up (256)
	DNSMaxHosts = 256

	// SearchURL is the local Shodan gateway endpoint.
	SearchURL = "http://localhost:3000/search"

	// SearchRate is the allowed search requests per second.
	SearchRate = 2

	// ScriptMaxAllocs caps tengo allocations per script run.
	ScriptMaxAllocs = 100000

	// ScriptExt marks script tool files.
	ScriptExt = ".tengo"

	// OutputHeadLimit truncates subprocess output forwarded through emit.
	OutputHeadLimit = 4000

	// SUIDThreshold is the binary count at which SUID-MANY fires (15)
	SUIDThreshold = 15
)

// ============================================================================
// TELEMETRY AND MESSAGING
// ============================================================================

const (
	// NATSSubjectPrefix prefixes every bridged subject.
	NATSSubjectPrefix = "nadscan"

	// MetricsNamespace prefixes every Prometheus metric.
	MetricsNamespace = "nadscan"
)
