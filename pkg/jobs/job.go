package jobs

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nadscan/nadscan/pkg/correlation"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/plugin"
)

// Status is the lifecycle state of a job: queued, running, done.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool { return s == StatusDone }

// ---------------------------------------------------------------------------
// Job
// ---------------------------------------------------------------------------

// Job is one orchestration request. Only the Manager writes to it; readers
// go through View snapshots.
type Job struct {
	mu sync.RWMutex

	// Immutable after Enqueue.
	id        string
	target    string
	tools     []string
	meta      plugin.Meta
	createdAt time.Time

	status      Status
	progress    int
	completed   int
	results     map[string]any
	errors      map[string]string
	findings    []correlation.Finding
	reportFile  string
	recordsFile string
	startedAt   time.Time
	finishedAt  time.Time

	replay *replay
	seq    uint64
	// sealed is set once the terminal status event is out; later emits
	// are dropped so that event stays last.
	sealed bool

	cancelled atomic.Bool
	doneOnce  sync.Once
	done      chan struct{}
}

func newJob(id, target string, tools []string, meta plugin.Meta, replayLimit int) *Job {
	return &Job{
		id:        id,
		target:    target,
		tools:     tools,
		meta:      meta,
		createdAt: time.Now().UTC(),
		status:    StatusQueued,
		results:   make(map[string]any),
		errors:    make(map[string]string),
		replay:    newReplay(replayLimit),
		done:      make(chan struct{}),
	}
}

func (j *Job) closeDone() {
	j.doneOnce.Do(func() { close(j.done) })
}

// hasOutcome reports whether tool already sits in results or errors.
// Callers hold j.mu.
func (j *Job) hasOutcome(tool string) bool {
	if _, ok := j.results[tool]; ok {
		return true
	}
	_, ok := j.errors[tool]
	return ok
}

// view builds a snapshot. Callers hold at least a read lock.
func (j *Job) view(withEvents bool) View {
	v := View{
		ID:          j.id,
		Target:      j.target,
		Tools:       slices.Clone(j.tools),
		Status:      j.status,
		Progress:    j.progress,
		CreatedAt:   j.createdAt,
		StartedAt:   j.startedAt,
		FinishedAt:  j.finishedAt,
		Results:     maps.Clone(j.results),
		Errors:      maps.Clone(j.errors),
		Findings:    slices.Clone(j.findings),
		ReportFile:  j.reportFile,
		RecordsFile: j.recordsFile,
		Meta:        j.meta.Clone(),
		Cancelled:   j.cancelled.Load(),
	}
	if withEvents {
		v.Events = j.replay.snapshot()
	}
	return v
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// View is the serialisable projection of a job at one point in time.
// Events holds at most the replay limit (100 by default) most recent events.
type View struct {
	ID          string                `json:"id"`
	Target      string                `json:"target"`
	Tools       []string              `json:"tools"`
	Status      Status                `json:"status"`
	Progress    int                   `json:"progress"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   time.Time             `json:"started_at,omitzero"`
	FinishedAt  time.Time             `json:"finished_at,omitzero"`
	Results     map[string]any        `json:"results"`
	Errors      map[string]string     `json:"errors"`
	Findings    []correlation.Finding `json:"findings"`
	ReportFile  string                `json:"report_file,omitempty"`
	RecordsFile string                `json:"records_file,omitempty"`
	Meta        plugin.Meta           `json:"meta,omitempty"`
	Cancelled   bool                  `json:"cancelled,omitempty"`
	Events      []events.Event        `json:"events,omitempty"`
}

// Duration returns the run time, or the time so far for running jobs.
func (v View) Duration() time.Duration {
	if v.StartedAt.IsZero() {
		return 0
	}
	if v.FinishedAt.IsZero() {
		return time.Since(v.StartedAt)
	}
	return v.FinishedAt.Sub(v.StartedAt)
}

// Failed reports whether any tool failed.
func (v View) Failed() bool { return len(v.Errors) > 0 }
