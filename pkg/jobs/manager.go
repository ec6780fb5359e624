// Package jobs owns job identity and lifecycle. The Manager registers jobs,
// runs every requested tool concurrently under a worker cap, records each
// outcome, drives correlation and export, and mirrors everything it does
// onto the event bus.
package jobs

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/correlation"
	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/duration"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/plugin"
)

// Publisher receives every event the manager emits.
type Publisher interface {
	Publish(events.Event)
}

// ToolResolver maps tool names to tools.
type ToolResolver interface {
	Lookup(name string) (plugin.Tool, bool)
}

// Correlator turns aggregated results into findings. It must be pure.
type Correlator interface {
	Correlate(results map[string]any) correlation.Result
}

// RecordExporter writes the machine-readable export of a finished job and
// returns its file name relative to the output directory.
type RecordExporter interface {
	ExportRecords(View) (string, error)
}

// ReportExporter renders the human-readable report of a finished job and
// returns its file name relative to the output directory.
type ReportExporter interface {
	ExportReport(View) (string, error)
}

// Config wires a Manager. Tools and Bus are required; the collaborators
// are optional and skipped when nil.
type Config struct {
	Tools      ToolResolver
	Bus        Publisher
	Correlator Correlator
	Records    RecordExporter
	Reports    ReportExporter

	// Workers caps concurrent tool invocations per job.
	Workers int
	// ReplayLimit is the per-job replay buffer size, at most 100.
	ReplayLimit int
	// ToolTimeout bounds each tool invocation.
	ToolTimeout time.Duration
	// Retention prunes finished jobs older than this; 0 keeps them forever.
	Retention       time.Duration
	CleanupInterval time.Duration
	// ReportDir is forwarded to tools as meta["report_dir"].
	ReportDir string

	Logger logrus.FieldLogger
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = defaults.JobWorkers
	}
	if c.ReplayLimit <= 0 || c.ReplayLimit > defaults.ReplayLimit {
		c.ReplayLimit = defaults.ReplayLimit
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = duration.ToolTimeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = duration.CleanupInterval
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Manager is the sole writer of job state.
type Manager struct {
	cfg Config
	log logrus.FieldLogger

	mu     sync.RWMutex
	jobs   map[string]*Job
	order  []string
	closed bool

	// ctx parents every tool invocation; it is cancelled only when a
	// shutdown deadline expires.
	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a Manager and, when retention is set, starts its
// cleanup goroutine.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		log:    cfg.Logger.WithField("component", "jobs"),
		jobs:   make(map[string]*Job),
		ctx:    ctx,
		cancel: cancel,
		stop:   make(chan struct{}),
	}
	if cfg.Retention > 0 {
		go m.cleanupLoop()
	}
	return m
}

// Enqueue registers a job, announces it with a job_created event and starts
// running it in the background. Tool names are de-duplicated, keeping the
// first occurrence; an empty tool list is valid and completes immediately.
func (m *Manager) Enqueue(target string, tools []string, meta plugin.Meta) (string, error) {
	tools = dedupe(tools)
	id := uuid.NewString()

	meta = meta.Clone()
	// job_id and report_dir belong to the manager; callers cannot pick
	// where tools write.
	meta[plugin.MetaJobID] = id
	delete(meta, plugin.MetaReportDir)
	if m.cfg.ReportDir != "" {
		meta[plugin.MetaReportDir] = m.cfg.ReportDir
	}

	j := newJob(id, target, tools, meta, m.cfg.ReplayLimit)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	m.jobs[id] = j
	m.order = append(m.order, id)
	m.wg.Add(1)
	active := m.activeLocked()
	m.mu.Unlock()

	m.emit(j, events.KindJobCreated, events.Payload{
		"status":   string(StatusQueued),
		"target":   target,
		"tools":    slices.Clone(tools),
		"progress": 0,
	})
	m.log.WithFields(logrus.Fields{
		"job_id": id,
		"target": target,
		"tools":  tools,
		"active": active,
	}).Info("CREATED")

	go m.run(j)
	return id, nil
}

// Get returns a snapshot of the job including its replay buffer.
func (m *Manager) Get(id string) (View, bool) {
	j := m.lookup(id)
	if j == nil {
		return View{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.view(true), true
}

// List returns snapshots of every known job in creation order. Events are
// omitted; use Get or Events for a single job's replay.
func (m *Manager) List() []View {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.order))
	for _, id := range m.order {
		jobs = append(jobs, m.jobs[id])
	}
	m.mu.RUnlock()

	out := make([]View, 0, len(jobs))
	for _, j := range jobs {
		j.mu.RLock()
		out = append(out, j.view(false))
		j.mu.RUnlock()
	}
	return out
}

// Events returns the job's buffered events, oldest first.
func (m *Manager) Events(id string) ([]events.Event, bool) {
	j := m.lookup(id)
	if j == nil {
		return nil, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.replay.snapshot(), true
}

// Done returns a channel closed when the job reaches done.
func (m *Manager) Done(id string) (<-chan struct{}, bool) {
	j := m.lookup(id)
	if j == nil {
		return nil, false
	}
	return j.done, true
}

// Wait blocks until the job is done or ctx ends and returns the latest
// snapshot either way.
func (m *Manager) Wait(ctx context.Context, id string) (View, error) {
	done, ok := m.Done(id)
	if !ok {
		return View{}, ErrNotFound
	}
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	v, ok := m.Get(id)
	if !ok {
		return View{}, ErrNotFound
	}
	return v, err
}

// Cancel asks a job to stop cooperatively: tools that have not started are
// recorded as cancelled, running tools finish normally, and the job still
// reaches done.
func (m *Manager) Cancel(id string) error {
	j := m.lookup(id)
	if j == nil {
		return ErrNotFound
	}
	if j.cancelled.CompareAndSwap(false, true) {
		m.log.WithField("job_id", id).Info("CANCELLED")
	}
	return nil
}

// ActiveCount returns the number of jobs not yet done.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, j := range m.jobs {
		j.mu.RLock()
		if !j.status.IsTerminal() {
			n++
		}
		j.mu.RUnlock()
	}
	return n
}

// Shutdown stops accepting jobs, cancels running ones cooperatively and
// waits for their pipelines. If ctx ends first, tool contexts are cancelled
// and ctx's error is returned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, j := range m.jobs {
		j.cancelled.Store(true)
	}
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.stop) })

	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		m.log.WithField("active", m.ActiveCount()).Warn("SHUTDOWN deadline reached, aborting tools")
		return ctx.Err()
	}
}

func (m *Manager) lookup(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ---------------------------------------------------------------------------
// Retention
// ---------------------------------------------------------------------------

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.prune(time.Now().Add(-m.cfg.Retention))
		}
	}
}

// prune drops finished jobs that ended before cutoff and returns how many
// were removed.
func (m *Manager) prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	removed := 0
	for _, id := range m.order {
		j := m.jobs[id]
		j.mu.RLock()
		expired := j.status.IsTerminal() && j.finishedAt.Before(cutoff)
		j.mu.RUnlock()
		if expired {
			delete(m.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	if removed > 0 {
		m.log.WithFields(logrus.Fields{"removed": removed, "remaining": len(m.jobs)}).Info("PRUNED")
	}
	return removed
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
