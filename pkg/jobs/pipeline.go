package jobs

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/correlation"
	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/workerpool"
)

// run is the per-job pipeline: start, tools, post-processing, finish.
func (m *Manager) run(j *Job) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.abort(j, r)
		}
	}()

	m.start(j)
	m.runTools(j)
	m.postProcess(j)
	m.finish(j)
}

func (m *Manager) start(j *Job) {
	j.mu.Lock()
	j.status = StatusRunning
	j.startedAt = time.Now().UTC()
	m.emitLocked(j, events.KindStatus, events.Payload{
		"status":   string(StatusRunning),
		"tools":    slices.Clone(j.tools),
		"progress": 0,
	})
	j.mu.Unlock()

	m.log.WithFields(logrus.Fields{"job_id": j.id, "tools": len(j.tools)}).Info("RUNNING")
}

func (m *Manager) runTools(j *Job) {
	if len(j.tools) == 0 {
		j.mu.Lock()
		j.progress = 100
		m.emitLocked(j, events.KindProgress, events.Payload{"progress": 100})
		j.mu.Unlock()
		return
	}

	// Tool panics are recovered by invoke; anything reaching the pool's
	// handler is a pipeline defect and aborts the job once the pool drains.
	var fault atomic.Value
	pool := workerpool.New(min(len(j.tools), m.cfg.Workers), workerpool.WithPanicHandler(func(r any) {
		fault.CompareAndSwap(nil, fmt.Sprint(r))
	}))
	defer pool.Close()

	// Each callback records its own outcome, so a tool that fails or
	// panics never holds up the others.
	err := workerpool.ForEach(pool, j.tools, func(_ int, name string) {
		if j.cancelled.Load() {
			m.complete(j, name, nil, ErrCancelled)
			return
		}
		out, err := m.invoke(j, name)
		m.complete(j, name, out, err)
	})
	if err != nil {
		panic(fmt.Sprintf("tool scheduling: %v", err))
	}
	if r := fault.Load(); r != nil {
		panic(r)
	}
}

// complete records one tool outcome and publishes the new progress. The
// counter and the event are updated under the job lock, so progress events
// come out in non-decreasing order.
func (m *Manager) complete(j *Job, tool string, out any, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.hasOutcome(tool) {
		return
	}

	ok := err == nil
	if ok {
		j.results[tool] = out
	} else {
		j.errors[tool] = err.Error()
	}
	j.completed++
	j.progress = j.completed * 100 / len(j.tools)
	m.emitLocked(j, events.KindProgress, events.Payload{
		"progress": j.progress,
		"tool":     tool,
		"ok":       ok,
	})
}

// postProcess runs correlation and both exports. Each step is best effort:
// a failure becomes a log event and the job carries on to done.
func (m *Manager) postProcess(j *Job) {
	if m.cfg.Correlator != nil {
		j.mu.RLock()
		results := j.view(false).Results
		j.mu.RUnlock()

		res, err := safeCorrelate(m.cfg.Correlator, results)
		if err != nil {
			m.logEvent(j, defaults.LogToolOrchestrator, fmt.Sprintf("correlation failed: %v", err))
		} else {
			j.mu.Lock()
			j.findings = res.Findings
			j.mu.Unlock()
		}
	}

	if m.cfg.Records != nil {
		name, err := safeExport(m.cfg.Records.ExportRecords, m.snapshot(j))
		if err != nil {
			m.logEvent(j, defaults.LogToolExport, fmt.Sprintf("records export failed: %v", err))
			m.log.WithError(err).WithField("job_id", j.id).Warn("EXPORT failed")
		} else {
			j.mu.Lock()
			j.recordsFile = name
			m.emitLocked(j, events.KindLog, events.Payload{"tool": defaults.LogToolExport, "msg": "records: " + name})
			j.mu.Unlock()
		}
	}

	if m.cfg.Reports != nil {
		name, err := safeExport(m.cfg.Reports.ExportReport, m.snapshot(j))
		if err != nil {
			m.logEvent(j, defaults.LogToolReport, fmt.Sprintf("report failed: %v", err))
			m.log.WithError(err).WithField("job_id", j.id).Warn("REPORT failed")
		} else {
			j.mu.Lock()
			j.reportFile = name
			j.mu.Unlock()
		}
	}
}

// finish seals the job with its single terminal status event.
func (m *Manager) finish(j *Job) {
	j.mu.Lock()
	if j.sealed {
		j.mu.Unlock()
		j.closeDone()
		return
	}
	j.status = StatusDone
	j.finishedAt = time.Now().UTC()
	payload := events.Payload{
		"status":   string(StatusDone),
		"progress": j.progress,
		"results":  len(j.results),
		"errors":   len(j.errors),
		"findings": len(j.findings),
	}
	if j.reportFile != "" {
		payload["report"] = j.reportFile
	}
	if j.recordsFile != "" {
		payload["records"] = j.recordsFile
	}
	m.emitLocked(j, events.KindStatus, payload)
	fields := logrus.Fields{
		"job_id":   j.id,
		"results":  len(j.results),
		"errors":   len(j.errors),
		"findings": len(j.findings),
		"elapsed":  j.finishedAt.Sub(j.startedAt).Round(time.Millisecond),
	}
	j.mu.Unlock()

	j.closeDone()
	m.log.WithFields(fields).Info("DONE")
}

// abort handles a failure of the pipeline itself. It is a defect, so it
// is logged with its stack, surfaced as an event, and the job is still
// driven to done so nobody waits on it forever.
func (m *Manager) abort(j *Job, r any) {
	m.log.WithFields(logrus.Fields{
		"job_id": j.id,
		"panic":  r,
		"stack":  string(debug.Stack()),
	}).Error("ORCHESTRATION failure")

	j.mu.Lock()
	m.emitLocked(j, events.KindLog, events.Payload{
		"tool":  defaults.LogToolOrchestrator,
		"level": "error",
		"msg":   fmt.Sprintf("orchestration failure: %v", r),
	})
	if j.status == StatusQueued {
		j.status = StatusRunning
	}
	for _, tool := range j.tools {
		if !j.hasOutcome(tool) {
			j.errors[tool] = ErrAborted.Error()
			j.completed++
		}
	}
	if len(j.tools) > 0 {
		j.progress = j.completed * 100 / len(j.tools)
	} else {
		j.progress = 100
	}
	j.mu.Unlock()

	m.finish(j)
}

func (m *Manager) snapshot(j *Job) View {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.view(false)
}

// emit appends an event to the job's replay buffer and publishes it.
func (m *Manager) emit(j *Job, kind events.Kind, payload events.Payload) {
	j.mu.Lock()
	defer j.mu.Unlock()
	m.emitLocked(j, kind, payload)
}

// emitLocked requires j.mu held for writing. Holding the job lock across
// Publish keeps replay order and live order identical; Publish never
// blocks, so the lock is held briefly.
func (m *Manager) emitLocked(j *Job, kind events.Kind, payload events.Payload) {
	if j.sealed {
		return
	}
	j.seq++
	e := events.New(kind, j.id, j.seq, payload)
	j.replay.add(e)
	if e.IsTerminal() {
		j.sealed = true
	}
	m.cfg.Bus.Publish(e)
}

func (m *Manager) logEvent(j *Job, tool, msg string) {
	m.emit(j, events.KindLog, events.Payload{"tool": tool, "level": "error", "msg": msg})
}

func safeCorrelate(c Correlator, results map[string]any) (res correlation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.Correlate(results), nil
}

func safeExport(fn func(View) (string, error), v View) (name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(v)
}
