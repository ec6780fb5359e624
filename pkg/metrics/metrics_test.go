package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadscan/nadscan/pkg/events"
)

type fakeBus struct{}

func (fakeBus) Subscribers() int { return 3 }
func (fakeBus) Dropped() uint64  { return 7 }

func jobEvents(id string, toolOK map[string]bool) []events.Event {
	seq := uint64(0)
	next := func(k events.Kind, p events.Payload) events.Event {
		seq++
		return events.New(k, id, seq, p)
	}
	evs := []events.Event{
		next(events.KindJobCreated, events.Payload{"status": "queued"}),
		next(events.KindStatus, events.Payload{"status": "running"}),
	}
	errs := 0
	for tool, ok := range toolOK {
		evs = append(evs, next(events.KindLog, events.Payload{"tool": tool, "msg": "start"}))
		evs = append(evs, next(events.KindProgress, events.Payload{"tool": tool, "ok": ok, "progress": 50}))
		if !ok {
			errs++
		}
	}
	evs = append(evs, next(events.KindStatus, events.Payload{"status": "done", "errors": errs}))
	return evs
}

func TestCollector_CountsJobsAndTools(t *testing.T) {
	c := New(nil)
	for _, e := range jobEvents("a", map[string]bool{"nmap": true, "shodan": false}) {
		c.Observe(e)
	}
	for _, e := range jobEvents("b", map[string]bool{"nmap": true}) {
		c.Observe(e)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsCompleted.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsCompleted.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.toolRuns.WithLabelValues("nmap", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolRuns.WithLabelValues("shodan", OutcomeFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.jobsRunning))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("job_created")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.jobDuration))
}

func TestCollector_RunningGauge(t *testing.T) {
	c := New(nil)
	c.Observe(events.New(events.KindStatus, "a", 2, events.Payload{"status": "running"}))
	c.Observe(events.New(events.KindStatus, "b", 2, events.Payload{"status": "running"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobsRunning))

	c.Observe(events.New(events.KindStatus, "a", 3, events.Payload{"status": "done"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsRunning))

	// done for a job never seen running leaves the gauge alone
	c.Observe(events.New(events.KindStatus, "z", 9, events.Payload{"status": "done"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsRunning))
}

func TestCollector_ZeroToolProgressIgnored(t *testing.T) {
	c := New(nil)
	c.Observe(events.New(events.KindProgress, "a", 3, events.Payload{"progress": 100}))
	assert.Equal(t, 0, testutil.CollectAndCount(c.toolRuns))
}

func TestCollector_Handler(t *testing.T) {
	c := New(fakeBus{})
	c.Observe(events.New(events.KindJobCreated, "a", 1, nil))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "nadscan_jobs_created_total 1")
	assert.Contains(t, body, "nadscan_bus_subscribers 3")
	assert.Contains(t, body, "nadscan_bus_dropped_events_total 7")
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestCollector_DurationFromEventTimes(t *testing.T) {
	c := New(nil)
	c.Observe(events.New(events.KindStatus, "a", 1, events.Payload{"status": "running"}))
	time.Sleep(5 * time.Millisecond)
	c.Observe(events.New(events.KindStatus, "a", 2, events.Payload{"status": "done"}))

	assert.Equal(t, 1, testutil.CollectAndCount(c.jobDuration))
}
