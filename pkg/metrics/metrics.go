// Package metrics exposes job activity to Prometheus. A Collector is fed
// from an event bus subscription, so the job manager carries no metrics
// code of its own.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/eventbus"
	"github.com/nadscan/nadscan/pkg/events"
)

// Outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// BusStats is the part of the event bus reported as gauges.
type BusStats interface {
	Subscribers() int
	Dropped() uint64
}

// Collector turns bus events into Prometheus series.
type Collector struct {
	registry *prometheus.Registry

	jobsCreated   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	toolRuns      *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobDuration   prometheus.Histogram

	mu      sync.Mutex
	running map[string]time.Time
	failed  map[string]bool
}

// New creates a Collector on its own registry. When bus is non-nil its
// subscriber count and drop counter are exported too.
func New(bus BusStats) *Collector {
	ns := defaults.MetricsNamespace
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "jobs_created_total",
			Help:      "Jobs accepted by the manager.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "jobs_completed_total",
			Help:      "Jobs that reached done, by whether any tool failed.",
		}, []string{"outcome"}),
		toolRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "tool_runs_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_total",
			Help:      "Events observed on the bus by kind.",
		}, []string{"kind"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "jobs_running",
			Help:      "Jobs currently running.",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "job_duration_seconds",
			Help:      "Wall time from running to done.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		running: make(map[string]time.Time),
		failed:  make(map[string]bool),
	}

	c.registry.MustRegister(
		c.jobsCreated,
		c.jobsCompleted,
		c.toolRuns,
		c.eventsTotal,
		c.jobsRunning,
		c.jobDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if bus != nil {
		c.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "bus_subscribers",
				Help:      "Current event bus subscriptions.",
			}, func() float64 { return float64(bus.Subscribers()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: ns,
				Name:      "bus_dropped_events_total",
				Help:      "Events dropped because a subscriber queue was full.",
			}, func() float64 { return float64(bus.Dropped()) }),
		)
	}
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Run consumes sub until ctx ends or the subscription closes.
func (c *Collector) Run(ctx context.Context, sub *eventbus.Subscription) {
	eventbus.Consume(ctx, sub, c.Observe)
}

// Observe updates the series for one event.
func (c *Collector) Observe(e events.Event) {
	c.eventsTotal.WithLabelValues(string(e.Kind())).Inc()

	switch e.Kind() {
	case events.KindJobCreated:
		c.jobsCreated.Inc()

	case events.KindStatus:
		c.mu.Lock()
		defer c.mu.Unlock()
		switch e.String("status") {
		case "running":
			if _, ok := c.running[e.JobID()]; !ok {
				c.running[e.JobID()] = e.Time()
				c.jobsRunning.Inc()
			}
		case "done":
			if started, ok := c.running[e.JobID()]; ok {
				c.jobsRunning.Dec()
				c.jobDuration.Observe(e.Time().Sub(started).Seconds())
				delete(c.running, e.JobID())
			}
			outcome := OutcomeOK
			if n, _ := e.Int("errors"); n > 0 || c.failed[e.JobID()] {
				outcome = OutcomeFailed
			}
			delete(c.failed, e.JobID())
			c.jobsCompleted.WithLabelValues(outcome).Inc()
		}

	case events.KindProgress:
		tool := e.String("tool")
		if tool == "" {
			return
		}
		outcome := OutcomeOK
		v, _ := e.Value("ok")
		if ok, _ := v.(bool); !ok {
			outcome = OutcomeFailed
			c.mu.Lock()
			c.failed[e.JobID()] = true
			c.mu.Unlock()
		}
		c.toolRuns.WithLabelValues(tool, outcome).Inc()
	}
}
