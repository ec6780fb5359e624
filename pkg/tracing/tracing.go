// Package tracing exports one OpenTelemetry span per job. The Tracer is a
// bus consumer: job_created opens the span, progress and log events become
// span events, and the terminal status ends it.
package tracing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/eventbus"
	"github.com/nadscan/nadscan/pkg/events"
)

// SpanName is the name of every job span.
const SpanName = "nadscan.job"

// Options configures the OTLP exporter.
type Options struct {
	// Endpoint is the OTLP gRPC endpoint (e.g. "localhost:4317").
	Endpoint    string
	ServiceName string
	Insecure    bool
	Headers     map[string]string
	// SampleRatio is the fraction of jobs traced; zero means all.
	SampleRatio float64
	// ConnectTimeout bounds exporter construction.
	ConnectTimeout time.Duration
}

// NewProvider builds a batching TracerProvider exporting over OTLP gRPC.
// The caller owns it and must Shutdown it.
func NewProvider(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}
	if opts.SampleRatio <= 0 {
		opts.SampleRatio = 1
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	), nil
}

type jobSpan struct {
	span   trace.Span
	failed bool
}

// Tracer maps job events onto spans.
type Tracer struct {
	tracer trace.Tracer
	log    logrus.FieldLogger

	mu    sync.Mutex
	spans map[string]*jobSpan
}

// New creates a Tracer using provider.
func New(provider trace.TracerProvider, log logrus.FieldLogger) *Tracer {
	return &Tracer{
		tracer: provider.Tracer("github.com/nadscan/nadscan/pkg/tracing"),
		log:    log.WithField("component", "tracing"),
		spans:  make(map[string]*jobSpan),
	}
}

// Run consumes sub until ctx ends or the subscription closes. Spans still
// open at that point are ended with an error status.
func (t *Tracer) Run(ctx context.Context, sub *eventbus.Subscription) {
	eventbus.Consume(ctx, sub, t.Observe)
	t.abandon()
}

// Open returns the number of spans in flight.
func (t *Tracer) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Observe handles one event.
func (t *Tracer) Observe(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.Kind() == events.KindJobCreated {
		tools, _ := e.Value("tools")
		names, _ := tools.([]string)
		_, span := t.tracer.Start(context.Background(), SpanName,
			trace.WithTimestamp(e.Time()),
			trace.WithAttributes(
				attribute.String("job.id", e.JobID()),
				attribute.String("job.target", e.String("target")),
				attribute.StringSlice("job.tools", names),
			),
		)
		t.spans[e.JobID()] = &jobSpan{span: span}
		return
	}

	js, ok := t.spans[e.JobID()]
	if !ok {
		return
	}

	switch e.Kind() {
	case events.KindStatus:
		status := e.String("status")
		if status != "done" {
			js.span.AddEvent("status", trace.WithTimestamp(e.Time()),
				trace.WithAttributes(attribute.String("status", status)))
			return
		}
		results, _ := e.Int("results")
		errs, _ := e.Int("errors")
		findings, _ := e.Int("findings")
		js.span.SetAttributes(
			attribute.Int("job.results", results),
			attribute.Int("job.errors", errs),
			attribute.Int("job.findings", findings),
		)
		if errs > 0 || js.failed {
			js.span.SetStatus(codes.Error, fmt.Sprintf("%d tool(s) failed", max(errs, 1)))
		} else {
			js.span.SetStatus(codes.Ok, "")
		}
		js.span.End(trace.WithTimestamp(e.Time()))
		delete(t.spans, e.JobID())

	case events.KindProgress:
		p, _ := e.Int("progress")
		attrs := []attribute.KeyValue{attribute.Int("progress", p)}
		if tool := e.String("tool"); tool != "" {
			v, _ := e.Value("ok")
			ok, _ := v.(bool)
			attrs = append(attrs, attribute.String("tool", tool), attribute.Bool("ok", ok))
			if !ok {
				js.failed = true
			}
		}
		js.span.AddEvent("progress", trace.WithTimestamp(e.Time()), trace.WithAttributes(attrs...))

	case events.KindLog:
		attrs := []attribute.KeyValue{
			attribute.String("tool", e.String("tool")),
			attribute.String("msg", e.String("msg")),
		}
		if lvl := e.String("level"); lvl != "" {
			attrs = append(attrs, attribute.String("level", lvl))
		}
		js.span.AddEvent("log", trace.WithTimestamp(e.Time()), trace.WithAttributes(attrs...))
	}
}

func (t *Tracer) abandon() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.spans); n > 0 {
		t.log.WithField("open", n).Warn("spans abandoned")
	}
	for id, js := range t.spans {
		js.span.SetStatus(codes.Error, "tracer stopped before job finished")
		js.span.End()
		delete(t.spans, id)
	}
}
