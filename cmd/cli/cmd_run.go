package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nadscan/nadscan/internal/app"
	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/eventbus"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/ui"
)

// runJob runs a single job in the foreground. The exit code is 1 when
// any tool failed or the job did not finish.
func runJob(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	toolList := fs.String("tools", "*", "Comma-separated tool names or glob patterns")
	asJSON := fs.Bool("json", false, "Stream events as JSON lines and print the final job as JSON")
	fs.Usage = usageFor(fs, "run [flags] <target>", "Run the selected tools against target and stream progress.")
	cfg := parseConfig(fs, args)
	if fs.NArg() != 1 {
		exitWithUsage("exactly one target is required", defaults.ToolName+" run [flags] <target>")
	}
	target := fs.Arg(0)

	// Foreground runs do not need the HTTP surfaces.
	cfg.Server.MCP = false
	cfg.Server.Metrics = false

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, cfg.NewLogger())
	if err != nil {
		exitWithError("startup: %v", err)
	}
	defer a.Close(context.Background())

	selected, err := a.Registry.Expand(splitList(*toolList))
	if err != nil {
		exitWithError("tools: %v", err)
	}

	term := ui.Detect(os.Stdout, nil)
	term.Apply()
	p := ui.NewPrinter(os.Stdout, term)
	if !*asJSON {
		p.ConfigBanner([]ui.Option{
			{Name: "Target", Value: target},
			{Name: "Tools", Value: strings.Join(selected, ",")},
		})
	}

	onEvent := p.Event
	if *asJSON {
		onEvent = jsonLines(os.Stdout)
	}
	v, err := watchJob(ctx, a, target, selected, onEvent)
	if err != nil {
		exitWithError("%v", err)
	}

	if *asJSON {
		enc := jsonutil.NewStreamEncoder(os.Stdout)
		_ = enc.Encode(v)
	} else {
		p.Summary(v)
	}
	if v.Status != jobs.StatusDone || v.Failed() {
		_ = a.Close(context.Background())
		os.Exit(1)
	}
}

// watchJob enqueues a job and passes each of its events to onEvent until it
// reaches a final state. Cancelling ctx cancels the job; the final view is
// still returned.
func watchJob(ctx context.Context, a *app.App, target string, tools []string, onEvent func(events.Event)) (jobs.View, error) {
	// Subscribe before enqueueing so job_created is not missed.
	sub := a.Bus.Subscribe(eventbus.WithBuffer(defaults.ConsumerBuffer))
	defer a.Bus.Unsubscribe(sub)

	id, err := a.Jobs.Enqueue(target, tools, nil)
	if err != nil {
		return jobs.View{}, fmt.Errorf("enqueue: %w", err)
	}
	done, _ := a.Jobs.Done(id)

	forward := func(e events.Event) {
		if e.JobID() == id {
			onEvent(e)
		}
	}

	cancelled := false
	for {
		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				_ = a.Jobs.Cancel(id)
			}
			// Keep draining until the job settles.
			ctx = context.Background()
		case e, ok := <-sub.Events():
			if !ok {
				v, _ := a.Jobs.Get(id)
				return v, nil
			}
			forward(e)
			if e.JobID() == id && e.IsTerminal() {
				v, _ := a.Jobs.Get(id)
				return v, nil
			}
		case <-done:
			// The terminal event may have been dropped on a full queue.
		drain:
			for {
				select {
				case e, ok := <-sub.Events():
					if !ok {
						break drain
					}
					forward(e)
				default:
					break drain
				}
			}
			v, _ := a.Jobs.Get(id)
			return v, nil
		}
	}
}

// jsonLines returns an event sink writing one JSON document per line.
func jsonLines(w io.Writer) func(events.Event) {
	enc := jsonutil.NewStreamEncoder(w)
	return func(e events.Event) {
		_ = enc.Encode(e)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
