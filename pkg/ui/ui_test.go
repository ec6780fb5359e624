package ui

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nadscan/nadscan/pkg/correlation"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/finding"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/plugin"
)

func TestMain(m *testing.M) {
	Terminal{}.Apply()
	os.Exit(m.Run())
}

func newTestPrinter() (*Printer, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewPrinter(&buf, Terminal{}), &buf
}

func TestDetect_NotATerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	assert.NoError(t, err)
	defer f.Close()

	assert.Equal(t, Terminal{}, Detect(f, func(string) string { return "" }))
	assert.Equal(t, Terminal{}, Detect(nil, nil))
}

func TestSanitize(t *testing.T) {
	plain := Terminal{}
	assert.Equal(t, "ok  done", plain.Sanitize("ok ✅ done"))
	assert.Equal(t, "café", plain.Sanitize("café"))

	rich := Terminal{Unicode: true}
	assert.Equal(t, "ok ✅", rich.Sanitize("ok ✅"))
	assert.Equal(t, "[+]", plain.Icon("✔", "[+]"))
	assert.Equal(t, "✔", rich.Icon("✔", "[+]"))
}

func TestEventLine(t *testing.T) {
	p, _ := newTestPrinter()
	id := "0123456789abcdef"

	tests := []struct {
		name string
		ev   events.Event
		want []string
	}{
		{
			name: "created",
			ev:   events.New(events.KindJobCreated, id, 1, events.Payload{"target": "10.0.0.5", "tools": []string{"nmap", "shodan"}}),
			want: []string{"[01234567]", "created", "target=10.0.0.5", "tools=nmap,shodan"},
		},
		{
			name: "created decoded",
			ev:   events.New(events.KindJobCreated, id, 1, events.Payload{"tools": []any{"a", "b"}}),
			want: []string{"tools=a,b"},
		},
		{
			name: "progress ok",
			ev:   events.New(events.KindProgress, id, 3, events.Payload{"progress": 50, "tool": "nmap", "ok": true}),
			want: []string{"##########----------", " 50%", "nmap", "ok"},
		},
		{
			name: "progress failed",
			ev:   events.New(events.KindProgress, id, 3, events.Payload{"progress": 100, "tool": "shodan", "ok": false}),
			want: []string{"####################", "100%", "shodan", "failed"},
		},
		{
			name: "log",
			ev:   events.New(events.KindLog, id, 4, events.Payload{"tool": "nmap", "msg": "scanning", "level": "error"}),
			want: []string{"nmap", "scanning"},
		},
		{
			name: "done",
			ev:   events.New(events.KindStatus, id, 5, events.Payload{"status": "done", "results": 1, "errors": 1, "findings": 2}),
			want: []string{"done", "results=1 errors=1 findings=2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := p.EventLine(tt.ev)
			for _, w := range tt.want {
				assert.Contains(t, line, w)
			}
			assert.NotContains(t, line, "\n")
		})
	}
}

func TestSummary(t *testing.T) {
	p, buf := newTestPrinter()
	start := time.Now()
	p.Summary(jobs.View{
		ID:         "job-1",
		Tools:      []string{"nmap", "shodan"},
		Status:     jobs.StatusDone,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Results:    map[string]any{"nmap": 1},
		Errors:     map[string]string{"shodan": "rate limited"},
		Findings: []correlation.Finding{
			{ID: "a", Severity: finding.Low, Title: "low one"},
			{ID: "b", Severity: finding.High, Title: "high one"},
		},
		ReportFile: "report_job-1.html",
	})

	out := buf.String()
	assert.Contains(t, out, "[+] nmap")
	assert.Contains(t, out, "[X] shodan: rate limited")
	assert.Contains(t, out, "2s")
	assert.Contains(t, out, "report: report_job-1.html")
	assert.Less(t, strings.Index(out, "high one"), strings.Index(out, "low one"))
	assert.NotContains(t, out, "\x1b[")
}

func TestBannerAndTools(t *testing.T) {
	p, buf := newTestPrinter()
	p.Banner("1.2.3")
	p.ConfigBanner([]Option{{"Target", "10.0.0.5"}, {"Empty", ""}})
	p.Tools([]plugin.Info{{Name: "nmap", Description: "port scan", Source: plugin.SourceBuiltin}})

	out := buf.String()
	assert.Contains(t, out, "v1.2.3")
	assert.Contains(t, out, "10.0.0.5")
	assert.NotContains(t, out, "Empty")
	assert.Contains(t, out, "(builtin) port scan")
}
