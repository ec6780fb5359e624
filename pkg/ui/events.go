package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nadscan/nadscan/pkg/correlation"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/finding"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/plugin"
)

const barWidth = 20

// Event prints one live event line.
func (p *Printer) Event(e events.Event) {
	fmt.Fprintln(p.w, p.term.Sanitize(p.EventLine(e)))
}

// EventLine renders e as a single line.
// Format: [15:04:05] [jobid] <kind specific text>
func (p *Printer) EventLine(e events.Event) string {
	var b strings.Builder
	b.WriteString(bracket(StatLabelStyle.Render(e.Time().Local().Format("15:04:05"))))
	b.WriteString(" ")
	b.WriteString(bracket(StatValueStyle.Render(shortID(e.JobID()))))
	b.WriteString(" ")

	switch e.Kind() {
	case events.KindJobCreated:
		b.WriteString(StatusStyle(jobs.StatusQueued).Render("created"))
		if target := e.String("target"); target != "" {
			b.WriteString(" target=" + ConfigValueStyle.Render(target))
		}
		b.WriteString(" tools=" + strings.Join(stringsOf(e.Payload()["tools"]), ","))

	case events.KindStatus:
		status := jobs.Status(e.String("status"))
		b.WriteString(StatusStyle(status).Render(string(status)))
		if status == jobs.StatusDone {
			results, _ := e.Int("results")
			errs, _ := e.Int("errors")
			findings, _ := e.Int("findings")
			fmt.Fprintf(&b, " results=%d errors=%d findings=%d", results, errs, findings)
		}

	case events.KindProgress:
		pct, _ := e.Int("progress")
		b.WriteString(p.bar(pct))
		fmt.Fprintf(&b, " %3d%%", pct)
		if tool := e.String("tool"); tool != "" {
			ok, _ := e.Value("ok")
			passed, _ := ok.(bool)
			b.WriteString(" " + ToolStyle.Render(tool) + " ")
			b.WriteString(OutcomeStyle(passed).Render(outcome(passed)))
		}

	case events.KindLog:
		if tool := e.String("tool"); tool != "" {
			b.WriteString(ToolStyle.Render(tool) + " ")
		}
		msg := e.String("msg")
		switch e.String("level") {
		case "error":
			b.WriteString(FailStyle.Render(msg))
		case "warning", "warn":
			b.WriteString(WarnStyle.Render(msg))
		default:
			b.WriteString(msg)
		}

	default:
		b.WriteString(string(e.Kind()))
	}
	return b.String()
}

// Summary prints the final state of a job: per-tool outcome, findings by
// severity and the export files.
func (p *Printer) Summary(v jobs.View) {
	p.Section("Summary " + shortID(v.ID))
	fmt.Fprintf(p.w, " :: %-20s : %s\n", ConfigLabelStyle.Render("Status"), StatusStyle(v.Status).Render(string(v.Status)))
	fmt.Fprintf(p.w, " :: %-20s : %s\n", ConfigLabelStyle.Render("Duration"), ConfigValueStyle.Render(v.Duration().String()))

	for _, tool := range v.Tools {
		if _, ok := v.Results[tool]; ok {
			p.Success(tool)
			continue
		}
		if msg, ok := v.Errors[tool]; ok {
			p.Error(tool + ": " + msg)
		}
	}

	if len(v.Findings) > 0 {
		p.Section("Findings")
		findings := slices.Clone(v.Findings)
		slices.SortStableFunc(findings, func(a, b correlation.Finding) int {
			return finding.Compare(a.Severity, b.Severity)
		})
		for _, f := range findings {
			fmt.Fprintf(p.w, "  %s %s\n", SeverityStyle(f.Severity).Render(f.Severity.String()), p.term.Sanitize(f.Title))
		}
	}

	if v.ReportFile != "" {
		p.Info("report: " + v.ReportFile)
	}
	if v.RecordsFile != "" {
		p.Info("records: " + v.RecordsFile)
	}
}

// Tools prints the tool listing.
func (p *Printer) Tools(infos []plugin.Info) {
	p.Section("Tools")
	for _, info := range infos {
		fmt.Fprintf(p.w, "  %-16s %s %s\n",
			ToolStyle.Render(info.Name),
			BracketStyle.Render("("+info.Source+")"),
			p.term.Sanitize(info.Description))
	}
}

func (p *Printer) bar(pct int) string {
	pct = max(0, min(pct, 100))
	full := pct * barWidth / 100
	fill, empty := p.term.Icon("█", "#"), p.term.Icon("░", "-")
	return ProgressFullStyle.Render(strings.Repeat(fill, full)) +
		ProgressEmptyStyle.Render(strings.Repeat(empty, barWidth-full))
}

func bracket(s string) string {
	return BracketStyle.Render("[") + s + BracketStyle.Render("]")
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// stringsOf accepts []string from in-process events and []any from
// decoded ones.
func stringsOf(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, fmt.Sprint(x))
		}
		return out
	}
	return nil
}
