// Package report writes the exports of a finished job: a JSONL record
// stream for machines, and an HTML or PDF report for people. Every
// exporter returns the file name relative to its output directory.
package report

import (
	"cmp"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/nadscan/nadscan/pkg/correlation"
	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/finding"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/tools/localenum"
	"github.com/nadscan/nadscan/pkg/tools/nmap"
)

// Format selects the human-readable report.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatNone Format = "none"
)

// RecordsFile is the JSONL export name of a job.
func RecordsFile(jobID string) string { return "records_" + jobID + ".jsonl" }

// ReportFile is the report name of a job for a format.
func ReportFile(jobID string, f Format) string { return "report_" + jobID + "." + string(f) }

// NewReporter returns the exporter for format, or nil for FormatNone.
func NewReporter(format Format, dir string, b Branding) (jobs.ReportExporter, error) {
	switch format {
	case FormatHTML, "":
		r, err := NewHTMLReporter(dir, b)
		if err != nil {
			return nil, err
		}
		return r, nil
	case FormatPDF:
		return NewPDFReporter(dir, b), nil
	case FormatNone:
		return nil, nil
	}
	return nil, fmt.Errorf("report: unknown format %q", format)
}

// ToolError is one failed tool.
type ToolError struct {
	Tool  string
	Error string
}

// ToolResult is one successful tool output, pretty printed.
type ToolResult struct {
	Tool string
	JSON string
}

// SeverityCount is one row of the findings summary.
type SeverityCount struct {
	Severity finding.Severity
	Count    int
}

// Data is what the renderers consume. It is built once per export from a
// job view; typed sections are filled only when their tool succeeded.
type Data struct {
	Branding  Branding
	Generated time.Time
	Version   string

	Job        jobs.View
	Duration   time.Duration
	Findings   []correlation.Finding
	Severities []SeverityCount
	Errors     []ToolError
	Results    []ToolResult

	Nmap  *nmap.Result
	Local *localenum.Facts

	RawJSON string
}

func buildData(v jobs.View, b Branding) Data {
	d := Data{
		Branding:  b,
		Generated: time.Now().UTC(),
		Version:   defaults.Version,
		Job:       v,
		Duration:  v.Duration().Round(time.Millisecond),
		Findings:  slices.Clone(v.Findings),
	}

	slices.SortStableFunc(d.Findings, func(a, b correlation.Finding) int {
		return cmp.Or(finding.Compare(a.Severity, b.Severity), cmp.Compare(a.ID, b.ID))
	})
	counts := make(map[finding.Severity]int)
	for _, f := range d.Findings {
		counts[f.Severity]++
	}
	for _, sev := range finding.All() {
		if n := counts[sev]; n > 0 {
			d.Severities = append(d.Severities, SeverityCount{Severity: sev, Count: n})
		}
	}

	for _, tool := range slices.Sorted(maps.Keys(v.Errors)) {
		d.Errors = append(d.Errors, ToolError{Tool: tool, Error: v.Errors[tool]})
	}
	for _, tool := range slices.Sorted(maps.Keys(v.Results)) {
		raw, err := jsonutil.MarshalIndent(v.Results[tool], "  ")
		if err != nil {
			raw = []byte(fmt.Sprint(v.Results[tool]))
		}
		d.Results = append(d.Results, ToolResult{Tool: tool, JSON: string(raw)})
	}

	if raw, ok := v.Results[nmap.Name]; ok {
		var r nmap.Result
		if jsonutil.Convert(raw, &r) == nil {
			d.Nmap = &r
		}
	}
	if raw, ok := v.Results[localenum.Name]; ok {
		var f localenum.Facts
		if jsonutil.Convert(raw, &f) == nil {
			d.Local = &f
		}
	}

	if b.ShowRawJSON {
		v.Events = nil
		if raw, err := jsonutil.MarshalIndent(v, "  "); err == nil {
			d.RawJSON = string(raw)
		}
	}
	return d
}

// writeFile writes data atomically into dir/name.
func writeFile(dir, name string, write func(f *os.File) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", err
	}
	return name, nil
}
