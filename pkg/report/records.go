package report

import (
	"bufio"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/nadscan/nadscan/pkg/correlation"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/tools/nmap"
)

// Record types, one per JSONL line kind.
const (
	RecordJob     = "job"
	RecordResult  = "result"
	RecordError   = "error"
	RecordFinding = "finding"
	RecordAsset   = "asset"
)

// JobRecord opens every export.
type JobRecord struct {
	Type       string      `json:"type"`
	JobID      string      `json:"job_id"`
	Target     string      `json:"target"`
	Tools      []string    `json:"tools"`
	Status     jobs.Status `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  time.Time   `json:"started_at,omitzero"`
	FinishedAt time.Time   `json:"finished_at,omitzero"`
	Cancelled  bool        `json:"cancelled,omitempty"`
}

// ResultRecord carries one tool output.
type ResultRecord struct {
	Type   string `json:"type"`
	JobID  string `json:"job_id"`
	Tool   string `json:"tool"`
	Output any    `json:"output"`
}

// ErrorRecord carries one tool failure.
type ErrorRecord struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

// FindingRecord carries one correlated finding.
type FindingRecord struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	correlation.Finding `json:",inline"`
}

// AssetRecord carries one scanned host so asset inventories can be built
// from records alone.
type AssetRecord struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	nmap.Asset `json:",inline"`
}

// RecordWriter exports a job as JSON lines.
type RecordWriter struct {
	dir string
}

var _ jobs.RecordExporter = (*RecordWriter)(nil)

// NewRecordWriter writes into dir, created on first export.
func NewRecordWriter(dir string) *RecordWriter {
	return &RecordWriter{dir: dir}
}

// ExportRecords implements jobs.RecordExporter. Lines come in a fixed
// order: job, results, errors, findings, assets; tools sorted by name.
func (w *RecordWriter) ExportRecords(v jobs.View) (string, error) {
	return writeFile(w.dir, RecordsFile(v.ID), func(f *os.File) error {
		buf := bufio.NewWriter(f)
		if err := WriteRecords(jsonutil.NewStreamEncoder(buf), v); err != nil {
			return err
		}
		return buf.Flush()
	})
}

// WriteRecords encodes the records of v one per Encode call.
func WriteRecords(enc *jsonutil.Encoder, v jobs.View) error {
	lines := []any{JobRecord{
		Type:       RecordJob,
		JobID:      v.ID,
		Target:     v.Target,
		Tools:      v.Tools,
		Status:     v.Status,
		CreatedAt:  v.CreatedAt,
		StartedAt:  v.StartedAt,
		FinishedAt: v.FinishedAt,
		Cancelled:  v.Cancelled,
	}}
	for _, tool := range slices.Sorted(maps.Keys(v.Results)) {
		lines = append(lines, ResultRecord{Type: RecordResult, JobID: v.ID, Tool: tool, Output: v.Results[tool]})
	}
	for _, tool := range slices.Sorted(maps.Keys(v.Errors)) {
		lines = append(lines, ErrorRecord{Type: RecordError, JobID: v.ID, Tool: tool, Error: v.Errors[tool]})
	}
	for _, f := range v.Findings {
		lines = append(lines, FindingRecord{Type: RecordFinding, JobID: v.ID, Finding: f})
	}
	if raw, ok := v.Results[nmap.Name]; ok {
		var res nmap.Result
		if jsonutil.Convert(raw, &res) == nil {
			for _, a := range res.Assets {
				lines = append(lines, AssetRecord{Type: RecordAsset, JobID: v.ID, Asset: a})
			}
		}
	}

	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
