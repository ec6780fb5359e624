package report

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadscan/nadscan/pkg/correlation"
	"github.com/nadscan/nadscan/pkg/finding"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/tools/nmap"
)

func sampleView() jobs.View {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return jobs.View{
		ID:         "0b9c7a1e-1111-2222-3333-444455556666",
		Target:     "10.0.0.5",
		Tools:      []string{"nmap", "shodan", "local_enum"},
		Status:     jobs.StatusDone,
		Progress:   100,
		CreatedAt:  start,
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Results: map[string]any{
			"nmap": nmap.Result{
				Command: "nmap -oX - -sV 10.0.0.5",
				Assets: []nmap.Asset{{
					HostID: "abc", IP: "10.0.0.5", Hostname: "db01",
					Ports: []nmap.Port{{Port: 22, Proto: "tcp", State: "open", Service: "ssh", Product: "OpenSSH"}},
				}},
			},
			"local_enum": map[string]any{
				"host":    map[string]any{"hostname": "scanner", "os": "linux", "arch": "amd64"},
				"network": map[string]any{"resolvers": []any{"1.1.1.1"}},
			},
		},
		Errors: map[string]string{"shodan": "search gateway returned 503: <down>"},
		Findings: []correlation.Finding{
			{ID: "DNS-RESOLVERS", Severity: finding.Info, Title: "DNS resolvers", Evidence: map[string]any{"resolvers": []string{"1.1.1.1"}}},
			{ID: "SSH-PA-001", Severity: finding.Medium, Title: "SSH password auth enabled", Evidence: map[string]any{"hosts": []string{"10.0.0.5"}}},
		},
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, jsonutil.Unmarshal(sc.Bytes(), &m), sc.Text())
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestRecordWriter_LineOrder(t *testing.T) {
	dir := t.TempDir()
	v := sampleView()

	name, err := NewRecordWriter(dir).ExportRecords(v)
	require.NoError(t, err)
	assert.Equal(t, "records_"+v.ID+".jsonl", name)

	lines := readLines(t, filepath.Join(dir, name))
	var types []string
	for _, l := range lines {
		types = append(types, l["type"].(string))
		assert.Equal(t, v.ID, l["job_id"])
	}
	assert.Equal(t, []string{"job", "result", "result", "error", "finding", "finding", "asset"}, types)

	assert.Equal(t, "local_enum", lines[1]["tool"], "results sorted by tool")
	assert.Equal(t, "nmap", lines[2]["tool"])
	assert.Equal(t, "shodan", lines[3]["tool"])
	assert.Equal(t, "DNS-RESOLVERS", lines[4]["id"], "finding fields are inlined")
	assert.Equal(t, "10.0.0.5", lines[6]["ip"], "asset fields are inlined")
}

func TestRecordWriter_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	_, err := NewRecordWriter(dir).ExportRecords(sampleView())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), "."))
}

func TestRecordWriter_EmptyJob(t *testing.T) {
	var buf bytes.Buffer
	v := jobs.View{ID: "j1", Status: jobs.StatusDone}
	require.NoError(t, WriteRecords(jsonutil.NewStreamEncoder(&buf), v))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"type":"job"`)
}

func TestRecordWriter_UnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err := NewRecordWriter(filepath.Join(file, "sub")).ExportRecords(sampleView())
	assert.Error(t, err)
}

func TestHTMLReporter(t *testing.T) {
	dir := t.TempDir()
	b := DefaultBranding()
	b.Title = "Quarterly <Audit>"
	r, err := NewHTMLReporter(dir, b)
	require.NoError(t, err)

	v := sampleView()
	name, err := r.ExportReport(v)
	require.NoError(t, err)
	assert.Equal(t, "report_"+v.ID+".html", name)

	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	html := string(raw)

	assert.Contains(t, html, "Quarterly &lt;Audit&gt;", "branding is escaped")
	assert.Contains(t, html, "SSH-PA-001")
	assert.Contains(t, html, "db01")
	assert.Contains(t, html, "22/tcp ssh (OpenSSH)")
	assert.Contains(t, html, "search gateway returned 503: &lt;down&gt;")
	assert.Contains(t, html, `id="local"`)
	assert.Contains(t, html, "Medium 1")
	assert.Less(t, strings.Index(html, "SSH-PA-001"), strings.Index(html, "DNS-RESOLVERS"), "most severe first")
}

func TestHTMLReporter_MinimalJob(t *testing.T) {
	dir := t.TempDir()
	b := DefaultBranding()
	b.ShowRawJSON = false
	r, err := NewHTMLReporter(dir, b)
	require.NoError(t, err)

	name, err := r.ExportReport(jobs.View{ID: "empty", Status: jobs.StatusDone})
	require.NoError(t, err)
	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	html := string(raw)
	assert.Contains(t, html, "No findings.")
	assert.NotContains(t, html, `id="hosts"`)
	assert.NotContains(t, html, `id="raw"`)
}

func TestPDFReporter(t *testing.T) {
	dir := t.TempDir()
	v := sampleView()
	v.Findings[0].Title = "Resolvers … configured"

	name, err := NewPDFReporter(dir, DefaultBranding()).ExportReport(v)
	require.NoError(t, err)
	assert.Equal(t, "report_"+v.ID+".pdf", name)

	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-")))
	assert.Contains(t, string(bytes.TrimSpace(raw[len(raw)-16:])), "%%EOF")
	assert.Greater(t, len(raw), 1000)
}

func TestNewReporter(t *testing.T) {
	dir := t.TempDir()
	r, err := NewReporter(FormatHTML, dir, DefaultBranding())
	require.NoError(t, err)
	assert.IsType(t, &HTMLReporter{}, r)

	r, err = NewReporter(FormatPDF, dir, DefaultBranding())
	require.NoError(t, err)
	assert.IsType(t, &PDFReporter{}, r)

	r, err = NewReporter(FormatNone, dir, DefaultBranding())
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = NewReporter("docx", dir, DefaultBranding())
	assert.Error(t, err)
}

func TestBuildData_TypedSections(t *testing.T) {
	d := buildData(sampleView(), DefaultBranding())
	require.NotNil(t, d.Nmap)
	assert.Len(t, d.Nmap.Assets, 1)
	require.NotNil(t, d.Local)
	assert.Equal(t, "scanner", d.Local.Host.Hostname)
	assert.Equal(t, []SeverityCount{{finding.Medium, 1}, {finding.Info, 1}}, d.Severities)
	assert.Equal(t, "SSH-PA-001", d.Findings[0].ID)
	assert.NotEmpty(t, d.RawJSON)
}

func TestLoadBranding(t *testing.T) {
	b, err := LoadBranding("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBranding(), b)

	path := filepath.Join(t.TempDir(), "brand.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: ACME Audit\naccent_color: \"#112233\"\n"), 0o600))
	b, err = LoadBranding(path)
	require.NoError(t, err)
	assert.Equal(t, "ACME Audit", b.Title)
	assert.Equal(t, "Generated by nadscan", b.Footer, "unset keys keep defaults")
	r, g, bl := b.rgb()
	assert.Equal(t, []int{0x11, 0x22, 0x33}, []int{r, g, bl})

	require.NoError(t, os.WriteFile(path, []byte("accent_color: red\n"), 0o600))
	_, err = LoadBranding(path)
	assert.ErrorContains(t, err, "accent_color")
}
