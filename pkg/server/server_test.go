package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadscan/nadscan/pkg/eventbus"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/plugin"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type fileReporter struct{ dir string }

func (f fileReporter) ExportReport(v jobs.View) (string, error) {
	name := "report_" + v.ID + ".html"
	return name, os.WriteFile(filepath.Join(f.dir, name), []byte("<h1>"+v.Target+"</h1>"), 0o644)
}

type harness struct {
	srv     *httptest.Server
	mgr     *jobs.Manager
	bus     *eventbus.Bus
	release chan struct{}
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()

	h := &harness{
		bus:     eventbus.New(eventbus.WithLogger(logger), eventbus.WithDefaultBuffer(1024)),
		release: make(chan struct{}),
	}
	reg := plugin.NewRegistry()
	reg.MustRegister("echo_ok", plugin.ToolFunc(func(_ context.Context, target string, emit plugin.EmitFunc, _ plugin.Meta) (any, error) {
		emit("echoing")
		return map[string]any{"echo": target}, nil
	}))
	reg.MustRegister("echo_fail", plugin.ToolFunc(func(context.Context, string, plugin.EmitFunc, plugin.Meta) (any, error) {
		return nil, errors.New("boom")
	}))
	reg.MustRegister("block", plugin.ToolFunc(func(ctx context.Context, _ string, _ plugin.EmitFunc, _ plugin.Meta) (any, error) {
		select {
		case <-h.release:
			return "released", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	h.mgr = jobs.NewManager(jobs.Config{
		Tools:   reg,
		Bus:     h.bus,
		Reports: fileReporter{dir: dir},
		Logger:  logger,
	})

	cfg := Config{
		Jobs:      h.mgr,
		Tools:     reg,
		Bus:       h.bus,
		ReportDir: dir,
		Logger:    logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.srv = httptest.NewServer(New(cfg))

	t.Cleanup(func() {
		h.srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.mgr.Shutdown(ctx)
		h.bus.Close()
	})
	return h
}

func (h *harness) create(t *testing.T, body string) string {
	t.Helper()
	resp, err := http.Post(h.srv.URL+"/api/jobs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out CreateResponse
	require.NoError(t, jsonutil.DecodeReader(resp.Body, &out))
	require.NotEmpty(t, out.JobID)
	assert.Equal(t, "/api/jobs/"+out.JobID, resp.Header.Get("Location"))
	return out.JobID
}

func (h *harness) wait(t *testing.T, id string) jobs.View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := h.mgr.Wait(ctx, id)
	require.NoError(t, err)
	return v
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out map[string]any
	require.NoError(t, jsonutil.DecodeReader(resp.Body, &out))
	return out
}

type frame struct {
	id, event, data string
}

// readFrames parses SSE frames until the stream ends. Comment lines are
// returned as frames with only data set.
func readFrames(t *testing.T, r io.Reader) []frame {
	t.Helper()
	var (
		out []frame
		cur frame
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur != (frame{}) {
				out = append(out, cur)
			}
			cur = frame{}
		case strings.HasPrefix(line, ":"):
			out = append(out, frame{data: line})
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// JSON API
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	out := getJSON(t, h.srv.URL+"/health", http.StatusOK)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "nadscan", out["service"])
	assert.EqualValues(t, 0, out["active_jobs"])
}

func TestTools(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Get(h.srv.URL + "/api/tools")
	require.NoError(t, err)
	defer resp.Body.Close()

	var infos []plugin.Info
	require.NoError(t, jsonutil.DecodeReader(resp.Body, &infos))
	require.Len(t, infos, 3)
	assert.Equal(t, "block", infos[0].Name)
	assert.Equal(t, plugin.SourceBuiltin, infos[0].Source)
}

func TestCreateJob_ExpandsGlob(t *testing.T) {
	h := newHarness(t, nil)
	id := h.create(t, `{"target":"10.0.0.5","tools":["echo_*"],"meta":{"note":"x"}}`)
	h.wait(t, id)

	out := getJSON(t, h.srv.URL+"/api/jobs/"+id, http.StatusOK)
	assert.Equal(t, "done", out["status"])
	assert.EqualValues(t, 100, out["progress"])
	assert.Equal(t, []any{"echo_fail", "echo_ok"}, out["tools"])
	assert.Equal(t, map[string]any{"echo_fail": "boom"}, out["errors"])
	assert.Contains(t, out["results"], "echo_ok")
	assert.Equal(t, "x", out["meta"].(map[string]any)["note"])
	assert.NotEmpty(t, out["events"])
}

func TestCreateJob_ZeroToolsCompletes(t *testing.T) {
	h := newHarness(t, nil)
	id := h.create(t, `{"target":""}`)
	v := h.wait(t, id)
	assert.Equal(t, jobs.StatusDone, v.Status)
	assert.Equal(t, 100, v.Progress)
}

func TestCreateJob_Rejects(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"target":`},
		{"wrong type", `{"target":5}`},
		{"bad pattern", `{"target":"x","tools":["[unclosed"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(h.srv.URL+"/api/jobs", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, h.mgr.List())
}

func TestCreateJob_AfterShutdown(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.mgr.Shutdown(context.Background()))

	resp, err := http.Post(h.srv.URL+"/api/jobs", "application/json", strings.NewReader(`{"target":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListJobs(t *testing.T) {
	h := newHarness(t, nil)
	a := h.create(t, `{"target":"a","tools":["echo_ok"]}`)
	b := h.create(t, `{"target":"b","tools":["echo_ok"]}`)
	h.wait(t, a)
	h.wait(t, b)

	out := getJSON(t, h.srv.URL+"/api/jobs", http.StatusOK)
	assert.EqualValues(t, 2, out["count"])
	list := out["jobs"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].(map[string]any)["id"])
	assert.NotContains(t, list[0], "events")
}

func TestGetJob_NotFound(t *testing.T) {
	h := newHarness(t, nil)
	out := getJSON(t, h.srv.URL+"/api/jobs/nope", http.StatusNotFound)
	assert.Equal(t, jobs.ErrNotFound.Error(), out["error"])
}

func TestCancelJob(t *testing.T) {
	h := newHarness(t, nil)
	id := h.create(t, `{"target":"x","tools":["block"]}`)

	resp, err := http.Post(h.srv.URL+"/api/jobs/"+id+"/cancel", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	close(h.release)
	v := h.wait(t, id)
	assert.True(t, v.Cancelled)

	resp, err = http.Post(h.srv.URL+"/api/jobs/nope/cancel", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportAndRecords(t *testing.T) {
	h := newHarness(t, nil)
	id := h.create(t, `{"target":"lab.local","tools":["echo_ok"]}`)
	v := h.wait(t, id)
	require.Equal(t, "report_"+id+".html", v.ReportFile)

	resp, err := http.Get(h.srv.URL + "/api/jobs/" + id + "/report")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>lab.local</h1>", string(body))

	// no record exporter configured
	resp, err = http.Get(h.srv.URL + "/api/jobs/" + id + "/records")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(h.srv.URL + "/api/jobs/nope/report")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOptionalMounts(t *testing.T) {
	stub := func(body string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		})
	}
	h := newHarness(t, func(c *Config) {
		c.Metrics = stub("metrics")
		c.MCP = stub("mcp")
	})

	for path, want := range map[string]string{"/metrics": "metrics", "/mcp": "mcp"} {
		resp, err := http.Get(h.srv.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, want, string(body), path)
	}

	bare := newHarness(t, nil)
	resp, err := http.Get(bare.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func TestSecurityHeadersAndCORS(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := http.Get(h.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ := http.NewRequest(http.MethodOptions, h.srv.URL+"/api/jobs", nil)
	req.Header.Set("Origin", "http://dash.local")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://dash.local", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "kaboom", hook.LastEntry().Data["panic"])
}

// ---------------------------------------------------------------------------
// Event stream
// ---------------------------------------------------------------------------

func TestEvents_ReplayFinishedJob(t *testing.T) {
	h := newHarness(t, nil)
	id := h.create(t, `{"target":"x","tools":["echo_ok","echo_fail"]}`)
	h.wait(t, id)

	resp, err := http.Get(h.srv.URL + "/api/events?job_id=" + id + "&replay=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readFrames(t, resp.Body)
	buffered, ok := h.mgr.Events(id)
	require.True(t, ok)
	require.Len(t, frames, len(buffered))

	for i, f := range frames {
		assert.Equal(t, fmt.Sprintf("%s-%d", id, i+1), f.id)
	}
	assert.Equal(t, "job_created", frames[0].event)
	last := frames[len(frames)-1]
	assert.Equal(t, "status", last.event)
	assert.Contains(t, last.data, `"status":"done"`)
}

func TestEvents_FinishedJobWithoutReplayCloses(t *testing.T) {
	h := newHarness(t, nil)
	id := h.create(t, `{"target":"x","tools":["echo_ok"]}`)
	h.wait(t, id)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(h.srv.URL + "/api/events?job_id=" + id)
	require.NoError(t, err)
	defer resp.Body.Close()

	frames := readFrames(t, resp.Body)
	require.Len(t, frames, 1)
	assert.Equal(t, "status", frames[0].event)
	assert.Contains(t, frames[0].data, `"status":"done"`)

	buffered, _ := h.mgr.Events(id)
	assert.Equal(t, fmt.Sprintf("%s-%d", id, len(buffered)), frames[0].id)
}

func TestEvents_ReplayThenLiveNoDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	id := h.create(t, `{"target":"x","tools":["block","echo_ok"]}`)

	resp, err := http.Get(h.srv.URL + "/api/events?job_id=" + id + "&replay=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	close(h.release)
	frames := readFrames(t, resp.Body)
	h.wait(t, id)

	seen := make(map[string]bool)
	for i, f := range frames {
		require.False(t, seen[f.id], "duplicate frame %s", f.id)
		seen[f.id] = true
		assert.Equal(t, fmt.Sprintf("%s-%d", id, i+1), f.id)
	}
	assert.Equal(t, "status", frames[len(frames)-1].event)
	assert.Contains(t, frames[len(frames)-1].data, `"status":"done"`)
}

func TestEvents_Keepalive(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Heartbeat = 20 * time.Millisecond })
	id := h.create(t, `{"target":"x","tools":["block"]}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/api/events?job_id="+id, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	found := false
	for sc.Scan() {
		if sc.Text() == ": keepalive" {
			found = true
			break
		}
	}
	assert.True(t, found)

	close(h.release)
	h.wait(t, id)
}

func TestEvents_UnsubscribesOnDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	base := h.bus.Subscribers()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, base+1, h.bus.Subscribers())

	cancel()
	resp.Body.Close()
	assert.Eventually(t, func() bool { return h.bus.Subscribers() == base }, 2*time.Second, 10*time.Millisecond)
}

func TestEvents_UnknownJob(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Get(h.srv.URL + "/api/events?job_id=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, h.bus.Subscribers())
}
