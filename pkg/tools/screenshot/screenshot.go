// Package screenshot captures a full-page PNG of a web target with a
// headless Chrome driven by chromedp.
package screenshot

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/duration"
	"github.com/nadscan/nadscan/pkg/plugin"
	"github.com/nadscan/nadscan/pkg/tools/httpprobe"
)

// Name is the registry name of the tool.
const Name = "web_screenshot"

// quality is the screenshot compression quality passed to Chrome.
const quality = 90

// Result is the tool output.
type Result struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	File  string `json:"file"`
	Bytes int    `json:"bytes"`
}

// CaptureFunc loads url and returns the page title and PNG bytes.
type CaptureFunc func(ctx context.Context, url string) (title string, png []byte, err error)

// Config tunes the tool.
type Config struct {
	Timeout time.Duration
	// OutputDir is used when the job does not carry a report_dir.
	OutputDir string
	// Capture replaces the chromedp implementation.
	Capture CaptureFunc
}

// Tool takes screenshots. Browser launches are rate limited to one per
// second across jobs.
type Tool struct {
	cfg     Config
	limiter *rate.Limiter
}

// New creates the tool.
func New(cfg Config) *Tool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.Screenshot
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaults.ReportDir
	}
	if cfg.Capture == nil {
		cfg.Capture = ChromeCapture
	}
	return &Tool{cfg: cfg, limiter: rate.NewLimiter(rate.Every(time.Second), 2)}
}

// Description implements plugin.Describer.
func (t *Tool) Description() string {
	return "Full-page screenshot with headless Chrome"
}

// Run implements plugin.Tool.
func (t *Tool) Run(ctx context.Context, target string, emit plugin.EmitFunc, meta plugin.Meta) (any, error) {
	u, err := httpprobe.NormalizeURL(target)
	if err != nil {
		return nil, err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("screenshot rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	emit(map[string]any{"info": "capturing " + u})
	title, png, err := t.cfg.Capture(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", u, err)
	}

	dir := meta.String(plugin.MetaReportDir)
	if dir == "" {
		dir = t.cfg.OutputDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	name := FileName(meta.JobID(), u)
	if err := os.WriteFile(filepath.Join(dir, name), png, 0o644); err != nil {
		return nil, fmt.Errorf("write screenshot: %w", err)
	}

	emit(map[string]any{"summary": fmt.Sprintf("%s (%d bytes)", name, len(png))})
	return Result{URL: u, Title: title, File: name, Bytes: len(png)}, nil
}

// FileName builds screenshot_<job8>_<host>.png with a filesystem-safe host.
func FileName(jobID, rawURL string) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		short = "run"
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, host)
	if len(host) > 100 {
		host = host[:100]
	}
	return fmt.Sprintf("screenshot_%s_%s.png", short, host)
}

// ChromeCapture drives a fresh headless Chrome for one page.
func ChromeCapture(ctx context.Context, u string) (string, []byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var title string
	var buf []byte
	// Tag browser traffic the same way the HTTP tools do.
	headers := network.Headers{"X-Scanner": defaults.ToolName + "/" + defaults.Version}
	err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(u),
		chromedp.Title(&title),
		chromedp.FullScreenshot(&buf, quality),
	)
	if err != nil {
		return "", nil, err
	}
	return title, buf, nil
}
