// Package search forwards a query to a Shodan-style search gateway and
// returns its JSON answer.
package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/duration"
	"github.com/nadscan/nadscan/pkg/httpclient"
	"github.com/nadscan/nadscan/pkg/iohelper"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/plugin"
	"github.com/nadscan/nadscan/pkg/strutil"
)

// Name is the registry name of the tool.
const Name = "shodan"

// Config points the tool at a gateway.
type Config struct {
	URL string
	// Rate is requests per second across all jobs.
	Rate    float64
	Timeout time.Duration
}

// Tool queries the gateway.
type Tool struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// New creates the tool.
func New(cfg Config) *Tool {
	if cfg.URL == "" {
		cfg.URL = defaults.SearchURL
	}
	if cfg.Rate <= 0 {
		cfg.Rate = defaults.SearchRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.SearchRequest
	}
	return &Tool{
		url:     cfg.URL,
		client:  httpclient.New(httpclient.WithTimeout(cfg.Timeout)),
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), max(1, int(cfg.Rate))),
	}
}

// Description implements plugin.Describer.
func (t *Tool) Description() string {
	return "Search gateway query (target is the query, e.g. product:Apache)"
}

// Run implements plugin.Tool.
func (t *Tool) Run(ctx context.Context, target string, emit plugin.EmitFunc, _ plugin.Meta) (any, error) {
	query := strings.TrimSpace(target)
	if query == "" {
		return nil, plugin.ErrEmptyTarget
	}
	emit(map[string]any{"info": fmt.Sprintf("querying %s: %s", t.url, query)})

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search rate limit: %w", err)
	}

	body, err := jsonutil.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", defaults.ContentTypeJSON)
	req.Header.Set("Accept", defaults.ContentTypeJSON)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search gateway: %w", err)
	}
	defer iohelper.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := iohelper.ReadBody(resp.Body, iohelper.SmallMaxBodySize)
		return nil, fmt.Errorf("search gateway returned %d: %s", resp.StatusCode, strutil.Head(strings.TrimSpace(string(msg)), 200))
	}

	raw, err := iohelper.ReadBody(resp.Body, iohelper.DefaultMaxBodySize)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	var data map[string]any
	if err := jsonutil.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	count := 0
	if results, ok := data["results"].([]any); ok {
		count = len(results)
	}
	if c, ok := data["count"].(float64); ok {
		count = int(c)
	}
	q, _ := data["query"].(string)
	if q == "" {
		q = query
	}
	emit(map[string]any{"result": map[string]any{"query": q, "count": count}})
	return data, nil
}
