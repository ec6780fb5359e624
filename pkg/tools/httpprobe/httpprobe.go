// Package httpprobe fetches a web target and fingerprints it from its
// headers and HTML head.
package httpprobe

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/nadscan/nadscan/pkg/duration"
	"github.com/nadscan/nadscan/pkg/httpclient"
	"github.com/nadscan/nadscan/pkg/iohelper"
	"github.com/nadscan/nadscan/pkg/plugin"
)

// Name is the registry name of the tool.
const Name = "http_probe"

// Result is the tool output.
type Result struct {
	URL         string `json:"url"`
	FinalURL    string `json:"final_url"`
	Status      int    `json:"status"`
	Title       string `json:"title"`
	Server      string `json:"server,omitempty"`
	PoweredBy   string `json:"powered_by,omitempty"`
	Generator   string `json:"generator,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Domain      string `json:"domain,omitempty"`
}

// Tool probes HTTP targets.
type Tool struct {
	client *http.Client
}

// New creates the tool. Certificates are not verified: probes target
// hosts that often serve self-signed ones.
func New(timeout time.Duration) *Tool {
	if timeout <= 0 {
		timeout = duration.HTTPProbe
	}
	cfg := httpclient.WithTimeout(timeout)
	cfg.InsecureSkipVerify = true
	return &Tool{client: httpclient.New(cfg)}
}

// Description implements plugin.Describer.
func (t *Tool) Description() string {
	return "HTTP fingerprint: status, title, server headers, generator, registrable domain"
}

// Run implements plugin.Tool.
func (t *Tool) Run(ctx context.Context, target string, emit plugin.EmitFunc, _ plugin.Meta) (any, error) {
	u, err := NormalizeURL(target)
	if err != nil {
		return nil, err
	}
	emit(map[string]any{"info": "GET " + u})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", u, err)
	}
	defer iohelper.DrainAndClose(resp.Body)

	res := Result{
		URL:         u,
		FinalURL:    resp.Request.URL.String(),
		Status:      resp.StatusCode,
		Server:      resp.Header.Get("Server"),
		PoweredBy:   resp.Header.Get("X-Powered-By"),
		ContentType: resp.Header.Get("Content-Type"),
		Domain:      RegistrableDomain(resp.Request.URL.Hostname()),
	}
	if strings.Contains(res.ContentType, "html") || res.ContentType == "" {
		body, err := iohelper.ReadBody(resp.Body, iohelper.PageMaxBodySize)
		if err == nil {
			res.Title, res.Generator = ParseHead(body)
		}
	}

	emit(map[string]any{"summary": fmt.Sprintf("%d %s", res.Status, res.Title)})
	return res, nil
}

// NormalizeURL adds http:// to scheme-less targets and checks the result.
func NormalizeURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", plugin.ErrEmptyTarget
	}
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", target)
	}
	return u.String(), nil
}

// RegistrableDomain returns the eTLD+1 of host, or "" for addresses and
// bare suffixes.
func RegistrableDomain(host string) string {
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(strings.TrimSuffix(host, "."))
	if err != nil {
		return ""
	}
	return d
}

// ParseHead returns the document title and the generator meta tag.
func ParseHead(body []byte) (title, generator string) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
				}
			case "meta":
				if generator == "" && strings.EqualFold(attr(n, "name"), "generator") {
					generator = strings.TrimSpace(attr(n, "content"))
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, generator
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
