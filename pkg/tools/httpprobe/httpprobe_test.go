package httpprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadscan/nadscan/pkg/plugin"
)

const page = `<!doctype html><html><head>
<meta name="Generator" content=" WordPress 6.5 ">
<title>
  Acme   Portal
</title></head><body><title>not this</title></body></html>`

func TestParseHead(t *testing.T) {
	title, gen := ParseHead([]byte(page))
	assert.Equal(t, "Acme Portal", title)
	assert.Equal(t, "WordPress 6.5", gen)

	title, gen = ParseHead([]byte("plain text"))
	assert.Empty(t, title)
	assert.Empty(t, gen)
}

func TestNormalizeURL(t *testing.T) {
	u, err := NormalizeURL("example.org/login")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/login", u)

	u, err = NormalizeURL("https://example.org")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", u)

	_, err = NormalizeURL("")
	assert.ErrorIs(t, err, plugin.ErrEmptyTarget)
	_, err = NormalizeURL("ftp://example.org")
	assert.Error(t, err)
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "example.co.uk", RegistrableDomain("www.shop.example.co.uk"))
	assert.Equal(t, "example.org", RegistrableDomain("example.org."))
	assert.Empty(t, RegistrableDomain("127.0.0.1"))
	assert.Empty(t, RegistrableDomain("co.uk"))
}

func TestTool_Run(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "nginx/1.25")
		w.Header().Set("X-Powered-By", "PHP/8.3")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var msgs []any
	out, err := New(0).Run(context.Background(), strings.TrimPrefix(srv.URL, "http://"), func(m any) { msgs = append(msgs, m) }, nil)
	require.NoError(t, err)

	res := out.(Result)
	assert.Equal(t, srv.URL, res.URL)
	assert.Equal(t, srv.URL+"/home", res.FinalURL)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "Acme Portal", res.Title)
	assert.Equal(t, "nginx/1.25", res.Server)
	assert.Equal(t, "PHP/8.3", res.PoweredBy)
	assert.Equal(t, "WordPress 6.5", res.Generator)
	assert.Empty(t, res.Domain)
	assert.Len(t, msgs, 2)
}
