package mcpserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nadscan/nadscan/pkg/defaults"
)

// sseKeepAlive wraps an SSE handler so a comment line is written every
// interval while the stream is open.
func sseKeepAlive(next http.Handler, interval time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept"), defaults.ContentTypeSSE) {
			next.ServeHTTP(w, r)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		kw := &keepAliveWriter{
			ResponseWriter: w,
			flusher:        flusher,
			done:           make(chan struct{}),
		}
		go kw.keepAliveLoop(interval)
		defer close(kw.done)

		next.ServeHTTP(kw, r)
	})
}

// keepAliveWriter serializes writes from the SSE handler and the
// keepalive goroutine.
type keepAliveWriter struct {
	mu sync.Mutex
	http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

func (kw *keepAliveWriter) Write(p []byte) (int, error) {
	kw.mu.Lock()
	defer kw.mu.Unlock()
	return kw.ResponseWriter.Write(p)
}

// Flush implements http.Flusher; the SDK's SSE handler asserts it.
func (kw *keepAliveWriter) Flush() {
	kw.mu.Lock()
	defer kw.mu.Unlock()
	kw.flusher.Flush()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (kw *keepAliveWriter) Unwrap() http.ResponseWriter {
	return kw.ResponseWriter
}

func (kw *keepAliveWriter) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-kw.done:
			return
		case <-ticker.C:
			kw.mu.Lock()
			_, err := kw.ResponseWriter.Write([]byte(": keepalive\n\n"))
			if err != nil {
				kw.mu.Unlock()
				return
			}
			kw.flusher.Flush()
			kw.mu.Unlock()
		}
	}
}
