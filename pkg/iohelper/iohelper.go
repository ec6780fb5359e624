// Package iohelper reads HTTP bodies with size limits.
package iohelper

import "io"

// Body size limits.
const (
	// SmallMaxBodySize is for error pages (8KB)
	SmallMaxBodySize int64 = 8 * 1024

	// PageMaxBodySize bounds HTML parsed by probes (512KB)
	PageMaxBodySize int64 = 512 * 1024

	// DefaultMaxBodySize is for JSON API responses (4MB)
	DefaultMaxBodySize int64 = 4 * 1024 * 1024
)

// ReadBody reads at most maxSize bytes from r. A nil reader yields an
// empty slice.
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// DrainAndClose discards up to 64KB of what is left in r and closes it so
// the connection can be reused. It always returns nil for use in defer.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	if rc, ok := r.(io.ReadCloser); ok {
		_ = rc.Close()
	}
	return nil
}
