// Package jsonutil wraps github.com/go-json-experiment/json for every JSON
// touch point in nadscan: API responses, record exports, NATS payloads and
// the loose-to-typed conversions the correlation rules rely on.
//
// Map keys are always emitted in sorted order so exports and reports are
// reproducible.
package jsonutil

import (
	"io"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Unmarshal parses the JSON-encoded data and stores the result in v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Marshal returns the deterministic JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v, json.Deterministic(true))
}

// MarshalIndent returns the indented JSON encoding of v.
func MarshalIndent(v any, indent string) ([]byte, error) {
	return json.Marshal(v, json.Deterministic(true), jsontext.WithIndent(indent))
}

// Convert re-shapes src into dst by encoding and decoding it. Tool results
// arrive as arbitrary values (typed structs from builtin tools, generic maps
// from scripts); Convert gives consumers a typed view of either.
func Convert(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return jsontext.Value(data).IsValid()
}

// Encoder writes newline-delimited JSON values. It is safe for concurrent
// use; each value is written in a single locked call.
type Encoder struct {
	mu     sync.Mutex
	w      io.Writer
	indent string
}

// NewStreamEncoder creates an encoder that writes to w.
func NewStreamEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// SetIndent formats each subsequent value with the given indentation.
func (e *Encoder) SetIndent(indent string) {
	e.mu.Lock()
	e.indent = indent
	e.mu.Unlock()
}

// Encode writes the JSON encoding of v followed by a newline.
func (e *Encoder) Encode(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	opts := []json.Options{json.Deterministic(true)}
	if e.indent != "" {
		opts = append(opts, jsontext.WithIndent(e.indent))
	}
	if err := json.MarshalWrite(e.w, v, opts...); err != nil {
		return err
	}
	_, err := e.w.Write([]byte{'\n'})
	return err
}

// Decoder reads consecutive JSON values from a stream.
type Decoder struct {
	dec *jsontext.Decoder
}

// NewStreamDecoder creates a decoder that reads from r.
func NewStreamDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: jsontext.NewDecoder(r)}
}

// Decode reads the next JSON value from the stream and stores it in v.
// It returns io.EOF once the stream is exhausted.
func (d *Decoder) Decode(v any) error {
	val, err := d.dec.ReadValue()
	if err != nil {
		return err
	}
	return json.Unmarshal(val, v)
}

// DecodeReader reads one JSON value from r into v.
func DecodeReader(r io.Reader, v any) error {
	return json.UnmarshalRead(r, v)
}
