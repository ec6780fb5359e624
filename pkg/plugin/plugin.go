// Package plugin defines the contract every scan tool implements and the
// registry the job manager resolves tool names against.
//
// A tool receives the job target, an emit callback for progress messages and
// a metadata map that always carries the job id. It returns a result value or
// an error; the job manager records exactly one of the two.
package plugin

import (
	"context"
	"maps"
)

// EmitFunc forwards a small log message or structure to the job's event
// stream. Calls made after the tool returned are discarded.
type EmitFunc func(msg any)

// Tool is a runnable scan or enumeration unit.
type Tool interface {
	Run(ctx context.Context, target string, emit EmitFunc, meta Meta) (any, error)
}

// ToolFunc adapts an ordinary function to Tool.
type ToolFunc func(ctx context.Context, target string, emit EmitFunc, meta Meta) (any, error)

// Run calls f.
func (f ToolFunc) Run(ctx context.Context, target string, emit EmitFunc, meta Meta) (any, error) {
	return f(ctx, target, emit, meta)
}

// Describer is implemented by tools that can explain themselves in the
// tool listing.
type Describer interface {
	Description() string
}

// Info is the listing entry of a registered tool.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
}

// Tool sources.
const (
	SourceBuiltin = "builtin"
	SourceScript  = "script"
)

// Meta is the per-invocation metadata handed to a tool.
type Meta map[string]any

// Well-known meta keys.
const (
	MetaJobID     = "job_id"
	MetaReportDir = "report_dir"
)

// Clone returns a shallow copy of m. A nil Meta clones to an empty one.
func (m Meta) Clone() Meta {
	out := make(Meta, len(m)+1)
	maps.Copy(out, m)
	return out
}

// JobID returns the job identifier the tool runs under.
func (m Meta) JobID() string {
	return m.String(MetaJobID)
}

// String returns a string option, or "" when missing.
func (m Meta) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Bool returns a boolean option. Non-empty strings other than "false" and
// "0" count as true, matching how form and CLI values arrive.
func (m Meta) Bool(key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	}
	return false
}

// Int returns an integer option and whether it was present and numeric.
func (m Meta) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Map returns a nested option map, or nil.
func (m Meta) Map(key string) map[string]any {
	switch v := m[key].(type) {
	case map[string]any:
		return v
	case Meta:
		return v
	}
	return nil
}

// Strings returns a list option. A single string becomes a one-element list.
func (m Meta) Strings(key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
