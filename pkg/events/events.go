// Package events defines the immutable notifications a job emits while it
// runs. Every event is owned by exactly one job and carries a per-job
// sequence number so transports can merge replayed and live streams.
package events

import (
	"maps"
	"slices"
	"time"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/jsonutil"
)

// Kind categorises an event.
type Kind string

const (
	// KindJobCreated announces a freshly registered job.
	KindJobCreated Kind = "job_created"
	// KindStatus reports a status transition.
	KindStatus Kind = "status"
	// KindProgress reports a tool completion and the new percentage.
	KindProgress Kind = "progress"
	// KindLog carries a tool or pipeline message.
	KindLog Kind = "log"
)

// Kinds lists every event kind in emission order of a typical job.
func Kinds() []Kind {
	return []Kind{KindJobCreated, KindStatus, KindProgress, KindLog}
}

// Payload is the open key/value body of an event.
type Payload map[string]any

// Event is a single notification. The zero value is not useful; build
// events with New. Fields are read through accessors so a published event
// cannot be altered by any receiver.
type Event struct {
	kind    Kind
	jobID   string
	seq     uint64
	time    time.Time
	payload Payload
}

// New builds an event for jobID. The payload is deep-copied, so later
// changes to maps or slices the caller still holds do not reach the event.
// job_id is always set.
func New(kind Kind, jobID string, seq uint64, payload Payload) Event {
	p := make(Payload, len(payload)+1)
	for k, v := range payload {
		p[k] = clone(v)
	}
	p[defaults.KeyJobID] = jobID
	return Event{
		kind:    kind,
		jobID:   jobID,
		seq:     seq,
		time:    time.Now().UTC(),
		payload: p,
	}
}

// Kind returns the event category.
func (e Event) Kind() Kind { return e.kind }

// JobID returns the job the event belongs to.
func (e Event) JobID() string { return e.jobID }

// Seq returns the per-job sequence number, starting at 1.
func (e Event) Seq() uint64 { return e.seq }

// Time returns the emission time.
func (e Event) Time() time.Time { return e.time }

// Payload returns a deep copy of the event body.
func (e Event) Payload() Payload {
	return clone(e.payload).(Payload)
}

// Value returns a copy of a single payload entry.
func (e Event) Value(key string) (any, bool) {
	v, ok := e.payload[key]
	return clone(v), ok
}

// String returns a payload entry as a string, or "" when absent or not a string.
func (e Event) String(key string) string {
	s, _ := e.payload[key].(string)
	return s
}

// Int returns a numeric payload entry as an int.
func (e Event) Int(key string) (int, bool) {
	switch v := e.payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// IsTerminal reports whether e is the final status event of its job.
func (e Event) IsTerminal() bool {
	return e.kind == KindStatus && e.String("status") == "done"
}

// wire is the serialised shape of an event.
type wire struct {
	Kind    Kind      `json:"kind"`
	JobID   string    `json:"job_id"`
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`
	Payload Payload   `json:"payload"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return jsonutil.Marshal(wire{Kind: e.kind, JobID: e.jobID, Seq: e.seq, Time: e.time, Payload: e.payload})
}

// UnmarshalJSON implements json.Unmarshaler. It exists for clients that
// consume bridged events; inside the process events are only built by New.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wire
	if err := jsonutil.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{kind: w.Kind, jobID: w.JobID, seq: w.Seq, time: w.Time, payload: w.Payload}
	return nil
}

// clone copies the JSON-shaped containers a payload can hold. Scalars and
// other values are returned as is; tools are expected to emit plain data.
func clone(v any) any {
	switch t := v.(type) {
	case Payload:
		if t == nil {
			return Payload(nil)
		}
		out := make(Payload, len(t))
		for k, x := range t {
			out[k] = clone(x)
		}
		return out
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = clone(x)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = clone(x)
		}
		return out
	case map[string]string:
		return maps.Clone(t)
	case []string:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []map[string]any:
		if t == nil {
			return t
		}
		out := make([]map[string]any, len(t))
		for i, x := range t {
			out[i], _ = clone(x).(map[string]any)
		}
		return out
	}
	return v
}
