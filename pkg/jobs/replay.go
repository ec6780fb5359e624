package jobs

import "github.com/nadscan/nadscan/pkg/events"

// replay is a fixed-size ring holding the most recent events of a job.
// It is guarded by the owning Job's mutex.
type replay struct {
	buf   []events.Event
	start int
	n     int
}

func newReplay(limit int) *replay {
	return &replay{buf: make([]events.Event, limit)}
}

func (r *replay) add(e events.Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = e
		r.n++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *replay) len() int { return r.n }

// snapshot returns the buffered events oldest first.
func (r *replay) snapshot() []events.Event {
	out := make([]events.Event, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
