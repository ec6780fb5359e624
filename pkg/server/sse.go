package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/eventbus"
	"github.com/nadscan/nadscan/pkg/events"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
)

var keepalive = []byte(": keepalive\n\n")

// handleEvents streams bus events as server-sent events.
//
//	GET /api/events                   every job, live only
//	GET /api/events?job_id=X          one job, live only
//	GET /api/events?job_id=X&replay=1 one job, buffered events first
//
// The subscription is taken before the replay snapshot, so nothing falls
// between the two; live events already covered by the replay are skipped
// by sequence number. A job-scoped stream ends after the job's terminal
// status. Every idle heartbeat interval a keepalive comment is written.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	q := r.URL.Query()
	jobID := q.Get("job_id")
	replay, _ := strconv.ParseBool(q.Get("replay"))

	opts := []eventbus.SubscribeOption{eventbus.WithBuffer(s.cfg.StreamBuffer)}
	if jobID != "" {
		if _, ok := s.cfg.Jobs.Get(jobID); !ok {
			s.writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
			return
		}
		opts = append(opts, eventbus.ForJob(jobID))
	}
	sub := s.cfg.Bus.Subscribe(opts...)
	defer s.cfg.Bus.Unsubscribe(sub)

	log := s.log.WithFields(logrus.Fields{"subscription": sub.ID(), "job_id": jobID})

	h := w.Header()
	h.Set("Content-Type", defaults.ContentTypeSSE)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	log.Debug("STREAM opened")
	defer log.Debug("STREAM closed")

	var lastSeq uint64
	if replay && jobID != "" {
		buffered, _ := s.cfg.Jobs.Events(jobID)
		for _, e := range buffered {
			if err := writeFrame(w, e); err != nil {
				return
			}
			lastSeq = e.Seq()
			if e.IsTerminal() {
				flusher.Flush()
				return
			}
		}
		flusher.Flush()
	} else if jobID != "" {
		// The subscription was opened first, so a job seen as done here
		// published its terminal event before it; send that and stop.
		if v, ok := s.cfg.Jobs.Get(jobID); ok && v.Status.IsTerminal() {
			buffered, _ := s.cfg.Jobs.Events(jobID)
			if n := len(buffered); n > 0 && buffered[n-1].IsTerminal() {
				_ = writeFrame(w, buffered[n-1])
			}
			flusher.Flush()
			return
		}
	}

	idle := time.NewTimer(s.cfg.Heartbeat)
	defer idle.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-idle.C:
			if _, err := w.Write(keepalive); err != nil {
				return
			}
			flusher.Flush()
			idle.Reset(s.cfg.Heartbeat)

		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if jobID != "" && e.Seq() <= lastSeq {
				continue
			}
			if err := writeFrame(w, e); err != nil {
				log.WithError(err).Debug("WRITE failed")
				return
			}
			flusher.Flush()
			if jobID != "" && e.IsTerminal() {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.Heartbeat)
		}
	}
}

// writeFrame writes one SSE frame. The id is "<job>-<seq>" so a client can
// tell frames of different jobs apart on the unfiltered stream.
func writeFrame(w http.ResponseWriter, e events.Event) error {
	data, err := jsonutil.Marshal(e)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "id: %s-%d\nevent: %s\ndata: ", e.JobID(), e.Seq(), e.Kind())
	buf.Write(data)
	buf.WriteString("\n\n")
	_, err = w.Write(buf.Bytes())
	return err
}
