package server

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/nadscan/nadscan/pkg/defaults"
	"github.com/nadscan/nadscan/pkg/jobs"
	"github.com/nadscan/nadscan/pkg/jsonutil"
	"github.com/nadscan/nadscan/pkg/plugin"
)

// CreateRequest is the body of POST /api/jobs. Tools may hold glob
// selectors such as "dns_*".
type CreateRequest struct {
	Target string      `json:"target"`
	Tools  []string    `json:"tools"`
	Meta   plugin.Meta `json:"meta,omitempty"`
}

// CreateResponse is returned with 202 Accepted.
type CreateResponse struct {
	JobID string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	Version    string `json:"version"`
	ActiveJobs int    `json:"active_jobs"`
}

type jobList struct {
	Count int         `json:"count"`
	Jobs  []jobs.View `json:"jobs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Service:    defaults.ToolName,
		Version:    defaults.Version,
		ActiveJobs: s.cfg.Jobs.ActiveCount(),
	})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Tools.Describe())
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	body := http.MaxBytesReader(w, r.Body, defaults.MaxRequestBody)
	if err := jsonutil.DecodeReader(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	tools, err := s.cfg.Tools.Expand(req.Tools)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.cfg.Jobs.Enqueue(req.Target, tools, req.Meta)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Location", "/api/jobs/"+id)
	s.writeJSON(w, http.StatusAccepted, CreateResponse{JobID: id})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	views := s.cfg.Jobs.List()
	s.writeJSON(w, http.StatusOK, jobList{Count: len(views), Jobs: views})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	v, ok := s.cfg.Jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cfg.Jobs.Cancel(id); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, CreateResponse{JobID: id})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, func(v jobs.View) string { return v.ReportFile }, "")
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, func(v jobs.View) string { return v.RecordsFile }, "application/x-ndjson")
}

// serveExport streams a finished job's export file from the report
// directory. Only the base name recorded on the job is used.
func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, pick func(jobs.View) string, contentType string) {
	v, ok := s.cfg.Jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
		return
	}
	name := pick(v)
	if name == "" {
		s.writeError(w, http.StatusNotFound, "export not available")
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeFile(w, r, filepath.Join(s.cfg.ReportDir, filepath.Base(name)))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := jsonutil.Marshal(v)
	if err != nil {
		s.log.WithError(err).Error("ENCODE failed")
		status = http.StatusInternalServerError
		data = []byte(`{"error":"encoding response"}`)
	}
	w.Header().Set("Content-Type", defaults.ContentTypeJSON)
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.log.WithFields(logrus.Fields{"status": status}).WithError(err).Debug("WRITE failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
