package server

import (
	"net/http"
	"strings"

	"storyboard/internal/app"
	"storyboard/internal/servicetoken"
)

type completeJobRequest struct {
	ImageURL string `json:"image_url"`
}

type failJobRequest struct {
	ErrorMessage string `json:"error_message"`
}

// handleInternalJobs serves worker callbacks. Callers authenticate with a
// short-lived service token, never a user session.
func (s *Server) handleInternalJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if s.workerTokens == nil {
		s.audit(r, "internal.jobs", "fail", "reason", "callbacks_disabled")
		s.writeAppError(w, app.Unauthorized("Worker callbacks are disabled"))
		return
	}
	issuer, err := s.workerTokens.Verify(servicetoken.FromRequest(r))
	if err != nil {
		s.audit(r, "internal.jobs", "fail", "reason", "invalid_service_token")
		s.writeAppError(w, app.Unauthorized("Invalid service token"))
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/internal/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || action == "" || strings.Contains(action, "/") {
		s.writeAppError(w, app.NotFound("Job not found"))
		return
	}
	s.audit(r, "internal.jobs."+action, "success", "issuer", issuer, "job_id", id)

	switch action {
	case "start":
		job, err := s.app.StartJob(id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, job)
	case "complete":
		var req completeJobRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeAppError(w, err)
			return
		}
		job, err := s.app.CompleteJob(id, req.ImageURL)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, job)
	case "fail":
		var req failJobRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeAppError(w, err)
			return
		}
		job, err := s.app.FailJob(id, req.ErrorMessage)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, job)
	default:
		s.writeAppError(w, app.NotFound("Job not found"))
	}
}
