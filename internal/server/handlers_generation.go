package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"storyboard/internal/app"
	"storyboard/pkg/domain"
)

// maxJobWait caps the long-poll window on job reads.
const maxJobWait = 30 * time.Second

type generationRequest struct {
	SceneID        string `json:"sceneId"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negativePrompt"`
	Style          string `json:"style"`
	AspectRatio    string `json:"aspectRatio"`
}

func (s *Server) handleGenerationRequest(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req generationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeAppError(w, err)
		return
	}
	job, err := s.app.RequestGeneration(r.Context(), user.ID, app.GenerationRequest{
		SceneID:        req.SceneID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Style:          req.Style,
		AspectRatio:    req.AspectRatio,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeData(w, http.StatusCreated, job)
}

func (s *Server) handleGenerationList(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	jobs, err := s.app.ListJobs(user.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, jobs)
}

func (s *Server) handleGenerationByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/generation/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeAppError(w, app.NotFound("Job not found"))
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		wait := parseWait(r.URL.Query().Get("wait"))
		var (
			job domain.GenerationJob
			err error
		)
		if wait > 0 {
			job, err = s.app.AwaitJob(r.Context(), user.ID, id, wait)
		} else {
			job, err = s.app.GetJob(user.ID, id)
		}
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, job)
	case action == "regenerate" && r.Method == http.MethodPost:
		job, err := s.app.Regenerate(r.Context(), user.ID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusCreated, job)
	case action == "":
		writeMethodNotAllowed(w)
	default:
		s.writeAppError(w, app.NotFound("Job not found"))
	}
}

// parseWait accepts a Go duration ("5s") or whole seconds ("5"). Invalid or
// negative values disable waiting.
func parseWait(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	wait, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0
		}
		wait = time.Duration(secs) * time.Second
	}
	if wait < 0 {
		return 0
	}
	if wait > maxJobWait {
		wait = maxJobWait
	}
	return wait
}
