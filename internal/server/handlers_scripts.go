package server

import (
	"errors"
	"net/http"
	"strings"

	"storyboard/internal/app"
	"storyboard/pkg/domain"
)

func (s *Server) handleScripts(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	scripts, err := s.app.ListScripts(user.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, scripts)
}

func (s *Server) handleScriptUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	// Slack for multipart framing on top of the file cap.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+64*1024)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeAppError(w, app.BadRequest("File too large", nil))
			return
		}
		s.writeAppError(w, app.BadRequest("Invalid multipart form", nil))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeAppError(w, app.BadRequest("file field is required", nil))
		return
	}
	defer file.Close()
	script, err := s.app.UploadScript(r.Context(), user.ID, header.Filename, header.Size, file)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "scripts.upload", "success", "user_id", user.ID, "script_id", script.ID, "bytes", script.FileSize)
	writeData(w, http.StatusCreated, script)
}

func (s *Server) handleScriptByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/scripts/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeAppError(w, app.NotFound("Script not found"))
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		script, err := s.app.GetScript(user.ID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, script)
	case action == "" && r.Method == http.MethodDelete:
		if err := s.app.DeleteScript(r.Context(), user.ID, id); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"message": "Script deleted"})
	case action == "parse" && r.Method == http.MethodPost:
		script, err := s.app.ParseScript(r.Context(), user.ID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, script)
	case action == "download" && r.Method == http.MethodGet:
		url, err := s.app.ScriptDownloadURL(r.Context(), user.ID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"url": url})
	case action == "":
		writeMethodNotAllowed(w)
	default:
		s.writeAppError(w, app.NotFound("Script not found"))
	}
}
