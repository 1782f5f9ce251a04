package server

import (
	"net/http"
	"strings"

	"storyboard/internal/app"
	"storyboard/pkg/domain"
)

type projectRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	Status       *string `json:"status"`
}

func (p projectRequest) input() app.ProjectInput {
	return app.ProjectInput{
		Title:        p.Title,
		Description:  p.Description,
		ThumbnailURL: p.ThumbnailURL,
		Status:       p.Status,
	}
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.app.ListProjects(user.ID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, projects)
	case http.MethodPost:
		var req projectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeAppError(w, err)
			return
		}
		project, err := s.app.CreateProject(user.ID, req.input())
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusCreated, project)
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	if id == "" || strings.Contains(id, "/") {
		s.writeAppError(w, app.NotFound("Project not found"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		project, err := s.app.GetProject(user.ID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, project)
	case http.MethodPut:
		var req projectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeAppError(w, err)
			return
		}
		project, err := s.app.UpdateProject(user.ID, id, req.input())
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, project)
	case http.MethodDelete:
		if err := s.app.DeleteProject(user.ID, id); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"message": "Project deleted"})
	default:
		writeMethodNotAllowed(w)
	}
}
