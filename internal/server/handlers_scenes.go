package server

import (
	"net/http"
	"strings"

	"storyboard/internal/app"
	"storyboard/pkg/domain"
)

type sceneCreateRequest struct {
	ProjectID      string            `json:"projectId"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Dialogue       string            `json:"dialogue"`
	Characters     []string          `json:"characters"`
	Location       string            `json:"location"`
	TimeOfDay      string            `json:"timeOfDay"`
	CameraAngle    string            `json:"cameraAngle"`
	Style          string            `json:"style"`
	AspectRatio    string            `json:"aspectRatio"`
	Prompt         string            `json:"prompt"`
	NegativePrompt string            `json:"negativePrompt"`
	Metadata       map[string]string `json:"metadata"`
}

type sceneUpdateRequest struct {
	Title          *string           `json:"title"`
	Description    *string           `json:"description"`
	Dialogue       *string           `json:"dialogue"`
	Characters     []string          `json:"characters"`
	Location       *string           `json:"location"`
	TimeOfDay      *string           `json:"timeOfDay"`
	CameraAngle    *string           `json:"cameraAngle"`
	Style          *string           `json:"style"`
	AspectRatio    *string           `json:"aspectRatio"`
	Prompt         *string           `json:"prompt"`
	NegativePrompt *string           `json:"negativePrompt"`
	Status         *string           `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
		if projectID == "" {
			s.writeAppError(w, app.BadRequest("projectId query parameter is required", nil))
			return
		}
		scenes, err := s.app.ListScenes(user.ID, projectID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, scenes)
	case http.MethodPost:
		var req sceneCreateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeAppError(w, err)
			return
		}
		scene, err := s.app.CreateScene(user.ID, app.SceneInput{
			ProjectID:      req.ProjectID,
			Title:          req.Title,
			Description:    req.Description,
			Dialogue:       req.Dialogue,
			Characters:     req.Characters,
			Location:       req.Location,
			TimeOfDay:      req.TimeOfDay,
			CameraAngle:    req.CameraAngle,
			Style:          req.Style,
			AspectRatio:    req.AspectRatio,
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Metadata:       req.Metadata,
		})
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusCreated, scene)
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *Server) handleScenesByProject(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	projectID := strings.TrimPrefix(r.URL.Path, "/api/scenes/project/")
	if projectID == "" || strings.Contains(projectID, "/") {
		s.writeAppError(w, app.NotFound("Project not found"))
		return
	}
	scenes, err := s.app.ListScenes(user.ID, projectID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, scenes)
}

func (s *Server) handleSceneByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/scenes/")
	if id == "" || strings.Contains(id, "/") {
		s.writeAppError(w, app.NotFound("Scene not found"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		scene, err := s.app.GetScene(user.ID, id)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, scene)
	case http.MethodPut:
		var req sceneUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeAppError(w, err)
			return
		}
		scene, err := s.app.UpdateScene(user.ID, id, app.SceneUpdate{
			Title:          req.Title,
			Description:    req.Description,
			Dialogue:       req.Dialogue,
			Characters:     req.Characters,
			Location:       req.Location,
			TimeOfDay:      req.TimeOfDay,
			CameraAngle:    req.CameraAngle,
			Style:          req.Style,
			AspectRatio:    req.AspectRatio,
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Status:         req.Status,
			Metadata:       req.Metadata,
		})
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, scene)
	case http.MethodDelete:
		if err := s.app.DeleteScene(user.ID, id); err != nil {
			s.writeAppError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"message": "Scene deleted"})
	default:
		writeMethodNotAllowed(w)
	}
}
