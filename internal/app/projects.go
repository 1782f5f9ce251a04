package app

import (
	"fmt"
	"strings"

	"storyboard/internal/util"
	"storyboard/pkg/domain"
)

const (
	maxProjectTitleLen       = 200
	maxProjectDescriptionLen = 1000
)

// ProjectInput carries create/update fields for a project. Nil pointers on
// update leave the current value untouched.
type ProjectInput struct {
	Title        *string
	Description  *string
	ThumbnailURL *string
	Status       *string
}

// CreateProject stores a new draft project for the user.
func (a *App) CreateProject(userID string, in ProjectInput) (domain.Project, error) {
	title := ""
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
	}
	description := ""
	if in.Description != nil {
		description = strings.TrimSpace(*in.Description)
	}
	if details := validateProjectFields(title, description, true); details != nil {
		return domain.Project{}, BadRequest("Invalid project", details)
	}
	now := a.now().UTC()
	project := domain.Project{
		ID:          util.NewID(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Status:      domain.ProjectDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.ThumbnailURL != nil {
		project.ThumbnailURL = strings.TrimSpace(*in.ThumbnailURL)
	}
	if err := a.store.SaveProject(project); err != nil {
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	return project, nil
}

// GetProject returns the project when it exists and belongs to the user.
// Foreign projects are indistinguishable from missing ones.
func (a *App) GetProject(userID, projectID string) (domain.Project, error) {
	project, found, err := a.store.GetProject(projectID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	if !found || project.UserID != userID {
		return domain.Project{}, NotFound("Project not found")
	}
	return project, nil
}

// ListProjects returns the user's projects, newest first.
func (a *App) ListProjects(userID string) ([]domain.Project, error) {
	projects, err := a.store.ListProjectsByOwner(userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// UpdateProject applies the provided fields to an owned project.
func (a *App) UpdateProject(userID, projectID string, in ProjectInput) (domain.Project, error) {
	project, err := a.GetProject(userID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if in.Title != nil {
		project.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		project.Description = strings.TrimSpace(*in.Description)
	}
	if in.ThumbnailURL != nil {
		project.ThumbnailURL = strings.TrimSpace(*in.ThumbnailURL)
	}
	if in.Status != nil {
		status, ok := domain.ParseProjectStatus(*in.Status)
		if !ok {
			return domain.Project{}, BadRequest("Invalid project", map[string]string{"status": "unknown status"})
		}
		project.Status = status
	}
	if details := validateProjectFields(project.Title, project.Description, true); details != nil {
		return domain.Project{}, BadRequest("Invalid project", details)
	}
	project.UpdatedAt = a.now().UTC()
	if err := a.store.SaveProject(project); err != nil {
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	return project, nil
}

// DeleteProject removes an owned project and its scenes.
func (a *App) DeleteProject(userID, projectID string) error {
	if _, err := a.GetProject(userID, projectID); err != nil {
		return err
	}
	if err := a.store.DeleteProject(projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func validateProjectFields(title, description string, titleRequired bool) map[string]string {
	details := map[string]string{}
	if titleRequired && title == "" {
		details["title"] = "title is required"
	}
	if len(title) > maxProjectTitleLen {
		details["title"] = fmt.Sprintf("title must be at most %d characters", maxProjectTitleLen)
	}
	if len(description) > maxProjectDescriptionLen {
		details["description"] = fmt.Sprintf("description must be at most %d characters", maxProjectDescriptionLen)
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
