package app

import (
	"fmt"
	"strings"

	"storyboard/internal/util"
	"storyboard/pkg/domain"
)

// Defaults applied when a scene omits visual parameters.
const (
	DefaultStyle       = "cinematic"
	DefaultAspectRatio = "16:9"
	DefaultTimeOfDay   = "day"
	DefaultCameraAngle = "medium"
)

// SceneInput carries create fields for a scene.
type SceneInput struct {
	ProjectID      string
	Title          string
	Description    string
	Dialogue       string
	Characters     []string
	Location       string
	TimeOfDay      string
	CameraAngle    string
	Style          string
	AspectRatio    string
	Prompt         string
	NegativePrompt string
	Metadata       map[string]string
}

// SceneUpdate carries optional update fields. Nil pointers leave the current
// value untouched.
type SceneUpdate struct {
	Title          *string
	Description    *string
	Dialogue       *string
	Characters     []string
	Location       *string
	TimeOfDay      *string
	CameraAngle    *string
	Style          *string
	AspectRatio    *string
	Prompt         *string
	NegativePrompt *string
	Status         *string
	Metadata       map[string]string
}

// CreateScene appends a scene to an owned project. The scene number is
// assigned by the store so concurrent creates never collide.
func (a *App) CreateScene(userID string, in SceneInput) (domain.Scene, error) {
	if _, err := a.GetProject(userID, strings.TrimSpace(in.ProjectID)); err != nil {
		return domain.Scene{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	applySceneDefaults(&in)
	if details := validateSceneFields(in.Title, in.Description, in.TimeOfDay, in.CameraAngle, in.Style, in.AspectRatio); details != nil {
		return domain.Scene{}, BadRequest("Invalid scene", details)
	}
	now := a.now().UTC()
	scene := domain.Scene{
		ID:             util.NewID(),
		ProjectID:      strings.TrimSpace(in.ProjectID),
		Title:          in.Title,
		Description:    in.Description,
		Dialogue:       in.Dialogue,
		Characters:     in.Characters,
		Location:       strings.TrimSpace(in.Location),
		TimeOfDay:      in.TimeOfDay,
		CameraAngle:    in.CameraAngle,
		Style:          in.Style,
		AspectRatio:    in.AspectRatio,
		Prompt:         in.Prompt,
		NegativePrompt: in.NegativePrompt,
		Status:         domain.ScenePending,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if scene.Characters == nil {
		scene.Characters = []string{}
	}
	created, err := a.store.CreateScene(scene)
	if err != nil {
		return domain.Scene{}, fmt.Errorf("create scene: %w", err)
	}
	return created, nil
}

// GetScene returns the scene when its project belongs to the user.
func (a *App) GetScene(userID, sceneID string) (domain.Scene, error) {
	scene, found, err := a.store.GetScene(sceneID)
	if err != nil {
		return domain.Scene{}, fmt.Errorf("get scene: %w", err)
	}
	if !found {
		return domain.Scene{}, NotFound("Scene not found")
	}
	if _, err := a.GetProject(userID, scene.ProjectID); err != nil {
		return domain.Scene{}, NotFound("Scene not found")
	}
	return scene, nil
}

// ListScenes returns the scenes of an owned project in scene-number order.
func (a *App) ListScenes(userID, projectID string) ([]domain.Scene, error) {
	if _, err := a.GetProject(userID, projectID); err != nil {
		return nil, err
	}
	scenes, err := a.store.ListScenesByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	return scenes, nil
}

// UpdateScene applies the provided fields to an owned scene.
func (a *App) UpdateScene(userID, sceneID string, in SceneUpdate) (domain.Scene, error) {
	scene, err := a.GetScene(userID, sceneID)
	if err != nil {
		return domain.Scene{}, err
	}
	if in.Title != nil {
		scene.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		scene.Description = strings.TrimSpace(*in.Description)
	}
	if in.Dialogue != nil {
		scene.Dialogue = *in.Dialogue
	}
	if in.Characters != nil {
		scene.Characters = in.Characters
	}
	if in.Location != nil {
		scene.Location = strings.TrimSpace(*in.Location)
	}
	if in.TimeOfDay != nil {
		scene.TimeOfDay = *in.TimeOfDay
	}
	if in.CameraAngle != nil {
		scene.CameraAngle = *in.CameraAngle
	}
	if in.Style != nil {
		scene.Style = *in.Style
	}
	if in.AspectRatio != nil {
		scene.AspectRatio = *in.AspectRatio
	}
	if in.Prompt != nil {
		scene.Prompt = *in.Prompt
	}
	if in.NegativePrompt != nil {
		scene.NegativePrompt = *in.NegativePrompt
	}
	if in.Status != nil {
		status, ok := domain.ParseSceneStatus(*in.Status)
		if !ok {
			return domain.Scene{}, BadRequest("Invalid scene", map[string]string{"status": "unknown status"})
		}
		scene.Status = status
	}
	if in.Metadata != nil {
		scene.Metadata = in.Metadata
	}
	if details := validateSceneFields(scene.Title, scene.Description, scene.TimeOfDay, scene.CameraAngle, scene.Style, scene.AspectRatio); details != nil {
		return domain.Scene{}, BadRequest("Invalid scene", details)
	}
	scene.UpdatedAt = a.now().UTC()
	if err := a.store.SaveScene(scene); err != nil {
		return domain.Scene{}, fmt.Errorf("save scene: %w", err)
	}
	return scene, nil
}

// DeleteScene removes an owned scene. Remaining scenes keep their numbers.
func (a *App) DeleteScene(userID, sceneID string) error {
	if _, err := a.GetScene(userID, sceneID); err != nil {
		return err
	}
	if err := a.store.DeleteScene(sceneID); err != nil {
		return fmt.Errorf("delete scene: %w", err)
	}
	return nil
}

func applySceneDefaults(in *SceneInput) {
	if in.Style == "" {
		in.Style = DefaultStyle
	}
	if in.AspectRatio == "" {
		in.AspectRatio = DefaultAspectRatio
	}
	if in.TimeOfDay == "" {
		in.TimeOfDay = DefaultTimeOfDay
	}
	if in.CameraAngle == "" {
		in.CameraAngle = DefaultCameraAngle
	}
}

func validateSceneFields(title, description, timeOfDay, cameraAngle, style, aspectRatio string) map[string]string {
	details := map[string]string{}
	if title == "" {
		details["title"] = "title is required"
	}
	if description == "" {
		details["description"] = "description is required"
	}
	if !domain.ValidTimeOfDay(timeOfDay) {
		details["timeOfDay"] = "unknown time of day"
	}
	if !domain.ValidCameraAngle(cameraAngle) {
		details["cameraAngle"] = "unknown camera angle"
	}
	if !domain.ValidStyle(style) {
		details["style"] = "unknown style"
	}
	if !domain.ValidAspectRatio(aspectRatio) {
		details["aspectRatio"] = "unknown aspect ratio"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
