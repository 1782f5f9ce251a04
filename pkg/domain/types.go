package domain

import (
	"strings"
	"time"
)

type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierBasic      SubscriptionTier = "basic"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectProcessing ProjectStatus = "processing"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectFailed     ProjectStatus = "failed"
)

type SceneStatus string

const (
	ScenePending    SceneStatus = "pending"
	SceneGenerating SceneStatus = "generating"
	SceneCompleted  SceneStatus = "completed"
	SceneFailed     SceneStatus = "failed"
)

type ScriptStatus string

const (
	ScriptUploaded ScriptStatus = "uploaded"
	ScriptParsing  ScriptStatus = "parsing"
	ScriptParsed   ScriptStatus = "parsed"
	ScriptFailed   ScriptStatus = "failed"
)

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

type TransactionType string

const (
	TxGrant      TransactionType = "grant"
	TxPurchase   TransactionType = "purchase"
	TxUsage      TransactionType = "usage"
	TxRefund     TransactionType = "refund"
	TxExpiration TransactionType = "expiration"
)

type User struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	Name         string           `json:"name,omitempty"`
	PasswordHash string           `json:"-"`
	Credits      int              `json:"credits"`
	Tier         SubscriptionTier `json:"subscriptionTier"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// Session binds a pair of opaque tokens to a user snapshot taken at issuance.
// Credit or tier changes after login are not reflected until re-login.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"-"`
}

// Expired reports whether the session TTL has elapsed at the given time.
func (s Session) Expired(now time.Time) bool {
	return now.UnixMilli() > s.ExpiresAt
}

type Project struct {
	ID           string        `json:"id"`
	UserID       string        `json:"-"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	ThumbnailURL string        `json:"thumbnailUrl,omitempty"`
	Status       ProjectStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type Scene struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"projectId"`
	SceneNumber    int               `json:"sceneNumber"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Dialogue       string            `json:"dialogue,omitempty"`
	Characters     []string          `json:"characters"`
	Location       string            `json:"location,omitempty"`
	TimeOfDay      string            `json:"timeOfDay"`
	CameraAngle    string            `json:"cameraAngle"`
	Style          string            `json:"style"`
	AspectRatio    string            `json:"aspectRatio"`
	ImageURL       string            `json:"imageUrl,omitempty"`
	Prompt         string            `json:"prompt,omitempty"`
	NegativePrompt string            `json:"negativePrompt,omitempty"`
	Status         SceneStatus       `json:"status"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SceneDraft is a scene extracted from an uploaded script, not yet attached
// to a project.
type SceneDraft struct {
	SceneNumber int    `json:"sceneNumber"`
	Slugline    string `json:"slugline"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
	TimeOfDay   string `json:"timeOfDay,omitempty"`
}

type Script struct {
	ID           string       `json:"id"`
	UserID       string       `json:"-"`
	Filename     string       `json:"filename"`
	FileType     string       `json:"file_type"`
	FileSize     int64        `json:"file_size"`
	StorageKey   string       `json:"-"`
	Status       ScriptStatus `json:"status"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	ParsedScenes []SceneDraft `json:"parsedScenes,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

type GenerationJob struct {
	ID             string     `json:"id"`
	SceneID        string     `json:"scene_id"`
	UserID         string     `json:"user_id"`
	Status         JobStatus  `json:"status"`
	Prompt         string     `json:"prompt"`
	NegativePrompt string     `json:"negative_prompt,omitempty"`
	Style          string     `json:"style"`
	AspectRatio    string     `json:"aspect_ratio"`
	ImageURL       string     `json:"image_url,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Attempts       int        `json:"attempts"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Terminal reports whether the job has reached a final state.
func (j GenerationJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

type Subscription struct {
	ID                   string           `json:"id"`
	UserID               string           `json:"user_id"`
	StripeSubscriptionID string           `json:"stripe_subscription_id,omitempty"`
	StripeCustomerID     string           `json:"stripe_customer_id,omitempty"`
	Tier                 SubscriptionTier `json:"tier"`
	Status               string           `json:"status"`
	CurrentPeriodStart   *time.Time       `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time       `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool             `json:"cancel_at_period_end"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

type CreditTransaction struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Amount       int               `json:"amount"`
	Type         TransactionType   `json:"type"`
	Description  string            `json:"description"`
	BalanceAfter int               `json:"balance_after"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

var (
	styles       = []string{"cinematic", "anime", "disney", "pixar", "noir", "sketch"}
	aspectRatios = []string{"16:9", "9:16", "1:1", "2.35:1"}
	timesOfDay   = []string{"dawn", "day", "dusk", "night", "interior"}
	cameraAngles = []string{"wide", "medium", "closeup", "extreme-closeup", "over-the-shoulder", "point-of-view"}
)

// ValidStyle reports whether the value is a supported visual style.
func ValidStyle(v string) bool { return contains(styles, v) }

// ValidAspectRatio reports whether the value is a supported aspect ratio.
func ValidAspectRatio(v string) bool { return contains(aspectRatios, v) }

// ValidTimeOfDay reports whether the value is a supported time of day.
func ValidTimeOfDay(v string) bool { return contains(timesOfDay, v) }

// ValidCameraAngle reports whether the value is a supported camera angle.
func ValidCameraAngle(v string) bool { return contains(cameraAngles, v) }

func ParseProjectStatus(v string) (ProjectStatus, bool) {
	switch s := ProjectStatus(strings.TrimSpace(v)); s {
	case ProjectDraft, ProjectProcessing, ProjectCompleted, ProjectFailed:
		return s, true
	}
	return "", false
}

func ParseSceneStatus(v string) (SceneStatus, bool) {
	switch s := SceneStatus(strings.TrimSpace(v)); s {
	case ScenePending, SceneGenerating, SceneCompleted, SceneFailed:
		return s, true
	}
	return "", false
}

func contains(values []string, v string) bool {
	for _, item := range values {
		if item == v {
			return true
		}
	}
	return false
}
