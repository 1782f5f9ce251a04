package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string
	PasswordHash string    `gorm:"not null"`
	Credits      int       `gorm:"not null"`
	Tier         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ProjectModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	Title        string `gorm:"not null"`
	Description  string
	ThumbnailURL string
	Status       string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type SceneModel struct {
	ID             string `gorm:"primaryKey"`
	ProjectID      string `gorm:"not null;index:idx_scene_project;index:idx_scene_project_number,unique"`
	SceneNumber    int    `gorm:"not null;index:idx_scene_project_number,unique"`
	Title          string `gorm:"not null"`
	Description    string `gorm:"type:text;not null"`
	Dialogue       string `gorm:"type:text"`
	Characters     datatypes.JSON `gorm:"type:jsonb"`
	Location       string
	TimeOfDay      string `gorm:"not null"`
	CameraAngle    string `gorm:"not null"`
	Style          string `gorm:"not null"`
	AspectRatio    string `gorm:"not null"`
	ImageURL       string
	Prompt         string `gorm:"type:text"`
	NegativePrompt string `gorm:"type:text"`
	Status         string         `gorm:"not null"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

type ScriptModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	Filename     string `gorm:"not null"`
	FileType     string `gorm:"not null"`
	FileSize     int64  `gorm:"not null"`
	StorageKey   string
	Status       string `gorm:"not null"`
	ErrorMessage string
	ParsedScenes datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null"`
}

type GenerationJobModel struct {
	ID             string `gorm:"primaryKey"`
	SceneID        string `gorm:"not null;index"`
	UserID         string `gorm:"not null;index"`
	Status         string `gorm:"not null"`
	Prompt         string `gorm:"type:text;not null"`
	NegativePrompt string `gorm:"type:text"`
	Style          string `gorm:"not null"`
	AspectRatio    string `gorm:"not null"`
	ImageURL       string
	ErrorMessage   string
	Attempts       int `gorm:"not null"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time `gorm:"not null;index"`
}

type SubscriptionModel struct {
	ID                   string `gorm:"primaryKey"`
	UserID               string `gorm:"not null;uniqueIndex"`
	StripeSubscriptionID string
	StripeCustomerID     string
	Tier                 string `gorm:"not null"`
	Status               string `gorm:"not null"`
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

type CreditTransactionModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	Amount       int    `gorm:"not null"`
	Type         string `gorm:"not null"`
	Description  string
	BalanceAfter int            `gorm:"not null"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index"`
}
