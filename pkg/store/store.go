package store

import (
	"errors"
	"time"

	"storyboard/pkg/domain"
)

var (
	// ErrInsufficientCredits is returned when a debit would drive the
	// balance negative.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrUserNotFound indicates a credit adjustment against an unknown user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRefreshToken indicates a refresh token that is unknown,
	// expired, or already rotated.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// JobTransition carries the fields written alongside a guarded job status
// change. Nil pointers leave the current value untouched.
type JobTransition struct {
	ImageURL     string
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	AddAttempt   bool
}

// Store defines persistence for users, projects, scenes, scripts, generation
// jobs, subscriptions, and the credit ledger. Implementations choose their
// own concurrency control; callers never lock.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	// AdjustCredits applies a signed delta and returns the new balance.
	// A delta that would drive the balance negative fails with
	// ErrInsufficientCredits and writes nothing.
	AdjustCredits(userID string, delta int) (int, error)

	// projects
	SaveProject(domain.Project) error
	GetProject(id string) (domain.Project, bool, error)
	ListProjectsByOwner(userID string) ([]domain.Project, error)
	DeleteProject(id string) error

	// scenes
	// CreateScene assigns the next scene number within the project
	// atomically and returns the stored scene.
	CreateScene(domain.Scene) (domain.Scene, error)
	SaveScene(domain.Scene) error
	GetScene(id string) (domain.Scene, bool, error)
	ListScenesByProject(projectID string) ([]domain.Scene, error)
	DeleteScene(id string) error
	SetSceneStatus(id string, status domain.SceneStatus, imageURL string) error

	// scripts
	SaveScript(domain.Script) error
	GetScript(id string) (domain.Script, bool, error)
	ListScriptsByOwner(userID string) ([]domain.Script, error)
	DeleteScript(id string) error

	// generation jobs
	SaveJob(domain.GenerationJob) error
	GetJob(id string) (domain.GenerationJob, bool, error)
	ListJobsByUser(userID string, limit int) ([]domain.GenerationJob, error)
	// TransitionJob moves a job from one status to another, applying the
	// transition fields. Returns false without writing when the job is
	// missing or not in the expected from status.
	TransitionJob(id string, from, to domain.JobStatus, tr JobTransition) (bool, error)

	// subscriptions
	SaveSubscription(domain.Subscription) error
	GetSubscriptionByUser(userID string) (domain.Subscription, bool, error)

	// credit ledger
	AppendCreditTransaction(domain.CreditTransaction) error
	ListCreditTransactionsByUser(userID string, limit int) ([]domain.CreditTransaction, error)
}

// SessionStore persists bearer sessions keyed by access token.
// Get must treat an expired entry as absent and evict it on the read path;
// no background sweep is required or expected.
type SessionStore interface {
	Put(session domain.Session) error
	Get(accessToken string) (domain.Session, bool, error)
	Delete(accessToken string) error
}

// RefreshTokenStore persists refresh tokens for session rotation.
type RefreshTokenStore interface {
	Put(token, userID string, ttl time.Duration) error
	// Rotate invalidates the presented token and issues a replacement for
	// the same user. Unknown or already-rotated tokens fail with
	// ErrInvalidRefreshToken.
	Rotate(token, newToken string, ttl time.Duration) (userID string, err error)
	Delete(token string) error
}
