package app

import (
	"time"

	"storyboard/pkg/dispatch"
	"storyboard/pkg/storage"
	"storyboard/pkg/store"
)

const (
	// SignupCredits is the starting grant for new accounts.
	SignupCredits = 10
	// GenerationCost is debited once per completed generation job.
	GenerationCost = 1
	// JobListLimit caps the job history endpoint.
	JobListLimit = 50
	// MaxScriptBytes caps script uploads.
	MaxScriptBytes = 10 << 20
)

// Config holds dependencies and tuning for the core application.
type Config struct {
	Store         store.Store
	Sessions      store.SessionStore
	RefreshTokens store.RefreshTokenStore
	Objects       storage.ObjectStore
	Dispatcher    dispatch.Dispatcher
	SessionTTL    time.Duration
	RefreshTTL    time.Duration
}

// App is the core application service wiring storage, sessions, object
// storage, and job dispatch together.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	refreshTokens store.RefreshTokenStore
	objects       storage.ObjectStore
	dispatcher    dispatch.Dispatcher
	sessionTTL    time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// New constructs the application. Store, Sessions, and RefreshTokens are
// required; Objects and Dispatcher fall back to in-memory and no-op
// implementations for dev mode.
func New(cfg Config) *App {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	objects := cfg.Objects
	if objects == nil {
		objects = storage.NewMemoryStore()
	}
	var dispatcher dispatch.Dispatcher = cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.NoopDispatcher{}
	}
	return &App{
		store:         cfg.Store,
		sessions:      cfg.Sessions,
		refreshTokens: cfg.RefreshTokens,
		objects:       objects,
		dispatcher:    dispatcher,
		sessionTTL:    cfg.SessionTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// WithClock overrides the time source for tests.
func (a *App) WithClock(now func() time.Time) *App {
	a.now = now
	return a
}
