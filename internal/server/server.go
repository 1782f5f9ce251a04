package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storyboard/internal/app"
	"storyboard/internal/ratelimit"
	"storyboard/internal/servicetoken"
	"storyboard/internal/util"
	"storyboard/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	WorkerTokens   *servicetoken.Verifier
	SignupLimiter  *ratelimit.FixedWindowLimiter
	LoginLimiter   *ratelimit.FixedWindowLimiter
	MaxUploadBytes int64
	Env            string
	TrustedProxies *util.TrustedProxies
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	workerTokens   *servicetoken.Verifier
	mux            *http.ServeMux
	maxUploadBytes int64
	env            string
	proxies        *util.TrustedProxies
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	startedAt      time.Time
}

// New constructs the server with routes configured. Nil limiters disable
// rate limiting, a nil worker token verifier disables the internal job
// endpoints.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an application")
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = app.MaxScriptBytes
	}
	s := &Server{
		app:            cfg.App,
		workerTokens:   cfg.WorkerTokens,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUpload,
		env:            cfg.Env,
		proxies:        cfg.TrustedProxies,
		signupLimiter:  cfg.SignupLimiter,
		loginLimiter:   cfg.LoginLimiter,
		startedAt:      time.Now(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/auth/me", s.authenticated(s.handleMe))

	// projects and scenes
	s.mux.Handle("/api/projects", s.authenticated(s.handleProjects))
	s.mux.Handle("/api/projects/", s.authenticated(s.handleProjectByID))
	s.mux.Handle("/api/scenes", s.authenticated(s.handleScenes))
	s.mux.Handle("/api/scenes/project/", s.authenticated(s.handleScenesByProject))
	s.mux.Handle("/api/scenes/", s.authenticated(s.handleSceneByID))

	// scripts
	s.mux.Handle("/api/scripts", s.authenticated(s.handleScripts))
	s.mux.Handle("/api/scripts/upload", s.authenticated(s.handleScriptUpload))
	s.mux.Handle("/api/scripts/", s.authenticated(s.handleScriptByID))

	// generation
	s.mux.Handle("/api/generation", s.authenticated(s.handleGenerationList))
	s.mux.Handle("/api/generation/image", s.authenticated(s.handleGenerationRequest))
	s.mux.Handle("/api/generation/", s.authenticated(s.handleGenerationByID))

	// billing
	s.mux.Handle("/api/subscriptions/me", s.authenticated(s.handleSubscription))
	s.mux.Handle("/api/subscriptions/checkout", s.authenticated(s.handleCheckout))
	s.mux.Handle("/api/subscriptions/portal", s.authenticated(s.handlePortal))
	s.mux.HandleFunc("/api/subscriptions/webhook", s.handleBillingWebhook)
	s.mux.Handle("/api/credits/transactions", s.authenticated(s.handleCreditTransactions))

	// worker callbacks
	s.mux.HandleFunc("/internal/jobs/", s.handleInternalJobs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "api.authorize", "fail", "reason", "missing_token")
			s.writeAppError(w, app.ErrSessionRequired)
			return
		}
		user, ok, err := s.app.Authenticate(token)
		if err != nil {
			s.audit(r, "api.authorize", "fail", "reason", "session_lookup_failed")
			s.writeInternalError(w, err)
			return
		}
		if !ok {
			s.audit(r, "api.authorize", "fail", "reason", "invalid_token")
			s.writeAppError(w, app.ErrSessionRequired)
			return
		}
		s.audit(r, "api.authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.proxies),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

// allowRate checks the limiter. A nil limiter means the endpoint is not
// rate limited.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.proxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	s.writeAppError(w, app.TooManyRequests(msg))
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// envelope helpers

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool `json:"success"`
		Data    any  `json:"data"`
	}{Success: true, Data: data})
}

func writeErrorEnvelope(w http.ResponseWriter, status int, e apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool     `json:"success"`
		Error   apiError `json:"error"`
	}{Success: false, Error: e})
}

// writeAppError maps application errors to the envelope. Anything that is
// not an *app.Error is treated as an internal failure.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	var appErr *app.Error
	if errors.As(err, &appErr) {
		writeErrorEnvelope(w, appErr.Status, apiError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}
	s.writeInternalError(w, err)
}

// writeInternalError masks the failure in production and surfaces it in
// development.
func (s *Server) writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err)
	message := "Internal server error"
	if s.env != "production" && err != nil {
		message = err.Error()
	}
	writeErrorEnvelope(w, http.StatusInternalServerError, apiError{
		Code:    app.CodeInternal,
		Message: message,
	})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeErrorEnvelope(w, http.StatusMethodNotAllowed, apiError{
		Code:    app.CodeBadRequest,
		Message: "Method not allowed",
	})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return app.BadRequest("Request body is required", nil)
		}
		return app.BadRequest("Invalid JSON body", nil)
	}
	return nil
}

// user payloads

type userMetadata struct {
	Name             string                  `json:"name,omitempty"`
	Credits          int                     `json:"credits"`
	SubscriptionTier domain.SubscriptionTier `json:"subscription_tier"`
}

type userPayload struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata userMetadata `json:"user_metadata"`
}

func userJSON(u domain.User) userPayload {
	return userPayload{
		ID:    u.ID,
		Email: u.Email,
		UserMetadata: userMetadata{
			Name:             u.Name,
			Credits:          u.Credits,
			SubscriptionTier: u.Tier,
		},
	}
}
