package server

import (
	"net/http"

	"storyboard/internal/app"
	"storyboard/pkg/domain"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest accepts both key spellings: clients echoing the session
// object send refresh_token, older clients send refreshToken.
type refreshRequest struct {
	RefreshToken    string `json:"refresh_token"`
	RefreshTokenAlt string `json:"refreshToken"`
}

func (r refreshRequest) token() string {
	if r.RefreshToken != "" {
		return r.RefreshToken
	}
	return r.RefreshTokenAlt
}

type sessionResponse struct {
	User    userPayload    `json:"user"`
	Session domain.Session `json:"session"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "Too many signup attempts, try again later") {
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeAppError(w, err)
		return
	}
	user, session, err := s.app.SignUp(req.Email, req.Password, req.Name)
	if err != nil {
		s.audit(r, "auth.signup", "fail", "email", req.Email)
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "auth.signup", "success", "user_id", user.ID)
	writeData(w, http.StatusCreated, struct {
		sessionResponse
		RequiresConfirmation bool `json:"requiresConfirmation"`
	}{sessionResponse{User: userJSON(user), Session: session}, false})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "Too many login attempts, try again later") {
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeAppError(w, err)
		return
	}
	user, session, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", "fail", "email", req.Email)
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeData(w, http.StatusOK, sessionResponse{User: userJSON(user), Session: session})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeAppError(w, err)
		return
	}
	user, session, err := s.app.Refresh(req.token())
	if err != nil {
		s.audit(r, "auth.refresh", "fail")
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "auth.refresh", "success", "user_id", user.ID)
	writeData(w, http.StatusOK, sessionResponse{User: userJSON(user), Session: session})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		s.writeInternalError(w, err)
		return
	}
	s.audit(r, "auth.logout", "success")
	writeData(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	current, err := s.app.GetUser(user.ID)
	if err != nil {
		// The session outlived the account; treat it as unauthenticated.
		s.writeAppError(w, app.ErrSessionRequired)
		return
	}
	writeData(w, http.StatusOK, userJSON(current))
}
