package app

import (
	"fmt"
	"net/mail"
	"strings"

	"storyboard/internal/util"
	"storyboard/pkg/auth"
	"storyboard/pkg/domain"
	"storyboard/pkg/store"
)

// SignUp registers a new account with the starting credit grant and issues
// a session. Duplicate emails conflict.
func (a *App) SignUp(email, password, name string) (domain.User, domain.Session, error) {
	email = normalizeEmail(email)
	if details := validateCredentials(email, password); details != nil {
		return domain.User{}, domain.Session{}, BadRequest("Invalid signup request", details)
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, domain.Session{}, ErrEmailExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Credits:      SignupCredits,
		Tier:         domain.TierFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("save user: %w", err)
	}
	if err := a.store.AppendCreditTransaction(domain.CreditTransaction{
		ID:           util.NewID(),
		UserID:       user.ID,
		Amount:       SignupCredits,
		Type:         domain.TxGrant,
		Description:  "Signup credit grant",
		BalanceAfter: SignupCredits,
		CreatedAt:    now,
	}); err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("record signup grant: %w", err)
	}
	session, err := a.createSession(user)
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}
	return user, session, nil
}

// Login authenticates by email and password. Unknown emails and wrong
// passwords fail identically.
func (a *App) Login(email, password string) (domain.User, domain.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, domain.Session{}, ErrInvalidCredentials
	}
	user, found, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, domain.Session{}, ErrInvalidCredentials
	}
	session, err := a.createSession(user)
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}
	return user, session, nil
}

// Authenticate resolves a bearer access token to the user snapshot captured
// at session issuance.
func (a *App) Authenticate(accessToken string) (domain.User, bool, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return domain.User{}, false, nil
	}
	session, ok, err := a.sessions.Get(accessToken)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return domain.User{}, false, nil
	}
	return session.User, true, nil
}

// Refresh rotates a refresh token and issues a fresh session. A consumed or
// unknown token is rejected.
func (a *App) Refresh(refreshToken string) (domain.User, domain.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return domain.User{}, domain.Session{}, BadRequest("refreshToken is required", nil)
	}
	newToken := auth.NewSessionToken()
	userID, err := a.refreshTokens.Rotate(refreshToken, newToken, a.refreshTTL)
	if err != nil {
		if err == store.ErrInvalidRefreshToken {
			return domain.User{}, domain.Session{}, ErrInvalidRefresh
		}
		return domain.User{}, domain.Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		return domain.User{}, domain.Session{}, ErrInvalidRefresh
	}
	session, err := a.issueSession(user, newToken)
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}
	return user, session, nil
}

// GetUser returns the current user row, not the stale session snapshot, so
// credit changes since login are visible.
func (a *App) GetUser(userID string) (domain.User, error) {
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		return domain.User{}, NotFound("User not found")
	}
	return user, nil
}

// Logout deletes the session. Unknown tokens are a no-op so repeated logout
// stays idempotent.
func (a *App) Logout(accessToken string) error {
	return a.sessions.Delete(strings.TrimSpace(accessToken))
}

func (a *App) createSession(user domain.User) (domain.Session, error) {
	refreshToken := auth.NewSessionToken()
	if err := a.refreshTokens.Put(refreshToken, user.ID, a.refreshTTL); err != nil {
		return domain.Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return a.issueSession(user, refreshToken)
}

func (a *App) issueSession(user domain.User, refreshToken string) (domain.Session, error) {
	now := a.now()
	session := domain.Session{
		AccessToken:  auth.NewSessionToken(),
		RefreshToken: refreshToken,
		ExpiresIn:    int(a.sessionTTL.Seconds()),
		ExpiresAt:    now.Add(a.sessionTTL).UnixMilli(),
		User:         user,
	}
	if err := a.sessions.Put(session); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}
	return session, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateCredentials returns field-level details for the envelope, or nil
// when the pair is acceptable.
func validateCredentials(email, password string) map[string]string {
	details := map[string]string{}
	if email == "" {
		details["email"] = "email is required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		details["email"] = "email is invalid"
	}
	if err := auth.ValidatePassword(password); err != nil {
		details["password"] = err.Error()
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
