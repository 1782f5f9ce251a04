package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storyboard/internal/app"
	"storyboard/internal/servicetoken"
	"storyboard/pkg/domain"
	"storyboard/pkg/store"
)

const testWorkerSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	signer *servicetoken.Signer
	store  store.Store
}

type envelopeResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	application := app.New(app.Config{
		Store:         st,
		Sessions:      store.NewMemorySessionStore(),
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
	})
	verifier, err := servicetoken.NewVerifier("storyboard-api", testWorkerSecret, []string{"image-worker"}, time.Second)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	signer, err := servicetoken.NewSigner("image-worker", testWorkerSecret, time.Minute)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	s, err := New(Config{App: application, WorkerTokens: verifier})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, signer: signer, store: st}
}

func (e *testEnv) do(method, path, token string, body any) (int, envelopeResult) {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		e.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var envelope envelopeResult
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		e.t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return resp.StatusCode, envelope
}

func (e *testEnv) decodeData(envelope envelopeResult, dst any) {
	e.t.Helper()
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		e.t.Fatalf("decode data: %v", err)
	}
}

type sessionData struct {
	User struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		UserMetadata struct {
			Name             string `json:"name"`
			Credits          int    `json:"credits"`
			SubscriptionTier string `json:"subscription_tier"`
		} `json:"user_metadata"`
	} `json:"user"`
	Session struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		ExpiresAt    int64  `json:"expires_at"`
	} `json:"session"`
}

func (e *testEnv) signup(email string) sessionData {
	e.t.Helper()
	status, envelope := e.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": "password1",
	})
	if status != http.StatusCreated || !envelope.Success {
		e.t.Fatalf("signup %s: status=%d envelope=%+v", email, status, envelope)
	}
	var data sessionData
	e.decodeData(envelope, &data)
	return data
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	status, envelope := e.do(http.MethodGet, "/health", "", nil)
	if status != http.StatusOK || !envelope.Success {
		t.Fatalf("health: status=%d envelope=%+v", status, envelope)
	}
	var data map[string]string
	e.decodeData(envelope, &data)
	if data["status"] != "ok" || data["timestamp"] == "" || data["uptime"] == "" {
		t.Fatalf("unexpected health payload: %+v", data)
	}
}

func TestSignupLoginMe(t *testing.T) {
	e := newTestEnv(t)
	signedUp := e.signup("Alice@Example.com")
	if signedUp.User.Email != "alice@example.com" {
		t.Fatalf("expected lowercased email, got %q", signedUp.User.Email)
	}
	if signedUp.User.UserMetadata.Credits != app.SignupCredits {
		t.Fatalf("expected %d starting credits, got %d", app.SignupCredits, signedUp.User.UserMetadata.Credits)
	}
	if signedUp.User.UserMetadata.SubscriptionTier != "free" {
		t.Fatalf("expected free tier, got %q", signedUp.User.UserMetadata.SubscriptionTier)
	}
	if signedUp.Session.AccessToken == "" || signedUp.Session.AccessToken == signedUp.Session.RefreshToken {
		t.Fatalf("expected two distinct tokens: %+v", signedUp.Session)
	}
	if signedUp.Session.ExpiresIn != 3600 {
		t.Fatalf("expected 3600s session, got %d", signedUp.Session.ExpiresIn)
	}

	status, envelope := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "password1",
	})
	if status != http.StatusOK || !envelope.Success {
		t.Fatalf("login: status=%d envelope=%+v", status, envelope)
	}
	var loggedIn sessionData
	e.decodeData(envelope, &loggedIn)

	status, envelope = e.do(http.MethodGet, "/api/auth/me", loggedIn.Session.AccessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status=%d envelope=%+v", status, envelope)
	}
	var me struct {
		Email string `json:"email"`
	}
	e.decodeData(envelope, &me)
	if me.Email != "alice@example.com" {
		t.Fatalf("unexpected me payload: %+v", me)
	}
}

func TestDuplicateEmailConflicts(t *testing.T) {
	e := newTestEnv(t)
	e.signup("alice@example.com")
	status, envelope := e.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "ALICE@example.com", "password": "password1",
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if envelope.Success || envelope.Error == nil || envelope.Error.Code != app.CodeConflict {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestInvalidCredentialsAreUniform(t *testing.T) {
	e := newTestEnv(t)
	e.signup("alice@example.com")

	statusUnknown, envUnknown := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "password1",
	})
	statusWrong, envWrong := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrongpassword",
	})
	if statusUnknown != http.StatusUnauthorized || statusWrong != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", statusUnknown, statusWrong)
	}
	if envUnknown.Error == nil || envWrong.Error == nil || envUnknown.Error.Message != envWrong.Error.Message {
		t.Fatalf("login failures must be indistinguishable: %+v vs %+v", envUnknown.Error, envWrong.Error)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/projects", "/api/auth/me", "/api/generation"} {
		status, envelope := e.do(http.MethodGet, path, "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, status)
		}
		if envelope.Error == nil || envelope.Error.Code != app.CodeUnauthorized {
			t.Fatalf("%s: unexpected envelope %+v", path, envelope)
		}
	}
	status, _ := e.do(http.MethodGet, "/api/projects", "bogus-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bogus token, got %d", status)
	}
}

func TestRefreshRotationAndReplay(t *testing.T) {
	e := newTestEnv(t)
	signedUp := e.signup("alice@example.com")

	status, envelope := e.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": signedUp.Session.RefreshToken,
	})
	if status != http.StatusOK {
		t.Fatalf("refresh: status=%d envelope=%+v", status, envelope)
	}
	var refreshed sessionData
	e.decodeData(envelope, &refreshed)
	if refreshed.Session.RefreshToken == signedUp.Session.RefreshToken {
		t.Fatalf("expected rotated refresh token")
	}

	// Replaying the consumed token fails.
	status, envelope = e.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": signedUp.Session.RefreshToken,
	})
	if status != http.StatusUnauthorized || envelope.Error == nil {
		t.Fatalf("expected replay rejection, got status=%d envelope=%+v", status, envelope)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	e := newTestEnv(t)
	signedUp := e.signup("alice@example.com")
	token := signedUp.Session.AccessToken

	if status, _ := e.do(http.MethodPost, "/api/auth/logout", token, nil); status != http.StatusOK {
		t.Fatalf("logout: status=%d", status)
	}
	if status, _ := e.do(http.MethodGet, "/api/auth/me", token, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", status)
	}
	// Repeated logout is a no-op, not an error.
	if status, _ := e.do(http.MethodPost, "/api/auth/logout", token, nil); status != http.StatusOK {
		t.Fatalf("repeated logout: status=%d", status)
	}
}

func TestSubscriptionAbsentIsNull(t *testing.T) {
	e := newTestEnv(t)
	signedUp := e.signup("alice@example.com")
	status, envelope := e.do(http.MethodGet, "/api/subscriptions/me", signedUp.Session.AccessToken, nil)
	if status != http.StatusOK || !envelope.Success {
		t.Fatalf("subscription: status=%d envelope=%+v", status, envelope)
	}
	if string(envelope.Data) != "null" {
		t.Fatalf("expected null subscription, got %s", envelope.Data)
	}
}

func TestCheckoutReturnsPlaceholderSession(t *testing.T) {
	e := newTestEnv(t)
	signedUp := e.signup("alice@example.com")
	status, envelope := e.do(http.MethodPost, "/api/subscriptions/checkout", signedUp.Session.AccessToken, nil)
	if status != http.StatusOK || !envelope.Success {
		t.Fatalf("checkout: status=%d envelope=%+v", status, envelope)
	}
	var data struct {
		SessionID string `json:"sessionId"`
		URL       string `json:"url"`
	}
	e.decodeData(envelope, &data)
	if data.SessionID != "cs_test_placeholder" || data.URL != "https://checkout.stripe.com/c/pay/cs_test_placeholder" {
		t.Fatalf("unexpected checkout payload: %+v", data)
	}
}

func TestPortalRequiresBilledSubscription(t *testing.T) {
	e := newTestEnv(t)
	signedUp := e.signup("alice@example.com")
	token := signedUp.Session.AccessToken

	status, envelope := e.do(http.MethodPost, "/api/subscriptions/portal", token, nil)
	if status != http.StatusBadRequest || envelope.Error == nil || envelope.Error.Message != "No active subscription found" {
		t.Fatalf("expected 400 without a billed subscription, got status=%d envelope=%+v", status, envelope)
	}

	now := time.Now().UTC()
	if err := e.store.SaveSubscription(domain.Subscription{
		ID:               "sub-1",
		UserID:           signedUp.User.ID,
		StripeCustomerID: "cus_123",
		Tier:             domain.TierPro,
		Status:           "active",
		CreatedAt:        now,
		UpdatedAt:        now,
	}); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	status, envelope = e.do(http.MethodPost, "/api/subscriptions/portal", token, nil)
	if status != http.StatusOK || !envelope.Success {
		t.Fatalf("portal: status=%d envelope=%+v", status, envelope)
	}
	var data struct {
		URL string `json:"url"`
	}
	e.decodeData(envelope, &data)
	if data.URL != "https://billing.stripe.com/p/session/placeholder" {
		t.Fatalf("unexpected portal payload: %+v", data)
	}
}

func TestCreditTransactionsListsSignupGrant(t *testing.T) {
	e := newTestEnv(t)
	signedUp := e.signup("alice@example.com")
	status, envelope := e.do(http.MethodGet, "/api/credits/transactions", signedUp.Session.AccessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("transactions: status=%d envelope=%+v", status, envelope)
	}
	var txs []struct {
		Amount int    `json:"amount"`
		Type   string `json:"type"`
	}
	e.decodeData(envelope, &txs)
	if len(txs) != 1 || txs[0].Amount != app.SignupCredits || txs[0].Type != "grant" {
		t.Fatalf("expected a single signup grant, got %+v", txs)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	status, envelope := e.do(http.MethodDelete, "/api/auth/signup", "", nil)
	if status != http.StatusMethodNotAllowed || envelope.Success {
		t.Fatalf("expected 405 envelope, got status=%d envelope=%+v", status, envelope)
	}
}

func TestWorkerTokenRequired(t *testing.T) {
	e := newTestEnv(t)
	signedUp := e.signup("alice@example.com")

	status, envelope := e.do(http.MethodPost, "/internal/jobs/some-id/start", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without service token, got %d", status)
	}
	// A user session token is not a service token.
	status, envelope = e.do(http.MethodPost, "/internal/jobs/some-id/start", signedUp.Session.AccessToken, nil)
	if status != http.StatusUnauthorized || envelope.Error == nil {
		t.Fatalf("expected 401 for session token, got status=%d envelope=%+v", status, envelope)
	}
}

func TestSignupRateLimit(t *testing.T) {
	e := newTestEnvWithSignupLimit(t, 2)
	for i := 0; i < 2; i++ {
		status, _ := e.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
			"email":    fmt.Sprintf("user%d@example.com", i),
			"password": "password1",
		})
		if status != http.StatusCreated {
			t.Fatalf("signup %d: status=%d", i, status)
		}
	}
	status, envelope := e.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "user3@example.com", "password": "password1",
	})
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
	if envelope.Error == nil || envelope.Error.Code != app.CodeTooManyRequests {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}
