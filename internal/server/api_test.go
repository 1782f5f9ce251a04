package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"storyboard/internal/app"
	"storyboard/internal/ratelimit"
	"storyboard/pkg/store"
)

func newTestEnvWithSignupLimit(t *testing.T, limit int) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(client, "test:ratelimit:signup", limit, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	application := app.New(app.Config{
		Store:         store.NewMemoryStore(),
		Sessions:      store.NewMemorySessionStore(),
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
	})
	s, err := New(Config{App: application, SignupLimiter: limiter})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv}
}

func (e *testEnv) createProject(token, title string) string {
	e.t.Helper()
	status, envelope := e.do(http.MethodPost, "/api/projects", token, map[string]string{"title": title})
	if status != http.StatusCreated {
		e.t.Fatalf("create project: status=%d envelope=%+v", status, envelope)
	}
	var project struct {
		ID string `json:"id"`
	}
	e.decodeData(envelope, &project)
	return project.ID
}

func (e *testEnv) createScene(token, projectID, title string) string {
	e.t.Helper()
	status, envelope := e.do(http.MethodPost, "/api/scenes", token, map[string]string{
		"projectId":   projectID,
		"title":       title,
		"description": "Something happens",
	})
	if status != http.StatusCreated {
		e.t.Fatalf("create scene: status=%d envelope=%+v", status, envelope)
	}
	var scene struct {
		ID string `json:"id"`
	}
	e.decodeData(envelope, &scene)
	return scene.ID
}

func (e *testEnv) workerToken() string {
	e.t.Helper()
	token, err := e.signer.Sign("storyboard-api")
	if err != nil {
		e.t.Fatalf("sign worker token: %v", err)
	}
	return token
}

func TestProjectCRUDOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup("alice@example.com")
	token := alice.Session.AccessToken

	projectID := e.createProject(token, "Heist")

	status, envelope := e.do(http.MethodPut, "/api/projects/"+projectID, token, map[string]string{
		"title": "The Heist", "status": "processing",
	})
	if status != http.StatusOK {
		t.Fatalf("update project: status=%d envelope=%+v", status, envelope)
	}
	var project struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	e.decodeData(envelope, &project)
	if project.Title != "The Heist" || project.Status != "processing" {
		t.Fatalf("unexpected project: %+v", project)
	}

	status, envelope = e.do(http.MethodGet, "/api/projects", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list projects: status=%d", status)
	}
	var list []json.RawMessage
	e.decodeData(envelope, &list)
	if len(list) != 1 {
		t.Fatalf("expected one project, got %d", len(list))
	}

	if status, _ := e.do(http.MethodDelete, "/api/projects/"+projectID, token, nil); status != http.StatusOK {
		t.Fatalf("delete project: status=%d", status)
	}
	if status, _ := e.do(http.MethodGet, "/api/projects/"+projectID, token, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

func TestCrossUserAccessReadsAsMissing(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup("alice@example.com")
	bob := e.signup("bob@example.com")

	projectID := e.createProject(alice.Session.AccessToken, "Private")
	sceneID := e.createScene(alice.Session.AccessToken, projectID, "Rooftop")

	for _, path := range []string{
		"/api/projects/" + projectID,
		"/api/scenes/" + sceneID,
		"/api/scenes/project/" + projectID,
	} {
		status, envelope := e.do(http.MethodGet, path, bob.Session.AccessToken, nil)
		if status != http.StatusNotFound {
			t.Fatalf("%s: expected 404 for foreign resource, got %d", path, status)
		}
		if envelope.Error == nil || envelope.Error.Code != app.CodeNotFound {
			t.Fatalf("%s: unexpected envelope %+v", path, envelope)
		}
	}
}

func TestSceneNumberingOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup("alice@example.com")
	token := alice.Session.AccessToken
	projectID := e.createProject(token, "Heist")

	for want := 1; want <= 3; want++ {
		status, envelope := e.do(http.MethodPost, "/api/scenes", token, map[string]string{
			"projectId": projectID, "title": "Scene", "description": "D",
		})
		if status != http.StatusCreated {
			t.Fatalf("create scene: status=%d envelope=%+v", status, envelope)
		}
		var scene struct {
			SceneNumber int `json:"sceneNumber"`
		}
		e.decodeData(envelope, &scene)
		if scene.SceneNumber != want {
			t.Fatalf("expected scene number %d, got %d", want, scene.SceneNumber)
		}
	}

	status, envelope := e.do(http.MethodGet, "/api/scenes/project/"+projectID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("list scenes: status=%d", status)
	}
	var scenes []json.RawMessage
	e.decodeData(envelope, &scenes)
	if len(scenes) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(scenes))
	}
}

func TestGenerationFlowWithWorkerCallbacks(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup("alice@example.com")
	token := alice.Session.AccessToken
	projectID := e.createProject(token, "Heist")
	sceneID := e.createScene(token, projectID, "Rooftop")

	status, envelope := e.do(http.MethodPost, "/api/generation/image", token, map[string]string{
		"sceneId": sceneID, "prompt": "rooftop chase at night", "style": "cinematic", "aspectRatio": "16:9",
	})
	if status != http.StatusCreated {
		t.Fatalf("request generation: status=%d envelope=%+v", status, envelope)
	}
	var job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	e.decodeData(envelope, &job)
	if job.Status != "queued" {
		t.Fatalf("expected queued job, got %q", job.Status)
	}

	worker := e.workerToken()
	status, envelope = e.do(http.MethodPost, "/internal/jobs/"+job.ID+"/start", worker, nil)
	if status != http.StatusOK {
		t.Fatalf("start callback: status=%d envelope=%+v", status, envelope)
	}
	status, envelope = e.do(http.MethodPost, "/internal/jobs/"+job.ID+"/complete", worker, map[string]string{
		"image_url": "https://img/1.png",
	})
	if status != http.StatusOK {
		t.Fatalf("complete callback: status=%d envelope=%+v", status, envelope)
	}

	// A worker retry of the completion conflicts.
	status, envelope = e.do(http.MethodPost, "/internal/jobs/"+job.ID+"/complete", worker, map[string]string{
		"image_url": "https://img/2.png",
	})
	if status != http.StatusConflict || envelope.Error == nil || envelope.Error.Code != app.CodeConflict {
		t.Fatalf("expected 409 on double complete, got status=%d envelope=%+v", status, envelope)
	}

	status, envelope = e.do(http.MethodGet, "/api/generation/"+job.ID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("get job: status=%d", status)
	}
	var done struct {
		Status   string `json:"status"`
		ImageURL string `json:"image_url"`
	}
	e.decodeData(envelope, &done)
	if done.Status != "completed" || done.ImageURL != "https://img/1.png" {
		t.Fatalf("unexpected finished job: %+v", done)
	}

	// Exactly one debit.
	status, envelope = e.do(http.MethodGet, "/api/auth/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status=%d", status)
	}
	var me struct {
		UserMetadata struct {
			Credits int `json:"credits"`
		} `json:"user_metadata"`
	}
	e.decodeData(envelope, &me)
	if me.UserMetadata.Credits != app.SignupCredits-app.GenerationCost {
		t.Fatalf("expected %d credits, got %d", app.SignupCredits-app.GenerationCost, me.UserMetadata.Credits)
	}
}

func TestGenerationRequestRequiresFullInput(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup("alice@example.com")
	token := alice.Session.AccessToken
	projectID := e.createProject(token, "Heist")
	sceneID := e.createScene(token, projectID, "Rooftop")

	bodies := []map[string]string{
		{"sceneId": sceneID, "prompt": "rooftop chase at night", "aspectRatio": "16:9"},
		{"sceneId": sceneID, "prompt": "rooftop chase at night", "style": "cinematic"},
		{"sceneId": sceneID, "prompt": "short", "style": "cinematic", "aspectRatio": "16:9"},
	}
	for i, body := range bodies {
		status, envelope := e.do(http.MethodPost, "/api/generation/image", token, body)
		if status != http.StatusBadRequest || envelope.Error == nil || envelope.Error.Code != app.CodeBadRequest {
			t.Fatalf("case %d: expected 400, got status=%d envelope=%+v", i, status, envelope)
		}
	}
}

func TestRegenerateOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup("alice@example.com")
	token := alice.Session.AccessToken
	projectID := e.createProject(token, "Heist")
	sceneID := e.createScene(token, projectID, "Rooftop")

	_, envelope := e.do(http.MethodPost, "/api/generation/image", token, map[string]string{
		"sceneId": sceneID, "prompt": "rooftop chase at dawn", "style": "noir", "aspectRatio": "2.35:1",
	})
	var job struct {
		ID string `json:"id"`
	}
	e.decodeData(envelope, &job)

	status, envelope := e.do(http.MethodPost, "/api/generation/"+job.ID+"/regenerate", token, nil)
	if status != http.StatusCreated {
		t.Fatalf("regenerate: status=%d envelope=%+v", status, envelope)
	}
	var again struct {
		ID     string `json:"id"`
		Prompt string `json:"prompt"`
	}
	e.decodeData(envelope, &again)
	if again.ID == job.ID || again.Prompt != "rooftop chase at dawn" {
		t.Fatalf("unexpected regenerated job: %+v", again)
	}

	status, envelope = e.do(http.MethodGet, "/api/generation", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list jobs: status=%d", status)
	}
	var jobs []json.RawMessage
	e.decodeData(envelope, &jobs)
	if len(jobs) != 2 {
		t.Fatalf("expected both job rows, got %d", len(jobs))
	}
}

func TestZeroCreditsForbidden(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup("alice@example.com")
	token := alice.Session.AccessToken
	projectID := e.createProject(token, "Heist")
	sceneID := e.createScene(token, projectID, "Rooftop")

	worker := e.workerToken()
	for i := 0; i < app.SignupCredits; i++ {
		_, envelope := e.do(http.MethodPost, "/api/generation/image", token, map[string]string{
			"sceneId": sceneID, "prompt": "another rooftop take", "style": "cinematic", "aspectRatio": "16:9",
		})
		var job struct {
			ID string `json:"id"`
		}
		e.decodeData(envelope, &job)
		if status, _ := e.do(http.MethodPost, "/internal/jobs/"+job.ID+"/start", worker, nil); status != http.StatusOK {
			t.Fatalf("start %d: status=%d", i, status)
		}
		if status, _ := e.do(http.MethodPost, "/internal/jobs/"+job.ID+"/complete", worker, map[string]string{"image_url": "https://img/x.png"}); status != http.StatusOK {
			t.Fatalf("complete %d: status=%d", i, status)
		}
	}

	status, envelope := e.do(http.MethodPost, "/api/generation/image", token, map[string]string{
		"sceneId": sceneID, "prompt": "one more rooftop take", "style": "cinematic", "aspectRatio": "16:9",
	})
	if status != http.StatusForbidden || envelope.Error == nil || envelope.Error.Code != app.CodeForbidden {
		t.Fatalf("expected 403 on drained credits, got status=%d envelope=%+v", status, envelope)
	}
}

func TestScriptUploadAndParseOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup("alice@example.com")
	token := alice.Session.AccessToken

	script := "INT. LAB - NIGHT\n\nSparks fly.\n\nEXT. ROOFTOP - DAWN\n\nThe city glows.\n"
	status, envelope := e.uploadScript(token, "pilot.txt", []byte(script))
	if status != http.StatusCreated {
		t.Fatalf("upload: status=%d envelope=%+v", status, envelope)
	}
	var uploaded struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	e.decodeData(envelope, &uploaded)
	if uploaded.Status != "uploaded" {
		t.Fatalf("unexpected upload status: %q", uploaded.Status)
	}

	status, envelope = e.do(http.MethodPost, "/api/scripts/"+uploaded.ID+"/parse", token, nil)
	if status != http.StatusOK {
		t.Fatalf("parse: status=%d envelope=%+v", status, envelope)
	}
	var parsed struct {
		Status       string `json:"status"`
		ParsedScenes []struct {
			Slugline  string `json:"slugline"`
			TimeOfDay string `json:"timeOfDay"`
		} `json:"parsedScenes"`
	}
	e.decodeData(envelope, &parsed)
	if parsed.Status != "parsed" || len(parsed.ParsedScenes) != 2 {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
	if parsed.ParsedScenes[1].TimeOfDay != "dawn" {
		t.Fatalf("unexpected second draft: %+v", parsed.ParsedScenes[1])
	}

	status, envelope = e.do(http.MethodGet, "/api/scripts/"+uploaded.ID+"/download", token, nil)
	if status != http.StatusOK {
		t.Fatalf("download url: status=%d", status)
	}
	var download map[string]string
	e.decodeData(envelope, &download)
	if download["url"] == "" {
		t.Fatalf("expected a download url")
	}

	status, envelope = e.uploadScript(token, "notes.docx", []byte("nope"))
	if status != http.StatusBadRequest || envelope.Error == nil {
		t.Fatalf("expected 400 for unsupported extension, got status=%d envelope=%+v", status, envelope)
	}
}

func (e *testEnv) uploadScript(token, filename string, content []byte) (int, envelopeResult) {
	e.t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		e.t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		e.t.Fatalf("write form file: %v", err)
	}
	if err := form.Close(); err != nil {
		e.t.Fatalf("close form: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/scripts/upload", &buf)
	if err != nil {
		e.t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var envelope envelopeResult
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		e.t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, envelope
}
