package store

import (
	"testing"
	"time"

	"storyboard/pkg/domain"
)

func TestMemoryStoreUserEmailIndex(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SaveUser(domain.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	ok, err := s.HasUserEmail("a@example.com")
	if err != nil || !ok {
		t.Fatalf("expected email to exist, ok=%v err=%v", ok, err)
	}
	if err := s.SaveUser(domain.User{ID: "u1", Email: "b@example.com"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	ok, _ = s.HasUserEmail("a@example.com")
	if ok {
		t.Fatalf("expected old email to be released after update")
	}
	u, found, _ := s.GetUserByEmail("b@example.com")
	if !found || u.ID != "u1" {
		t.Fatalf("expected lookup by new email, found=%v user=%+v", found, u)
	}
}

func TestMemoryStoreAdjustCredits(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveUser(domain.User{ID: "u1", Email: "a@example.com", Credits: 2})

	balance, err := s.AdjustCredits("u1", -1)
	if err != nil || balance != 1 {
		t.Fatalf("expected balance 1, got %d err=%v", balance, err)
	}
	if _, err := s.AdjustCredits("u1", -5); err != ErrInsufficientCredits {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	balance, _ = s.AdjustCredits("u1", 0)
	if balance != 1 {
		t.Fatalf("failed debit must not change the balance, got %d", balance)
	}
	if _, err := s.AdjustCredits("missing", 1); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryStoreSceneNumbering(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 3; i++ {
		scene, err := s.CreateScene(domain.Scene{ID: "s" + string(rune('a'+i)), ProjectID: "p1"})
		if err != nil {
			t.Fatalf("create scene: %v", err)
		}
		if scene.SceneNumber != i+1 {
			t.Fatalf("expected scene number %d, got %d", i+1, scene.SceneNumber)
		}
	}
	// Other projects count independently.
	scene, err := s.CreateScene(domain.Scene{ID: "other", ProjectID: "p2"})
	if err != nil {
		t.Fatalf("create scene: %v", err)
	}
	if scene.SceneNumber != 1 {
		t.Fatalf("expected scene number 1 in second project, got %d", scene.SceneNumber)
	}
	// Deleting does not renumber; the next create continues from max.
	if err := s.DeleteScene("sb"); err != nil {
		t.Fatalf("delete scene: %v", err)
	}
	scene, _ = s.CreateScene(domain.Scene{ID: "sd", ProjectID: "p1"})
	if scene.SceneNumber != 4 {
		t.Fatalf("expected scene number 4 after gap, got %d", scene.SceneNumber)
	}
}

func TestMemoryStoreDeleteProjectCascades(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveProject(domain.Project{ID: "p1", UserID: "u1"})
	_, _ = s.CreateScene(domain.Scene{ID: "s1", ProjectID: "p1"})
	if err := s.DeleteProject("p1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, found, _ := s.GetScene("s1"); found {
		t.Fatalf("expected scene to be removed with its project")
	}
}

func TestMemoryStoreTransitionJob(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveJob(domain.GenerationJob{ID: "j1", UserID: "u1", Status: domain.JobQueued})

	now := time.Now()
	ok, err := s.TransitionJob("j1", domain.JobQueued, domain.JobProcessing, JobTransition{StartedAt: &now, AddAttempt: true})
	if err != nil || !ok {
		t.Fatalf("expected transition to apply, ok=%v err=%v", ok, err)
	}
	j, _, _ := s.GetJob("j1")
	if j.Status != domain.JobProcessing || j.Attempts != 1 || j.StartedAt == nil {
		t.Fatalf("unexpected job after start: %+v", j)
	}

	ok, err = s.TransitionJob("j1", domain.JobQueued, domain.JobProcessing, JobTransition{})
	if err != nil || ok {
		t.Fatalf("expected stale transition to be rejected, ok=%v err=%v", ok, err)
	}

	ok, _ = s.TransitionJob("j1", domain.JobProcessing, domain.JobCompleted, JobTransition{ImageURL: "https://img/1.png", CompletedAt: &now})
	if !ok {
		t.Fatalf("expected completion to apply")
	}
	j, _, _ = s.GetJob("j1")
	if j.Status != domain.JobCompleted || j.ImageURL != "https://img/1.png" || j.CompletedAt == nil {
		t.Fatalf("unexpected job after completion: %+v", j)
	}

	if ok, _ := s.TransitionJob("missing", domain.JobQueued, domain.JobProcessing, JobTransition{}); ok {
		t.Fatalf("expected transition on missing job to be rejected")
	}
}

func TestMemoryStoreListJobsByUser(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now()
	for i := 0; i < 5; i++ {
		_ = s.SaveJob(domain.GenerationJob{
			ID:        "j" + string(rune('a'+i)),
			UserID:    "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	_ = s.SaveJob(domain.GenerationJob{ID: "other", UserID: "u2", CreatedAt: base})

	jobs, err := s.ListJobsByUser("u1", 3)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(jobs))
	}
	if jobs[0].ID != "je" || jobs[1].ID != "jd" {
		t.Fatalf("expected newest first, got %s, %s", jobs[0].ID, jobs[1].ID)
	}
}
