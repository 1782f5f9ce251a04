package store

import (
	"testing"
	"time"

	"storyboard/pkg/domain"
)

func TestMemorySessionStoreRoundTrip(t *testing.T) {
	s := NewMemorySessionStore()
	session := domain.Session{
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
		User:         domain.User{ID: "u1", Email: "a@example.com"},
	}
	if err := s.Put(session); err != nil {
		t.Fatalf("put session: %v", err)
	}
	got, ok, err := s.Get("tok")
	if err != nil || !ok {
		t.Fatalf("expected session, ok=%v err=%v", ok, err)
	}
	if got.User.ID != "u1" || got.RefreshToken != "ref" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if _, ok, _ := s.Get("unknown"); ok {
		t.Fatalf("expected unknown token to miss")
	}
}

func TestMemorySessionStoreExpiryEviction(t *testing.T) {
	clock := time.Now()
	s := NewMemorySessionStore().WithClock(func() time.Time { return clock })
	session := domain.Session{
		AccessToken: "tok",
		ExpiresAt:   clock.Add(time.Hour).UnixMilli(),
	}
	_ = s.Put(session)

	clock = clock.Add(2 * time.Hour)
	if _, ok, _ := s.Get("tok"); ok {
		t.Fatalf("expected expired session to miss")
	}

	// The entry was evicted; winding the clock back must not revive it.
	clock = clock.Add(-2 * time.Hour)
	if _, ok, _ := s.Get("tok"); ok {
		t.Fatalf("expected evicted session to stay gone")
	}
}

func TestMemorySessionStoreDeleteIdempotent(t *testing.T) {
	s := NewMemorySessionStore()
	_ = s.Put(domain.Session{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()})
	if err := s.Delete("tok"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete("tok"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, ok, _ := s.Get("tok"); ok {
		t.Fatalf("expected deleted session to miss")
	}
}
