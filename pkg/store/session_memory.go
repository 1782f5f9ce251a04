package store

import (
	"sync"
	"time"

	"storyboard/pkg/domain"
)

// MemorySessionStore keeps sessions in a mutex-guarded map. Expired entries
// are evicted lazily on Get; there is no background sweep.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	now      func() time.Time
}

// NewMemorySessionStore returns an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domain.Session),
		now:      time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *MemorySessionStore) WithClock(now func() time.Time) *MemorySessionStore {
	s.now = now
	return s
}

func (s *MemorySessionStore) Put(session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.AccessToken] = session
	return nil
}

// Get resolves an access token. An expired entry is treated as absent and
// removed so a later Put of the same token cannot resurrect it.
func (s *MemorySessionStore) Get(accessToken string) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[accessToken]
	if !ok {
		return domain.Session{}, false, nil
	}
	if session.Expired(s.now()) {
		delete(s.sessions, accessToken)
		return domain.Session{}, false, nil
	}
	return session, true, nil
}

// Delete removes a session. Deleting an unknown token is a no-op.
func (s *MemorySessionStore) Delete(accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, accessToken)
	return nil
}
