package store

import (
	"sort"
	"sync"

	"storyboard/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests and dev mode.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	usersByEmail  map[string]string
	projects      map[string]domain.Project
	scenes        map[string]domain.Scene
	scripts       map[string]domain.Script
	jobs          map[string]domain.GenerationJob
	subscriptions map[string]domain.Subscription
	transactions  map[string][]domain.CreditTransaction
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		usersByEmail:  make(map[string]string),
		projects:      make(map[string]domain.Project),
		scenes:        make(map[string]domain.Scene),
		scripts:       make(map[string]domain.Script),
		jobs:          make(map[string]domain.GenerationJob),
		subscriptions: make(map[string]domain.Subscription),
		transactions:  make(map[string][]domain.CreditTransaction),
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[u.ID]; ok && prev.Email != u.Email {
		delete(s.usersByEmail, prev.Email)
	}
	s.users[u.ID] = u
	s.usersByEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.usersByEmail[email]
	return ok, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) AdjustCredits(userID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	next := u.Credits + delta
	if next < 0 {
		return 0, ErrInsufficientCredits
	}
	u.Credits = next
	s.users[userID] = u
	return next, nil
}

func (s *MemoryStore) SaveProject(p domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProject(id string) (domain.Project, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok, nil
}

func (s *MemoryStore) ListProjectsByOwner(userID string) ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Project, 0)
	for _, p := range s.projects {
		if p.UserID == userID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (s *MemoryStore) DeleteProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	for sceneID, scene := range s.scenes {
		if scene.ProjectID == id {
			delete(s.scenes, sceneID)
		}
	}
	return nil
}

func (s *MemoryStore) CreateScene(scene domain.Scene) (domain.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, existing := range s.scenes {
		if existing.ProjectID == scene.ProjectID && existing.SceneNumber > max {
			max = existing.SceneNumber
		}
	}
	scene.SceneNumber = max + 1
	s.scenes[scene.ID] = scene
	return scene, nil
}

func (s *MemoryStore) SaveScene(scene domain.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes[scene.ID] = scene
	return nil
}

func (s *MemoryStore) GetScene(id string) (domain.Scene, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scene, ok := s.scenes[id]
	return scene, ok, nil
}

func (s *MemoryStore) ListScenesByProject(projectID string) ([]domain.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Scene, 0)
	for _, scene := range s.scenes {
		if scene.ProjectID == projectID {
			res = append(res, scene)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].SceneNumber < res[j].SceneNumber
	})
	return res, nil
}

func (s *MemoryStore) DeleteScene(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scenes, id)
	return nil
}

func (s *MemoryStore) SetSceneStatus(id string, status domain.SceneStatus, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, ok := s.scenes[id]
	if !ok {
		return nil
	}
	scene.Status = status
	if imageURL != "" {
		scene.ImageURL = imageURL
	}
	s.scenes[id] = scene
	return nil
}

func (s *MemoryStore) SaveScript(sc domain.Script) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[sc.ID] = sc
	return nil
}

func (s *MemoryStore) GetScript(id string) (domain.Script, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scripts[id]
	return sc, ok, nil
}

func (s *MemoryStore) ListScriptsByOwner(userID string) ([]domain.Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Script, 0)
	for _, sc := range s.scripts {
		if sc.UserID == userID {
			res = append(res, sc)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (s *MemoryStore) DeleteScript(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scripts, id)
	return nil
}

func (s *MemoryStore) SaveJob(j domain.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

func (s *MemoryStore) GetJob(id string) (domain.GenerationJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok, nil
}

func (s *MemoryStore) ListJobsByUser(userID string, limit int) ([]domain.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	res := make([]domain.GenerationJob, 0)
	for _, j := range s.jobs {
		if j.UserID == userID {
			res = append(res, j)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *MemoryStore) TransitionJob(id string, from, to domain.JobStatus, tr JobTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = to
	if tr.ImageURL != "" {
		j.ImageURL = tr.ImageURL
	}
	if tr.ErrorMessage != "" {
		j.ErrorMessage = tr.ErrorMessage
	}
	if tr.StartedAt != nil {
		t := tr.StartedAt.UTC()
		j.StartedAt = &t
	}
	if tr.CompletedAt != nil {
		t := tr.CompletedAt.UTC()
		j.CompletedAt = &t
	}
	if tr.AddAttempt {
		j.Attempts++
	}
	s.jobs[id] = j
	return true, nil
}

func (s *MemoryStore) SaveSubscription(sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.UserID] = sub
	return nil
}

func (s *MemoryStore) GetSubscriptionByUser(userID string) (domain.Subscription, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[userID]
	return sub, ok, nil
}

func (s *MemoryStore) AppendCreditTransaction(tx domain.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.UserID] = append(s.transactions[tx.UserID], tx)
	return nil
}

func (s *MemoryStore) ListCreditTransactionsByUser(userID string, limit int) ([]domain.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	all := s.transactions[userID]
	res := make([]domain.CreditTransaction, len(all))
	copy(res, all)
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
