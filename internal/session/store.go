package session

import (
	"sync"
	"time"

	"jobboard-portal/internal/domain"
)

// Store holds the session of one client instance. Only Manager writes to it.
type Store struct {
	mu        sync.RWMutex
	user      *domain.User
	loading   bool
	updatedAt time.Time
	// epoch advances on every invalidation. Writes tagged with an older
	// epoch are dropped.
	epoch uint64
}

// NewStore returns a store in the UNKNOWN state.
func NewStore() *Store {
	return &Store{loading: true, updatedAt: time.Now()}
}

// Snapshot returns a copy that is safe to hand out.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Snapshot{User: s.user.Clone(), Loading: s.loading}
}

func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Epoch returns the current invalidation epoch.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// replaceUser swaps the user wholesale. A nil user means anonymous.
func (s *Store) replaceUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u.Clone()
	s.updatedAt = time.Now()
}

// replaceUserAt is replaceUser, applied only while epoch is current.
func (s *Store) replaceUserAt(epoch uint64, u *domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	s.user = u.Clone()
	s.updatedAt = time.Now()
	return true
}

// mergeUser shallow-merges patch into the current user. It reports false
// when there is no user to merge into.
func (s *Store) mergeUser(patch *domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return false
	}
	s.user = s.user.Merge(patch)
	s.updatedAt = time.Now()
	return true
}

// mergeUserAt is mergeUser, applied only while epoch is current.
func (s *Store) mergeUserAt(epoch uint64, patch *domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.user == nil {
		return false
	}
	s.user = s.user.Merge(patch)
	s.updatedAt = time.Now()
	return true
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	s.updatedAt = time.Now()
}

// clear moves the store to ANONYMOUS.
func (s *Store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.loading = false
	s.updatedAt = time.Now()
}

// invalidate clears the store and starts a new epoch.
func (s *Store) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.user = nil
	s.loading = false
	s.updatedAt = time.Now()
}
