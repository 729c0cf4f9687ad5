package devbackend

import (
	"strings"
	"sync"

	"jobboard-portal/internal/domain"
)

// account is a user together with its secrets.
type account struct {
	user         domain.User
	passwordHash []byte
	generation   int
}

// userStore keeps accounts in memory, indexed by id, username and email.
type userStore struct {
	mu         sync.RWMutex
	byID       map[string]*account
	byUsername map[string]string
	byEmail    map[string]string
}

func newUserStore() *userStore {
	return &userStore{
		byID:       make(map[string]*account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// add stores acc unless its username or email is taken. The returned map
// names the conflicting fields.
func (s *userStore) add(acc *account) map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	conflicts := map[string][]string{}
	if _, ok := s.byUsername[key(acc.user.Username)]; ok {
		conflicts["username"] = []string{"A user with that username already exists."}
	}
	if _, ok := s.byEmail[key(acc.user.Email)]; ok {
		conflicts["email"] = []string{"A user with that email already exists."}
	}
	if len(conflicts) > 0 {
		return conflicts
	}

	s.byID[acc.user.ID] = acc
	s.byUsername[key(acc.user.Username)] = acc.user.ID
	s.byEmail[key(acc.user.Email)] = acc.user.ID
	return nil
}

// lookup finds an account by username or email.
func (s *userStore) lookup(login string) (*account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[key(login)]
	if !ok {
		id, ok = s.byEmail[key(login)]
	}
	if !ok {
		return nil, false
	}
	acc, ok := s.byID[id]
	return acc, ok
}

// snapshot returns a copy of the account with id.
func (s *userStore) snapshot(id string) (account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.byID[id]
	if !ok {
		return account{}, false
	}
	c := *acc
	c.user = *acc.user.Clone()
	return c, true
}

// update applies fn to the account with id under the write lock. fn may
// return field errors to abort.
func (s *userStore) update(id string, fn func(acc *account) map[string][]string) (domain.User, map[string][]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return domain.User{}, nil, false
	}

	oldUsername, oldEmail := key(acc.user.Username), key(acc.user.Email)
	if errs := fn(acc); len(errs) > 0 {
		return domain.User{}, errs, true
	}
	if k := key(acc.user.Username); k != oldUsername {
		delete(s.byUsername, oldUsername)
		s.byUsername[k] = id
	}
	if k := key(acc.user.Email); k != oldEmail {
		delete(s.byEmail, oldEmail)
		s.byEmail[k] = id
	}
	return *acc.user.Clone(), nil, true
}

// takenLocked reports whether username or email belongs to an account other
// than id. Callers hold the lock.
func (s *userStore) takenLocked(id, field, value string) bool {
	var owner string
	var ok bool
	switch field {
	case "username":
		owner, ok = s.byUsername[key(value)]
	case "email":
		owner, ok = s.byEmail[key(value)]
	}
	return ok && owner != id
}

func (s *userStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
