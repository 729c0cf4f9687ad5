// Package memory keeps credentials in process memory. Used when no database
// is configured; credentials do not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"jobboard-portal/internal/domain"
)

type CredentialRepository struct {
	mu          sync.RWMutex
	credentials map[string]domain.StoredCredential
}

func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{credentials: make(map[string]domain.StoredCredential)}
}

// Get returns the credential of clientID and marks it as used.
func (r *CredentialRepository) Get(ctx context.Context, clientID string) (*domain.StoredCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.credentials[clientID]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	if now := time.Now(); now.After(cred.UpdatedAt) {
		cred.UpdatedAt = now
		r.credentials[clientID] = cred
	}
	cred.User = cred.User.Clone()
	return &cred, nil
}

func (r *CredentialRepository) Put(ctx context.Context, cred *domain.StoredCredential) error {
	if cred.User == nil {
		return domain.ErrInvalidInput
	}
	stored := *cred
	stored.User = cred.User.Clone()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[cred.ClientID] = stored
	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.credentials, clientID)
	return nil
}

func (r *CredentialRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, cred := range r.credentials {
		if cred.UpdatedAt.Before(before) {
			delete(r.credentials, id)
			n++
		}
	}
	return n, nil
}

func (r *CredentialRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *CredentialRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.credentials)
}
