package domain

import (
	"context"
	"time"
)

// CredentialRepository persists credential tokens keyed by client instance.
type CredentialRepository interface {
	// Get also refreshes UpdatedAt, so DeleteStale only drops unused credentials.
	Get(ctx context.Context, clientID string) (*StoredCredential, error)
	Put(ctx context.Context, cred *StoredCredential) error
	Delete(ctx context.Context, clientID string) error
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
