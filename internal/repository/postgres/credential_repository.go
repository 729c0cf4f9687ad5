package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/observability"
)

const credentialTable = "client_credentials"

// CredentialRepository persists the credential token of each client
// instance together with its cached user.
type CredentialRepository struct {
	db              *sql.DB
	getStmt         *sql.Stmt
	upsertStmt      *sql.Stmt
	deleteStmt      *sql.Stmt
	deleteStaleStmt *sql.Stmt
}

// NewCredentialRepository creates a CredentialRepository with prepared statements.
// Returns an error if statement preparation fails.
func NewCredentialRepository(db *sql.DB) (*CredentialRepository, error) {
	repo := &CredentialRepository{db: db}

	var err error
	repo.getStmt, err = db.Prepare(`
		UPDATE client_credentials
		SET updated_at = GREATEST(updated_at, $2)
		WHERE client_id = $1
		RETURNING client_id, token, user_data, updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	repo.upsertStmt, err = db.Prepare(`
		INSERT INTO client_credentials (client_id, token, user_data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id) DO UPDATE
		SET token = EXCLUDED.token, user_data = EXCLUDED.user_data, updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert statement: %w", err)
	}

	repo.deleteStmt, err = db.Prepare(`DELETE FROM client_credentials WHERE client_id = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	repo.deleteStaleStmt, err = db.Prepare(`DELETE FROM client_credentials WHERE updated_at < $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare deleteStale statement: %w", err)
	}

	return repo, nil
}

// Get returns the credential of clientID and marks it as used, so that
// DeleteStale only collects credentials nobody has read.
func (r *CredentialRepository) Get(ctx context.Context, clientID string) (*domain.StoredCredential, error) {
	start := time.Now()
	defer observeQuery("get", start)

	cred := &domain.StoredCredential{}
	var userData []byte
	err := r.getStmt.QueryRowContext(ctx, clientID, start).Scan(
		&cred.ClientID,
		&cred.Token,
		&userData,
		&cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	cred.User = &domain.User{}
	if err := json.Unmarshal(userData, cred.User); err != nil {
		return nil, fmt.Errorf("failed to decode cached user: %w", err)
	}
	return cred, nil
}

// Put inserts or replaces the credential of cred.ClientID.
func (r *CredentialRepository) Put(ctx context.Context, cred *domain.StoredCredential) error {
	defer observeQuery("upsert", time.Now())

	if cred.User == nil {
		return fmt.Errorf("credential of %s has no user: %w", cred.ClientID, domain.ErrInvalidInput)
	}
	userData, err := json.Marshal(cred.User)
	if err != nil {
		return fmt.Errorf("failed to encode cached user: %w", err)
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = time.Now()
	}

	if _, err := r.upsertStmt.ExecContext(ctx, cred.ClientID, cred.Token, userData, cred.UpdatedAt); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Delete(ctx context.Context, clientID string) error {
	defer observeQuery("delete", time.Now())

	if _, err := r.deleteStmt.ExecContext(ctx, clientID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// DeleteStale removes credentials neither read nor written since before.
func (r *CredentialRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	defer observeQuery("delete_stale", time.Now())

	result, err := r.deleteStaleStmt.ExecContext(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale credentials: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (r *CredentialRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *CredentialRepository) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{r.getStmt, r.upsertStmt, r.deleteStmt, r.deleteStaleStmt} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	return errors.Join(errs...)
}

func observeQuery(operation string, start time.Time) {
	observability.DBQueryDuration.WithLabelValues(operation, credentialTable).Observe(time.Since(start).Seconds())
}
