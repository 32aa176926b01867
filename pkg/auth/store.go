package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quillnote/quill/pkg/rbac"
)

// Store handles users and API tokens.
type Store struct {
	db *sql.DB
}

// NewStore creates a new auth store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateUser registers a user. Names are unique; a duplicate is a
// conflict.
func (s *Store) CreateUser(ctx context.Context, name string) (*User, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check user name: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("user %s already exists: %w", name, rbac.ErrConflict)
	}

	user := &User{Name: name}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (name) VALUES ($1)
		RETURNING id, created_at, modified_at
	`, name).Scan(&user.ID, &user.CreatedAt, &user.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, modified_at FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Name, &user.CreatedAt, &user.ModifiedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// IssueToken creates a token for the user and returns the plaintext. A
// zero TTL issues a non-expiring token.
func (s *Store) IssueToken(ctx context.Context, userID int64, ttl time.Duration) (string, *APIToken, error) {
	token, tokenHash, err := GenerateToken()
	if err != nil {
		return "", nil, err
	}

	record := &APIToken{TokenHash: tokenHash, UserID: userID}
	if ttl > 0 {
		expiresAt := time.Now().UTC().Add(ttl)
		record.ExpiresAt = &expiresAt
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, record.TokenHash, record.UserID, record.ExpiresAt).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store token: %w", err)
	}
	return token, record, nil
}

// ValidateToken resolves a plaintext token to its user. Malformed,
// unknown and expired tokens are all ErrNotFound so callers cannot
// distinguish them.
func (s *Store) ValidateToken(ctx context.Context, token string) (int64, error) {
	if err := ValidateTokenFormat(token); err != nil {
		return 0, fmt.Errorf("invalid token: %w", rbac.ErrNotFound)
	}

	record := &APIToken{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, created_at, expires_at
		FROM api_tokens WHERE token_hash = $1
	`, HashToken(token)).Scan(
		&record.ID, &record.TokenHash, &record.UserID, &record.CreatedAt, &record.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("unknown token: %w", rbac.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up token: %w", err)
	}

	if record.Expired(time.Now().UTC()) {
		return 0, fmt.Errorf("expired token: %w", rbac.ErrNotFound)
	}
	return record.UserID, nil
}

// RevokeToken deletes a token by plaintext.
func (s *Store) RevokeToken(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE token_hash = $1`, HashToken(token))
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("unknown token: %w", rbac.ErrNotFound)
	}
	return nil
}

// PurgeExpiredTokens deletes every token past its expiry and returns the
// number removed. Run periodically by the janitor.
func (s *Store) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}
