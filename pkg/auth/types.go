package auth

import "time"

// User is a registered account. Authentication is token-based; users are
// referenced across spaces by ID.
type User struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// APIToken is a stored token record. TokenHash is the SHA-256 of the
// plaintext; the plaintext itself is never persisted.
type APIToken struct {
	ID        int64      `json:"id"`
	TokenHash string     `json:"-"`
	UserID    int64      `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token has an expiry in the past.
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
