// Package auth implements opaque API token authentication.
//
// Tokens are random 256-bit values with a "quill_" prefix. Only the
// SHA-256 hash is stored; the plaintext is shown once at issue time.
// Validation is a single indexed lookup by hash with an expiry check.
package auth
