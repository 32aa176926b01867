// Package middleware provides HTTP middleware for authentication,
// request identification and rate limiting.
//
// AuthMiddleware validates Bearer tokens and stores the user ID in the
// request context; handlers read it back with GetUserID.
//
// RequestID tags every request with a UUID for log and audit
// correlation.
//
// Rate limiting comes in two flavors: an in-memory token bucket for
// single-instance deployments, and a Redis-backed counter window shared
// across instances. Both key by user ID when authenticated and by client
// IP otherwise, and both fail open when their backing store is
// unavailable.
package middleware
