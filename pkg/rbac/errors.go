package rbac

import "errors"

// Shared error taxonomy for all Quill services. Every service error wraps
// exactly one of these; HTTP handlers map them to status codes with
// errors.Is.
var (
	// ErrNotFound means a referenced space, topic, role, user or note does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means a permission or hierarchy check failed.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidRequest means the request is ambiguous or contradictory and
	// was rejected before touching storage.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrConflict means the operation would duplicate existing state, such
	// as adding a participant twice.
	ErrConflict = errors.New("conflict")
)
