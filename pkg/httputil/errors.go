package httputil

import (
	"errors"
	"net/http"

	"github.com/quillnote/quill/pkg/rbac"
)

// StatusForError maps the domain error taxonomy to HTTP status codes.
// Unknown errors are internal.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, rbac.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, rbac.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes an error response with the status derived from
// the domain error taxonomy. Internal errors are masked so storage
// details never reach clients.
func WriteDomainError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		WriteErrorMessage(w, status, "internal server error")
		return
	}
	WriteError(w, status, err)
}
