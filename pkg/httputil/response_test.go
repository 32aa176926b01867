package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	err := errors.New("test error")

	WriteError(w, http.StatusBadRequest, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "test error")
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]int{"id": 123}

	err := WriteCreated(w, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "123")
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestStatusWriters(t *testing.T) {
	tests := []struct {
		name    string
		write   func(http.ResponseWriter, string)
		status  int
		message string
	}{
		{"bad request", WriteBadRequest, http.StatusBadRequest, "invalid input"},
		{"unauthorized", WriteUnauthorized, http.StatusUnauthorized, "token expired"},
		{"forbidden", WriteForbidden, http.StatusForbidden, "access denied"},
		{"not found", WriteNotFoundError, http.StatusNotFound, "note not found"},
		{"conflict", WriteConflict, http.StatusConflict, "role already exists"},
		{"too many requests", WriteTooManyRequests, http.StatusTooManyRequests, "rate limit exceeded"},
		{"service unavailable", WriteServiceUnavailable, http.StatusServiceUnavailable, "maintenance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, tt.message)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
		})
	}
}
