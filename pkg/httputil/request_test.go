package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestParseJSONOrError(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/notes", strings.NewReader(`{"text":"hello"}`))
		w := httptest.NewRecorder()

		var dest struct {
			Text string `json:"text"`
		}
		ok := ParseJSONOrError(w, r, &dest)

		assert.True(t, ok)
		assert.Equal(t, "hello", dest.Text)
	})

	t.Run("invalid JSON writes 400", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/notes", strings.NewReader(`{broken`))
		w := httptest.NewRecorder()

		var dest map[string]interface{}
		ok := ParseJSONOrError(w, r, &dest)

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestParsePathInt64(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := mux.SetURLVars(httptest.NewRequest("GET", "/notes/42", nil), map[string]string{"id": "42"})

		val, err := ParsePathInt64(r, "id")

		assert.NoError(t, err)
		assert.Equal(t, int64(42), val)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/notes", nil)

		_, err := ParsePathInt64(r, "id")

		assert.Error(t, err)
	})

	t.Run("not an integer writes 400", func(t *testing.T) {
		r := mux.SetURLVars(httptest.NewRequest("GET", "/notes/abc", nil), map[string]string{"id": "abc"})
		w := httptest.NewRecorder()

		_, ok := ParsePathInt64OrError(w, r, "id")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest("GET", "/users/u1", nil), map[string]string{"id": "u1"})

	val, err := ParsePathString(r, "id")

	assert.NoError(t, err)
	assert.Equal(t, "u1", val)
}

func TestParseQueryInt(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/notes?page=3", nil)

		val, err := ParseQueryInt(r, "page", 1)

		assert.NoError(t, err)
		assert.Equal(t, 3, val)
	})

	t.Run("absent uses default", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/notes", nil)

		val, err := ParseQueryInt(r, "page", 1)

		assert.NoError(t, err)
		assert.Equal(t, 1, val)
	})

	t.Run("invalid", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/notes?page=x", nil)

		_, err := ParseQueryInt(r, "page", 1)

		assert.Error(t, err)
	})
}

func TestParseQueryBool(t *testing.T) {
	r := httptest.NewRequest("GET", "/notes?top_level_only=true", nil)

	val, err := ParseQueryBool(r, "top_level_only", false)

	assert.NoError(t, err)
	assert.True(t, val)
}
