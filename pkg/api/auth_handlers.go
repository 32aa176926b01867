package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/quillnote/quill/pkg/auth"
	"github.com/quillnote/quill/pkg/httputil"
	"github.com/quillnote/quill/pkg/middleware"
)

// AuthHandlers handles user registration and token lifecycle.
type AuthHandlers struct {
	store    *auth.Store
	tokenTTL time.Duration
}

// NewAuthHandlers creates auth handlers. tokenTTL bounds the lifetime
// of issued tokens; zero issues non-expiring tokens.
func NewAuthHandlers(store *auth.Store, tokenTTL time.Duration) *AuthHandlers {
	return &AuthHandlers{store: store, tokenTTL: tokenTTL}
}

// RegisterPublicRoutes registers the unauthenticated routes.
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.createUser).Methods("POST")
	router.HandleFunc("/tokens", h.createToken).Methods("POST")
}

// RegisterRoutes registers the routes that require a bearer token.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/me", h.getCurrentUser).Methods("GET")
	router.HandleFunc("/tokens", h.revokeToken).Methods("DELETE")
}

// createUser handles POST /api/v1/auth/users
func (h *AuthHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Name)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, user)
}

// createToken handles POST /api/v1/auth/tokens
func (h *AuthHandlers) createToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	// The user must exist; unknown IDs surface as 404 rather than
	// minting orphaned tokens.
	if _, err := h.store.GetUser(r.Context(), req.UserID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	token, record, err := h.store.IssueToken(r.Context(), req.UserID, h.tokenTTL)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	resp := map[string]interface{}{
		"token": token,
	}
	if record.ExpiresAt != nil {
		resp["expires_at"] = record.ExpiresAt
	}
	httputil.WriteCreated(w, resp)
}

// getCurrentUser handles GET /api/v1/users/me
func (h *AuthHandlers) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// revokeToken handles DELETE /api/v1/tokens. It revokes the bearer
// token the request authenticated with.
func (h *AuthHandlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserID(r); !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 {
		httputil.WriteUnauthorized(w, "missing bearer token")
		return
	}

	if err := h.store.RevokeToken(r.Context(), parts[1]); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
