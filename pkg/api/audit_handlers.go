package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillnote/quill/pkg/audit"
	"github.com/quillnote/quill/pkg/httputil"
	"github.com/quillnote/quill/pkg/middleware"
	"github.com/quillnote/quill/pkg/rbac"
)

// AuditHandlers serves the audit trail. Reading a space's trail is a
// space-administration concern, so it is gated on EDIT_SPACES.
type AuditHandlers struct {
	lister   AuditLister
	resolver rbac.PermissionResolver
}

// NewAuditHandlers creates audit handlers.
func NewAuditHandlers(lister AuditLister, resolver rbac.PermissionResolver) *AuditHandlers {
	return &AuditHandlers{lister: lister, resolver: resolver}
}

// RegisterRoutes registers the audit routes.
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/spaces/{id}/audit", h.listSpaceAudit).Methods("GET")
}

// listSpaceAudit handles GET /api/v1/spaces/{id}/audit
func (h *AuditHandlers) listSpaceAudit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	allowed, err := h.resolver.HasPermission(r.Context(), actorID, spaceID, rbac.PermEditSpaces)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if !allowed {
		httputil.WriteDomainError(w, fmt.Errorf("%s required: %w", rbac.PermEditSpaces, rbac.ErrForbidden))
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil || limit < 1 || limit > 200 {
		httputil.WriteBadRequest(w, "limit must be between 1 and 200")
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httputil.WriteBadRequest(w, "offset must be non-negative")
		return
	}

	entries, err := h.lister.ListBySpace(r.Context(), spaceID, limit, offset)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteSuccess(w, entries)
}
