package spaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/quillnote/quill/pkg/httputil"
	"github.com/quillnote/quill/pkg/middleware"
)

// Handlers provides HTTP handlers for space operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates space handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers all space routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/spaces", h.CreateSpace).Methods("POST")
	router.HandleFunc("/spaces", h.ListSpaces).Methods("GET")
	router.HandleFunc("/spaces/{id}", h.GetSpace).Methods("GET")
	router.HandleFunc("/spaces/{id}", h.UpdateSpace).Methods("PUT")
	router.HandleFunc("/spaces/{id}", h.DeleteSpace).Methods("DELETE")
	router.HandleFunc("/spaces/{id}/restore", h.RestoreSpace).Methods("POST")

	router.HandleFunc("/spaces/{id}/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/spaces/{id}/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/spaces/{id}/roles/{role_id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/spaces/{id}/roles/{role_id}/topics", h.UpdateRoleTopics).Methods("PUT")

	router.HandleFunc("/spaces/{id}/participants", h.ListParticipants).Methods("GET")
	router.HandleFunc("/spaces/{id}/participants", h.AddParticipant).Methods("POST")
	router.HandleFunc("/spaces/{id}/participants/{user_id}", h.RemoveRole).Methods("DELETE")
	router.HandleFunc("/spaces/{id}/participants/{user_id}/role", h.AssignRole).Methods("PUT")
	router.HandleFunc("/spaces/{id}/participants/{user_id}/grants", h.GrantPermission).Methods("POST")
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

// CreateSpace handles POST /spaces.
func (h *Handlers) CreateSpace(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	space, err := h.service.CreateSpace(r.Context(), actorID, req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, space)
}

// ListSpaces handles GET /spaces.
func (h *Handlers) ListSpaces(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	result, err := h.service.ListSpaces(r.Context(), actorID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if result == nil {
		result = []Space{}
	}
	httputil.WriteSuccess(w, result)
}

// GetSpace handles GET /spaces/{id}.
func (h *Handlers) GetSpace(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}

	space, err := h.service.GetSpace(r.Context(), actorID, spaceID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, space)
}

// UpdateSpace handles PUT /spaces/{id}.
func (h *Handlers) UpdateSpace(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}

	var req UpdateSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	space, err := h.service.UpdateSpace(r.Context(), actorID, spaceID, req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, space)
}

// DeleteSpace handles DELETE /spaces/{id}.
func (h *Handlers) DeleteSpace(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}

	if err := h.service.DeleteSpace(r.Context(), actorID, spaceID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RestoreSpace handles POST /spaces/{id}/restore.
func (h *Handlers) RestoreSpace(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}

	if err := h.service.RestoreSpace(r.Context(), actorID, spaceID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListRoles handles GET /spaces/{id}/roles.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}

	roles, err := h.service.ListRoles(r.Context(), actorID, spaceID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole handles POST /spaces/{id}/roles.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}

	var req CreateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	role, err := h.service.CreateRole(r.Context(), actorID, spaceID, req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// UpdateRole handles PUT /spaces/{id}/roles/{role_id}.
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}
	roleID, ok := pathID(r, "role_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	role, err := h.service.UpdateRole(r.Context(), actorID, spaceID, roleID, req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRoleTopics handles PUT /spaces/{id}/roles/{role_id}/topics.
func (h *Handlers) UpdateRoleTopics(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}
	roleID, ok := pathID(r, "role_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}

	var req UpdateRoleTopicsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	if err := h.service.UpdateRoleTopics(r.Context(), actorID, spaceID, roleID, req); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListParticipants handles GET /spaces/{id}/participants.
func (h *Handlers) ListParticipants(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}

	groups, err := h.service.ListParticipants(r.Context(), actorID, spaceID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if groups == nil {
		groups = []ParticipantGroup{}
	}
	httputil.WriteSuccess(w, groups)
}

// AssignRole handles PUT /spaces/{id}/participants/{user_id}/role.
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}
	userID, ok := pathID(r, "user_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}

	var req AssignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.RoleID <= 0 {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}
	req.UserID = userID

	if err := h.service.AssignRole(r.Context(), actorID, spaceID, req); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AddParticipant handles POST /spaces/{id}/participants.
func (h *Handlers) AddParticipant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}

	var req AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	if err := h.service.AddParticipant(r.Context(), actorID, spaceID, req.UserID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RemoveRole handles DELETE /spaces/{id}/participants/{user_id}.
func (h *Handlers) RemoveRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}
	userID, ok := pathID(r, "user_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}

	if err := h.service.RemoveRole(r.Context(), actorID, spaceID, userID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GrantPermission handles POST /spaces/{id}/participants/{user_id}/grants.
func (h *Handlers) GrantPermission(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	spaceID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid space id")
		return
	}
	userID, ok := pathID(r, "user_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid user id")
		return
	}

	var req struct {
		Permission string `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Permission == "" {
		httputil.WriteBadRequest(w, "permission is required")
		return
	}

	if err := h.service.GrantSpacePermission(r.Context(), actorID, spaceID, userID, req.Permission); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
