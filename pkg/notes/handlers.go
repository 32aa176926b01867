package notes

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/quillnote/quill/pkg/httputil"
	"github.com/quillnote/quill/pkg/middleware"
)

// Handlers provides HTTP handlers for note operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates note handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers all note routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notes", h.CreateNote).Methods("POST")
	router.HandleFunc("/notes", h.ListNotes).Methods("GET")
	router.HandleFunc("/notes/{id}", h.GetNote).Methods("GET")
	router.HandleFunc("/notes/{id}", h.UpdateNote).Methods("PUT")
	router.HandleFunc("/notes/{id}", h.DeleteNote).Methods("DELETE")
	router.HandleFunc("/notes/{id}/restore", h.RestoreNote).Methods("POST")
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

func queryID(r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}

// CreateNote handles POST /notes.
func (h *Handlers) CreateNote(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	note, err := h.service.CreateNote(r.Context(), actorID, req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, note)
}

// ListNotes handles GET /notes.
func (h *Handlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	filters, errMsg := parseFilters(r)
	if errMsg != "" {
		httputil.WriteBadRequest(w, errMsg)
		return
	}

	result, err := h.service.ListNotes(r.Context(), actorID, filters)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

func parseFilters(r *http.Request) (Filters, string) {
	var filters Filters
	var ok bool

	if filters.SpaceID, ok = queryID(r, "space_id"); !ok {
		return filters, "invalid space_id"
	}
	if filters.TopicID, ok = queryID(r, "topic_id"); !ok {
		return filters, "invalid topic_id"
	}
	if filters.ParentID, ok = queryID(r, "parent_id"); !ok {
		return filters, "invalid parent_id"
	}

	if raw := r.URL.Query().Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filters.Tags = append(filters.Tags, tag)
			}
		}
	}

	if raw := r.URL.Query().Get("created_before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, "created_before must be RFC 3339"
		}
		filters.CreatedBefore = &ts
	}

	filters.TopLevelOnly = r.URL.Query().Get("top_level_only") == "true"

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filters, "invalid page"
		}
		filters.Page = page
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return filters, "invalid page_size"
		}
		filters.PageSize = size
	}

	return filters, ""
}

// GetNote handles GET /notes/{id}.
func (h *Handlers) GetNote(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	noteID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid note id")
		return
	}

	note, err := h.service.GetNote(r.Context(), actorID, noteID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, note)
}

// UpdateNote handles PUT /notes/{id}.
func (h *Handlers) UpdateNote(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	noteID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid note id")
		return
	}

	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	note, err := h.service.UpdateNote(r.Context(), actorID, noteID, req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, note)
}

// DeleteNote handles DELETE /notes/{id}.
func (h *Handlers) DeleteNote(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	noteID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid note id")
		return
	}

	if err := h.service.DeleteNote(r.Context(), actorID, noteID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RestoreNote handles POST /notes/{id}/restore.
func (h *Handlers) RestoreNote(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	noteID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid note id")
		return
	}

	if err := h.service.RestoreNote(r.Context(), actorID, noteID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
