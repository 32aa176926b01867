package topics

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/quillnote/quill/pkg/httputil"
	"github.com/quillnote/quill/pkg/middleware"
)

// Handlers provides HTTP handlers for topic operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates topic handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers all topic routes under their space.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/spaces/{id}/topics", h.CreateTopic).Methods("POST")
	router.HandleFunc("/spaces/{id}/topics", h.ListTopics).Methods("GET")
	router.HandleFunc("/spaces/{id}/topics/{topic_id}", h.GetTopic).Methods("GET")
	router.HandleFunc("/spaces/{id}/topics/{topic_id}", h.UpdateTopic).Methods("PUT")
	router.HandleFunc("/spaces/{id}/topics/{topic_id}", h.DeleteTopic).Methods("DELETE")
	router.HandleFunc("/spaces/{id}/topics/{topic_id}/restore", h.RestoreTopic).Methods("POST")
	router.HandleFunc("/spaces/{id}/topics/{topic_id}/grants", h.GrantRead).Methods("POST")
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

// CreateTopic handles POST /spaces/{id}/topics.
func (h *Handlers) CreateTopic(w http.ResponseWriter, r *http.Request) {
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

	var req CreateTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	topic, err := h.service.CreateTopic(r.Context(), actorID, spaceID, req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, topic)
}

// ListTopics handles GET /spaces/{id}/topics.
func (h *Handlers) ListTopics(w http.ResponseWriter, r *http.Request) {
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

	topics, err := h.service.ListTopics(r.Context(), actorID, spaceID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, topics)
}

// GetTopic handles GET /spaces/{id}/topics/{topic_id}.
func (h *Handlers) GetTopic(w http.ResponseWriter, r *http.Request) {
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
	topicID, ok := pathID(r, "topic_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid topic id")
		return
	}

	topic, err := h.service.GetTopic(r.Context(), actorID, spaceID, topicID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, topic)
}

// UpdateTopic handles PUT /spaces/{id}/topics/{topic_id}.
func (h *Handlers) UpdateTopic(w http.ResponseWriter, r *http.Request) {
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
	topicID, ok := pathID(r, "topic_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid topic id")
		return
	}

	var req UpdateTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}

	topic, err := h.service.UpdateTopic(r.Context(), actorID, spaceID, topicID, req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, topic)
}

// DeleteTopic handles DELETE /spaces/{id}/topics/{topic_id}.
func (h *Handlers) DeleteTopic(w http.ResponseWriter, r *http.Request) {
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
	topicID, ok := pathID(r, "topic_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid topic id")
		return
	}

	if err := h.service.DeleteTopic(r.Context(), actorID, spaceID, topicID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RestoreTopic handles POST /spaces/{id}/topics/{topic_id}/restore.
func (h *Handlers) RestoreTopic(w http.ResponseWriter, r *http.Request) {
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
	topicID, ok := pathID(r, "topic_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid topic id")
		return
	}

	if err := h.service.RestoreTopic(r.Context(), actorID, spaceID, topicID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GrantRead handles POST /spaces/{id}/topics/{topic_id}/grants.
func (h *Handlers) GrantRead(w http.ResponseWriter, r *http.Request) {
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
	topicID, ok := pathID(r, "topic_id")
	if !ok {
		httputil.WriteBadRequest(w, "invalid topic id")
		return
	}

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	if err := h.service.GrantTopicRead(r.Context(), actorID, spaceID, topicID, req.UserID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
