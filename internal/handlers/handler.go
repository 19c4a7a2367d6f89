package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/havenito/Twitter-Like/internal/chat"
	"github.com/havenito/Twitter-Like/internal/notify"
	"github.com/havenito/Twitter-Like/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	service *chat.Service
	sink    *notify.Sink
	db      store.DataStore
	redis   *store.RedisStore // nil when not configured
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(service *chat.Service, sink *notify.Sink, db store.DataStore, redis *store.RedisStore) *Handler {
	return &Handler{service: service, sink: sink, db: db, redis: redis}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// serviceError maps chat service errors onto HTTP statuses.
func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	default:
		h.Error(w, http.StatusInternalServerError, "storage failure")
	}
}

// urlID parses an integer URL parameter.
func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// sinceParam parses the optional ?since= ISO-8601 query parameter.
// ok is false only when the parameter is present but malformed.
func sinceParam(r *http.Request) (*time.Time, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	t = t.UTC()
	return &t, true
}

// afterIDParam parses the optional ?after_id= cursor query parameter.
func afterIDParam(r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("after_id")
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id >= 0
}
