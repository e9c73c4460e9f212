package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/notifications"
)

// NotificationHandlers exposes the notification queue
type NotificationHandlers struct {
	queue *notifications.Queue
	log   zerolog.Logger
}

// NewNotificationHandlers creates notification handlers
func NewNotificationHandlers(queue *notifications.Queue, log zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{
		queue: queue,
		log:   log.With().Str("handler", "notifications").Logger(),
	}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Delete("/", h.HandleClear)
		r.Delete("/{id}", h.HandleDismiss)
	})
}

// HandleList returns the active notifications, oldest first
func (h *NotificationHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	active := h.queue.Active()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": active,
		"count":         len(active),
	})
}

// HandleClear drops every notification
func (h *NotificationHandlers) HandleClear(w http.ResponseWriter, r *http.Request) {
	h.queue.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// HandleDismiss drops the notification raised under one source id
func (h *NotificationHandlers) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	id := notifications.ID(chi.URLParam(r, "id"))
	if !h.queue.Dismiss(id) {
		writeError(w, http.StatusNotFound, "Notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
