package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all coin routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/coins", func(r chi.Router) {
		r.Get("/", h.HandleList)                   // Top 100 by market cap, ?q= filters
		r.Post("/{coinKey}/add", h.HandleQuickAdd) // One unit at current price
		r.Delete("/{coinKey}", h.HandleRemove)     // Drop the position holding the coin
	})
}
