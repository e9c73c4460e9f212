package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPortfolio)          // Applied, cached or freshly computed snapshot
		r.Post("/refresh", h.HandleRefresh)       // Recompute from live prices
		r.Post("/positions", h.HandleAddPosition) // Create in the asset store, then apply
		r.Delete("/positions/{id}", h.HandleRemovePosition)
	})
}
