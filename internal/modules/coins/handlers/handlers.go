// Package handlers provides HTTP handlers for coin discovery.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/format"
	"github.com/aristath/cryptovault/internal/modules/coins"
	"github.com/aristath/cryptovault/internal/modules/valuation"
)

// Sessions exposes the current session and lets handlers end a rejected one
type Sessions interface {
	Current() domain.Session
	Expire(ctx context.Context)
}

// Handler handles coin HTTP requests
type Handler struct {
	service  *coins.Service
	sessions Sessions
	log      zerolog.Logger
}

// NewHandler creates a new coins handler
func NewHandler(service *coins.Service, sessions Sessions, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		log:      log.With().Str("handler", "coins").Logger(),
	}
}

type listingResponse struct {
	coins.Listing
	PriceDisplay  string `json:"priceDisplay"`
	ChangeDisplay string `json:"changeDisplay"`
}

// HandleList returns the top markets, optionally filtered by ?q=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.List(r.Context(), h.sessions.Current(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	result := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		result = append(result, listingResponse{
			Listing:       l,
			PriceDisplay:  format.Price(l.CurrentPrice),
			ChangeDisplay: format.SignedPercent(l.PriceChangePercentage24h),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"coins": result,
		"count": len(result),
	})
}

// HandleQuickAdd adds one unit of a coin at its market price
func (h *Handler) HandleQuickAdd(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.QuickAdd(r.Context(), h.sessions.Current(), chi.URLParam(r, "coinKey"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, snapshot)
}

// HandleRemove drops the position holding a coin
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Remove(r.Context(), h.sessions.Current(), chi.URLParam(r, "coinKey"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsAuthError(err):
		h.sessions.Expire(r.Context())
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    err.Error(),
			"redirect": "/login",
		})
	case errors.Is(err, coins.ErrCoinNotFound), errors.Is(err, valuation.ErrPositionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, coins.ErrAlreadyHeld):
		h.writeError(w, http.StatusConflict, err.Error())
	case domain.IsUpstreamError(err):
		h.log.Warn().Err(err).Msg("Upstream failure")
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error().Err(err).Msg("Coins operation failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
