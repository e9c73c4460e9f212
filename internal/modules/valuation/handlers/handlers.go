// Package handlers provides HTTP handlers for the portfolio valuation engine.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/format"
)

// Portfolio is the part of valuation.Engine the handlers drive
type Portfolio interface {
	Current() *domain.PortfolioSnapshot
	LoadCachedSnapshot(ctx context.Context) (*domain.PortfolioSnapshot, bool)
	Refresh(ctx context.Context, s domain.Session) (*domain.PortfolioSnapshot, error)
	AddPosition(ctx context.Context, s domain.Session, p domain.NewPosition) (*domain.PortfolioSnapshot, error)
	RemovePosition(ctx context.Context, s domain.Session, id string) (*domain.PortfolioSnapshot, error)
}

// Sessions exposes the current session and lets handlers end a rejected one
type Sessions interface {
	Current() domain.Session
	Expire(ctx context.Context)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	portfolio Portfolio
	sessions  Sessions
	log       zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(portfolio Portfolio, sessions Sessions, log zerolog.Logger) *Handler {
	return &Handler{
		portfolio: portfolio,
		sessions:  sessions,
		log:       log.With().Str("handler", "portfolio").Logger(),
	}
}

type positionResponse struct {
	domain.EnrichedPosition
	Display format.PositionDisplay `json:"display"`
}

type portfolioResponse struct {
	Positions    []positionResponse `json:"positions"`
	TotalValue   float64            `json:"totalValue"`
	TotalDisplay string             `json:"totalDisplay"`
	ComputedAt   time.Time          `json:"computedAt"`
	Source       string             `json:"source"`
}

// HandleGetPortfolio returns the applied snapshot, falling back to the cached
// one and finally to a fresh refresh.
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Current()
	if !s.Authenticated() {
		h.writeAuthError(w, r, &domain.AuthError{Op: "portfolio", Err: domain.ErrNoToken})
		return
	}

	if snapshot := h.portfolio.Current(); snapshot != nil {
		h.writeJSON(w, http.StatusOK, newPortfolioResponse(snapshot, "current"))
		return
	}
	if snapshot, ok := h.portfolio.LoadCachedSnapshot(r.Context()); ok {
		h.writeJSON(w, http.StatusOK, newPortfolioResponse(snapshot, "cache"))
		return
	}

	snapshot, err := h.portfolio.Refresh(r.Context(), s)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newPortfolioResponse(snapshot, "refresh"))
}

// HandleRefresh recomputes the portfolio from live data
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.portfolio.Refresh(r.Context(), h.sessions.Current())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newPortfolioResponse(snapshot, "refresh"))
}

// HandleAddPosition creates a position and returns the updated snapshot
func (h *Handler) HandleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req domain.NewPosition
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.portfolio.AddPosition(r.Context(), h.sessions.Current(), req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, newPortfolioResponse(snapshot, "mutation"))
}

// HandleRemovePosition deletes a position by id
func (h *Handler) HandleRemovePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "Position id is required")
		return
	}

	snapshot, err := h.portfolio.RemovePosition(r.Context(), h.sessions.Current(), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newPortfolioResponse(snapshot, "mutation"))
}

func newPortfolioResponse(snapshot *domain.PortfolioSnapshot, source string) portfolioResponse {
	if snapshot == nil {
		snapshot = domain.EmptySnapshot(time.Now())
	}
	positions := make([]positionResponse, 0, len(snapshot.Positions))
	for _, p := range snapshot.Positions {
		positions = append(positions, positionResponse{EnrichedPosition: p, Display: format.Position(p)})
	}
	return portfolioResponse{
		Positions:    positions,
		TotalValue:   snapshot.TotalValue,
		TotalDisplay: format.USD(snapshot.TotalValue),
		ComputedAt:   snapshot.ComputedAt,
		Source:       source,
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsAuthError(err) {
		h.writeAuthError(w, r, err)
		return
	}

	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) {
		h.log.Warn().Err(err).Str("service", upErr.Service).Msg("Upstream failure")
		status := http.StatusBadGateway
		if upErr.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.log.Error().Err(err).Msg("Portfolio operation failed")
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

// writeAuthError ends the session and points the client at the login page
func (h *Handler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	h.sessions.Expire(r.Context())
	h.writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error":    err.Error(),
		"redirect": "/login",
	})
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
