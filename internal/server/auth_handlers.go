package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/session"
)

// AuthHandlers serves login, signup, logout and the user profile
type AuthHandlers struct {
	sessions *session.Controller
	onLogin  func(domain.Session)
	log      zerolog.Logger
}

// NewAuthHandlers creates auth handlers. onLogin, when set, receives every
// newly established session.
func NewAuthHandlers(sessions *session.Controller, onLogin func(domain.Session), log zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		sessions: sessions,
		onLogin:  onLogin,
		log:      log.With().Str("handler", "auth").Logger(),
	}
}

// RegisterRoutes registers auth and user routes
func (h *AuthHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.HandleLogin)
		r.Post("/signup", h.HandleSignup)
		r.Post("/logout", h.HandleLogout)
		r.Get("/session", h.HandleSession)
	})
	r.Get("/user/profile", h.HandleProfile)
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
}

func toSessionResponse(s domain.Session) sessionResponse {
	return sessionResponse{
		Authenticated: s.Authenticated(),
		Email:         s.Email,
		Name:          s.Name,
	}
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r, false)
	if !ok {
		return
	}

	s, err := h.sessions.Login(r.Context(), creds)
	if err != nil {
		h.writeAuthError(w, err, "Login failed")
		return
	}

	if h.onLogin != nil {
		h.onLogin(s)
	}

	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// HandleSignup handles POST /api/auth/signup. The account is created but not
// signed in.
func (h *AuthHandlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r, true)
	if !ok {
		return
	}

	if err := h.sessions.Signup(r.Context(), creds); err != nil {
		h.writeAuthError(w, err, "Signup failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"created": true,
		"email":   creds.Email,
	})
}

// HandleLogout handles POST /api/auth/logout
func (h *AuthHandlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Failed to log out")
		writeError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(domain.Session{}))
}

// HandleSession handles GET /api/auth/session. The token is never returned.
func (h *AuthHandlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(h.sessions.Current()))
}

// HandleProfile handles GET /api/user/profile
func (h *AuthHandlers) HandleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.sessions.Profile(r.Context())
	if err != nil {
		h.writeAuthError(w, err, "Failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func decodeCredentials(w http.ResponseWriter, r *http.Request, signup bool) (domain.Credentials, bool) {
	var creds domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return creds, false
	}

	creds.Email = strings.TrimSpace(creds.Email)
	creds.Name = strings.TrimSpace(creds.Name)
	if creds.Email == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return creds, false
	}
	if signup && creds.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return creds, false
	}

	return creds, true
}

// writeAuthError maps auth service failures. Rejected credentials and tokens
// are 401, other client errors are 400. Both carry the service message.
func (h *AuthHandlers) writeAuthError(w http.ResponseWriter, err error, fallback string) {
	message := fallback
	var upErr *domain.UpstreamError
	rejected := errors.As(err, &upErr) && upErr.StatusCode >= 400 && upErr.StatusCode < 500
	if rejected && upErr.Err != nil {
		message = upErr.Err.Error()
	}

	switch {
	case domain.IsAuthError(err):
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    message,
			"redirect": "/login",
		})
	case rejected:
		writeError(w, http.StatusBadRequest, message)
	case upErr != nil:
		h.log.Warn().Err(err).Msg(fallback)
		writeError(w, http.StatusBadGateway, fallback)
	default:
		h.log.Error().Err(err).Msg(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
