// Package session owns the single authentication context of the process.
// Dependents receive changes through Subscribe instead of reading shared state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/events"
	"github.com/aristath/cryptovault/internal/notifications"
)

// Listener receives the new session after every change
type Listener func(domain.Session)

// Controller owns the current session and its persisted token.
type Controller struct {
	auth     domain.AuthService
	tokens   domain.TokenStore
	notifier notifications.Notifier
	events   *events.Manager
	log      zerolog.Logger

	mu        sync.RWMutex
	current   domain.Session
	listeners map[uint64]Listener
	nextID    uint64
}

// NewController creates a controller. notifier and eventManager may be nil.
func NewController(
	auth domain.AuthService,
	tokens domain.TokenStore,
	notifier notifications.Notifier,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Controller {
	return &Controller{
		auth:      auth,
		tokens:    tokens,
		notifier:  notifier,
		events:    eventManager,
		log:       log.With().Str("component", "session").Logger(),
		listeners: make(map[uint64]Listener),
	}
}

// Current returns a copy of the current session
func (c *Controller) Current() domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Subscribe registers fn for session changes and returns its unsubscribe function.
func (c *Controller) Subscribe(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Restore loads a persisted token, if any, into the current session.
func (c *Controller) Restore(ctx context.Context) (domain.Session, error) {
	token, err := c.tokens.LoadToken(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to load token: %w", err)
	}
	if token == "" {
		c.log.Debug().Msg("No stored session")
		return domain.Session{}, nil
	}

	s := domain.Session{Token: token}
	c.set(s)
	c.log.Info().Msg("Session restored")
	return s, nil
}

// Login exchanges credentials for a token, persists it and publishes the new session.
func (c *Controller) Login(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
	token, err := c.auth.Login(ctx, creds)
	if err != nil {
		c.notify(notifications.IDLogin, notifications.KindError, userMessage(err, "Invalid credentials"))
		return domain.Session{}, err
	}

	if err := c.tokens.SaveToken(ctx, token); err != nil {
		return domain.Session{}, fmt.Errorf("failed to persist token: %w", err)
	}

	s := domain.Session{Token: token, Email: creds.Email}
	c.set(s)
	c.notify(notifications.IDLogin, notifications.KindSuccess, "Login successful!")
	c.log.Info().Str("email", creds.Email).Msg("Logged in")

	return s, nil
}

// Signup registers a new account. The user still logs in afterwards, so no
// session is established here.
func (c *Controller) Signup(ctx context.Context, creds domain.Credentials) error {
	if _, err := c.auth.Signup(ctx, creds); err != nil {
		c.notify(notifications.IDSignup, notifications.KindError, userMessage(err, "Signup failed."))
		return err
	}

	c.notify(notifications.IDSignup, notifications.KindSuccess, "Account created successfully!")
	c.log.Info().Str("email", creds.Email).Msg("Account created")
	return nil
}

// Logout removes the persisted token and publishes an empty session.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.tokens.ClearToken(ctx); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	c.set(domain.Session{})
	c.notify(notifications.IDLogout, notifications.KindSuccess, "Logged out")
	c.log.Info().Msg("Logged out")
	return nil
}

// Expire ends a session whose token was rejected upstream.
func (c *Controller) Expire(ctx context.Context) {
	if !c.Current().Authenticated() {
		return
	}
	if err := c.tokens.ClearToken(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Failed to clear rejected token")
	}
	c.set(domain.Session{})
	c.notify(notifications.IDSession, notifications.KindError, "Session expired, please log in again")
	c.log.Warn().Msg("Session expired")
}

// Profile fetches the user behind the current token and records the name and email.
func (c *Controller) Profile(ctx context.Context) (*domain.Profile, error) {
	s := c.Current()
	if !s.Authenticated() {
		return nil, &domain.AuthError{Op: "profile", Err: domain.ErrNoToken}
	}

	profile, err := c.auth.Profile(ctx, s.Token)
	if err != nil {
		if domain.IsAuthError(err) {
			c.Expire(ctx)
		}
		return nil, err
	}

	c.mu.Lock()
	// Only decorate the session the profile was fetched for
	updated := c.current.Token == s.Token
	if updated {
		c.current.Email = profile.Email
		c.current.Name = profile.Name
		s = c.current
	}
	c.mu.Unlock()

	if updated {
		c.publish(s)
	}
	return profile, nil
}

func (c *Controller) set(s domain.Session) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
	c.publish(s)
}

func (c *Controller) publish(s domain.Session) {
	c.mu.RLock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.RUnlock()

	for _, l := range listeners {
		l(s)
	}

	c.events.Emit("session", &events.SessionChangedData{
		Authenticated: s.Authenticated(),
		Email:         s.Email,
	})
}

func (c *Controller) notify(id notifications.ID, kind notifications.Kind, msg string) {
	if c.notifier != nil {
		c.notifier.Push(id, kind, msg)
	}
}

// userMessage extracts the message a collaborator attached to a client error
// response, falling back to a generic one.
func userMessage(err error, fallback string) string {
	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode >= 400 && upErr.StatusCode < 500 && upErr.Err != nil {
		return upErr.Err.Error()
	}
	return fallback
}
