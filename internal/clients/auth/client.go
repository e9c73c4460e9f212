// Package auth provides a client for the external authentication service.
// The service issues opaque bearer tokens; this client never inspects them.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/metrics"
)

const serviceName = "auth"

// tokenResponse is returned by login and signup: {token} on success, {message} otherwise
type tokenResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// Client is the auth service API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new auth client rooted at baseURL (e.g. http://localhost:5000).
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("client", "auth").Logger(),
	}
}

// Login exchanges credentials for a bearer token.
// Rejected credentials are reported as *domain.AuthError carrying the service message.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (string, error) {
	if creds.Email == "" || creds.Password == "" {
		return "", errors.New("email and password are required")
	}

	token, status, err := c.requestToken(ctx, "login", "/api/auth/login", domain.Credentials{
		Email:    creds.Email,
		Password: creds.Password,
	})
	if err != nil {
		if status >= 400 && status < 500 {
			return "", &domain.AuthError{Op: "login", Err: err}
		}
		return "", err
	}

	c.log.Info().Str("email", creds.Email).Msg("Logged in")
	return token, nil
}

// Signup registers a new user and returns a bearer token for it.
func (c *Client) Signup(ctx context.Context, creds domain.Credentials) (string, error) {
	if creds.Email == "" || creds.Password == "" {
		return "", errors.New("email and password are required")
	}

	token, _, err := c.requestToken(ctx, "signup", "/api/auth/signup", creds)
	if err != nil {
		return "", err
	}

	c.log.Info().Str("email", creds.Email).Msg("Signed up")
	return token, nil
}

// Profile returns the user the token belongs to.
func (c *Client) Profile(ctx context.Context, token string) (profile *domain.Profile, err error) {
	if token == "" {
		return nil, &domain.AuthError{Op: "profile", Err: domain.ErrNoToken}
	}

	start := time.Now()
	defer func() {
		metrics.ObserveUpstream(serviceName, "profile", time.Since(start).Seconds(), err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/user/profile", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: serviceName, Op: "profile", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &domain.AuthError{Op: "profile", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.UpstreamError{Service: serviceName, Op: "profile", StatusCode: resp.StatusCode}
	}

	var p domain.Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, &domain.UpstreamError{Service: serviceName, Op: "profile", Err: fmt.Errorf("malformed payload: %w", err)}
	}

	return &p, nil
}

// requestToken posts creds and extracts the token. The returned status is 0
// when no response was received.
func (c *Client) requestToken(ctx context.Context, op, path string, creds domain.Credentials) (token string, status int, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveUpstream(serviceName, op, time.Since(start).Seconds(), err)
	}()

	payload, err := json.Marshal(creds)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, &domain.UpstreamError{Service: serviceName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, &domain.UpstreamError{Service: serviceName, Op: op, Err: err}
	}

	var parsed tokenResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", resp.StatusCode, &domain.UpstreamError{Service: serviceName, Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	if parsed.Token == "" {
		return "", resp.StatusCode, &domain.UpstreamError{Service: serviceName, Op: op, Err: errors.New("response without token")}
	}

	return parsed.Token, resp.StatusCode, nil
}
