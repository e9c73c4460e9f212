// Package assetstore provides a client for the REST backend that owns a user's positions.
package assetstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/metrics"
)

const serviceName = "assets"

// assetRecord is the wire shape of one asset. The backend keys records by
// "_id"; some deployments return "id" instead.
type assetRecord struct {
	MongoID  string  `json:"_id"`
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	BuyPrice float64 `json:"buyPrice"`
}

func (r assetRecord) toPosition() (domain.Position, error) {
	id := r.MongoID
	if id == "" {
		id = r.ID
	}
	if id == "" {
		return domain.Position{}, errors.New("asset record without id")
	}
	if strings.TrimSpace(r.Name) == "" {
		return domain.Position{}, fmt.Errorf("asset %s without coin key", id)
	}

	return domain.Position{
		ID:       id,
		CoinKey:  r.Name,
		Symbol:   r.Symbol,
		Quantity: r.Quantity,
		BuyPrice: r.BuyPrice,
	}.Normalize(), nil
}

// Client is the asset store API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new asset store client rooted at baseURL (e.g. http://localhost:5000).
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("client", "assetstore").Logger(),
	}
}

// ListAssets returns every position owned by the token's user.
func (c *Client) ListAssets(ctx context.Context, token string) ([]domain.Position, error) {
	var records []assetRecord
	if err := c.do(ctx, token, "list", http.MethodGet, "/api/assets", nil, &records); err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(records))
	for _, r := range records {
		p, err := r.toPosition()
		if err != nil {
			return nil, &domain.UpstreamError{Service: serviceName, Op: "list", Err: fmt.Errorf("malformed payload: %w", err)}
		}
		positions = append(positions, p)
	}

	c.log.Debug().Int("positions", len(positions)).Msg("Listed assets")

	return positions, nil
}

// CreateAsset stores a new position and returns it with its assigned id.
func (c *Client) CreateAsset(ctx context.Context, token string, p domain.NewPosition) (*domain.Position, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid position: %w", err)
	}

	var record assetRecord
	if err := c.do(ctx, token, "create", http.MethodPost, "/api/assets", p, &record); err != nil {
		return nil, err
	}

	created, err := record.toPosition()
	if err != nil {
		return nil, &domain.UpstreamError{Service: serviceName, Op: "create", Err: fmt.Errorf("malformed payload: %w", err)}
	}

	c.log.Info().
		Str("id", created.ID).
		Str("coin", created.CoinKey).
		Msg("Created asset")

	return &created, nil
}

// DeleteAsset removes a position. A 404 is reported as an UpstreamError.
func (c *Client) DeleteAsset(ctx context.Context, token, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("asset id is required")
	}

	if err := c.do(ctx, token, "delete", http.MethodDelete, "/api/assets/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}

	c.log.Info().Str("id", id).Msg("Deleted asset")

	return nil
}

// do sends an authenticated request and decodes a JSON body into out when out is non-nil.
// 401/403 become *domain.AuthError, everything else that fails becomes *domain.UpstreamError.
func (c *Client) do(ctx context.Context, token, op, method, path string, body, out interface{}) (err error) {
	if token == "" {
		return &domain.AuthError{Op: "assets " + op, Err: domain.ErrNoToken}
	}

	start := time.Now()
	defer func() {
		metrics.ObserveUpstream(serviceName, op, time.Since(start).Seconds(), err)
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.UpstreamError{Service: serviceName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &domain.AuthError{Op: "assets " + op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		upErr := &domain.UpstreamError{Service: serviceName, Op: op, StatusCode: resp.StatusCode}
		if msg := strings.TrimSpace(string(respBody)); msg != "" {
			upErr.Err = errors.New(msg)
		}
		return upErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.UpstreamError{Service: serviceName, Op: op, Err: fmt.Errorf("malformed payload: %w", err)}
	}

	return nil
}
