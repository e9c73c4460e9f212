package domain

import (
	"errors"
	"fmt"
)

// ErrCacheMiss is returned by SnapshotCache.Load when there is nothing usable.
// It is an expected state, not a failure.
var ErrCacheMiss = errors.New("snapshot cache miss")

// ErrNoToken is wrapped in an AuthError when an operation is called without a token
var ErrNoToken = errors.New("no session token")

// AuthError means the token is missing or was rejected. The user must log in again.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: authentication required", e.Op)
	}
	return fmt.Sprintf("%s: authentication required: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError means a collaborator call failed or returned malformed data
type UpstreamError struct {
	Service    string // auth, assets, market
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Service, e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsAuthError reports whether err carries an AuthError
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsUpstreamError reports whether err carries an UpstreamError
func IsUpstreamError(err error) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr)
}
