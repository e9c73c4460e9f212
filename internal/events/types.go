// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	// Portfolio lifecycle
	PortfolioUpdated EventType = "PORTFOLIO_UPDATED"
	PricesUpdated    EventType = "PRICES_UPDATED"
	CacheInvalidated EventType = "CACHE_INVALIDATED"
	RefreshDiscarded EventType = "REFRESH_DISCARDED"
	PositionAdded    EventType = "POSITION_ADDED"
	PositionRemoved  EventType = "POSITION_REMOVED"

	// Session and user-facing notices
	SessionChanged     EventType = "SESSION_CHANGED"
	NotificationRaised EventType = "NOTIFICATION_RAISED"

	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type, in the order stream clients see them documented
var AllTypes = []EventType{
	PortfolioUpdated,
	PricesUpdated,
	CacheInvalidated,
	RefreshDiscarded,
	PositionAdded,
	PositionRemoved,
	SessionChanged,
	NotificationRaised,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
