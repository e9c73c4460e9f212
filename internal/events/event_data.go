package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// PortfolioUpdatedData is emitted whenever a new snapshot is applied
type PortfolioUpdatedData struct {
	TotalValue float64   `json:"total_value"`
	Positions  int       `json:"positions"`
	Source     string    `json:"source"` // refresh, cache, mutation
	ComputedAt time.Time `json:"computed_at"`
}

// EventType returns the event type for PortfolioUpdatedData
func (d *PortfolioUpdatedData) EventType() EventType {
	return PortfolioUpdated
}

// PricesUpdatedData reports the outcome of a batched price fetch
type PricesUpdatedData struct {
	Requested int `json:"requested"`
	Quoted    int `json:"quoted"`
}

// EventType returns the event type for PricesUpdatedData
func (d *PricesUpdatedData) EventType() EventType {
	return PricesUpdated
}

// CacheInvalidatedData contains data for CacheInvalidated events
type CacheInvalidatedData struct {
	Reason string `json:"reason"`
}

// EventType returns the event type for CacheInvalidatedData
func (d *CacheInvalidatedData) EventType() EventType {
	return CacheInvalidated
}

// RefreshDiscardedData describes a refresh result dropped because a newer one was applied
type RefreshDiscardedData struct {
	Sequence    uint64 `json:"sequence"`
	LastApplied uint64 `json:"last_applied"`
}

// EventType returns the event type for RefreshDiscardedData
func (d *RefreshDiscardedData) EventType() EventType {
	return RefreshDiscarded
}

// PositionChangedData is shared by PositionAdded and PositionRemoved
type PositionChangedData struct {
	Type     EventType `json:"-"`
	ID       string    `json:"id"`
	CoinKey  string    `json:"coin_key"`
	Symbol   string    `json:"symbol"`
	Quantity float64   `json:"quantity"`
}

// EventType returns PositionAdded or PositionRemoved
func (d *PositionChangedData) EventType() EventType {
	if d.Type == "" {
		return PositionAdded
	}
	return d.Type
}

// SessionChangedData contains data for SessionChanged events
type SessionChangedData struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// EventType returns the event type for SessionChangedData
func (d *SessionChangedData) EventType() EventType {
	return SessionChanged
}

// NotificationRaisedData mirrors a queued notification
type NotificationRaisedData struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EventType returns the event type for NotificationRaisedData
func (d *NotificationRaisedData) EventType() EventType {
	return NotificationRaised
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// convertEventDataToMap flattens typed data into the map carried by Event
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}

// Decode converts an event's data map back into typed data
func Decode(e *Event, v EventData) error {
	jsonBytes, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}
