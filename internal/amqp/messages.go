package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shoplist/internal/core"
)

// ListRecomputedMessage announces a committed recompute of a list.
// It carries only what the worker needs to decide whether to act; the
// worker loads the list and its items from storage.
type ListRecomputedMessage struct {
	EventID    string          `json:"event_id"`
	ListID     int64           `json:"list_id"`
	UserID     int64           `json:"user_id"`
	Version    int64           `json:"version"`
	Total      decimal.Decimal `json:"total"`
	AlertLevel core.AlertLevel `json:"alert_level"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewListRecomputedMessage builds the event for list as it was committed.
func NewListRecomputedMessage(list core.ShoppingList) *ListRecomputedMessage {
	return &ListRecomputedMessage{
		EventID:    uuid.NewString(),
		ListID:     list.ID,
		UserID:     list.UserID,
		Version:    list.Version,
		Total:      list.Total,
		AlertLevel: list.Alert,
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ListRecomputedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ListRecomputedMessageFromJSON creates a message from JSON bytes
func ListRecomputedMessageFromJSON(data []byte) (*ListRecomputedMessage, error) {
	var msg ListRecomputedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
