package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/psicolfis/checkout-api/internal/domain"
)

// TypeTransactionStatusChanged names the event emitted after an effective status transition.
const TypeTransactionStatusChanged = "transaction.status_changed"

// StatusChanged is the wire payload shared by every publisher backend.
type StatusChanged struct {
	EventID       string    `json:"eventId"`
	Type          string    `json:"type"`
	TransactionID string    `json:"transactionId"`
	SessionID     string    `json:"sessionId"`
	ProductKey    string    `json:"productKey,omitempty"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Source        string    `json:"source"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func newStatusChanged(change domain.TransactionStatusChange, newID func() string) StatusChanged {
	return StatusChanged{
		EventID:       newID(),
		Type:          TypeTransactionStatusChanged,
		TransactionID: change.TransactionID,
		SessionID:     change.SessionID,
		ProductKey:    change.ProductKey,
		From:          string(change.From),
		To:            string(change.To),
		Amount:        change.Amount.StringFixed(2),
		Currency:      change.Currency,
		Source:        change.Source,
		OccurredAt:    change.OccurredAt.UTC(),
	}
}

func encode(event StatusChanged) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}
	return data, nil
}

func defaultID() string {
	return ulid.Make().String()
}

// attributes are the routing headers attached to every message.
func attributes(event StatusChanged) map[string]string {
	return map[string]string{
		"eventId":   event.EventID,
		"eventType": event.Type,
		"sessionId": event.SessionID,
		"status":    event.To,
	}
}
