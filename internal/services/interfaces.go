package services

import (
	"context"
	"time"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/payments"
)

// CheckoutService creates hosted checkout sessions and records pending transactions.
type CheckoutService interface {
	CreateSession(ctx context.Context, cmd CreateSessionCommand) (CheckoutSession, error)
}

// StatusService reconciles a session with the processor on client polls.
type StatusService interface {
	GetStatus(ctx context.Context, sessionID string) (StatusView, error)
}

// WebhookService applies signed processor notifications.
type WebhookService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error)
}

// SystemService exposes build metadata and dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// TransactionEventPublisher announces effective status transitions to downstream consumers.
type TransactionEventPublisher interface {
	PublishStatusChange(ctx context.Context, change domain.TransactionStatusChange) error
}

// EventLogger receives structured service events.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// CreateSessionCommand carries the client request for a new checkout session.
type CreateSessionCommand struct {
	ProductKey     string
	OriginURL      string
	IdempotencyKey string
}

// CheckoutSession is returned to the client for redirection.
type CheckoutSession struct {
	SessionID string
	URL       string
	ExpiresAt time.Time
}

// StatusView mirrors the processor's view of a session. Stale is set when the
// processor could not be reached and the view was built from the local record.
type StatusView struct {
	SessionID     string
	Status        string
	PaymentStatus string
	AmountTotal   int64
	Currency      string
	Metadata      map[string]string
	Stale         bool
}

// WebhookOutcome summarises how a verified event was handled.
type WebhookOutcome struct {
	EventID   string
	EventType string
	SessionID string
	Applied   bool
	Ignored   bool
}

type productCatalog interface {
	Lookup(key string) (domain.Product, error)
}

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

type sessionReader interface {
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (payments.SessionDetails, error)
}

type webhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (payments.WebhookEvent, error)
}
