package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrProviderTimeout marks a processor call that did not complete in time or was throttled.
	// Callers must treat it as retryable and never as a payment failure.
	ErrProviderTimeout = errors.New("payments: provider timeout")
	// ErrProviderRejected marks a processor call rejected for a non-transient reason.
	ErrProviderRejected = errors.New("payments: provider rejected request")
	// ErrSessionNotFound is returned when the processor does not know the session id.
	ErrSessionNotFound = errors.New("payments: session not found")
)

// CheckoutSessionRequest captures the payload required to create a single line item checkout session.
type CheckoutSessionRequest struct {
	ProductName    string
	ProductRef     string
	UnitAmount     int64
	Currency       string
	Quantity       int64
	SuccessURL     string
	CancelURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutSession represents the processor session returned to the client.
type CheckoutSession struct {
	ID          string
	RedirectURL string
	ExpiresAt   time.Time
}

// SessionDetails is the processor view of a checkout session.
type SessionDetails struct {
	ID            string
	Status        string
	PaymentStatus string
	AmountTotal   int64
	Currency      string
	Metadata      map[string]string
}

// Provider defines the checkout operations consumed by the services.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (SessionDetails, error)
}

// ProviderError describes a failed processor call. The message is safe to log but
// should be summarised before reaching end users.
type ProviderError struct {
	Op         string
	Kind       error
	Code       string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("stripe: %s: %s", e.Op, msg)
}

// Unwrap exposes both the classification sentinel and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether repeating the call later may succeed.
func (e *ProviderError) Retryable() bool {
	return e != nil && errors.Is(e.Kind, ErrProviderTimeout)
}

// IsRetryable reports whether err is a transient processor failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderTimeout)
}
