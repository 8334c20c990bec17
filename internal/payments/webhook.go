package payments

import (
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

var (
	// ErrWebhookSecretMissing indicates the signing secret is not configured.
	ErrWebhookSecretMissing = errors.New("payments: webhook signing secret not configured")
	// ErrInvalidSignature indicates the signature header does not match the payload.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrInvalidPayload indicates a correctly signed body that cannot be parsed.
	ErrInvalidPayload = errors.New("payments: invalid webhook payload")
)

// Checkout session event types handled by the webhook receiver.
const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutSessionExpired               = "checkout.session.expired"
)

const defaultWebhookTolerance = webhook.DefaultTolerance

// WebhookEvent is the subset of a processor event the receiver relies on.
type WebhookEvent struct {
	ID            string
	Type          string
	SessionID     string
	PaymentStatus string
	Status        string
}

// WebhookVerifier validates signed webhook deliveries.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

// NewWebhookVerifier constructs a verifier. An empty secret yields a verifier that rejects every event.
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = defaultWebhookTolerance
	}
	return &WebhookVerifier{secret: strings.TrimSpace(secret), tolerance: tolerance}
}

// Configured reports whether a signing secret is available.
func (v *WebhookVerifier) Configured() bool {
	return v != nil && v.secret != ""
}

// Verify checks the signature header and extracts the event fields.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (WebhookEvent, error) {
	if !v.Configured() {
		return WebhookEvent{}, ErrWebhookSecretMissing
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return WebhookEvent{}, ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return WebhookEvent{}, errors.Join(ErrInvalidSignature, err)
		}
		return WebhookEvent{}, errors.Join(ErrInvalidPayload, err)
	}

	return parseEvent(event)
}

func parseEvent(event stripe.Event) (WebhookEvent, error) {
	out := WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if out.Type == "" {
		return WebhookEvent{}, ErrInvalidPayload
	}
	if event.Data == nil || event.Data.Object == nil {
		return out, nil
	}
	out.SessionID = strings.TrimSpace(event.GetObjectValue("id"))
	out.PaymentStatus = strings.TrimSpace(event.GetObjectValue("payment_status"))
	out.Status = strings.TrimSpace(event.GetObjectValue("status"))
	return out, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
