package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/payments"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

// WebhookServiceDeps wires the dependencies required by the webhook receiver.
type WebhookServiceDeps struct {
	Verifier     webhookVerifier
	Transactions repositories.TransactionRepository
	Publisher    TransactionEventPublisher
	Clock        func() time.Time
	Logger       EventLogger
}

type webhookService struct {
	verifier webhookVerifier
	recorder transitionRecorder
	logger   EventLogger
}

var _ WebhookService = (*webhookService)(nil)

// NewWebhookService constructs the webhook receiver.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Verifier == nil {
		return nil, errors.New("webhook service: verifier is required")
	}
	if deps.Transactions == nil {
		return nil, errors.New("webhook service: transaction repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &webhookService{
		verifier: deps.Verifier,
		recorder: transitionRecorder{
			transactions: deps.Transactions,
			publisher:    deps.Publisher,
			logger:       logger,
			now:          func() time.Time { return clock().UTC() },
		},
		logger: logger,
	}, nil
}

// HandleEvent verifies the delivery before touching storage, then applies the
// forward-only transition the event implies. Unknown event types are acknowledged.
func (s *webhookService) HandleEvent(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrWebhookSecretMissing):
			s.logger(ctx, "webhook.misconfigured", map[string]any{"reason": "signing secret missing"})
			return WebhookOutcome{}, configurationError(ErrWebhookNotConfigured)
		case errors.Is(err, payments.ErrInvalidPayload):
			s.logger(ctx, "webhook.payload_rejected", map[string]any{"error": err.Error()})
			return WebhookOutcome{}, clientError(ErrWebhookInvalidPayload, err)
		default:
			s.logger(ctx, "webhook.signature_rejected", map[string]any{"error": err.Error()})
			return WebhookOutcome{}, clientError(ErrWebhookInvalidSignature, err)
		}
	}

	outcome := WebhookOutcome{EventID: event.ID, EventType: event.Type, SessionID: event.SessionID}
	target, ok := targetFromEvent(event)
	if !ok {
		s.logger(ctx, "webhook.event_ignored", map[string]any{
			"eventId":       event.ID,
			"eventType":     event.Type,
			"paymentStatus": event.PaymentStatus,
		})
		outcome.Ignored = true
		return outcome, nil
	}
	if event.SessionID == "" {
		s.logger(ctx, "webhook.payload_rejected", map[string]any{
			"eventId":   event.ID,
			"eventType": event.Type,
			"error":     "session id missing",
		})
		return outcome, clientError(ErrWebhookInvalidPayload, nil)
	}

	result, err := s.recorder.advance(ctx, "webhook", event.SessionID, target)
	if err != nil {
		s.logger(ctx, "webhook.persist_failed", map[string]any{
			"eventId":   event.ID,
			"sessionId": event.SessionID,
			"error":     err.Error(),
		})
		return outcome, upstreamError(ErrWebhookPersist, err, true)
	}
	outcome.Applied = result.found && result.result.Changed
	return outcome, nil
}

func targetFromEvent(event payments.WebhookEvent) (domain.PaymentStatus, bool) {
	switch event.Type {
	case payments.EventCheckoutSessionCompleted:
		if event.PaymentStatus == sessionPaymentStatusPaid {
			return domain.PaymentStatusPaid, true
		}
		return "", false
	case payments.EventCheckoutSessionAsyncPaymentSucceeded:
		return domain.PaymentStatusPaid, true
	case payments.EventCheckoutSessionAsyncPaymentFailed:
		return domain.PaymentStatusFailed, true
	case payments.EventCheckoutSessionExpired:
		return domain.PaymentStatusExpired, true
	default:
		return "", false
	}
}
