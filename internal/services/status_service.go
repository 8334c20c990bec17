package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/payments"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

// Processor-side session values consulted during reconciliation.
const (
	sessionPaymentStatusPaid   = "paid"
	sessionPaymentStatusUnpaid = "unpaid"
	sessionStatusOpen          = "open"
	sessionStatusComplete      = "complete"
	sessionStatusExpired       = "expired"
)

// StatusServiceDeps wires the dependencies required by the status reconciler.
type StatusServiceDeps struct {
	Payments     sessionReader
	Transactions repositories.TransactionRepository
	Publisher    TransactionEventPublisher
	Clock        func() time.Time
	Logger       EventLogger
}

type statusService struct {
	payments     sessionReader
	transactions repositories.TransactionRepository
	recorder     transitionRecorder
	logger       EventLogger
}

var _ StatusService = (*statusService)(nil)

// NewStatusService constructs the status reconciler.
func NewStatusService(deps StatusServiceDeps) (StatusService, error) {
	if deps.Payments == nil {
		return nil, errors.New("status service: payment provider is required")
	}
	if deps.Transactions == nil {
		return nil, errors.New("status service: transaction repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &statusService{
		payments:     deps.Payments,
		transactions: deps.Transactions,
		recorder: transitionRecorder{
			transactions: deps.Transactions,
			publisher:    deps.Publisher,
			logger:       logger,
			now:          func() time.Time { return clock().UTC() },
		},
		logger: logger,
	}, nil
}

// GetStatus returns the processor's view of the session and advances the local record when the
// processor reports a terminal outcome. Persistence problems never change the returned view.
func (s *statusService) GetStatus(ctx context.Context, sessionID string) (StatusView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return StatusView{}, clientError(ErrStatusInvalidSession, nil)
	}

	details, err := s.payments.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return StatusView{}, clientError(ErrStatusSessionNotFound, err)
		}
		s.logger(ctx, "status.provider_failed", map[string]any{
			"sessionId": sessionID,
			"retryable": payments.IsRetryable(err),
			"error":     err.Error(),
		})
		return s.fallbackView(ctx, sessionID, err)
	}

	if target, ok := targetFromSession(details); ok {
		if _, err := s.recorder.advance(ctx, "status", sessionID, target); err != nil {
			s.logger(ctx, "status.persist_failed", map[string]any{
				"sessionId": sessionID,
				"target":    string(target),
				"error":     err.Error(),
			})
		}
	}

	return StatusView{
		SessionID:     sessionID,
		Status:        details.Status,
		PaymentStatus: details.PaymentStatus,
		AmountTotal:   details.AmountTotal,
		Currency:      details.Currency,
		Metadata:      details.Metadata,
	}, nil
}

// fallbackView serves the last known local state when the processor fails. Without a
// local record the processor error decides retryability.
func (s *statusService) fallbackView(ctx context.Context, sessionID string, cause error) (StatusView, error) {
	txn, err := s.transactions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return StatusView{}, upstreamError(ErrStatusUpstream, cause, payments.IsRetryable(cause))
	}
	return localView(txn), nil
}

func targetFromSession(details payments.SessionDetails) (domain.PaymentStatus, bool) {
	switch {
	case details.PaymentStatus == sessionPaymentStatusPaid:
		return domain.PaymentStatusPaid, true
	case details.Status == sessionStatusExpired:
		return domain.PaymentStatusExpired, true
	default:
		return "", false
	}
}

func localView(txn domain.Transaction) StatusView {
	view := StatusView{
		SessionID:     txn.SessionID,
		Status:        sessionStatusOpen,
		PaymentStatus: sessionPaymentStatusUnpaid,
		AmountTotal:   txn.Amount.Shift(2).Round(0).IntPart(),
		Currency:      txn.Currency,
		Metadata:      repositories.CloneMetadata(txn.Metadata),
		Stale:         true,
	}
	switch txn.PaymentStatus {
	case domain.PaymentStatusPaid:
		view.Status = sessionStatusComplete
		view.PaymentStatus = sessionPaymentStatusPaid
	case domain.PaymentStatusExpired:
		view.Status = sessionStatusExpired
	case domain.PaymentStatusFailed:
		view.Status = sessionStatusComplete
	}
	return view
}
