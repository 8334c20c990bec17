package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

// transitionRecorder applies the conditional status update shared by the
// status reconciler and the webhook receiver.
type transitionRecorder struct {
	transactions repositories.TransactionRepository
	publisher    TransactionEventPublisher
	logger       EventLogger
	now          func() time.Time
}

type transitionOutcome struct {
	result repositories.AdvanceResult
	found  bool
}

// advance moves the stored record toward target. A missing record is a
// reconciliation gap: it is logged and reported through found=false, not as an error.
func (r transitionRecorder) advance(ctx context.Context, source, sessionID string, target domain.PaymentStatus) (transitionOutcome, error) {
	result, err := r.transactions.AdvanceStatus(ctx, sessionID, target, r.now())
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			r.logger(ctx, source+".reconciliation_gap", map[string]any{
				"sessionId": sessionID,
				"target":    string(target),
			})
			return transitionOutcome{}, nil
		}
		return transitionOutcome{}, err
	}

	outcome := transitionOutcome{result: result, found: true}
	if !result.Changed {
		if result.Previous != target {
			r.logger(ctx, source+".transition_ignored", map[string]any{
				"sessionId": sessionID,
				"stored":    string(result.Previous),
				"target":    string(target),
			})
		}
		return outcome, nil
	}

	txn := result.Transaction
	r.logger(ctx, source+".transaction_advanced", map[string]any{
		"sessionId":     sessionID,
		"transactionId": txn.ID,
		"from":          string(result.Previous),
		"to":            string(txn.PaymentStatus),
	})
	r.publish(ctx, source, result)
	return outcome, nil
}

func (r transitionRecorder) publish(ctx context.Context, source string, result repositories.AdvanceResult) {
	if r.publisher == nil {
		return
	}
	txn := result.Transaction
	change := domain.TransactionStatusChange{
		TransactionID: txn.ID,
		SessionID:     txn.SessionID,
		ProductKey:    txn.ProductKey,
		From:          result.Previous,
		To:            txn.PaymentStatus,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Source:        source,
		OccurredAt:    txn.UpdatedAt,
	}
	if err := r.publisher.PublishStatusChange(ctx, change); err != nil {
		r.logger(ctx, "events.publish_failed", map[string]any{
			"sessionId": txn.SessionID,
			"to":        string(txn.PaymentStatus),
			"error":     err.Error(),
		})
	}
}

func isRepositoryUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsUnavailable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func nopLogger(context.Context, string, map[string]any) {}
