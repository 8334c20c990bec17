package repositories

import (
	"context"
	"time"

	domain "github.com/psicolfis/checkout-api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// AdvanceResult describes the outcome of a conditional status update.
type AdvanceResult struct {
	Transaction domain.Transaction
	Previous    domain.PaymentStatus
	Changed     bool
}

// TransactionRepository persists checkout transactions keyed by processor session id.
type TransactionRepository interface {
	// Insert stores a new transaction. A second insert for the same session id returns a
	// RepositoryError with IsConflict.
	Insert(ctx context.Context, txn domain.Transaction) error
	// FindBySessionID returns a RepositoryError with IsNotFound when no record exists.
	FindBySessionID(ctx context.Context, sessionID string) (domain.Transaction, error)
	// AdvanceStatus atomically moves the stored status to target when domain.CanAdvance
	// allows it. Same-status and regressive writes leave the record, including updated_at,
	// untouched and report Changed=false.
	AdvanceStatus(ctx context.Context, sessionID string, target domain.PaymentStatus, at time.Time) (AdvanceResult, error)
	// Ping checks connectivity for readiness probes.
	Ping(ctx context.Context) error
	Close() error
}

// HealthRepository collects dependency health for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
