// Package postgres stores checkout transactions in PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const selectColumns = `id, session_id, product_key, amount::text, currency, payment_status, metadata, created_at, updated_at`

// TransactionRepository implements repositories.TransactionRepository on PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository wraps an open pool.
func NewTransactionRepository(pool *pgxpool.Pool) (*TransactionRepository, error) {
	if pool == nil {
		return nil, errors.New("transaction repository requires a postgres pool")
	}
	return &TransactionRepository{pool: pool}, nil
}

// Migrate applies the table definition. It is safe to run repeatedly.
func (r *TransactionRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return classify("transactions.migrate", err)
	}
	return nil
}

// Insert stores a new row; the session_id primary key rejects duplicates.
func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	sessionID := strings.TrimSpace(txn.SessionID)
	if sessionID == "" {
		return repositories.NewStoreError("transactions.insert", errors.New("session id is required"))
	}
	metadata := txn.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO checkout_transactions
			(id, session_id, product_key, amount, currency, payment_status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)`,
		txn.ID, sessionID, txn.ProductKey, txn.Amount.StringFixed(2), strings.ToLower(txn.Currency),
		string(txn.PaymentStatus), metadata, txn.CreatedAt.UTC(), txn.UpdatedAt.UTC(),
	)
	if err != nil {
		return classify("transactions.insert", err)
	}
	return nil
}

// FindBySessionID loads a row by its session id.
func (r *TransactionRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM checkout_transactions WHERE session_id=$1`, strings.TrimSpace(sessionID))
	txn, err := scanTransaction(row)
	if err != nil {
		return domain.Transaction{}, classify("transactions.find", err)
	}
	return txn, nil
}

// AdvanceStatus performs the compare-and-set as one UPDATE filtered on the pending status.
// When no row is updated the current row is read back to tell a no-op from a missing session.
func (r *TransactionRepository) AdvanceStatus(ctx context.Context, sessionID string, target domain.PaymentStatus, at time.Time) (repositories.AdvanceResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if !domain.CanAdvance(domain.PaymentStatusPending, target) {
		current, err := r.FindBySessionID(ctx, sessionID)
		if err != nil {
			return repositories.AdvanceResult{}, err
		}
		return repositories.AdvanceResult{Transaction: current, Previous: current.PaymentStatus}, nil
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE checkout_transactions
		   SET payment_status=$2, updated_at=$3
		 WHERE session_id=$1 AND payment_status=$4
		RETURNING `+selectColumns,
		sessionID, string(target), at.UTC(), string(domain.PaymentStatusPending),
	)
	updated, err := scanTransaction(row)
	switch {
	case err == nil:
		return repositories.AdvanceResult{Transaction: updated, Previous: domain.PaymentStatusPending, Changed: true}, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return repositories.AdvanceResult{}, classify("transactions.advance", err)
	}

	current, err := r.FindBySessionID(ctx, sessionID)
	if err != nil {
		return repositories.AdvanceResult{}, err
	}
	return repositories.AdvanceResult{Transaction: current, Previous: current.PaymentStatus}, nil
}

// Ping checks pool connectivity.
func (r *TransactionRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return repositories.NewUnavailable("transactions.ping", err)
	}
	return nil
}

// Close releases the pool.
func (r *TransactionRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		txn      domain.Transaction
		amount   string
		status   string
		metadata map[string]string
	)
	if err := row.Scan(&txn.ID, &txn.SessionID, &txn.ProductKey, &amount, &txn.Currency, &status, &metadata, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return domain.Transaction{}, err
	}
	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	parsedStatus, ok := domain.ParsePaymentStatus(status)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("decode payment status %q", status)
	}
	txn.Amount = parsedAmount
	txn.PaymentStatus = parsedStatus
	txn.Metadata = metadata
	txn.CreatedAt = txn.CreatedAt.UTC()
	txn.UpdatedAt = txn.UpdatedAt.UTC()
	return txn, nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.NewNotFound(op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return repositories.NewConflict(op, err)
		}
		return repositories.NewStoreError(op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return repositories.NewUnavailable(op, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return repositories.NewUnavailable(op, err)
	}
	return repositories.NewStoreError(op, err)
}
