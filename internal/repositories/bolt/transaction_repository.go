// Package bolt stores checkout transactions in an embedded BoltDB file.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	boltdb "github.com/boltdb/bolt"
	"github.com/shopspring/decimal"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

var transactionsBucket = []byte("transactions")

type transactionRecord struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	ProductKey    string            `json:"product_key"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TransactionRepository implements repositories.TransactionRepository on BoltDB.
// Bolt serialises read-write transactions, which makes AdvanceStatus a compare-and-set.
type TransactionRepository struct {
	db *boltdb.DB
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

// Open opens (or creates) the database file and ensures the bucket exists.
func Open(path string) (*TransactionRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("bolt: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("bolt: create directory: %w", err)
		}
	}
	db, err := boltdb.Open(path, 0o600, &boltdb.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *boltdb.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transactionsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: create bucket: %w", err)
	}
	return &TransactionRepository{db: db}, nil
}

// Insert stores the transaction unless the session id is already present.
func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := strings.TrimSpace(txn.SessionID)
	if key == "" {
		return repositories.NewStoreError("transactions.insert", errors.New("session id is required"))
	}
	data, err := json.Marshal(toRecord(txn))
	if err != nil {
		return repositories.NewStoreError("transactions.insert", err)
	}
	err = r.db.Update(func(tx *boltdb.Tx) error {
		bucket := tx.Bucket(transactionsBucket)
		if bucket.Get([]byte(key)) != nil {
			return repositories.NewConflict("transactions.insert", fmt.Errorf("session %s already recorded", key))
		}
		return bucket.Put([]byte(key), data)
	})
	return wrap("transactions.insert", err)
}

// FindBySessionID returns the stored transaction.
func (r *TransactionRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}
	var txn domain.Transaction
	err := r.db.View(func(tx *boltdb.Tx) error {
		found, err := load(tx, "transactions.find", sessionID)
		txn = found
		return err
	})
	if err != nil {
		return domain.Transaction{}, wrap("transactions.find", err)
	}
	return txn, nil
}

// AdvanceStatus applies the conditional update inside a single read-write transaction.
// No bytes are written when the transition is not allowed.
func (r *TransactionRepository) AdvanceStatus(ctx context.Context, sessionID string, target domain.PaymentStatus, at time.Time) (repositories.AdvanceResult, error) {
	if err := ctx.Err(); err != nil {
		return repositories.AdvanceResult{}, err
	}
	var result repositories.AdvanceResult
	err := r.db.Update(func(tx *boltdb.Tx) error {
		current, err := load(tx, "transactions.advance", sessionID)
		if err != nil {
			return err
		}
		result = repositories.ApplyAdvance(current, target, at)
		if !result.Changed {
			return nil
		}
		data, err := json.Marshal(toRecord(result.Transaction))
		if err != nil {
			return err
		}
		return tx.Bucket(transactionsBucket).Put([]byte(current.SessionID), data)
	})
	if err != nil {
		return repositories.AdvanceResult{}, wrap("transactions.advance", err)
	}
	return result, nil
}

// Ping confirms the bucket is readable.
func (r *TransactionRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap("transactions.ping", r.db.View(func(tx *boltdb.Tx) error {
		if tx.Bucket(transactionsBucket) == nil {
			return errors.New("bucket missing")
		}
		return nil
	}))
}

// Close releases the file lock.
func (r *TransactionRepository) Close() error {
	return r.db.Close()
}

func load(tx *boltdb.Tx, op, sessionID string) (domain.Transaction, error) {
	key := strings.TrimSpace(sessionID)
	raw := tx.Bucket(transactionsBucket).Get([]byte(key))
	if key == "" || raw == nil {
		return domain.Transaction{}, repositories.NewNotFound(op, fmt.Errorf("session %q", key))
	}
	var record transactionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return fromRecord(record)
}

func toRecord(txn domain.Transaction) transactionRecord {
	return transactionRecord{
		ID:            txn.ID,
		SessionID:     strings.TrimSpace(txn.SessionID),
		ProductKey:    txn.ProductKey,
		Amount:        txn.Amount,
		Currency:      strings.ToLower(txn.Currency),
		PaymentStatus: string(txn.PaymentStatus),
		Metadata:      repositories.CloneMetadata(txn.Metadata),
		CreatedAt:     txn.CreatedAt.UTC(),
		UpdatedAt:     txn.UpdatedAt.UTC(),
	}
}

func fromRecord(record transactionRecord) (domain.Transaction, error) {
	status, ok := domain.ParsePaymentStatus(record.PaymentStatus)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("decode %s: unknown payment status %q", record.SessionID, record.PaymentStatus)
	}
	return domain.Transaction{
		ID:            record.ID,
		SessionID:     record.SessionID,
		ProductKey:    record.ProductKey,
		Amount:        record.Amount,
		Currency:      record.Currency,
		PaymentStatus: status,
		Metadata:      record.Metadata,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}, nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	if errors.Is(err, boltdb.ErrDatabaseNotOpen) || errors.Is(err, boltdb.ErrTimeout) {
		return repositories.NewUnavailable(op, err)
	}
	return repositories.NewStoreError(op, err)
}
