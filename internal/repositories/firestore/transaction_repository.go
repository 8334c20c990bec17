package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	pfirestore "github.com/psicolfis/checkout-api/internal/platform/firestore"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

// DefaultCollection stores one document per checkout session, keyed by session id.
const DefaultCollection = "transactions"

type transactionDocument struct {
	ID            string            `firestore:"id"`
	SessionID     string            `firestore:"sessionId"`
	ProductKey    string            `firestore:"productKey"`
	Amount        string            `firestore:"amount"`
	Currency      string            `firestore:"currency"`
	PaymentStatus string            `firestore:"paymentStatus"`
	Metadata      map[string]string `firestore:"metadata,omitempty"`
	CreatedAt     time.Time         `firestore:"createdAt"`
	UpdatedAt     time.Time         `firestore:"updatedAt"`
}

// TransactionRepository implements repositories.TransactionRepository on Firestore.
type TransactionRepository struct {
	provider   *pfirestore.Provider
	collection string
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository constructs a Firestore-backed transaction repository.
func NewTransactionRepository(provider *pfirestore.Provider, collection string) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = DefaultCollection
	}
	return &TransactionRepository{provider: provider, collection: collection}, nil
}

func (r *TransactionRepository) docRef(ctx context.Context, sessionID string) (*firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection).Doc(sessionID), nil
}

// Insert creates the document; an existing document for the session yields a conflict.
func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	sessionID := strings.TrimSpace(txn.SessionID)
	if sessionID == "" {
		return repositories.NewStoreError("transactions.insert", errors.New("session id is required"))
	}
	ref, err := r.docRef(ctx, sessionID)
	if err != nil {
		return pfirestore.WrapError("transactions.insert", err)
	}
	if _, err := ref.Create(ctx, encodeTransaction(txn)); err != nil {
		return pfirestore.WrapError("transactions.insert", err)
	}
	return nil
}

// FindBySessionID loads the transaction for a processor session.
func (r *TransactionRepository) FindBySessionID(ctx context.Context, sessionID string) (domain.Transaction, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Transaction{}, pfirestore.NotFound("transactions.find", errors.New("session id is required"))
	}
	ref, err := r.docRef(ctx, sessionID)
	if err != nil {
		return domain.Transaction{}, pfirestore.WrapError("transactions.find", err)
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return domain.Transaction{}, pfirestore.WrapError("transactions.find", err)
	}
	return decodeSnapshot(snap)
}

// AdvanceStatus reads and conditionally rewrites the status inside one Firestore transaction.
// Concurrent writers contend on the document and the loser is retried against the winner's state.
func (r *TransactionRepository) AdvanceStatus(ctx context.Context, sessionID string, target domain.PaymentStatus, at time.Time) (repositories.AdvanceResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return repositories.AdvanceResult{}, pfirestore.NotFound("transactions.advance", errors.New("session id is required"))
	}

	var result repositories.AdvanceResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.docRef(ctx, sessionID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return pfirestore.NotFound("transactions.advance", err)
		}
		if err != nil {
			return err
		}
		current, err := decodeSnapshot(snap)
		if err != nil {
			return err
		}

		result = repositories.ApplyAdvance(current, target, at)
		if !result.Changed {
			return nil
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "paymentStatus", Value: string(result.Transaction.PaymentStatus)},
			{Path: "updatedAt", Value: result.Transaction.UpdatedAt},
		})
	})
	if err != nil {
		return repositories.AdvanceResult{}, pfirestore.WrapError("transactions.advance", err)
	}
	return result, nil
}

// Ping verifies the collection can be read.
func (r *TransactionRepository) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx, r.collection)
}

// Close releases the shared Firestore client.
func (r *TransactionRepository) Close() error {
	return r.provider.Close()
}

func encodeTransaction(txn domain.Transaction) transactionDocument {
	return transactionDocument{
		ID:            txn.ID,
		SessionID:     strings.TrimSpace(txn.SessionID),
		ProductKey:    txn.ProductKey,
		Amount:        txn.Amount.StringFixed(2),
		Currency:      strings.ToLower(txn.Currency),
		PaymentStatus: string(txn.PaymentStatus),
		Metadata:      repositories.CloneMetadata(txn.Metadata),
		CreatedAt:     txn.CreatedAt.UTC(),
		UpdatedAt:     txn.UpdatedAt.UTC(),
	}
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (domain.Transaction, error) {
	var doc transactionDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Transaction{}, fmt.Errorf("firestore transactions decode %s: %w", snap.Ref.ID, err)
	}
	amount, err := decimal.NewFromString(doc.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("firestore transactions decode amount %s: %w", snap.Ref.ID, err)
	}
	paymentStatus, ok := domain.ParsePaymentStatus(doc.PaymentStatus)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("firestore transactions decode %s: unknown payment status %q", snap.Ref.ID, doc.PaymentStatus)
	}
	return domain.Transaction{
		ID:            doc.ID,
		SessionID:     doc.SessionID,
		ProductKey:    doc.ProductKey,
		Amount:        amount,
		Currency:      doc.Currency,
		PaymentStatus: paymentStatus,
		Metadata:      doc.Metadata,
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}, nil
}
