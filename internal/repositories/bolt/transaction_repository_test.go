package bolt

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

var created = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func openRepo(t *testing.T) *TransactionRepository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "data", "checkout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func pendingTxn(sessionID string) domain.Transaction {
	return domain.Transaction{
		ID:            "01HXBOLT" + sessionID,
		SessionID:     sessionID,
		ProductKey:    "iris",
		Amount:        decimal.RequireFromString("50.00"),
		Currency:      "EUR",
		PaymentStatus: domain.PaymentStatusPending,
		Metadata:      map[string]string{"product_name": "PSICOLFIS – IRIS", "source": "psicolfis-web"},
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestInsertAndFind(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, pendingTxn("cs_1")))

	stored, err := repo.FindBySessionID(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, "eur", stored.Currency)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "PSICOLFIS – IRIS", stored.Metadata["product_name"])
	assert.True(t, stored.CreatedAt.Equal(created))

	err = repo.Insert(ctx, pendingTxn("cs_1"))
	assert.True(t, repositories.IsConflict(err), "expected conflict, got %v", err)

	_, err = repo.FindBySessionID(ctx, "cs_missing")
	assert.True(t, repositories.IsNotFound(err))
}

func TestAdvanceStatusIsIdempotentAndMonotonic(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, pendingTxn("cs_1")))

	paidAt := created.Add(time.Minute)
	first, err := repo.AdvanceStatus(ctx, "cs_1", domain.PaymentStatusPaid, paidAt)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, domain.PaymentStatusPending, first.Previous)

	second, err := repo.AdvanceStatus(ctx, "cs_1", domain.PaymentStatusPaid, paidAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, second.Changed)

	regress, err := repo.AdvanceStatus(ctx, "cs_1", domain.PaymentStatusPending, paidAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, regress.Changed)

	stored, err := repo.FindBySessionID(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	assert.True(t, stored.UpdatedAt.Equal(paidAt), "updated_at must not move on no-op writes")

	_, err = repo.AdvanceStatus(ctx, "cs_missing", domain.PaymentStatusPaid, paidAt)
	assert.True(t, repositories.IsNotFound(err))
}

func TestAdvanceStatusRaceHasSingleWinner(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, pendingTxn("cs_race")))

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			result, err := repo.AdvanceStatus(ctx, "cs_race", domain.PaymentStatusPaid, created.Add(time.Duration(i+1)*time.Second))
			if err != nil {
				t.Errorf("advance: %v", err)
				return
			}
			if result.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, changed)
	stored, err := repo.FindBySessionID(ctx, "cs_race")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
}

func TestPingAndCancelledContext(t *testing.T) {
	repo := openRepo(t)
	require.NoError(t, repo.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, repo.Insert(ctx, pendingTxn("cs_1")), context.Canceled)
}
