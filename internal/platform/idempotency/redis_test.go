package idempotency

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psicolfis/checkout-api/internal/platform/redisx"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client, "checkout")
	require.NoError(t, err)
	return store, srv
}

func TestRedisStoreReserveLifecycle(t *testing.T) {
	ctx := context.Background()
	store, srv := newRedisStore(t)

	first, err := store.Reserve(ctx, "key-1", "fp", fixedTime, 0)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, first.State)

	redisKey := fmt.Sprintf(redisx.KeyIdempotency, "checkout", hashedKey("key-1"))
	assert.True(t, srv.Exists(redisKey))
	assert.Equal(t, redisx.TTLReservation, srv.TTL(redisKey))

	pending, err := store.Reserve(ctx, "key-1", "fp", fixedTime, 0)
	require.NoError(t, err)
	assert.Equal(t, ReservationStatePending, pending.State)

	_, err = store.Reserve(ctx, "key-1", "other", fixedTime, 0)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)

	resp := Response{
		Status:  http.StatusOK,
		Headers: http.Header{"Content-Type": {"application/json"}, "Content-Length": {"12"}},
		Body:    []byte(`{"url":"x"}`),
	}
	require.NoError(t, store.SaveResponse(ctx, "key-1", "fp", resp, fixedTime, 0))
	assert.Equal(t, redisx.TTLIdempotency, srv.TTL(redisKey))

	done, err := store.Reserve(ctx, "key-1", "fp", fixedTime, 0)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateCompleted, done.State)
	assert.Equal(t, http.StatusOK, done.Record.ResponseStatus)
	assert.Equal(t, `{"url":"x"}`, string(done.Record.ResponseBody))
	assert.NotContains(t, done.Record.ResponseHeaders, "Content-Length")
}

func TestRedisStoreSaveRejectsForeignFingerprint(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	_, err := store.Reserve(ctx, "key-2", "fp", fixedTime, time.Minute)
	require.NoError(t, err)

	err = store.SaveResponse(ctx, "key-2", "other", Response{Status: http.StatusOK}, fixedTime, time.Hour)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)
}

func TestRedisStoreReleaseOnlyOwnReservation(t *testing.T) {
	ctx := context.Background()
	store, srv := newRedisStore(t)
	redisKey := fmt.Sprintf(redisx.KeyIdempotency, "checkout", hashedKey("key-3"))

	_, err := store.Reserve(ctx, "key-3", "fp", fixedTime, time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "key-3", "other"))
	assert.True(t, srv.Exists(redisKey))

	require.NoError(t, store.Release(ctx, "key-3", "fp"))
	assert.False(t, srv.Exists(redisKey))

	require.NoError(t, store.Release(ctx, "key-3", "fp"))
}

func TestRedisStoreReservationExpires(t *testing.T) {
	ctx := context.Background()
	store, srv := newRedisStore(t)

	_, err := store.Reserve(ctx, "key-4", "fp", fixedTime, time.Minute)
	require.NoError(t, err)
	srv.FastForward(2 * time.Minute)

	again, err := store.Reserve(ctx, "key-4", "fp", fixedTime, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationStateNew, again.State)
}

func TestRedisStoreSurfacesConnectionErrors(t *testing.T) {
	store, srv := newRedisStore(t)
	srv.Close()

	_, err := store.Reserve(context.Background(), "key-5", "fp", fixedTime, time.Minute)
	assert.Error(t, err)
}

func TestNewRedisStoreRequiresClient(t *testing.T) {
	_, err := NewRedisStore(nil, "")
	assert.Error(t, err)
}
