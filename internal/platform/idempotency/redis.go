package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/psicolfis/checkout-api/internal/platform/redisx"
)

// RedisStore shares idempotency records across API instances. Reservations use SET NX so
// only one request per key proceeds; completed responses are stored with their own TTL.
type RedisStore struct {
	client redis.UniversalClient
	scope  string
}

// NewRedisStore scopes keys under idem:{scope}:.
func NewRedisStore(client redis.UniversalClient, scope string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "http"
	}
	return &RedisStore{client: client, scope: scope}, nil
}

// Reserve implements the Store interface.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = redisx.TTLReservation
	}
	record := Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode reservation: %w", err)
	}

	redisKey := s.redisKey(key)
	// A reservation that expires between SETNX and GET is retried once.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, redisKey, data, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if ok {
			return Reservation{State: ReservationStateNew, Record: record}, nil
		}

		existing, found, err := s.load(ctx, redisKey)
		if err != nil {
			return Reservation{}, err
		}
		if found {
			return classify(existing, fingerprint)
		}
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

// SaveResponse implements the Store interface.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = redisx.TTLIdempotency
	}
	redisKey := s.redisKey(key)

	record, found, err := s.load(ctx, redisKey)
	if err != nil {
		return err
	}
	if found && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !found {
		record = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}

	data, err := json.Marshal(completeRecord(record, resp, now, ttl))
	if err != nil {
		return fmt.Errorf("idempotency: encode response: %w", err)
	}
	if err := s.client.Set(ctx, redisKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return nil
}

// Release implements the Store interface.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	redisKey := s.redisKey(key)
	record, found, err := s.load(ctx, redisKey)
	if err != nil || !found {
		return err
	}
	if record.Fingerprint != fingerprint {
		return nil
	}
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, redisKey string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, true, nil
}

func (s *RedisStore) redisKey(key string) string {
	return fmt.Sprintf(redisx.KeyIdempotency, s.scope, hashedKey(key))
}
