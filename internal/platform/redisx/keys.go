package redisx

import "time"

const (
	// KeyIdempotency holds a reserved or completed idempotent response: idem:{scope}:{key}.
	KeyIdempotency = "idem:%s:%s"

	// KeyRateLimit counts requests in a fixed window: ratelimit:{bucket}:{client}:{window}.
	KeyRateLimit = "ratelimit:%s:%s:%d"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLReservation = 5 * time.Minute
)
