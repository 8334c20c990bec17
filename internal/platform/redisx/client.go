package redisx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Settings configures the shared Redis client.
type Settings struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New builds a client and verifies connectivity with PING.
func New(ctx context.Context, settings Settings) (*redis.Client, error) {
	addr := strings.TrimSpace(settings.Addr)
	if addr == "" {
		return nil, errors.New("redisx: address is required")
	}
	opts := &redis.Options{
		Addr:         addr,
		Password:     settings.Password,
		DB:           settings.DB,
		DialTimeout:  durationOr(settings.DialTimeout, 2*time.Second),
		ReadTimeout:  durationOr(settings.ReadTimeout, time.Second),
		WriteTimeout: durationOr(settings.WriteTimeout, time.Second),
	}
	client := redis.NewClient(opts)
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Ping reports whether the server answers within the context deadline.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return errors.New("redisx: client not configured")
	}
	return client.Ping(ctx).Err()
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
