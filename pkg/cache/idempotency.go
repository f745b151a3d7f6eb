package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const inFlightMarker = "__in_flight__"

// IdempotencyStore remembers the outcome of a request keyed by the client's
// Idempotency-Key.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *IdempotencyStore {
	return &IdempotencyStore{
		rdb: rdb,
		ttl: ttl,
		log: log.With(zap.String("component", "idempotency")),
	}
}

func idempotencyKey(key string) string {
	return keyPrefix + "idem:" + key
}

// Claim reserves key for a new request. When claimed is false, replay holds
// the stored result of a completed request, or is nil while the original
// request is still in flight.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (replay []byte, claimed bool, err error) {
	k := idempotencyKey(key)

	ok, err := s.rdb.SetNX(ctx, k, inFlightMarker, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	val, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// Released between SETNX and GET; the caller may retry.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read idempotency key: %w", err)
	}
	if string(val) == inFlightMarker {
		return nil, false, nil
	}

	s.log.Debug("Replaying stored result", zap.String("key", key))
	return val, false, nil
}

// Complete stores the result for later replays.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, result []byte) error {
	if err := s.rdb.Set(ctx, idempotencyKey(key), result, s.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotent result: %w", err)
	}
	return nil
}

// Release forgets a claim so the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
