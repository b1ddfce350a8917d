// Package redisad is the Redis implementation of domain.Cache. Values are
// stored as JSON under a namespaced key.
package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"vibecheck/internal/adapters/observability"
	"vibecheck/internal/domain"
)

const keyPrefix = "vibecheck:"

// Cache trips a circuit breaker after consecutive Redis failures. While it
// is open every call fails fast with gobreaker.ErrOpenState and callers
// fall back to the repository.
type Cache struct {
	c  *redis.Client
	cb *gobreaker.CircuitBreaker
}

var _ domain.Cache = (*Cache)(nil)

func New(addr, pass string, db int) *Cache {
	return NewWithBreaker(addr, pass, db, 5, 30*time.Second)
}

// NewWithBreaker opens after tripAfter consecutive failures and probes
// again once openFor has elapsed.
func NewWithBreaker(addr, pass string, db int, tripAfter uint32, openFor time.Duration) *Cache {
	rc := redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db, MaxRetries: 1})
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= tripAfter },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("component", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return &Cache{c: rc, cb: cb}
}

func (r *Cache) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

func (r *Cache) Close() error { return r.c.Close() }

func (r *Cache) State() gobreaker.State { return r.cb.State() }

func (r *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		v, err := r.c.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return v, err
	})
	if err != nil {
		observability.ObserveCache("redis", "error")
		return false, err
	}
	v, _ := res.([]byte)
	if v == nil {
		observability.ObserveCache("redis", "miss")
		return false, nil
	}
	observability.ObserveCache("redis", "hit")
	if err := json.Unmarshal(v, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (r *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	observability.ObserveCache("redis", "set")
	_, err = r.cb.Execute(func() (interface{}, error) {
		return nil, r.c.Set(ctx, keyPrefix+key, b, time.Duration(ttlSec)*time.Second).Err()
	})
	return err
}

func (r *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache("redis", "del")
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.c.Del(ctx, keyPrefix+key).Err()
	})
	return err
}
