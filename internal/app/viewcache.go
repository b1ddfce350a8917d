package app

import (
	"context"
	"sync"
	"time"

	"vibecheck/internal/domain"
)

// ViewCache caches the read models of businesses. Every business carries an
// invalidation generation that writers bump after commit; a read model is
// only kept in the cache if no write to its business committed after the
// read started. A nil *ViewCache caches nothing.
//
// Generations are process-local: they order readers and writers of this
// process only.
type ViewCache struct {
	c domain.Cache

	mu   sync.Mutex
	gens map[int64]uint64
}

// NewViewCache returns nil when c is nil, which disables caching.
func NewViewCache(c domain.Cache) *ViewCache {
	if c == nil {
		return nil
	}
	return &ViewCache{c: c, gens: make(map[int64]uint64)}
}

func (v *ViewCache) get(ctx context.Context, key string, dst any) bool {
	if v == nil {
		return false
	}
	ok, _ := v.c.Get(ctx, key, dst)
	return ok
}

// generation must be taken before the repository read whose result is
// later passed to set.
func (v *ViewCache) generation(id int64) uint64 {
	if v == nil {
		return 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gens[id]
}

// set stores val under key unless business id was invalidated since gen
// was taken. An invalidation racing with the write removes the entry again.
func (v *ViewCache) set(ctx context.Context, id int64, gen uint64, key string, val any, ttl time.Duration) {
	if v == nil || v.generation(id) != gen {
		return
	}
	_ = v.c.Set(ctx, key, val, int(ttl.Seconds()))
	if v.generation(id) != gen {
		_ = v.c.Del(ctx, key)
	}
}

// invalidate evicts every cached view derived from the business's reviews.
// Cache errors are ignored; entries expire on their own.
func (v *ViewCache) invalidate(ctx context.Context, id int64) {
	if v == nil {
		return
	}
	v.mu.Lock()
	v.gens[id]++
	v.mu.Unlock()

	_ = v.c.Del(ctx, businessKey(id))
	for _, lim := range cachedReviewLimits {
		_ = v.c.Del(ctx, reviewsKey(id, lim))
	}
}
