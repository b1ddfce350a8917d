package app_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"vibecheck/internal/domain"
)

// ---- fakes ----

type fakeRepo struct {
	mu         sync.Mutex
	businesses map[int64]domain.Business
	users      map[int64]domain.User
	reviews    map[int64]domain.Review
	nextID     int64
	inserts    int
	txs        int
	failUpdate error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		businesses: map[int64]domain.Business{},
		users:      map[int64]domain.User{},
		reviews:    map[int64]domain.Review{},
	}
}

func (f *fakeRepo) InsertReview(ctx context.Context, r domain.Review) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	f.reviews[r.ID] = r
	f.inserts++
	return r.ID, nil
}

func (f *fakeRepo) DeleteReview(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reviews[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.reviews, id)
	return nil
}

func (f *fakeRepo) UpdateBusinessAggregate(ctx context.Context, id int64, score float64, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	b, ok := f.businesses[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.AggregatedVibeScore, b.TotalReviews = score, total
	f.businesses[id] = b
	return nil
}

func (f *fakeRepo) InsertBusiness(ctx context.Context, b domain.Business) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.businesses[b.ID] = b
	return b.ID, nil
}

func (f *fakeRepo) InsertUser(ctx context.Context, u domain.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.users {
		if o.Username == u.Username {
			return 0, fmt.Errorf("username %w", domain.ErrConflict)
		}
		if u.Email != "" && o.Email == u.Email {
			return 0, fmt.Errorf("email %w", domain.ErrConflict)
		}
	}
	if u.ID == 0 {
		f.nextID++
		u.ID = f.nextID
	}
	f.users[u.ID] = u
	return u.ID, nil
}

func (f *fakeRepo) LockBusiness(ctx context.Context, id int64) error {
	_, err := f.GetBusiness(ctx, id)
	return err
}

func (f *fakeRepo) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.businesses[id]
	if !ok {
		return domain.Business{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) ListReviewsForBusiness(ctx context.Context, businessID int64) ([]domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Review
	for _, r := range f.reviews {
		if r.BusinessID == businessID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) ListBusinesses(ctx context.Context, q domain.BusinessesQuery) ([]domain.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Business
	for _, b := range f.businesses {
		if q.Category == nil || *q.Category == b.Category {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) ListBusinessIDs(ctx context.Context) ([]int64, error) {
	bs, _ := f.ListBusinesses(ctx, domain.BusinessesQuery{})
	ids := make([]int64, 0, len(bs))
	for _, b := range bs {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// WithTx fails on a done ctx the way sql.DB.BeginTx does.
func (f *fakeRepo) WithTx(ctx context.Context, fn func(domain.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.txs++
	f.mu.Unlock()
	return fn(f)
}

func (f *fakeRepo) setStoredAggregate(id int64, score float64, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.businesses[id]
	b.AggregatedVibeScore, b.TotalReviews = score, total
	f.businesses[id] = b
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *domain.BusinessView:
		*d = v.(domain.BusinessView)
	case *domain.ReviewsPage:
		*d = v.(domain.ReviewsPage)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

type stubClassifier struct {
	c     domain.Classification
	err   error
	panic bool
}

func (s stubClassifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	if s.panic {
		panic("model exploded")
	}
	return s.c, s.err
}

func (s stubClassifier) ClassifyBatch(ctx context.Context, texts []string) ([]domain.Classification, error) {
	out := make([]domain.Classification, 0, len(texts))
	for _, t := range texts {
		c, err := s.Classify(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// blockingClassifier never answers before its context is done.
type blockingClassifier struct{}

func (blockingClassifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	<-ctx.Done()
	return domain.Classification{}, ctx.Err()
}

func (blockingClassifier) ClassifyBatch(ctx context.Context, texts []string) ([]domain.Classification, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// gatedRepo parks the first call of method, after it has read, until
// resume is closed.
type gatedRepo struct {
	*fakeRepo
	method string
	once   sync.Once
	parked chan struct{}
	resume chan struct{}
}

func newGatedRepo(r *fakeRepo, method string) *gatedRepo {
	return &gatedRepo{fakeRepo: r, method: method, parked: make(chan struct{}), resume: make(chan struct{})}
}

func (g *gatedRepo) park(method string) {
	if method != g.method {
		return
	}
	g.once.Do(func() {
		close(g.parked)
		<-g.resume
	})
}

func (g *gatedRepo) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	b, err := g.fakeRepo.GetBusiness(ctx, id)
	g.park("GetBusiness")
	return b, err
}

func (g *gatedRepo) ListReviewsForBusiness(ctx context.Context, businessID int64) ([]domain.Review, error) {
	rs, err := g.fakeRepo.ListReviewsForBusiness(ctx, businessID)
	g.park("ListReviewsForBusiness")
	return rs, err
}

var errModelDown = errors.New("model down")

func ptr[T any](v T) *T { return &v }
