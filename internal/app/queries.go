package app

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"vibecheck/internal/domain"
)

// QueryService serves read models, caching them when views is non-nil.
// Concurrent misses for the same business share one repository read.
type QueryService struct {
	repo     domain.Repository
	views    *ViewCache
	cacheTTL time.Duration
	group    singleflight.Group
}

func NewQueryService(r domain.Repository, views *ViewCache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, views: views, cacheTTL: ttl}
}

func (s *QueryService) GetBusiness(ctx context.Context, id int64) (domain.BusinessView, error) {
	key := businessKey(id)
	var bv domain.BusinessView
	if s.views.get(ctx, key, &bv) {
		return bv, nil
	}
	v, err, _ := s.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		gen := s.views.generation(id)
		b, err := s.repo.GetBusiness(ctx, id)
		if err != nil {
			return nil, err
		}
		bv := toBusinessView(b)
		s.views.set(ctx, id, gen, key, bv, s.cacheTTL)
		return bv, nil
	})
	if err != nil {
		return domain.BusinessView{}, err
	}
	return v.(domain.BusinessView), nil
}

func (s *QueryService) ListBusinesses(ctx context.Context, q domain.BusinessesQuery) ([]domain.BusinessView, error) {
	bs, err := s.repo.ListBusinesses(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BusinessView, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBusinessView(b))
	}
	return out, nil
}

// ListReviews returns up to limit reviews of a business, newest first.
func (s *QueryService) ListReviews(ctx context.Context, businessID int64, limit int) (domain.ReviewsPage, error) {
	key := reviewsKey(businessID, limit)
	useCache := s.views != nil && cacheableLimit(limit)

	var out domain.ReviewsPage
	if useCache && s.views.get(ctx, key, &out) {
		return out, nil
	}

	gen := s.views.generation(businessID)
	if _, err := s.repo.GetBusiness(ctx, businessID); err != nil {
		return domain.ReviewsPage{}, err
	}
	rs, err := s.repo.ListReviewsForBusiness(ctx, businessID)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	out = domain.ReviewsPage{Items: newestFirst(rs, limit)}

	// optional size guard
	if useCache {
		if b, _ := json.Marshal(out); len(b) < 1_000_000 {
			s.views.set(ctx, businessID, gen, key, out, s.cacheTTL)
		}
	}
	return out, nil
}
