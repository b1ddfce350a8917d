package app

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"vibecheck/internal/adapters/observability"
	"vibecheck/internal/domain"
	"vibecheck/internal/scoring"
)

// AggregationService keeps a business's published aggregate equal to a
// fresh computation over its full review set. There is no running sum:
// every update recomputes from scratch.
type AggregationService struct {
	repo  domain.Repository
	views *ViewCache
	locks *keyedMutex
}

func NewAggregationService(r domain.Repository, views *ViewCache) *AggregationService {
	return &AggregationService{repo: r, views: views, locks: newKeyedMutex()}
}

// Recompute returns the aggregate the business should publish, without
// writing it.
func (s *AggregationService) Recompute(ctx context.Context, businessID int64) (domain.Aggregate, error) {
	if _, err := s.repo.GetBusiness(ctx, businessID); err != nil {
		return domain.Aggregate{}, err
	}
	rs, err := s.repo.ListReviewsForBusiness(ctx, businessID)
	if err != nil {
		return domain.Aggregate{}, err
	}
	return scoring.Aggregate(rs), nil
}

// ApplyAndPersist recomputes the aggregate and writes it back to the
// business record.
func (s *AggregationService) ApplyAndPersist(ctx context.Context, businessID int64) (domain.Aggregate, error) {
	unlock := s.locks.Lock(businessID)
	defer unlock()

	var agg domain.Aggregate
	err := s.repo.WithTx(ctx, func(tx domain.Repository) error {
		var err error
		agg, err = s.applyTx(ctx, tx, businessID)
		return err
	})
	observability.ObserveRecompute("recompute", err)
	if err != nil {
		return domain.Aggregate{}, err
	}
	s.views.invalidate(ctx, businessID)
	return agg, nil
}

// Reconciliation compares a stored aggregate with a fresh recompute.
type Reconciliation struct {
	BusinessID int64            `json:"business_id"`
	Stored     domain.Aggregate `json:"stored"`
	Fresh      domain.Aggregate `json:"fresh"`
	Drifted    bool             `json:"drifted"`
}

// Reconcile persists a fresh aggregate and reports whether the stored one
// had drifted from it.
func (s *AggregationService) Reconcile(ctx context.Context, businessID int64) (Reconciliation, error) {
	unlock := s.locks.Lock(businessID)
	defer unlock()

	rec := Reconciliation{BusinessID: businessID}
	err := s.repo.WithTx(ctx, func(tx domain.Repository) error {
		if err := tx.LockBusiness(ctx, businessID); err != nil {
			return err
		}
		b, err := tx.GetBusiness(ctx, businessID)
		if err != nil {
			return err
		}
		rec.Stored = domain.Aggregate{Score: b.AggregatedVibeScore, Total: b.TotalReviews}
		rec.Fresh, err = s.applyTx(ctx, tx, businessID)
		return err
	})
	observability.ObserveRecompute("reconcile", err)
	if err != nil {
		return Reconciliation{}, err
	}
	rec.Drifted = rec.Stored != rec.Fresh
	if rec.Drifted {
		observability.ObserveDrift()
		log.Warn().
			Int64("business_id", businessID).
			Float64("stored_score", rec.Stored.Score).
			Int("stored_total", rec.Stored.Total).
			Float64("fresh_score", rec.Fresh.Score).
			Int("fresh_total", rec.Fresh.Total).
			Msg("aggregate drift repaired")
	}
	s.views.invalidate(ctx, businessID)
	return rec, nil
}

// applyTx recomputes and stores the aggregate inside tx. The business row
// is locked before the review set is read.
func (s *AggregationService) applyTx(ctx context.Context, tx domain.Repository, businessID int64) (domain.Aggregate, error) {
	if err := tx.LockBusiness(ctx, businessID); err != nil {
		return domain.Aggregate{}, err
	}
	rs, err := tx.ListReviewsForBusiness(ctx, businessID)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("list reviews of business %d: %w", businessID, err)
	}
	agg := scoring.Aggregate(rs)
	if err := tx.UpdateBusinessAggregate(ctx, businessID, agg.Score, agg.Total); err != nil {
		return domain.Aggregate{}, err
	}
	return agg, nil
}

// ReconcileSummary totals a ReconcileAll pass.
type ReconcileSummary struct {
	Checked int
	Drifted []Reconciliation
	Failed  map[int64]error
}

// ReconcileAll reconciles every business with at most workers in flight.
// Per-business failures are collected, not fatal.
func (s *AggregationService) ReconcileAll(ctx context.Context, workers int) (ReconcileSummary, error) {
	ids, err := s.repo.ListBusinessIDs(ctx)
	if err != nil {
		return ReconcileSummary{}, err
	}
	if workers < 1 {
		workers = 1
	}

	sum := ReconcileSummary{Failed: map[int64]error{}}
	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for _, id := range ids {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return sum, err
		}

		wg.Add(1)
		go func(businessID int64) {
			defer wg.Done()
			defer sem.Release(1)

			rec, err := s.Reconcile(ctx, businessID)
			mu.Lock()
			defer mu.Unlock()
			sum.Checked++
			if err != nil {
				log.Warn().Int64("business_id", businessID).Err(err).Msg("reconcile failed")
				sum.Failed[businessID] = err
				return
			}
			if rec.Drifted {
				sum.Drifted = append(sum.Drifted, rec)
			}
		}(id)
	}

	wg.Wait()
	sort.Slice(sum.Drifted, func(i, j int) bool { return sum.Drifted[i].BusinessID < sum.Drifted[j].BusinessID })
	log.Info().Int("checked", sum.Checked).Int("drifted", len(sum.Drifted)).Int("failed", len(sum.Failed)).Msg("reconciliation completed")
	return sum, nil
}
