package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"vibecheck/internal/adapters/observability"
	"vibecheck/internal/domain"
	"vibecheck/internal/scoring"
)

// ReviewService records reviews: it scores the text, stores the review and
// refreshes the owning business's aggregate before returning.
type ReviewService struct {
	repo            domain.Repository
	classifier      domain.Classifier
	agg             *AggregationService
	maxKeywords     int
	clock           clockwork.Clock
	classifyTimeout time.Duration
}

const (
	DefaultClassifyTimeout = 10 * time.Second
	// persistTimeout bounds the write of a scored review, which no longer
	// depends on the caller's context.
	persistTimeout = 10 * time.Second
)

type ReviewOption func(*ReviewService)

// WithClock stamps reviews using clock instead of the wall clock.
func WithClock(clock clockwork.Clock) ReviewOption {
	return func(s *ReviewService) { s.clock = clock }
}

// WithClassifyTimeout bounds each classification; on expiry the review is
// recorded with the neutral fallback.
func WithClassifyTimeout(d time.Duration) ReviewOption {
	return func(s *ReviewService) {
		if d > 0 {
			s.classifyTimeout = d
		}
	}
}

func NewReviewService(r domain.Repository, c domain.Classifier, agg *AggregationService, maxKeywords int, opts ...ReviewOption) *ReviewService {
	s := &ReviewService{
		repo:            r,
		classifier:      c,
		agg:             agg,
		maxKeywords:     maxKeywords,
		clock:           clockwork.NewRealClock(),
		classifyTimeout: DefaultClassifyTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ScoreAndRecord scores text, persists it as a review of businessID by
// userID and recomputes the business aggregate in the same transaction.
// A failing or slow classifier never blocks the submission: the review is
// stored with the neutral fallback score. Once scored, the review is
// written even if ctx expires meanwhile.
func (s *ReviewService) ScoreAndRecord(ctx context.Context, businessID, userID int64, text string) (domain.Review, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Review{}, domain.ErrEmptyContent
	}
	if _, err := s.repo.GetBusiness(ctx, businessID); err != nil {
		return domain.Review{}, fmt.Errorf("business %d: %w", businessID, err)
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return domain.Review{}, fmt.Errorf("user %d: %w", userID, err)
	}

	sc := s.score(ctx, text)
	rv := domain.Review{
		BusinessID: businessID,
		UserID:     userID,
		Content:    text,
		Sentiment:  &sc.Sentiment,
		VibeScore:  &sc.VibeScore,
		Keywords:   &sc.Keywords,
		CreatedAt:  s.clock.Now().UTC(),
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	unlock := s.agg.locks.Lock(businessID)
	defer unlock()

	var agg domain.Aggregate
	err := s.repo.WithTx(wctx, func(tx domain.Repository) error {
		if err := tx.LockBusiness(wctx, businessID); err != nil {
			return err
		}
		id, err := tx.InsertReview(wctx, rv)
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		rv.ID = id
		agg, err = s.agg.applyTx(wctx, tx, businessID)
		return err
	})
	observability.ObserveRecompute("submit", err)
	if err != nil {
		return domain.Review{}, err
	}
	s.agg.views.invalidate(wctx, businessID)

	log.Info().
		Int64("business_id", businessID).
		Int64("review_id", rv.ID).
		Str("sentiment", string(sc.Sentiment)).
		Float64("vibe_score", sc.VibeScore).
		Float64("aggregated_vibe_score", agg.Score).
		Int("total_reviews", agg.Total).
		Msg("review recorded")
	return rv, nil
}

// DeleteReview removes a review of businessID and recomputes the aggregate.
func (s *ReviewService) DeleteReview(ctx context.Context, businessID, reviewID int64) (domain.Aggregate, error) {
	rv, err := s.repo.GetReview(ctx, reviewID)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("review %d: %w", reviewID, err)
	}
	if rv.BusinessID != businessID {
		return domain.Aggregate{}, fmt.Errorf("review %d of business %d: %w", reviewID, businessID, domain.ErrNotFound)
	}

	unlock := s.agg.locks.Lock(businessID)
	defer unlock()

	var agg domain.Aggregate
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		if err := tx.LockBusiness(ctx, businessID); err != nil {
			return err
		}
		if err := tx.DeleteReview(ctx, reviewID); err != nil {
			return err
		}
		var err error
		agg, err = s.agg.applyTx(ctx, tx, businessID)
		return err
	})
	observability.ObserveRecompute("delete", err)
	if err != nil {
		return domain.Aggregate{}, err
	}
	s.agg.views.invalidate(ctx, businessID)
	log.Info().Int64("business_id", businessID).Int64("review_id", reviewID).Msg("review deleted")
	return agg, nil
}

// score runs the classifier and the keyword extractor over text. Any
// classifier failure, including a panic inside it, yields the fallback.
func (s *ReviewService) score(ctx context.Context, text string) scoring.Scoring {
	keywords := scoring.ExtractSummary(text, s.maxKeywords)

	cctx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	defer cancel()
	c, err := s.classify(cctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("sentiment analysis failed, recording neutral review")
		observability.ObserveClassification("fallback")
		return scoring.Fallback()
	}
	observability.ObserveClassification(strings.ToLower(string(c.Label)))
	return scoring.ScoreReview(c, keywords)
}

func (s *ReviewService) classify(ctx context.Context, text string) (c domain.Classification, err error) {
	if s.classifier == nil {
		return c, fmt.Errorf("no classifier configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	c, err = s.classifier.Classify(ctx, text)
	if err != nil {
		return c, err
	}
	if c.Label != domain.Positive && c.Label != domain.Negative {
		return c, fmt.Errorf("classifier returned label %q", c.Label)
	}
	return c, nil
}
