package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"vibecheck/internal/app"
	"vibecheck/internal/domain"
)

var testNow = time.Date(2024, 5, 17, 12, 30, 0, 0, time.UTC)

func seeded(t *testing.T) *fakeRepo {
	t.Helper()
	repo := newFakeRepo()
	ctx := context.Background()
	_, _ = repo.InsertBusiness(ctx, domain.Business{ID: 1, Name: "The Krusty Krab", Category: "Restaurant"})
	_, _ = repo.InsertUser(ctx, domain.User{ID: 7, Username: "spongebob"})
	return repo
}

func newReviewService(repo domain.Repository, c domain.Classifier, views *app.ViewCache, opts ...app.ReviewOption) *app.ReviewService {
	agg := app.NewAggregationService(repo, views)
	return app.NewReviewService(repo, c, agg, 5, opts...)
}

func TestScoreAndRecord_Positive(t *testing.T) {
	repo := seeded(t)
	svc := newReviewService(repo, stubClassifier{c: domain.Classification{Label: domain.Positive, Confidence: 0.95}}, nil,
		app.WithClock(clockwork.NewFakeClockAt(testNow)))

	rv, err := svc.ScoreAndRecord(context.Background(), 1, 7, "Amazing burgers and amazing friendly service!")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if rv.ID == 0 || *rv.Sentiment != domain.Positive || *rv.VibeScore != 95.0 {
		t.Fatalf("unexpected review: %+v", rv)
	}
	if *rv.Keywords != "amazing, burgers, friendly, service" {
		t.Fatalf("unexpected keywords: %q", *rv.Keywords)
	}
	if !rv.CreatedAt.Equal(testNow) {
		t.Fatalf("expected created_at %v, got %v", testNow, rv.CreatedAt)
	}

	b, _ := repo.GetBusiness(context.Background(), 1)
	if b.AggregatedVibeScore != 95.0 || b.TotalReviews != 1 {
		t.Fatalf("unexpected aggregate: %+v", b)
	}
}

func TestScoreAndRecord_ClassifierFailureFallsBackToNeutral(t *testing.T) {
	for name, c := range map[string]stubClassifier{
		"error":     {err: errModelDown},
		"panic":     {panic: true},
		"bad label": {c: domain.Classification{Label: domain.Neutral, Confidence: 1}},
	} {
		t.Run(name, func(t *testing.T) {
			repo := seeded(t)
			ctx := context.Background()
			_, _ = repo.InsertReview(ctx, domain.Review{BusinessID: 1, UserID: 7, Content: "earlier", VibeScore: ptr(90.0)})

			svc := newReviewService(repo, c, nil)
			rv, err := svc.ScoreAndRecord(ctx, 1, 7, "The food arrived cold again")
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			if *rv.Sentiment != domain.Neutral || *rv.VibeScore != 50.0 || *rv.Keywords != "error in analysis" {
				t.Fatalf("unexpected fallback review: %+v", rv)
			}
			if _, err := repo.GetReview(ctx, rv.ID); err != nil {
				t.Fatalf("fallback review was not persisted: %v", err)
			}
			b, _ := repo.GetBusiness(ctx, 1)
			if b.AggregatedVibeScore != 70.0 || b.TotalReviews != 2 {
				t.Fatalf("aggregate must include the neutral score, got %+v", b)
			}
		})
	}
}

func TestScoreAndRecord_NilClassifierFallsBack(t *testing.T) {
	repo := seeded(t)
	rv, err := newReviewService(repo, nil, nil).ScoreAndRecord(context.Background(), 1, 7, "nothing to classify with")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if *rv.Sentiment != domain.Neutral {
		t.Fatalf("expected neutral, got %s", *rv.Sentiment)
	}
}

func TestScoreAndRecord_NotFound(t *testing.T) {
	repo := seeded(t)
	svc := newReviewService(repo, stubClassifier{c: domain.Classification{Label: domain.Positive, Confidence: 0.9}}, nil)

	if _, err := svc.ScoreAndRecord(context.Background(), 404, 7, "Great place to visit"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for business, got %v", err)
	}
	if _, err := svc.ScoreAndRecord(context.Background(), 1, 404, "Great place to visit"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for user, got %v", err)
	}
	if repo.inserts != 0 || repo.txs != 0 {
		t.Fatalf("expected no persistence, got %d inserts %d txs", repo.inserts, repo.txs)
	}
}

func TestScoreAndRecord_EmptyContent(t *testing.T) {
	repo := seeded(t)
	svc := newReviewService(repo, stubClassifier{}, nil)
	if _, err := svc.ScoreAndRecord(context.Background(), 1, 7, "   \n"); !errors.Is(err, domain.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if repo.inserts != 0 {
		t.Fatalf("expected no insert")
	}
}

func TestScoreAndRecord_PersistenceFailureSurfaces(t *testing.T) {
	repo := seeded(t)
	boom := errors.New("deadlock found")
	repo.failUpdate = boom
	svc := newReviewService(repo, stubClassifier{c: domain.Classification{Label: domain.Positive, Confidence: 0.9}}, nil)

	if _, err := svc.ScoreAndRecord(context.Background(), 1, 7, "Great place to visit"); !errors.Is(err, boom) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestScoreAndRecord_InvalidatesCache(t *testing.T) {
	repo := seeded(t)
	cache := &fakeCache{}
	ctx := context.Background()
	views := app.NewViewCache(cache)
	q := app.NewQueryService(repo, views, time.Minute)
	svc := newReviewService(repo, stubClassifier{c: domain.Classification{Label: domain.Negative, Confidence: 0.8}}, views)

	before, _ := q.GetBusiness(ctx, 1)
	if before.TotalReviews != 0 {
		t.Fatalf("unexpected: %+v", before)
	}
	if _, err := svc.ScoreAndRecord(ctx, 1, 7, "Terrible wait times"); err != nil {
		t.Fatalf("err: %v", err)
	}
	after, _ := q.GetBusiness(ctx, 1)
	if after.TotalReviews != 1 || after.AggregatedVibeScore != 20.0 {
		t.Fatalf("expected fresh business view, got %+v", after)
	}
}

func TestScoreAndRecord_ConcurrentSubmissionsAllCounted(t *testing.T) {
	repo := seeded(t)
	svc := newReviewService(repo, stubClassifier{c: domain.Classification{Label: domain.Positive, Confidence: 0.6}}, nil)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ScoreAndRecord(context.Background(), 1, 7, "Pretty decent lunch"); err != nil {
				t.Errorf("err: %v", err)
			}
		}()
	}
	wg.Wait()

	b, _ := repo.GetBusiness(context.Background(), 1)
	if b.TotalReviews != n || b.AggregatedVibeScore != 60.0 {
		t.Fatalf("unexpected aggregate after concurrent submissions: %+v", b)
	}
}

func TestDeleteReview_LastReviewResetsAggregate(t *testing.T) {
	repo := seeded(t)
	ctx := context.Background()
	svc := newReviewService(repo, stubClassifier{c: domain.Classification{Label: domain.Positive, Confidence: 0.9}}, nil)

	rv, err := svc.ScoreAndRecord(ctx, 1, 7, "Wonderful tea selection")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	agg, err := svc.DeleteReview(ctx, 1, rv.ID)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if agg != (domain.Aggregate{}) {
		t.Fatalf("expected zero aggregate, got %+v", agg)
	}
	b, _ := repo.GetBusiness(ctx, 1)
	if b.AggregatedVibeScore != 0 || b.TotalReviews != 0 {
		t.Fatalf("stale aggregate left behind: %+v", b)
	}
}

func TestDeleteReview_WrongBusiness(t *testing.T) {
	repo := seeded(t)
	ctx := context.Background()
	_, _ = repo.InsertBusiness(ctx, domain.Business{ID: 2, Name: "Chum Bucket"})
	id, _ := repo.InsertReview(ctx, domain.Review{BusinessID: 2, UserID: 7, Content: "x", VibeScore: ptr(10.0)})

	svc := newReviewService(repo, stubClassifier{}, nil)
	if _, err := svc.DeleteReview(ctx, 1, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.DeleteReview(ctx, 1, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScoreAndRecord_RequestDeadlineDuringClassificationStillRecords(t *testing.T) {
	repo := seeded(t)
	svc := newReviewService(repo, blockingClassifier{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rv, err := svc.ScoreAndRecord(ctx, 1, 7, "The soup took forever but was fine")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if *rv.Sentiment != domain.Neutral || *rv.VibeScore != 50.0 || *rv.Keywords != "error in analysis" {
		t.Fatalf("unexpected review: %+v", rv)
	}
	if repo.inserts != 1 {
		t.Fatalf("expected the review to be persisted, got %d inserts", repo.inserts)
	}
	b, _ := repo.GetBusiness(context.Background(), 1)
	if b.AggregatedVibeScore != 50.0 || b.TotalReviews != 1 {
		t.Fatalf("unexpected aggregate: %+v", b)
	}
}

func TestScoreAndRecord_ClassifyTimeoutFallsBack(t *testing.T) {
	repo := seeded(t)
	svc := newReviewService(repo, blockingClassifier{}, nil, app.WithClassifyTimeout(30*time.Millisecond))

	start := time.Now()
	rv, err := svc.ScoreAndRecord(context.Background(), 1, 7, "Waited a while for a table")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("classification was not bounded: %v", took)
	}
	if *rv.Sentiment != domain.Neutral {
		t.Fatalf("expected neutral fallback, got %s", *rv.Sentiment)
	}
}
