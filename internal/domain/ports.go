package domain

import "context"

// Repository is the persistence collaborator of the scoring engine.
// Every call is atomic on its own; WithTx groups calls into one transaction.
type Repository interface {
	// Write paths
	InsertReview(ctx context.Context, r Review) (int64, error)
	DeleteReview(ctx context.Context, id int64) error
	UpdateBusinessAggregate(ctx context.Context, businessID int64, score float64, total int) error
	InsertBusiness(ctx context.Context, b Business) (int64, error)
	InsertUser(ctx context.Context, u User) (int64, error)

	// LockBusiness takes a write lock on the business row for the rest of
	// the surrounding transaction. ErrNotFound if it does not exist.
	LockBusiness(ctx context.Context, id int64) error

	// Read paths
	GetBusiness(ctx context.Context, id int64) (Business, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetReview(ctx context.Context, id int64) (Review, error)
	ListReviewsForBusiness(ctx context.Context, businessID int64) ([]Review, error)
	ListBusinesses(ctx context.Context, q BusinessesQuery) ([]Business, error)
	ListBusinessIDs(ctx context.Context) ([]int64, error)

	// WithTx runs fn inside a transaction. fn's Repository is bound to the
	// transaction; the transaction commits when fn returns nil.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
	// ClassifyBatch returns one classification per input, in input order.
	ClassifyBatch(ctx context.Context, texts []string) ([]Classification, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Read models

type BusinessView struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	Category            string  `json:"category"`
	Location            string  `json:"location"`
	AggregatedVibeScore float64 `json:"aggregated_vibe_score"`
	TotalReviews        int     `json:"total_reviews"`
	CreatedAt           string  `json:"created_at"`
}

type ReviewView struct {
	ID         int64    `json:"id"`
	BusinessID int64    `json:"business_id"`
	UserID     int64    `json:"user_id"`
	Content    string   `json:"content"`
	VibeScore  *float64 `json:"vibe_score"`
	Sentiment  *string  `json:"sentiment"`
	Keywords   *string  `json:"keywords"`
	CreatedAt  string   `json:"created_at"`
}

type UserView struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type ReviewsPage struct {
	Items []ReviewView `json:"items"`
}
