package domain

import "time"

type Business struct {
	ID       int64
	Name     string
	Category string
	Location string

	// Derived from the business's reviews; never written from anywhere
	// except an aggregate recompute.
	AggregatedVibeScore float64
	TotalReviews        int

	CreatedAt time.Time
}

type User struct {
	ID        int64
	Username  string
	Email     string
	CreatedAt time.Time
}

// Aggregate is the published statistic of a business.
type Aggregate struct {
	Score float64 `json:"aggregated_vibe_score"`
	Total int     `json:"total_reviews"`
}

type BusinessesQuery struct {
	Category *string
	Limit    int
}
