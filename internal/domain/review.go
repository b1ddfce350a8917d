package domain

import "time"

type Sentiment string

const (
	Positive Sentiment = "POSITIVE"
	Negative Sentiment = "NEGATIVE"
	// Neutral is never produced by a classifier; it marks a review whose
	// scoring failed.
	Neutral Sentiment = "NEUTRAL"
)

func (s Sentiment) Valid() bool {
	switch s {
	case Positive, Negative, Neutral:
		return true
	}
	return false
}

// Classification is the validated output of a binary sentiment model.
type Classification struct {
	Label      Sentiment
	Confidence float64 // 0..1
}

type Review struct {
	ID         int64
	BusinessID int64
	UserID     int64
	Content    string
	Sentiment  *Sentiment
	VibeScore  *float64 // 0..100, nil for rows written without scoring
	Keywords   *string  // comma separated summary
	CreatedAt  time.Time
}
