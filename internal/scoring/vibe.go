package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"vibecheck/internal/domain"
)

const (
	// ErrorInAnalysis is the keyword summary of a review whose scoring failed.
	ErrorInAnalysis = "error in analysis"
	NeutralScore    = 50.0
)

// Scoring holds the fields a review gets from the scoring pipeline.
type Scoring struct {
	Sentiment domain.Sentiment
	VibeScore float64
	Keywords  string
}

// ScoreReview maps a classification onto the 0..100 vibe scale. A
// POSITIVE label scores its confidence, a NEGATIVE label the complement.
func ScoreReview(c domain.Classification, keywords string) Scoring {
	conf := clamp(c.Confidence, 0, 1)
	var v float64
	switch c.Label {
	case domain.Positive:
		v = conf * 100
	case domain.Negative:
		v = (1 - conf) * 100
	default:
		return Scoring{Sentiment: domain.Neutral, VibeScore: NeutralScore, Keywords: keywords}
	}
	return Scoring{
		Sentiment: c.Label,
		VibeScore: clamp(Round2(v), 0, 100),
		Keywords:  keywords,
	}
}

// Fallback is recorded when the classifier could not score a review.
func Fallback() Scoring {
	return Scoring{Sentiment: domain.Neutral, VibeScore: NeutralScore, Keywords: ErrorInAnalysis}
}

// Round2 rounds half away from zero to two decimals, working on the
// shortest decimal representation of v so 19.999999999999996 becomes 20.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
