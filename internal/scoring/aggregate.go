package scoring

import (
	"github.com/shopspring/decimal"

	"vibecheck/internal/domain"
)

// Aggregate computes a business's published statistic from its complete
// review set. Reviews without a score count towards the total but not
// towards the mean.
func Aggregate(reviews []domain.Review) domain.Aggregate {
	sum := decimal.Zero
	n := 0
	for _, r := range reviews {
		if r.VibeScore == nil {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(*r.VibeScore))
		n++
	}
	out := domain.Aggregate{Total: len(reviews)}
	if n == 0 {
		return out
	}
	out.Score = sum.Div(decimal.NewFromInt(int64(n))).Round(2).InexactFloat64()
	return out
}
