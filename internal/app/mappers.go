package app

import (
	"time"

	"vibecheck/internal/domain"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toBusinessView(b domain.Business) domain.BusinessView {
	return domain.BusinessView{
		ID:                  b.ID,
		Name:                b.Name,
		Category:            b.Category,
		Location:            b.Location,
		AggregatedVibeScore: b.AggregatedVibeScore,
		TotalReviews:        b.TotalReviews,
		CreatedAt:           formatTime(b.CreatedAt),
	}
}

func ToUserView(u domain.User) domain.UserView {
	return domain.UserView{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: formatTime(u.CreatedAt)}
}

func ToReviewView(r domain.Review) domain.ReviewView {
	v := domain.ReviewView{
		ID:         r.ID,
		BusinessID: r.BusinessID,
		UserID:     r.UserID,
		Content:    r.Content,
		VibeScore:  r.VibeScore,
		Keywords:   r.Keywords,
		CreatedAt:  formatTime(r.CreatedAt),
	}
	if r.Sentiment != nil {
		s := string(*r.Sentiment)
		v.Sentiment = &s
	}
	return v
}

// newestFirst returns at most limit reviews, most recent first.
func newestFirst(rs []domain.Review, limit int) []domain.ReviewView {
	out := make([]domain.ReviewView, 0, min(len(rs), limit))
	for i := len(rs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ToReviewView(rs[i]))
	}
	return out
}
