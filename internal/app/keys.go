package app

import "fmt"

// cachedReviewLimits are the page sizes whose review lists are cached.
// Other limits always read through to the repository.
var cachedReviewLimits = []int{50, 100, 200}

func businessKey(id int64) string { return fmt.Sprintf("business:%d", id) }

func reviewsKey(id int64, limit int) string { return fmt.Sprintf("reviews:%d:%d", id, limit) }

func cacheableLimit(limit int) bool {
	for _, l := range cachedReviewLimits {
		if l == limit {
			return true
		}
	}
	return false
}
