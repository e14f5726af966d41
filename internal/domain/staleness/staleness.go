// Package staleness decides when a cached place record is due for a refresh
// from the external provider. TTLs are tiered by how volatile each category's
// real-world data is, trading freshness against provider cost.
package staleness

import "time"

// Category TTL tiers.
const (
	// TTLPopular applies to places with more than PopularReviewCount reviews.
	TTLPopular = 30 * 24 * time.Hour
	// TTLLandmark applies to monuments, natural features, parks and beaches.
	TTLLandmark = 365 * 24 * time.Hour
	// TTLDining applies to restaurants, cafes and bars.
	TTLDining = 60 * 24 * time.Hour
	// TTLEvent applies to events and festivals.
	TTLEvent = 7 * 24 * time.Hour
	// TTLDefault applies to everything else.
	TTLDefault = 90 * 24 * time.Hour

	// PopularReviewCount is the review-count threshold above which a place is
	// refreshed on the popular tier regardless of category.
	PopularReviewCount = 1000
)

var (
	landmarkCategories = map[string]struct{}{
		"monument":        {},
		"natural_feature": {},
		"park":            {},
		"beach":           {},
	}
	diningCategories = map[string]struct{}{
		"restaurant": {},
		"cafe":       {},
		"bar":        {},
	}
	eventCategories = map[string]struct{}{
		"event":    {},
		"festival": {},
	}
)

// TTL returns the refresh TTL for a record with the given categories and
// review count. The popular tier wins over category tiers; among category
// tiers the shortest applicable TTL wins.
func TTL(categories []string, reviewCount int) time.Duration {
	if reviewCount > PopularReviewCount {
		return TTLPopular
	}

	ttl := time.Duration(0)
	for _, c := range categories {
		var t time.Duration
		switch {
		case has(eventCategories, c):
			t = TTLEvent
		case has(diningCategories, c):
			t = TTLDining
		case has(landmarkCategories, c):
			t = TTLLandmark
		default:
			continue
		}
		if ttl == 0 || t < ttl {
			ttl = t
		}
	}
	if ttl == 0 {
		return TTLDefault
	}
	return ttl
}

// IsStale reports whether a record last updated at updatedAt is due for a
// refresh at the reference time now. A zero updatedAt is always stale.
func IsStale(updatedAt time.Time, categories []string, reviewCount int, now time.Time) bool {
	if updatedAt.IsZero() {
		return true
	}
	return now.Sub(updatedAt) > TTL(categories, reviewCount)
}

// StaleAfter returns the instant at which a record updated at updatedAt
// becomes stale. A zero updatedAt yields the zero time (already stale).
func StaleAfter(updatedAt time.Time, categories []string, reviewCount int) time.Time {
	if updatedAt.IsZero() {
		return time.Time{}
	}
	return updatedAt.Add(TTL(categories, reviewCount))
}

func has(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
