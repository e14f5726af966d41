package staleness

import (
	"testing"
	"time"
)

func TestTTL_Tiers(t *testing.T) {
	tests := []struct {
		name        string
		categories  []string
		reviewCount int
		want        time.Duration
	}{
		{"popular overrides category", []string{"monument"}, 1500, TTLPopular},
		{"popular threshold is exclusive", []string{"monument"}, 1000, TTLLandmark},
		{"landmark", []string{"beach"}, 10, TTLLandmark},
		{"dining", []string{"restaurant"}, 10, TTLDining},
		{"event", []string{"festival"}, 10, TTLEvent},
		{"default", []string{"museum"}, 10, TTLDefault},
		{"no categories", nil, 0, TTLDefault},
		{"shortest applicable wins", []string{"park", "cafe"}, 10, TTLDining},
		{"event beats dining", []string{"restaurant", "event"}, 10, TTLEvent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TTL(tc.categories, tc.reviewCount); got != tc.want {
				t.Errorf("TTL = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		updatedAt time.Time
		category  string
		want      bool
	}{
		{"zero updated_at is always stale", time.Time{}, "museum", true},
		{"fresh record", now.Add(-24 * time.Hour), "museum", false},
		{"just updated is never stale", now, "festival", false},
		{"past default TTL", now.Add(-91 * 24 * time.Hour), "museum", true},
		{"within landmark TTL", now.Add(-91 * 24 * time.Hour), "beach", false},
		{"past event TTL", now.Add(-8 * 24 * time.Hour), "festival", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := IsStale(tc.updatedAt, []string{tc.category}, 10, now)
			if got != tc.want {
				t.Errorf("IsStale = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsStale_ExactBoundary(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// Exactly at the TTL boundary: not yet stale (strict inequality).
	updatedAt := now.Add(-TTLDefault)
	if IsStale(updatedAt, []string{"museum"}, 10, now) {
		t.Error("record exactly at TTL boundary should not be stale")
	}
	if !IsStale(updatedAt.Add(-time.Second), []string{"museum"}, 10, now) {
		t.Error("record one second past TTL should be stale")
	}
}

func TestStaleAfter(t *testing.T) {
	updatedAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	want := updatedAt.Add(TTLDining)
	if got := StaleAfter(updatedAt, []string{"cafe"}, 10); !got.Equal(want) {
		t.Errorf("StaleAfter = %v, want %v", got, want)
	}
	if !StaleAfter(time.Time{}, []string{"cafe"}, 10).IsZero() {
		t.Error("zero updated_at should yield zero stale_after")
	}
}
