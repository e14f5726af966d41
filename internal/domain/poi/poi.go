// Package poi defines the canonical point-of-interest record owned by the
// place record store. The search index holds a derived projection of these
// records and is never the source of truth.
package poi

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/placedex/internal/domain"
	"github.com/kailas-cloud/placedex/internal/domain/geo"
)

// Rating aggregates user ratings for a place.
type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Contact holds contact and address fields.
type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Address string `json:"address,omitempty"`
}

// OpeningHours holds the opening-hours structure as reported by the provider.
type OpeningHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

// POI is a point-of-interest record.
type POI struct {
	ID        string `json:"id"`
	DedupeKey string `json:"dedupe_key"`

	Location geo.Point `json:"location"`

	Name        string       `json:"name"`
	Categories  []string     `json:"categories,omitempty"`
	PriceTier   int          `json:"price_tier,omitempty"`
	Rating      Rating       `json:"rating"`
	Description string       `json:"description,omitempty"`
	Contact     Contact      `json:"contact"`
	Hours       OpeningHours `json:"hours"`
	PhotoRefs   []string     `json:"photo_refs,omitempty"`

	ProviderName    string `json:"provider_name,omitempty"`
	ProviderPlaceID string `json:"provider_place_id,omitempty"`

	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	PopularityScore float64   `json:"popularity_score"`
	ViewCount       int64     `json:"view_count"`
}

// Validate checks that the record is complete enough to enter the store.
func (p *POI) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: poi id is required", domain.ErrValidation)
	}
	if p.DedupeKey == "" {
		return fmt.Errorf("%w: dedupe key is required", domain.ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if !p.Location.Valid() {
		return fmt.Errorf("%w: invalid coordinates %.6f,%.6f", domain.ErrValidation, p.Location.Lat, p.Location.Lng)
	}
	return nil
}
