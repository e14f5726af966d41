package googleplaces

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/placedex/internal/domain"
	"github.com/kailas-cloud/placedex/internal/domain/dedupe"
	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
)

// poiNamespace seeds deterministic record ids: the same dedupe key always
// maps to the same id, so re-ingesting a place never forks its identity.
var poiNamespace = uuid.MustParse("9643a178-5f72-4331-9eb6-6d5c31f54e79")

// Provider types that carry no category signal.
var noiseTypes = map[string]struct{}{
	"point_of_interest": {},
	"establishment":     {},
	"geocode":           {},
	"political":         {},
}

// Provider types folded into the categories the TTL tiers know about.
var typeAliases = map[string]string{
	"night_club":    "bar",
	"bakery":        "cafe",
	"meal_takeaway": "restaurant",
	"meal_delivery": "restaurant",
	"campground":    "park",
}

// toPOI maps a provider result onto a canonical record. Results without a
// place id, name or valid geometry are rejected.
func (c *Client) toPOI(r *placeResult) (poi.POI, error) {
	if r.PlaceID == "" {
		return poi.POI{}, fmt.Errorf("%w: provider result has no place id", domain.ErrValidation)
	}
	if r.Name == "" {
		return poi.POI{}, fmt.Errorf("%w: provider result %s has no name", domain.ErrValidation, r.PlaceID)
	}
	if r.Geometry == nil || !geo.ValidateCoordinates(r.Geometry.Location.Lat, r.Geometry.Location.Lng) {
		return poi.POI{}, fmt.Errorf("%w: provider result %s has no usable geometry", domain.ErrValidation, r.PlaceID)
	}

	loc := r.Geometry.Location
	key := dedupe.Key(r.Name, loc.Lat, loc.Lng, c.precision)

	p := poi.POI{
		ID:              uuid.NewSHA1(poiNamespace, []byte(key)).String(),
		DedupeKey:       key,
		Name:            r.Name,
		Location:        geo.Point{Lat: loc.Lat, Lng: loc.Lng},
		Categories:      mapCategories(r.Types),
		ProviderName:    c.provider,
		ProviderPlaceID: r.PlaceID,
	}

	if r.Rating != nil {
		p.Rating.Average = *r.Rating
	}
	if r.UserRatingsTotal != nil {
		p.Rating.Count = *r.UserRatingsTotal
	}
	if r.PriceLevel != nil {
		p.PriceTier = *r.PriceLevel
	}
	if r.EditorialSummary != nil {
		p.Description = r.EditorialSummary.Overview
	}

	p.Contact.Phone = r.FormattedPhoneNumber
	p.Contact.Website = r.Website
	p.Contact.Address = r.FormattedAddress
	if p.Contact.Address == "" {
		p.Contact.Address = r.Vicinity
	}

	if r.OpeningHours != nil {
		p.Hours.OpenNow = r.OpeningHours.OpenNow
		p.Hours.WeekdayText = r.OpeningHours.WeekdayText
	}
	for _, ph := range r.Photos {
		if ph.PhotoReference != "" {
			p.PhotoRefs = append(p.PhotoRefs, ph.PhotoReference)
		}
	}

	return p, nil
}

// toPrediction maps a provider prediction onto a pending record.
func toPrediction(r *placePrediction) (prediction.Prediction, error) {
	if r.PlaceID == "" {
		return prediction.Prediction{}, fmt.Errorf("%w: provider prediction has no place id", domain.ErrValidation)
	}

	p := prediction.Prediction{
		PlaceID:     r.PlaceID,
		Description: r.Description,
		Types:       mapCategories(r.Types),
		Status:      prediction.StatusPending,
	}
	if r.StructuredFormatting != nil {
		p.MainText = r.StructuredFormatting.MainText
		p.SecondaryText = r.StructuredFormatting.SecondaryText
	}
	if p.MainText == "" {
		// Fall back to the first description segment.
		p.MainText = strings.TrimSpace(strings.SplitN(r.Description, ",", 2)[0])
	}
	if p.MainText == "" && p.Description == "" {
		return prediction.Prediction{}, fmt.Errorf("%w: provider prediction %s has no display text", domain.ErrValidation, r.PlaceID)
	}
	p.MainTextNormalized = dedupe.NormalizeName(p.MainText)

	for _, t := range r.Terms {
		if t.Value != "" {
			p.Terms = append(p.Terms, t.Value)
		}
	}
	return p, nil
}

func mapCategories(types []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(types))
	for _, t := range types {
		if _, noise := noiseTypes[t]; noise {
			continue
		}
		if alias, ok := typeAliases[t]; ok {
			t = alias
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
