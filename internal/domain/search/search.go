// Package search defines the query and result types shared by the search
// and autocomplete resolvers.
package search

import (
	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
)

// Source labels which tier(s) produced a result set.
type Source string

const (
	// SourceIndex means the fast index answered alone.
	SourceIndex Source = "index"
	// SourceStore means the record store answered alone.
	SourceStore Source = "store"
	// SourceProvider means the external provider answered alone.
	SourceProvider Source = "provider"
	// SourceHybrid means results were merged from multiple tiers.
	SourceHybrid Source = "hybrid"
	// SourceDegraded means every tier came up empty, with at least one
	// tier unavailable. An empty degraded result is a valid outcome, not
	// an error.
	SourceDegraded Source = "degraded"
)

// Sort is the result ordering.
type Sort string

const (
	// SortRelevance orders by text relevance.
	SortRelevance Sort = "relevance"
	// SortDistance orders by distance from the bias point.
	SortDistance Sort = "distance"
	// SortRating orders by rating average.
	SortRating Sort = "rating"
	// SortPopularity orders by popularity score.
	SortPopularity Sort = "popularity"
)

// Query describes a POI search.
type Query struct {
	Text       string
	Near       *geo.Point // optional geo bias / radius center
	RadiusM    float64    // 0 = no radius filter
	Categories []string
	MinRating  float64
	Sort       Sort
	Limit      int
	Offset     int
}

// TierCounts records how many results each tier contributed.
// This breakdown is part of the response contract, not optional telemetry.
type TierCounts struct {
	Index    int `json:"index"`
	Store    int `json:"store"`
	Provider int `json:"provider"`
}

// Result is a resolved POI search response.
type Result struct {
	POIs   []poi.POI  `json:"pois"`
	Source Source     `json:"source"`
	Tiers  TierCounts `json:"tiers"`
}

// Suggestions is a resolved autocomplete response.
type Suggestions struct {
	Predictions []prediction.Prediction `json:"predictions"`
	Source      Source                  `json:"source"`
	Tiers       TierCounts              `json:"tiers"`
}

// ResolveSource derives the result-set label from per-tier contributions.
// degraded applies only to an empty set; any single contributing tier keeps
// its own label, and a mix involving the provider is hybrid.
func ResolveSource(tiers TierCounts) Source {
	contributing := 0
	var single Source
	if tiers.Index > 0 {
		contributing++
		single = SourceIndex
	}
	if tiers.Store > 0 {
		contributing++
		single = SourceStore
	}
	if tiers.Provider > 0 {
		contributing++
		single = SourceProvider
	}
	switch contributing {
	case 0:
		return SourceDegraded
	case 1:
		return single
	default:
		return SourceHybrid
	}
}
