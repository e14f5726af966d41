package search

import (
	"context"

	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	domsearch "github.com/kailas-cloud/placedex/internal/domain/search"
	"github.com/kailas-cloud/placedex/internal/repository/place"
)

// IndexSearcher is the fast-tier contract.
type IndexSearcher interface {
	SearchPOIs(ctx context.Context, q domsearch.Query) ([]poi.POI, error)
	Healthy(ctx context.Context) bool
}

// StoreSearcher is the durable-tier contract.
type StoreSearcher interface {
	SearchPOIs(ctx context.Context, q domsearch.Query) ([]poi.POI, error)
}

// Provider is the metered external tier contract.
type Provider interface {
	SearchText(ctx context.Context, query string, near *geo.Point, radiusM float64) ([]poi.POI, error)
}

// Cataloger persists provider results through the write path.
type Cataloger interface {
	UpsertPOIs(ctx context.Context, pois []poi.POI) (place.Counts, error)
}
