package autocomplete

import (
	"context"

	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
	"github.com/kailas-cloud/placedex/internal/repository/place"
)

// IndexSearcher is the fast-tier contract for suggestions.
type IndexSearcher interface {
	SearchPredictions(ctx context.Context, input string, limit int) ([]prediction.Prediction, error)
	Healthy(ctx context.Context) bool
}

// RecordStore is the durable-tier contract for suggestions and resolution.
type RecordStore interface {
	SearchPredictions(ctx context.Context, normPrefix string, limit int) ([]prediction.Prediction, error)
	GetPrediction(ctx context.Context, placeID string) (prediction.Prediction, error)
	MarkPredictionResolved(ctx context.Context, placeID string) (bool, error)
	IncrementPredictionClick(ctx context.Context, placeID string) error
	GetPOIByProviderPlaceID(ctx context.Context, placeID string) (poi.POI, error)
}

// Provider is the metered external tier contract.
type Provider interface {
	Autocomplete(ctx context.Context, input string, near *geo.Point, radiusM float64) ([]prediction.Prediction, error)
	Details(ctx context.Context, placeID string) (poi.POI, error)
}

// NegativeCache remembers queries the provider answered with zero results.
type NegativeCache interface {
	Seen(ctx context.Context, query string) bool
	Mark(ctx context.Context, query string) error
}

// QuotaCounter meters provider calls against the daily budget.
type QuotaCounter interface {
	Consumed(ctx context.Context) (int64, error)
	Increment(ctx context.Context) error
}

// Cataloger persists provider payloads through the write path.
type Cataloger interface {
	UpsertPOIs(ctx context.Context, pois []poi.POI) (place.Counts, error)
	UpsertPredictions(ctx context.Context, preds []prediction.Prediction) (place.Counts, error)
}
