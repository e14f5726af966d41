package catalog

import (
	"context"

	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
	"github.com/kailas-cloud/placedex/internal/repository/place"
)

// RecordStore is the durable-store contract for catalog writes.
type RecordStore interface {
	GetPOI(ctx context.Context, id string) (poi.POI, error)
	UpsertPOI(ctx context.Context, p poi.POI) (place.Outcome, error)
	GetStalePOIs(ctx context.Context, limit int) ([]poi.POI, error)
	CountStalePOIs(ctx context.Context) (int64, error)
	IncrementPOIView(ctx context.Context, id string) error
	UpsertPrediction(ctx context.Context, p prediction.Prediction) (place.Outcome, error)
}

// Indexer is the fast-index write contract. Index writes are best-effort:
// the index is a rebuildable projection of the record store.
type Indexer interface {
	UpsertPOIs(ctx context.Context, pois []poi.POI) error
	UpsertPredictions(ctx context.Context, preds []prediction.Prediction) error
}
