// Package catalog owns the write path for place records: write-through
// upserts that land in the durable store first and the search index second.
package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
	"github.com/kailas-cloud/placedex/internal/metrics"
	"github.com/kailas-cloud/placedex/internal/repository/place"
)

// Service handles catalog reads and write-through upserts.
type Service struct {
	store  RecordStore
	index  Indexer
	logger *zap.Logger
}

// New creates a catalog service.
func New(store RecordStore, index Indexer, logger *zap.Logger) *Service {
	return &Service{store: store, index: index, logger: logger}
}

// GetPOI returns one record and bumps its view counter. The counter bump is
// best-effort and never fails the read.
func (s *Service) GetPOI(ctx context.Context, id string) (poi.POI, error) {
	p, err := s.store.GetPOI(ctx, id)
	if err != nil {
		return poi.POI{}, err
	}
	if err := s.store.IncrementPOIView(ctx, id); err != nil {
		s.logger.Warn("incrementing view count", zap.String("poi_id", id), zap.Error(err))
	}
	return p, nil
}

// UpsertPOIs writes records through the store into the index. The store
// decides per record whether it is new, a stale refresh, or a fresh skip;
// only changed records are re-projected into the index. One bad record does
// not abort the batch.
func (s *Service) UpsertPOIs(ctx context.Context, pois []poi.POI) (place.Counts, error) {
	var counts place.Counts
	changed := make([]poi.POI, 0, len(pois))

	for i := range pois {
		outcome, err := s.store.UpsertPOI(ctx, pois[i])
		if err != nil {
			// A bad or unwritable record is counted and skipped; the rest of
			// the batch still gets its chance.
			counts.Errors++
			metrics.UpsertOutcomesTotal.WithLabelValues("poi", "error").Inc()
			s.logger.Warn("skipping poi upsert",
				zap.String("poi_id", pois[i].ID), zap.Error(err))
			continue
		}
		counts.Add(outcome)
		metrics.UpsertOutcomesTotal.WithLabelValues("poi", string(outcome)).Inc()
		if outcome.Changed() {
			// The store may have merged into an existing identity; re-read
			// is avoided by projecting the incoming record under its key.
			changed = append(changed, pois[i])
		}
	}

	if len(changed) > 0 {
		if err := s.index.UpsertPOIs(ctx, changed); err != nil {
			// Store is the source of truth; a failed projection degrades
			// the fast tier but must not fail the write.
			s.logger.Warn("indexing poi batch", zap.Int("count", len(changed)), zap.Error(err))
		}
	}
	return counts, nil
}

// UpsertPredictions writes prediction metadata through the store into the
// index, same ordering and error policy as UpsertPOIs.
func (s *Service) UpsertPredictions(ctx context.Context, preds []prediction.Prediction) (place.Counts, error) {
	var counts place.Counts
	changed := make([]prediction.Prediction, 0, len(preds))

	for i := range preds {
		outcome, err := s.store.UpsertPrediction(ctx, preds[i])
		if err != nil {
			counts.Errors++
			metrics.UpsertOutcomesTotal.WithLabelValues("prediction", "error").Inc()
			s.logger.Warn("skipping prediction upsert",
				zap.String("place_id", preds[i].PlaceID), zap.Error(err))
			continue
		}
		counts.Add(outcome)
		metrics.UpsertOutcomesTotal.WithLabelValues("prediction", string(outcome)).Inc()
		if outcome.Changed() {
			changed = append(changed, preds[i])
		}
	}

	if len(changed) > 0 {
		if err := s.index.UpsertPredictions(ctx, changed); err != nil {
			s.logger.Warn("indexing prediction batch", zap.Int("count", len(changed)), zap.Error(err))
		}
	}
	return counts, nil
}

// Stale returns up to limit records due for a provider refresh.
func (s *Service) Stale(ctx context.Context, limit int) ([]poi.POI, error) {
	return s.store.GetStalePOIs(ctx, limit)
}

// CountStale returns how many records are due for a provider refresh.
func (s *Service) CountStale(ctx context.Context) (int64, error) {
	return s.store.CountStalePOIs(ctx)
}
