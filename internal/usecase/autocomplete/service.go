// Package autocomplete resolves place suggestions across the same three
// tiers as POI search, with two extra guards in front of the provider: a
// negative-result cache and a daily call quota. Both guards fail open to
// cached results; they never turn a suggestion request into an error.
package autocomplete

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/placedex/internal/domain"
	"github.com/kailas-cloud/placedex/internal/domain/dedupe"
	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
	domsearch "github.com/kailas-cloud/placedex/internal/domain/search"
	"github.com/kailas-cloud/placedex/internal/metrics"
)

// Options tunes the suggestion resolver.
type Options struct {
	MinResults     int
	DefaultLimit   int
	MaxLimit       int
	DailyCallLimit int64 // 0 = unlimited
}

func (o Options) applyDefaults() Options {
	if o.MinResults <= 0 {
		o.MinResults = 3
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 10
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 20
	}
	return o
}

// Service resolves autocomplete suggestions and prediction lifecycle events.
type Service struct {
	index    IndexSearcher
	store    RecordStore
	provider Provider
	negcache NegativeCache
	quota    QuotaCounter
	catalog  Cataloger
	opts     Options
	logger   *zap.Logger

	// resolveGroup collapses concurrent resolves of one place id so the
	// provider details call happens at most once.
	resolveGroup singleflight.Group
}

// New creates an autocomplete resolver.
func New(index IndexSearcher, store RecordStore, provider Provider, negcache NegativeCache,
	quota QuotaCounter, catalog Cataloger, opts Options, logger *zap.Logger,
) *Service {
	return &Service{
		index:    index,
		store:    store,
		provider: provider,
		negcache: negcache,
		quota:    quota,
		catalog:  catalog,
		opts:     opts.applyDefaults(),
		logger:   logger,
	}
}

// Suggest runs tiered suggestion resolution for a partial input.
func (s *Service) Suggest(ctx context.Context, input string, near *geo.Point, radiusM float64, limit int) (domsearch.Suggestions, error) {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	if limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}

	var (
		results []prediction.Prediction
		seen    = make(map[string]struct{}, limit)
		tiers   domsearch.TierCounts
	)
	add := func(preds []prediction.Prediction) int {
		taken := 0
		for i := range preds {
			if len(results) >= limit {
				break
			}
			if _, dup := seen[preds[i].PlaceID]; dup {
				continue
			}
			seen[preds[i].PlaceID] = struct{}{}
			results = append(results, preds[i])
			taken++
		}
		return taken
	}

	// Tier 1: fast index.
	if s.index.Healthy(ctx) {
		preds, err := s.index.SearchPredictions(ctx, input, limit)
		if err != nil {
			s.logger.Warn("prediction index tier failed", zap.Error(err))
		} else {
			tiers.Index = add(preds)
		}
	}
	if len(results) >= s.opts.MinResults {
		return s.finish(results, tiers), nil
	}

	// Tier 2: durable store.
	preds, err := s.store.SearchPredictions(ctx, dedupe.NormalizeName(input), limit)
	if err != nil {
		s.logger.Warn("prediction store tier failed", zap.Error(err))
	} else {
		tiers.Store = add(preds)
	}
	if len(results) >= s.opts.MinResults {
		return s.finish(results, tiers), nil
	}

	// Tier 3 guards: a cached zero-result marker or an exhausted daily
	// budget skips the provider and serves whatever the cached tiers found.
	if s.negcache.Seen(ctx, input) {
		return s.finish(results, tiers), nil
	}
	if !s.quotaAllows(ctx) {
		return s.finish(results, tiers), nil
	}

	fetched, err := s.provider.Autocomplete(ctx, input, near, radiusM)
	if err != nil {
		s.logger.Warn("prediction provider tier unavailable", zap.Error(err))
		return s.finish(results, tiers), nil
	}

	// The call consumed budget whether or not it found anything.
	if err := s.quota.Increment(ctx); err != nil {
		s.logger.Warn("incrementing provider quota", zap.Error(err))
	}

	if len(fetched) == 0 {
		if err := s.negcache.Mark(ctx, input); err != nil {
			s.logger.Warn("writing negative-cache entry", zap.Error(err))
		}
		return s.finish(results, tiers), nil
	}

	if _, err := s.catalog.UpsertPredictions(ctx, fetched); err != nil {
		s.logger.Warn("write-through of provider predictions failed", zap.Error(err))
	}
	tiers.Provider = add(fetched)

	return s.finish(results, tiers), nil
}

// Resolve turns a pending prediction into a full cached place record. The
// provider details fetch happens at most once per place id: concurrent
// resolves collapse, and an already-resolved prediction serves from cache.
func (s *Service) Resolve(ctx context.Context, placeID string) (poi.POI, error) {
	v, err, _ := s.resolveGroup.Do(placeID, func() (any, error) {
		return s.resolve(ctx, placeID)
	})
	if err != nil {
		return poi.POI{}, err
	}
	return v.(poi.POI), nil
}

func (s *Service) resolve(ctx context.Context, placeID string) (poi.POI, error) {
	pred, err := s.store.GetPrediction(ctx, placeID)
	if err != nil {
		return poi.POI{}, fmt.Errorf("loading prediction %s: %w", placeID, err)
	}

	if pred.Status == prediction.StatusResolved {
		p, err := s.store.GetPOIByProviderPlaceID(ctx, placeID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return poi.POI{}, err
		}
		// Resolved but the record vanished; fall through and re-fetch.
	}

	p, err := s.provider.Details(ctx, placeID)
	if err != nil {
		return poi.POI{}, err
	}
	if err := s.quota.Increment(ctx); err != nil {
		s.logger.Warn("incrementing provider quota", zap.Error(err))
	}

	if _, err := s.catalog.UpsertPOIs(ctx, []poi.POI{p}); err != nil {
		return poi.POI{}, fmt.Errorf("persisting resolved place %s: %w", placeID, err)
	}
	if _, err := s.store.MarkPredictionResolved(ctx, placeID); err != nil {
		s.logger.Warn("marking prediction resolved", zap.String("place_id", placeID), zap.Error(err))
	}
	return p, nil
}

// Click records a user selecting a suggestion; the counter feeds ranking.
func (s *Service) Click(ctx context.Context, placeID string) error {
	return s.store.IncrementPredictionClick(ctx, placeID)
}

// quotaAllows checks the daily budget. Counter read errors fail open: the
// quota is a soft cost cap, not a correctness gate.
func (s *Service) quotaAllows(ctx context.Context) bool {
	if s.opts.DailyCallLimit <= 0 {
		return true
	}
	consumed, err := s.quota.Consumed(ctx)
	if err != nil {
		s.logger.Warn("reading provider quota", zap.Error(err))
		return true
	}
	if consumed >= s.opts.DailyCallLimit {
		s.logger.Info("daily provider quota exhausted",
			zap.Int64("consumed", consumed), zap.Int64("limit", s.opts.DailyCallLimit))
		return false
	}
	return true
}

func (s *Service) finish(results []prediction.Prediction, tiers domsearch.TierCounts) domsearch.Suggestions {
	sg := domsearch.Suggestions{
		Predictions: results,
		Source:      domsearch.ResolveSource(tiers),
		Tiers:       tiers,
	}
	metrics.TierServedTotal.WithLabelValues("autocomplete", string(sg.Source)).Inc()
	return sg
}
