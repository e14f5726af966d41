// Package search is the three-tier POI resolver: fast index, then durable
// store, then the metered external provider. Tiers run sequentially; the
// provider is only consulted when cached tiers under-fill, because provider
// calls cost money.
package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/placedex/internal/domain/poi"
	domsearch "github.com/kailas-cloud/placedex/internal/domain/search"
	"github.com/kailas-cloud/placedex/internal/metrics"
)

// Options tunes the resolver.
type Options struct {
	MinResults   int           // tier fill gate
	DefaultLimit int
	MaxLimit     int
	Deadline     time.Duration // bound on the whole tier sequence; 0 = none
}

func (o Options) applyDefaults() Options {
	if o.MinResults <= 0 {
		o.MinResults = 5
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 20
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 50
	}
	return o
}

// Service resolves POI searches across the three tiers.
type Service struct {
	index    IndexSearcher
	store    StoreSearcher
	provider Provider
	catalog  Cataloger
	opts     Options
	logger   *zap.Logger
}

// New creates a search resolver.
func New(index IndexSearcher, store StoreSearcher, provider Provider, catalog Cataloger, opts Options, logger *zap.Logger) *Service {
	return &Service{
		index:    index,
		store:    store,
		provider: provider,
		catalog:  catalog,
		opts:     opts.applyDefaults(),
		logger:   logger,
	}
}

// accumulator merges tier contributions, deduplicating by dedupe key (and
// provider place id, which survives across tiers for the same place).
type accumulator struct {
	results []poi.POI
	seen    map[string]struct{}
	tiers   domsearch.TierCounts
}

func newAccumulator(capacity int) *accumulator {
	return &accumulator{
		results: make([]poi.POI, 0, capacity),
		seen:    make(map[string]struct{}, capacity),
	}
}

// add appends records not seen yet and returns how many were taken.
func (a *accumulator) add(pois []poi.POI, limit int) int {
	taken := 0
	for i := range pois {
		if len(a.results) >= limit {
			break
		}
		if a.has(&pois[i]) {
			continue
		}
		a.mark(&pois[i])
		a.results = append(a.results, pois[i])
		taken++
	}
	return taken
}

func (a *accumulator) has(p *poi.POI) bool {
	if p.DedupeKey != "" {
		if _, ok := a.seen[p.DedupeKey]; ok {
			return true
		}
	}
	if p.ProviderPlaceID != "" {
		if _, ok := a.seen["pid:"+p.ProviderPlaceID]; ok {
			return true
		}
	}
	return false
}

func (a *accumulator) mark(p *poi.POI) {
	if p.DedupeKey != "" {
		a.seen[p.DedupeKey] = struct{}{}
	}
	if p.ProviderPlaceID != "" {
		a.seen["pid:"+p.ProviderPlaceID] = struct{}{}
	}
}

// SearchPOIs runs the tiered resolution. A deadline hit mid-sequence returns
// what has been accumulated rather than failing the request; an empty result
// with every tier exhausted is a valid degraded outcome.
func (s *Service) SearchPOIs(ctx context.Context, q domsearch.Query) (domsearch.Result, error) {
	if q.Limit <= 0 {
		q.Limit = s.opts.DefaultLimit
	}
	if q.Limit > s.opts.MaxLimit {
		q.Limit = s.opts.MaxLimit
	}
	if s.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Deadline)
		defer cancel()
	}

	acc := newAccumulator(q.Limit)

	// Tier 1: fast index.
	indexHealthy := s.index.Healthy(ctx)
	if indexHealthy {
		res, err := s.index.SearchPOIs(ctx, q)
		if err != nil {
			s.logger.Warn("index tier failed, falling back", zap.Error(err))
			indexHealthy = false
		} else {
			acc.tiers.Index = acc.add(res, q.Limit)
		}
	}
	if len(acc.results) >= s.opts.MinResults {
		return s.finish(acc), nil
	}
	if ctx.Err() != nil {
		return s.finish(acc), nil
	}

	// Tier 2: durable store, consulted when the index is down or under-filled.
	res, err := s.store.SearchPOIs(ctx, q)
	if err != nil {
		s.logger.Warn("store tier failed", zap.Error(err), zap.Bool("index_healthy", indexHealthy))
	} else {
		acc.tiers.Store = acc.add(res, q.Limit)
	}
	if len(acc.results) >= s.opts.MinResults {
		return s.finish(acc), nil
	}
	if ctx.Err() != nil {
		return s.finish(acc), nil
	}

	// Tier 3: metered provider, only for the remaining need.
	if len(acc.results) < q.Limit {
		fetched, err := s.provider.SearchText(ctx, q.Text, q.Near, q.RadiusM)
		if err != nil {
			// Breaker open, retries exhausted, or hard failure: serve what
			// the cached tiers produced.
			s.logger.Warn("provider tier unavailable", zap.Error(err))
			return s.finish(acc), nil
		}
		if len(fetched) > 0 {
			// Store before index; failure degrades freshness, not the response.
			if _, err := s.catalog.UpsertPOIs(ctx, fetched); err != nil {
				s.logger.Warn("write-through of provider results failed", zap.Error(err))
			}
			acc.tiers.Provider = acc.add(fetched, q.Limit)
		}
	}

	return s.finish(acc), nil
}

func (s *Service) finish(acc *accumulator) domsearch.Result {
	r := domsearch.Result{
		POIs:   acc.results,
		Source: domsearch.ResolveSource(acc.tiers),
		Tiers:  acc.tiers,
	}
	metrics.TierServedTotal.WithLabelValues("search", string(r.Source)).Inc()
	return r
}
