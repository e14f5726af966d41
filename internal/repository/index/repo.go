// Package index is the fast-search-tier repository: a derived projection of
// the place record store held in Redis FT indexes. It can be dropped and
// rebuilt at any time; the record store remains the source of truth.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/placedex/internal/db"
	"github.com/kailas-cloud/placedex/internal/domain"
	"github.com/kailas-cloud/placedex/internal/domain/dedupe"
	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
	"github.com/kailas-cloud/placedex/internal/domain/search"
)

// store is the consumer interface for index operations (ISP).
type store interface {
	db.Pinger
	db.HashStore
	db.IndexManager
	db.Searcher
}

// Repo implements the fast-index tier over an FT-capable store.
type Repo struct {
	store  store
	prefix string
}

// New creates an index repository. keyPrefix namespaces all keys and index
// names, e.g. "placedex:".
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

func (r *Repo) poiIndex() string        { return r.prefix + "pois:idx" }
func (r *Repo) predictionIndex() string { return r.prefix + "predictions:idx" }
func (r *Repo) poiKey(id string) string { return r.prefix + "poi:" + id }
func (r *Repo) predictionKey(placeID string) string {
	return r.prefix + "prediction:" + placeID
}

// EnsureIndexes creates the POI and prediction FT indexes if they do not
// exist yet. Safe to call on every startup.
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	poiDef, err := db.NewIndex(r.poiIndex()).
		Prefix(r.prefix + "poi:").
		TextWeighted(fieldName, 5).
		Text(fieldDesc).
		Tag(fieldCategories).
		Geo(fieldLocation).
		NumericSortable(fieldRating).
		Numeric(fieldReviews).
		NumericSortable(fieldPopularity).
		Tag(fieldDedupeKey).
		Build()
	if err != nil {
		return fmt.Errorf("building poi index definition: %w", err)
	}

	predDef, err := db.NewIndex(r.predictionIndex()).
		Prefix(r.prefix + "prediction:").
		Text(fieldMainText).
		NumericSortable(fieldClicks).
		Tag(fieldStatus).
		Build()
	if err != nil {
		return fmt.Errorf("building prediction index definition: %w", err)
	}

	for _, def := range []*db.IndexDefinition{poiDef, predDef} {
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("creating index %s: %w", def.Name, err)
		}
	}
	return nil
}

// UpsertPOI writes one POI projection into the index.
func (r *Repo) UpsertPOI(ctx context.Context, p poi.POI) error {
	fields, err := poiToHash(&p)
	if err != nil {
		return err
	}
	return r.store.HSet(ctx, r.poiKey(p.ID), fields)
}

// UpsertPOIs writes a batch of POI projections in one pipelined call.
func (r *Repo) UpsertPOIs(ctx context.Context, pois []poi.POI) error {
	if len(pois) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, 0, len(pois))
	for i := range pois {
		fields, err := poiToHash(&pois[i])
		if err != nil {
			return err
		}
		items = append(items, db.HashSetItem{Key: r.poiKey(pois[i].ID), Fields: fields})
	}
	return r.store.HSetMulti(ctx, items)
}

// DeletePOI removes one POI projection from the index.
func (r *Repo) DeletePOI(ctx context.Context, id string) error {
	return r.store.Del(ctx, r.poiKey(id))
}

// UpsertPrediction writes one prediction projection into the index.
func (r *Repo) UpsertPrediction(ctx context.Context, p prediction.Prediction) error {
	fields, err := predictionToHash(&p)
	if err != nil {
		return err
	}
	return r.store.HSet(ctx, r.predictionKey(p.PlaceID), fields)
}

// UpsertPredictions writes a batch of prediction projections in one
// pipelined call.
func (r *Repo) UpsertPredictions(ctx context.Context, preds []prediction.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, 0, len(preds))
	for i := range preds {
		fields, err := predictionToHash(&preds[i])
		if err != nil {
			return err
		}
		items = append(items, db.HashSetItem{Key: r.predictionKey(preds[i].PlaceID), Fields: fields})
	}
	return r.store.HSetMulti(ctx, items)
}

// SearchPOIs runs the fast-tier search. Relevance ordering comes from the
// index; distance ordering is applied in memory on the fetched page.
func (r *Repo) SearchPOIs(ctx context.Context, q search.Query) ([]poi.POI, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	tq := &db.TextQuery{
		IndexName:    r.poiIndex(),
		Query:        buildPOIQuery(q),
		Offset:       q.Offset,
		Limit:        limit,
		ReturnFields: []string{fieldDoc},
	}
	switch q.Sort {
	case search.SortRating:
		tq.SortBy, tq.SortDesc = fieldRating, true
	case search.SortPopularity:
		tq.SortBy, tq.SortDesc = fieldPopularity, true
	case search.SortDistance:
		// No native geo sort; over-fetch and order in memory.
		tq.Offset = 0
		tq.Limit = q.Offset + limit
	}

	sr, err := r.store.SearchText(ctx, tq)
	if err != nil {
		return nil, fmt.Errorf("%w: searching poi index: %w", domain.ErrIndexDegraded, err)
	}

	results := make([]poi.POI, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		p, err := poiFromFields(entry.Fields)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}

	if q.Sort == search.SortDistance && q.Near != nil {
		near := *q.Near
		sort.Slice(results, func(i, j int) bool {
			return geo.Distance(near, results[i].Location) < geo.Distance(near, results[j].Location)
		})
		if q.Offset >= len(results) {
			return nil, nil
		}
		results = results[q.Offset:]
		if len(results) > limit {
			results = results[:limit]
		}
	}
	return results, nil
}

// SearchPredictions returns indexed predictions matching the input as a
// prefix of their main text, most-clicked first.
func (r *Repo) SearchPredictions(ctx context.Context, input string, limit int) ([]prediction.Prediction, error) {
	norm := dedupe.NormalizeName(input)
	if norm == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	terms := strings.Fields(norm)
	for i, t := range terms {
		terms[i] = db.EscapeQueryTerm(t)
	}
	// Last term matches as a prefix so partial typing still hits.
	terms[len(terms)-1] += "*"

	sr, err := r.store.SearchText(ctx, &db.TextQuery{
		IndexName:    r.predictionIndex(),
		Query:        fmt.Sprintf("@%s:(%s)", fieldMainText, strings.Join(terms, " ")),
		SortBy:       fieldClicks,
		SortDesc:     true,
		Limit:        limit,
		ReturnFields: []string{fieldDoc},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: searching prediction index: %w", domain.ErrIndexDegraded, err)
	}

	results := make([]prediction.Prediction, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		p, err := predictionFromFields(entry.Fields)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, nil
}

// CountPOIs returns the number of indexed POI projections.
func (r *Repo) CountPOIs(ctx context.Context) (int, error) {
	return r.store.SearchCount(ctx, r.poiIndex(), "*")
}

// Healthy reports whether the fast tier can serve queries: the store
// responds and the POI index exists.
func (r *Repo) Healthy(ctx context.Context) bool {
	if err := r.store.Ping(ctx); err != nil {
		return false
	}
	ok, err := r.store.IndexExists(ctx, r.poiIndex())
	return err == nil && ok
}

// buildPOIQuery assembles the FT query string for a POI search.
func buildPOIQuery(q search.Query) string {
	var clauses []string

	if norm := dedupe.NormalizeName(q.Text); norm != "" {
		terms := strings.Fields(norm)
		for i, t := range terms {
			terms[i] = db.EscapeQueryTerm(t)
		}
		clauses = append(clauses, "("+strings.Join(terms, " ")+")")
	}
	if len(q.Categories) > 0 {
		tags := make([]string, len(q.Categories))
		for i, c := range q.Categories {
			tags[i] = db.EscapeTagValue(c)
		}
		clauses = append(clauses, fmt.Sprintf("@%s:{%s}", fieldCategories, strings.Join(tags, "|")))
	}
	if q.MinRating > 0 {
		clauses = append(clauses, fmt.Sprintf("@%s:[%g +inf]", fieldRating, q.MinRating))
	}
	if q.Near != nil && q.RadiusM > 0 {
		clauses = append(clauses, fmt.Sprintf("@%s:[%f %f %f m]", fieldLocation, q.Near.Lng, q.Near.Lat, q.RadiusM))
	}

	if len(clauses) == 0 {
		return "*"
	}
	return strings.Join(clauses, " ")
}
