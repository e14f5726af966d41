// Package place is the durable record store for POIs and autocomplete
// predictions, backed by SQLite. It is the source of truth; the search index
// holds a derived projection and is rebuilt from here.
package place

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/placedex/internal/domain"
	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
	"github.com/kailas-cloud/placedex/internal/domain/search"
	"github.com/kailas-cloud/placedex/internal/domain/staleness"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Outcome reports what an upsert did with a record.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
)

// Counts aggregates outcomes of a bulk upsert. A failed record increments
// Errors and the batch continues.
type Counts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// Add tallies one outcome.
func (c *Counts) Add(o Outcome) {
	switch o {
	case OutcomeInserted:
		c.Inserted++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeSkipped:
		c.Skipped++
	}
}

// Changed reports whether the outcome altered the stored record.
func (o Outcome) Changed() bool {
	return o == OutcomeInserted || o == OutcomeUpdated
}

// Store wraps a SQLite database holding POI and prediction records.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "placedex.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- POIs ---

const poiColumns = `id, dedupe_key, name, lat, lng, categories, price_tier,
	rating_avg, rating_count, description, phone, website, address, hours,
	photo_refs, provider_name, provider_place_id, popularity_score,
	view_count, created_at, updated_at`

// GetPOI returns the POI with the given id.
func (s *Store) GetPOI(ctx context.Context, id string) (poi.POI, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+poiColumns+` FROM pois WHERE id = ?`, id)
	return scanPOI(row)
}

// GetPOIByDedupeKey returns the POI with the given dedupe key.
func (s *Store) GetPOIByDedupeKey(ctx context.Context, key string) (poi.POI, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+poiColumns+` FROM pois WHERE dedupe_key = ?`, key)
	return scanPOI(row)
}

// GetPOIByProviderPlaceID returns the POI cached for the given provider place id.
func (s *Store) GetPOIByProviderPlaceID(ctx context.Context, placeID string) (poi.POI, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+poiColumns+` FROM pois WHERE provider_place_id = ?`, placeID)
	return scanPOI(row)
}

// UpsertPOI inserts a new record, refreshes a stale one, or skips a fresh
// one. Matching is by id or dedupe key. On update the existing identity
// (id, created_at) and local counters (view_count) are preserved; everything
// else is overwritten by the incoming record.
func (s *Store) UpsertPOI(ctx context.Context, p poi.POI) (Outcome, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	var staleAfter int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, stale_after FROM pois WHERE id = ? OR dedupe_key = ?`,
		p.ID, p.DedupeKey,
	).Scan(&existingID, &staleAfter)

	switch {
	case err == sql.ErrNoRows:
		if err := s.insertPOI(ctx, tx, p, now); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing insert: %w", err)
		}
		return OutcomeInserted, nil

	case err != nil:
		return "", fmt.Errorf("looking up poi: %w", err)

	case staleAfter > now.Unix():
		// Fresh record, nothing to refresh.
		return OutcomeSkipped, nil
	}

	if err := s.updatePOI(ctx, tx, existingID, p, now); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing update: %w", err)
	}
	return OutcomeUpdated, nil
}

func (s *Store) insertPOI(ctx context.Context, tx *sql.Tx, p poi.POI, now time.Time) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	staleAfter := staleness.StaleAfter(now, p.Categories, p.Rating.Count)

	categories, hours, photos, err := marshalPOIFields(p)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pois (id, dedupe_key, name, lat, lng, categories, price_tier,
			rating_avg, rating_count, description, phone, website, address, hours,
			photo_refs, provider_name, provider_place_id, popularity_score,
			view_count, created_at, updated_at, stale_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DedupeKey, p.Name, p.Location.Lat, p.Location.Lng, categories, p.PriceTier,
		p.Rating.Average, p.Rating.Count, p.Description, p.Contact.Phone, p.Contact.Website,
		p.Contact.Address, hours, photos, p.ProviderName, p.ProviderPlaceID, p.PopularityScore,
		p.ViewCount, createdAt.Unix(), now.Unix(), staleAfter.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: dedupe key %q", domain.ErrDuplicateRecord, p.DedupeKey)
		}
		return fmt.Errorf("inserting poi: %w", err)
	}
	return nil
}

func (s *Store) updatePOI(ctx context.Context, tx *sql.Tx, id string, p poi.POI, now time.Time) error {
	staleAfter := staleness.StaleAfter(now, p.Categories, p.Rating.Count)

	categories, hours, photos, err := marshalPOIFields(p)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE pois SET
			dedupe_key = ?, name = ?, lat = ?, lng = ?, categories = ?, price_tier = ?,
			rating_avg = ?, rating_count = ?, description = ?, phone = ?, website = ?,
			address = ?, hours = ?, photo_refs = ?, provider_name = ?, provider_place_id = ?,
			popularity_score = ?, updated_at = ?, stale_after = ?
		WHERE id = ?`,
		p.DedupeKey, p.Name, p.Location.Lat, p.Location.Lng, categories, p.PriceTier,
		p.Rating.Average, p.Rating.Count, p.Description, p.Contact.Phone, p.Contact.Website,
		p.Contact.Address, hours, photos, p.ProviderName, p.ProviderPlaceID,
		p.PopularityScore, now.Unix(), staleAfter.Unix(),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating poi: %w", err)
	}
	return nil
}

// GetStalePOIs returns up to limit records due for a provider refresh,
// oldest first.
func (s *Store) GetStalePOIs(ctx context.Context, limit int) ([]poi.POI, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+poiColumns+` FROM pois
		WHERE stale_after <= ?
		ORDER BY stale_after ASC
		LIMIT ?`, s.now().UTC().Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPOIs(rows)
}

// CountStalePOIs returns how many records are due for a provider refresh.
func (s *Store) CountStalePOIs(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pois WHERE stale_after <= ?`, s.now().UTC().Unix(),
	).Scan(&n)
	return n, err
}

// IncrementPOIView bumps the view counter of a record without touching its
// freshness.
func (s *Store) IncrementPOIView(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE pois SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SearchPOIs runs the durable-store search tier: a bounding-box SQL prefilter
// for geo queries with an exact Haversine postfilter, plus LIKE matching on
// name and description.
func (s *Store) SearchPOIs(ctx context.Context, q search.Query) ([]poi.POI, error) {
	var (
		where []string
		args  []any
	)

	if text := strings.TrimSpace(q.Text); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		where = append(where, `(name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	for _, c := range q.Categories {
		// Categories are stored as a JSON string array, so an element match
		// is a quoted-substring match.
		where = append(where, `categories LIKE ? ESCAPE '\'`)
		args = append(args, `%"`+escapeLike(c)+`"%`)
	}
	if q.MinRating > 0 {
		where = append(where, `rating_avg >= ?`)
		args = append(args, q.MinRating)
	}
	if q.Near != nil && q.RadiusM > 0 {
		minLat, maxLat, minLng, maxLng := geo.BoundingBox(*q.Near, q.RadiusM)
		where = append(where, `lat BETWEEN ? AND ?`, `lng BETWEEN ? AND ?`)
		args = append(args, minLat, maxLat, minLng, maxLng)
	}

	query := `SELECT ` + poiColumns + ` FROM pois`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	switch q.Sort {
	case search.SortRating:
		query += ` ORDER BY rating_avg DESC, rating_count DESC`
	case search.SortPopularity:
		query += ` ORDER BY popularity_score DESC`
	default:
		// Relevance and distance ordering are refined in memory by the
		// resolver; name order keeps the scan deterministic.
		query += ` ORDER BY name ASC`
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	// Over-fetch when a radius postfilter will drop corner hits of the box.
	fetchLimit := limit + q.Offset
	if q.Near != nil && q.RadiusM > 0 {
		fetchLimit *= 2
	}
	query += ` LIMIT ?`
	args = append(args, fetchLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results, err := scanPOIs(rows)
	if err != nil {
		return nil, err
	}

	if q.Near != nil && q.RadiusM > 0 {
		filtered := results[:0]
		for _, p := range results {
			if geo.Distance(*q.Near, p.Location) <= q.RadiusM {
				filtered = append(filtered, p)
			}
		}
		results = filtered
		if q.Sort == search.SortDistance {
			near := *q.Near
			sort.Slice(results, func(i, j int) bool {
				return geo.Distance(near, results[i].Location) < geo.Distance(near, results[j].Location)
			})
		}
	}

	if q.Offset >= len(results) {
		return nil, nil
	}
	results = results[q.Offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// --- Predictions ---

const predictionColumns = `place_id, description, main_text, main_text_normalized,
	secondary_text, terms, types, status, click_count, created_at, updated_at`

// GetPrediction returns the prediction with the given provider place id.
func (s *Store) GetPrediction(ctx context.Context, placeID string) (prediction.Prediction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE place_id = ?`, placeID)
	return scanPrediction(row)
}

// UpsertPrediction inserts a prediction or refreshes its display metadata.
// Resolution status never regresses and the click counter is preserved.
func (s *Store) UpsertPrediction(ctx context.Context, p prediction.Prediction) (Outcome, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	now := s.now().UTC()

	terms, err := json.Marshal(emptySlice(p.Terms))
	if err != nil {
		return "", fmt.Errorf("marshaling terms: %w", err)
	}
	types, err := json.Marshal(emptySlice(p.Types))
	if err != nil {
		return "", fmt.Errorf("marshaling types: %w", err)
	}

	var priorStatus string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM predictions WHERE place_id = ?`, p.PlaceID,
	).Scan(&priorStatus)
	existing := true
	switch {
	case err == sql.ErrNoRows:
		existing = false
	case err != nil:
		return "", fmt.Errorf("looking up prediction: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO predictions (place_id, description, main_text, main_text_normalized,
			secondary_text, terms, types, status, click_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(place_id) DO UPDATE SET
			description = excluded.description,
			main_text = excluded.main_text,
			main_text_normalized = excluded.main_text_normalized,
			secondary_text = excluded.secondary_text,
			terms = excluded.terms,
			types = excluded.types,
			updated_at = excluded.updated_at
		WHERE predictions.status = 'pending'`,
		p.PlaceID, p.Description, p.MainText, p.MainTextNormalized, p.SecondaryText,
		string(terms), string(types), string(p.Status), now.Unix(), now.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("upserting prediction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		// Conflict on a resolved record: metadata refresh suppressed.
		return OutcomeSkipped, nil
	}
	if existing {
		return OutcomeUpdated, nil
	}
	return OutcomeInserted, nil
}

// SearchPredictions returns predictions whose normalized main text starts
// with the given normalized prefix, most-clicked first.
func (s *Store) SearchPredictions(ctx context.Context, normPrefix string, limit int) ([]prediction.Prediction, error) {
	if normPrefix == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+predictionColumns+` FROM predictions
		WHERE main_text_normalized LIKE ? ESCAPE '\'
		ORDER BY click_count DESC, main_text_normalized ASC
		LIMIT ?`, escapeLike(normPrefix)+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []prediction.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// MarkPredictionResolved flips a pending prediction to resolved. It reports
// whether this call performed the transition; a second call is a no-op.
func (s *Store) MarkPredictionResolved(ctx context.Context, placeID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE predictions SET status = 'resolved', updated_at = ?
		WHERE place_id = ? AND status = 'pending'`,
		s.now().UTC().Unix(), placeID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// Distinguish already-resolved from missing.
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predictions WHERE place_id = ?`, placeID,
	).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, domain.ErrNotFound
	}
	return false, nil
}

// IncrementPredictionClick bumps the click counter used to rank suggestions.
func (s *Store) IncrementPredictionClick(ctx context.Context, placeID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE predictions SET click_count = click_count + 1, updated_at = ?
		WHERE place_id = ?`,
		s.now().UTC().Unix(), placeID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPOI(row rowScanner) (poi.POI, error) {
	var (
		p                         poi.POI
		categories, hours, photos string
		createdAt, updatedAt      int64
	)
	err := row.Scan(
		&p.ID, &p.DedupeKey, &p.Name, &p.Location.Lat, &p.Location.Lng,
		&categories, &p.PriceTier, &p.Rating.Average, &p.Rating.Count,
		&p.Description, &p.Contact.Phone, &p.Contact.Website, &p.Contact.Address,
		&hours, &photos, &p.ProviderName, &p.ProviderPlaceID,
		&p.PopularityScore, &p.ViewCount, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return poi.POI{}, domain.ErrNotFound
	}
	if err != nil {
		return poi.POI{}, err
	}
	if err := json.Unmarshal([]byte(categories), &p.Categories); err != nil {
		return poi.POI{}, fmt.Errorf("decoding categories for %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(hours), &p.Hours); err != nil {
		return poi.POI{}, fmt.Errorf("decoding hours for %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(photos), &p.PhotoRefs); err != nil {
		return poi.POI{}, fmt.Errorf("decoding photo refs for %s: %w", p.ID, err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return p, nil
}

func scanPOIs(rows *sql.Rows) ([]poi.POI, error) {
	var results []poi.POI
	for rows.Next() {
		p, err := scanPOI(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func scanPrediction(row rowScanner) (prediction.Prediction, error) {
	var (
		p                    prediction.Prediction
		terms, types, status string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&p.PlaceID, &p.Description, &p.MainText, &p.MainTextNormalized,
		&p.SecondaryText, &terms, &types, &status, &p.ClickCount,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return prediction.Prediction{}, domain.ErrNotFound
	}
	if err != nil {
		return prediction.Prediction{}, err
	}
	if err := json.Unmarshal([]byte(terms), &p.Terms); err != nil {
		return prediction.Prediction{}, fmt.Errorf("decoding terms for %s: %w", p.PlaceID, err)
	}
	if err := json.Unmarshal([]byte(types), &p.Types); err != nil {
		return prediction.Prediction{}, fmt.Errorf("decoding types for %s: %w", p.PlaceID, err)
	}
	p.Status = prediction.Status(status)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return p, nil
}

func marshalPOIFields(p poi.POI) (categories, hours, photos string, err error) {
	c, err := json.Marshal(emptySlice(p.Categories))
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling categories: %w", err)
	}
	h, err := json.Marshal(p.Hours)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling hours: %w", err)
	}
	ph, err := json.Marshal(emptySlice(p.PhotoRefs))
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling photo refs: %w", err)
	}
	return string(c), string(h), string(ph), nil
}

// emptySlice keeps JSON columns as "[]" instead of "null" for nil slices.
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
