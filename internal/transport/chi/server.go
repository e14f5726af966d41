package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/placedex/internal/domain"
	"github.com/kailas-cloud/placedex/internal/domain/geo"
	domsearch "github.com/kailas-cloud/placedex/internal/domain/search"
	autocompleteuc "github.com/kailas-cloud/placedex/internal/usecase/autocomplete"
	cataloguc "github.com/kailas-cloud/placedex/internal/usecase/catalog"
	healthuc "github.com/kailas-cloud/placedex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/placedex/internal/usecase/search"
	usageuc "github.com/kailas-cloud/placedex/internal/usecase/usage"
)

const maxStalePageSize = 500

// ErrorCode is a machine-readable error class returned to clients.
type ErrorCode string

const (
	CodeBadRequest          ErrorCode = "bad_request"
	CodeValidationFailed    ErrorCode = "validation_failed"
	CodeNotFound            ErrorCode = "not_found"
	CodeDuplicateRecord     ErrorCode = "duplicate_record"
	CodeQuotaExceeded       ErrorCode = "quota_exceeded"
	CodeProviderUnavailable ErrorCode = "provider_unavailable"
	CodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the placedex HTTP API.
type Server struct {
	search        *searchuc.Service
	autocomplete  *autocompleteuc.Service
	catalog       *cataloguc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	autocomplete *autocompleteuc.Service,
	catalog *cataloguc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:       search,
		autocomplete: autocomplete,
		catalog:      catalog,
		usage:        usage,
		health:       health,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrDuplicateRecord, http.StatusConflict, CodeDuplicateRecord),
		sentinelHandler(domain.ErrQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusServiceUnavailable, CodeProviderUnavailable),
	}
	return s
}

// Routes registers the API endpoints. Middleware is attached at the
// composition root.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pois/search", s.SearchPOIs)
		r.Get("/pois/{id}", s.GetPOI)
		r.Get("/autocomplete", s.Autocomplete)
		r.Post("/autocomplete/{place_id}/resolve", s.ResolvePrediction)
		r.Post("/autocomplete/{place_id}/click", s.ClickPrediction)
		r.Get("/quota", s.GetQuota)
		r.Get("/stale", s.ListStale)
	})

	return r
}

// SearchPOIs handles GET /v1/pois/search.
func (s *Server) SearchPOIs(w http.ResponseWriter, r *http.Request) {
	q, err := searchQueryFromParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if q.Text == "" && q.Near == nil && len(q.Categories) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"at least one of q, lat/lng or categories is required")
		return
	}

	result, err := s.search.SearchPOIs(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetPOI handles GET /v1/pois/{id}.
func (s *Server) GetPOI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.catalog.GetPOI(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Autocomplete handles GET /v1/autocomplete.
func (s *Server) Autocomplete(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	input := strings.TrimSpace(params.Get("input"))
	if input == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "input is required")
		return
	}

	near, err := pointFromParams(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	radiusM, err := parseFloatParam(params.Get("radius_m"), "radius_m")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	limit, err := parseIntParam(params.Get("limit"), "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	suggestions, err := s.autocomplete.Suggest(r.Context(), input, near, radiusM, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, suggestions)
}

// ResolvePrediction handles POST /v1/autocomplete/{place_id}/resolve.
func (s *Server) ResolvePrediction(w http.ResponseWriter, r *http.Request) {
	placeID := chi.URLParam(r, "place_id")

	p, err := s.autocomplete.Resolve(r.Context(), placeID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// ClickPrediction handles POST /v1/autocomplete/{place_id}/click.
func (s *Server) ClickPrediction(w http.ResponseWriter, r *http.Request) {
	placeID := chi.URLParam(r, "place_id")

	if err := s.autocomplete.Click(r.Context(), placeID); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetQuota handles GET /v1/quota.
func (s *Server) GetQuota(w http.ResponseWriter, r *http.Request) {
	report, err := s.usage.GetReport(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ListStale handles GET /v1/stale. It reports records due for a refresh so an
// operator or cron can re-warm them.
func (s *Server) ListStale(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if limit <= 0 || limit > maxStalePageSize {
		limit = 100
	}

	pois, err := s.catalog.Stale(r.Context(), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	total, err := s.catalog.CountStale(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pois":  pois,
		"total": total,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func searchQueryFromParams(params map[string][]string) (domsearch.Query, error) {
	get := func(key string) string {
		if vs := params[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	near, err := pointFromGet(get)
	if err != nil {
		return domsearch.Query{}, err
	}
	radiusM, err := parseFloatParam(get("radius_m"), "radius_m")
	if err != nil {
		return domsearch.Query{}, err
	}
	minRating, err := parseFloatParam(get("min_rating"), "min_rating")
	if err != nil {
		return domsearch.Query{}, err
	}
	limit, err := parseIntParam(get("limit"), "limit")
	if err != nil {
		return domsearch.Query{}, err
	}
	offset, err := parseIntParam(get("offset"), "offset")
	if err != nil {
		return domsearch.Query{}, err
	}

	var categories []string
	if raw := get("categories"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
	}

	sort, err := sortFromParam(get("sort"), near)
	if err != nil {
		return domsearch.Query{}, err
	}

	return domsearch.Query{
		Text:       strings.TrimSpace(get("q")),
		Near:       near,
		RadiusM:    radiusM,
		Categories: categories,
		MinRating:  minRating,
		Sort:       sort,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

func sortFromParam(raw string, near *geo.Point) (domsearch.Sort, error) {
	switch domsearch.Sort(raw) {
	case "":
		return domsearch.SortRelevance, nil
	case domsearch.SortRelevance, domsearch.SortRating, domsearch.SortPopularity:
		return domsearch.Sort(raw), nil
	case domsearch.SortDistance:
		if near == nil {
			return "", errors.New("sort=distance requires lat and lng")
		}
		return domsearch.SortDistance, nil
	default:
		return "", errors.New("unknown sort " + strconv.Quote(raw))
	}
}

func pointFromParams(params map[string][]string) (*geo.Point, error) {
	return pointFromGet(func(key string) string {
		if vs := params[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	})
}

func pointFromGet(get func(string) string) (*geo.Point, error) {
	rawLat, rawLng := get("lat"), get("lng")
	if rawLat == "" && rawLng == "" {
		return nil, nil
	}
	if rawLat == "" || rawLng == "" {
		return nil, errors.New("lat and lng must be provided together")
	}
	lat, err := parseFloatParam(rawLat, "lat")
	if err != nil {
		return nil, err
	}
	lng, err := parseFloatParam(rawLng, "lng")
	if err != nil {
		return nil, err
	}
	p := geo.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return nil, errors.New("lat/lng out of range")
	}
	return &p, nil
}

func parseFloatParam(raw, name string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("invalid " + name + ": " + raw)
	}
	return v, nil
}

func parseIntParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name + ": " + raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrValidation,
		domain.ErrDuplicateRecord,
		domain.ErrQuotaExceeded,
		domain.ErrProviderUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
