package googleplaces

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/placedex/internal/domain"
	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/resilience"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(&Config{
		BaseURL:          srv.URL,
		APIKey:           "test-key",
		Provider:         "google_places",
		Timeout:          2 * time.Second,
		GeohashPrecision: 7,
		Breaker: resilience.NewBreaker("google_places", resilience.BreakerSettings{
			FailureThreshold: 3,
			Timeout:          time.Minute,
		}),
		Retry:  resilience.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Logger: zap.NewNop(),
	})
	return c, srv
}

const searchBody = `{
	"status": "OK",
	"results": [
		{
			"place_id": "gp-1",
			"name": "Dragon Bridge",
			"geometry": {"location": {"lat": 16.0614, "lng": 108.2277}},
			"types": ["tourist_attraction", "point_of_interest", "establishment"],
			"rating": 4.7,
			"user_ratings_total": 2100,
			"formatted_address": "Da Nang, Vietnam",
			"photos": [{"photo_reference": "ref-1", "width": 400, "height": 300}]
		},
		{
			"place_id": "gp-broken",
			"name": "No Geometry Place"
		}
	]
}`

func TestSearchText_MapsResultsAndDropsIncomplete(t *testing.T) {
	var gotPath, gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("query")
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("api key missing from request")
		}
		fmt.Fprint(w, searchBody)
	}))

	near := geo.Point{Lat: 16.05, Lng: 108.25}
	got, err := c.SearchText(context.Background(), "dragon bridge", &near, 5000)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if gotPath != "/textsearch/json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "dragon bridge" {
		t.Errorf("query = %q", gotQuery)
	}

	// The geometry-less result is dropped, not fatal.
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	p := got[0]
	if p.ProviderPlaceID != "gp-1" || p.Name != "Dragon Bridge" {
		t.Errorf("result = %+v", p)
	}
	if p.DedupeKey == "" || p.ID == "" {
		t.Error("identity fields not derived")
	}
	if p.Rating.Average != 4.7 || p.Rating.Count != 2100 {
		t.Errorf("rating = %+v", p.Rating)
	}
	// Noise types are filtered out.
	if len(p.Categories) != 1 || p.Categories[0] != "tourist_attraction" {
		t.Errorf("categories = %v", p.Categories)
	}
	if len(p.PhotoRefs) != 1 || p.PhotoRefs[0] != "ref-1" {
		t.Errorf("photo refs = %v", p.PhotoRefs)
	}
}

func TestSearchText_DeterministicID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchBody)
	}))

	first, err := c.SearchText(context.Background(), "dragon bridge", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.SearchText(context.Background(), "dragon bridge", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if first[0].ID != second[0].ID {
		t.Errorf("same place produced different ids: %s vs %s", first[0].ID, second[0].ID)
	}
}

func TestSearchText_ZeroResults(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))

	got, err := c.SearchText(context.Background(), "atlantis hotel mars", nil, 0)
	if err != nil {
		t.Fatalf("ZERO_RESULTS is not an error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results", len(got))
	}
}

func TestCall_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"status": "OK", "results": []}`)
	}))

	_, err := c.SearchText(context.Background(), "dragon", nil, 0)
	if err != nil {
		t.Fatalf("expected recovery after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestCall_RequestDeniedFailsFast(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"status": "REQUEST_DENIED", "error_message": "key invalid"}`)
	}))

	_, err := c.SearchText(context.Background(), "dragon", nil, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	var ae *apiError
	if !errors.As(err, &ae) || ae.Status != "REQUEST_DENIED" {
		t.Errorf("err = %v, want REQUEST_DENIED apiError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("non-retryable status retried: %d calls", calls.Load())
	}
}

func TestCall_ExhaustedRetriesMapToProviderUnavailable(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.SearchText(context.Background(), "dragon", nil, 0)
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestCall_BreakerOpensAfterExhaustedSequences(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	// Threshold 3, each sequence = 1 + 2 retries = 3 requests.
	for i := 0; i < 3; i++ {
		if _, err := c.SearchText(context.Background(), "dragon", nil, 0); err == nil {
			t.Fatal("expected failure")
		}
	}
	if calls.Load() != 9 {
		t.Fatalf("calls = %d, want 9 before the breaker opens", calls.Load())
	}

	_, err := c.SearchText(context.Background(), "dragon", nil, 0)
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("open breaker should map to ErrProviderUnavailable, got %v", err)
	}
	if calls.Load() != 9 {
		t.Errorf("open breaker still let a request through: %d calls", calls.Load())
	}
}

func TestAutocomplete_MapsPredictions(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/autocomplete/json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"status": "OK",
			"predictions": [{
				"place_id": "gp-1",
				"description": "Mỹ Khê Beach, Da Nang, Vietnam",
				"structured_formatting": {"main_text": "Mỹ Khê Beach", "secondary_text": "Da Nang, Vietnam"},
				"terms": [{"value": "Mỹ Khê Beach"}, {"value": "Da Nang"}],
				"types": ["natural_feature", "geocode"]
			}]
		}`)
	}))

	got, err := c.Autocomplete(context.Background(), "my khe", nil, 0)
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d predictions", len(got))
	}
	p := got[0]
	if p.MainText != "Mỹ Khê Beach" {
		t.Errorf("main text = %q", p.MainText)
	}
	if p.MainTextNormalized != "my khe beach" {
		t.Errorf("normalized = %q", p.MainTextNormalized)
	}
	if p.Status != "pending" {
		t.Errorf("status = %q, want pending", p.Status)
	}
	if len(p.Types) != 1 || p.Types[0] != "natural_feature" {
		t.Errorf("types = %v", p.Types)
	}
}

func TestDetails_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status": "ZERO_RESULTS", "result": {}}`)
	}))

	_, err := c.Details(context.Background(), "gp-missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDetails_FullRecord(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("place_id"); got != "gp-1" {
			t.Errorf("place_id = %q", got)
		}
		fmt.Fprint(w, `{
			"status": "OK",
			"result": {
				"place_id": "gp-1",
				"name": "Dragon Bridge",
				"geometry": {"location": {"lat": 16.0614, "lng": 108.2277}},
				"formatted_phone_number": "+84 236 1022",
				"website": "https://danang.gov.vn",
				"opening_hours": {"open_now": true, "weekday_text": ["Monday: Open 24 hours"]}
			}
		}`)
	}))

	got, err := c.Details(context.Background(), "gp-1")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if got.Contact.Phone != "+84 236 1022" || got.Contact.Website != "https://danang.gov.vn" {
		t.Errorf("contact = %+v", got.Contact)
	}
	if got.Hours.OpenNow == nil || !*got.Hours.OpenNow {
		t.Error("open_now not mapped")
	}
}
