// Package googleplaces is the metered external provider transport. Every
// outbound call runs inside the provider circuit breaker, which wraps a
// retry-with-backoff sequence: one exhausted sequence counts as one breaker
// failure.
package googleplaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/placedex/internal/domain"
	"github.com/kailas-cloud/placedex/internal/domain/geo"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
	"github.com/kailas-cloud/placedex/internal/metrics"
	"github.com/kailas-cloud/placedex/internal/resilience"
)

// Client calls the Places Web Service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	provider   string
	precision  int
	breaker    *resilience.Breaker
	retry      resilience.RetryPolicy
	logger     *zap.Logger
}

// Config holds the provider transport settings.
type Config struct {
	BaseURL          string
	APIKey           string
	Provider         string
	Timeout          time.Duration
	GeohashPrecision int
	Breaker          *resilience.Breaker
	Retry            resilience.RetryPolicy
	Logger           *zap.Logger
}

// NewClient creates a Places client.
func NewClient(cfg *Config) *Client {
	retry := cfg.Retry
	retry.Retryable = isRetryable

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		provider:   cfg.Provider,
		precision:  cfg.GeohashPrecision,
		breaker:    cfg.Breaker,
		retry:      retry,
		logger:     cfg.Logger,
	}
}

// apiError is a non-OK Places API status.
type apiError struct {
	HTTPStatus int
	Status     string
	Message    string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("places API %s (http %d): %s", e.Status, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("places API %s (http %d)", e.Status, e.HTTPStatus)
}

// isRetryable treats transport failures, 429s, 5xx and transient API
// statuses as retryable. Everything else (bad request, denied key) fails
// fast.
func isRetryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		if ae.HTTPStatus == http.StatusTooManyRequests || ae.HTTPStatus >= 500 {
			return true
		}
		return ae.Status == "OVER_QUERY_LIMIT" || ae.Status == "UNKNOWN_ERROR"
	}
	// Network-level errors (timeouts, resets) come back as url.Error.
	var ue *url.Error
	return errors.As(err, &ue)
}

// SearchText runs a text search, optionally biased to a location.
func (c *Client) SearchText(ctx context.Context, query string, near *geo.Point, radiusM float64) ([]poi.POI, error) {
	params := url.Values{"query": {query}}
	if near != nil && radiusM > 0 {
		params.Set("location", fmt.Sprintf("%f,%f", near.Lat, near.Lng))
		params.Set("radius", strconv.Itoa(int(radiusM)))
	}

	var resp searchResponse
	if err := c.call(ctx, "textsearch", params, &resp); err != nil {
		return nil, err
	}

	results := make([]poi.POI, 0, len(resp.Results))
	for i := range resp.Results {
		p, err := c.toPOI(&resp.Results[i])
		if err != nil {
			// Incomplete provider rows are dropped, not fatal.
			c.logger.Warn("skipping provider result",
				zap.String("place_id", resp.Results[i].PlaceID),
				zap.Error(err))
			continue
		}
		results = append(results, p)
	}
	return results, nil
}

// Autocomplete returns place predictions for a partial input.
func (c *Client) Autocomplete(ctx context.Context, input string, near *geo.Point, radiusM float64) ([]prediction.Prediction, error) {
	params := url.Values{"input": {input}}
	if near != nil && radiusM > 0 {
		params.Set("location", fmt.Sprintf("%f,%f", near.Lat, near.Lng))
		params.Set("radius", strconv.Itoa(int(radiusM)))
	}

	var resp autocompleteResponse
	if err := c.call(ctx, "autocomplete", params, &resp); err != nil {
		return nil, err
	}

	results := make([]prediction.Prediction, 0, len(resp.Predictions))
	for i := range resp.Predictions {
		p, err := toPrediction(&resp.Predictions[i])
		if err != nil {
			c.logger.Warn("skipping provider prediction",
				zap.String("place_id", resp.Predictions[i].PlaceID),
				zap.Error(err))
			continue
		}
		results = append(results, p)
	}
	return results, nil
}

// Details fetches the full record for one place id.
func (c *Client) Details(ctx context.Context, placeID string) (poi.POI, error) {
	var resp detailsResponse
	err := c.call(ctx, "details", url.Values{"place_id": {placeID}}, &resp)
	if err != nil {
		return poi.POI{}, err
	}
	if resp.Status == "ZERO_RESULTS" || resp.Result.PlaceID == "" {
		return poi.POI{}, fmt.Errorf("%w: place %s", domain.ErrNotFound, placeID)
	}
	return c.toPOI(&resp.Result)
}

// statusCarrier lets call validate the API status field of any response.
type statusCarrier interface{ apiStatus() (status, message string) }

func (r *searchResponse) apiStatus() (string, string)       { return r.Status, r.ErrorMessage }
func (r *detailsResponse) apiStatus() (string, string)      { return r.Status, r.ErrorMessage }
func (r *autocompleteResponse) apiStatus() (string, string) { return r.Status, r.ErrorMessage }

// call runs one logical provider operation: breaker on the outside, retry on
// the inside, so an exhausted retry sequence counts as a single failure.
func (c *Client) call(ctx context.Context, operation string, params url.Values, out statusCarrier) error {
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
			return c.doOnce(ctx, operation, params, out)
		})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrRetriesExhausted) {
		return fmt.Errorf("provider %s %s: %v: %w", c.provider, operation, err, domain.ErrProviderUnavailable)
	}
	return fmt.Errorf("provider %s %s: %w", c.provider, operation, err)
}

func (c *Client) doOnce(ctx context.Context, operation string, params url.Values, out statusCarrier) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", c.apiKey)

	endpoint := fmt.Sprintf("%s/%s/json?%s", c.baseURL, operation, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, operation, "error").Inc()
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, operation, "error").Inc()
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, operation, "error").Inc()
		return &apiError{HTTPStatus: resp.StatusCode, Status: "HTTP_ERROR", Message: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, operation, "error").Inc()
		return fmt.Errorf("decoding response: %w", err)
	}

	status, message := out.apiStatus()
	if status != "OK" && status != "ZERO_RESULTS" {
		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, operation, "error").Inc()
		return &apiError{HTTPStatus: resp.StatusCode, Status: status, Message: message}
	}

	metrics.ProviderRequestsTotal.WithLabelValues(c.provider, operation, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues(c.provider, operation).Observe(duration.Seconds())
	return nil
}
