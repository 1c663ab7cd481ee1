// Package client provides the default HTTP implementation of the engine's
// remote collaborators: single-profile fetch and paged profile listing
// against the dashboard backend REST API, with error classification and
// retry/backoff.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tracklab/walletsync/pkg/profile"
)

// Prometheus metrics for API requests.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsync_api_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "walletsync_api_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsync_api_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the dashboard backend root, e.g. "https://api.example.com".
	BaseURL string

	// UserAgent identifies this client to the backend.
	UserAgent string

	// Timeout is the per-request HTTP timeout (default: 15s).
	Timeout time.Duration

	// HTTPClient overrides the underlying client (for testing).
	HTTPClient *http.Client
}

// Client talks to the dashboard backend. It implements both collaborator
// interfaces consumed by the engine: fetch.Fetcher and fetch.PageFetcher.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     zerolog.Logger
}

// New creates a backend API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		logger:     log.With().Str("component", "api-client").Logger(),
	}, nil
}

// FetchProfile implements fetch.Fetcher via GET /v1/profiles/{address}.
func (c *Client) FetchProfile(ctx context.Context, address string) (*profile.Profile, error) {
	endpoint := "/v1/profiles/" + url.PathEscape(strings.ToLower(strings.TrimSpace(address)))

	body, err := c.get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var p profile.Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// FetchProfilePage implements fetch.PageFetcher via GET /v1/profiles.
func (c *Client) FetchProfilePage(ctx context.Context, pageIndex, pageSize int, sortBy, sortOrder string) (*profile.Page, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(pageIndex))
	query.Set("page_size", strconv.Itoa(pageSize))
	if sortBy != "" {
		query.Set("sort_by", sortBy)
	}
	if sortOrder != "" {
		query.Set("sort_order", sortOrder)
	}

	body, err := c.get(ctx, "/v1/profiles", query)
	if err != nil {
		return nil, err
	}

	var page profile.Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode profile page: %w", err)
	}
	return &page, nil
}

// get executes a GET request with retry and returns the response body.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	start := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body []byte
	var apiErr *APIError

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			apiErr = &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
			return apiErr
		}
		defer resp.Body.Close()

		apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			class := classifyStatus(resp.StatusCode)
			apiErrorsTotal.WithLabelValues(string(class)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("API request error")

			apiErr = &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: class,
				Message:    resp.Status,
			}
			if resp.StatusCode == http.StatusNotFound {
				apiErr.Err = ErrNotFound
			}
			return apiErr
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			apiErr = &APIError{ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
			return apiErr
		}
		return nil
	}

	// First attempt decides the error class; retry policy follows from it.
	if err := attempt(); err == nil {
		return body, nil
	}
	if apiErr != nil && !shouldRetry(apiErr.ErrorClass) {
		return nil, apiErr
	}

	class := ErrorClassNetwork
	if apiErr != nil {
		class = apiErr.ErrorClass
	}
	if err := retryWithBackoff(ctx, class, attempt); err != nil {
		return nil, err
	}
	return body, nil
}
