// Package client provides the restaurant-search API client: request
// building, the single HTTP round trip, and response decoding.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/gourmet-search/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the gourmet search endpoint.
const DefaultBaseURL = "https://webservice.recruit.co.jp/hotpepper/gourmet/v1/"

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 8 << 20

// Prometheus metrics for search API operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gourmet_api_requests_total",
		Help: "Total search API requests by HTTP status",
	}, []string{"status"})

	apiRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gourmet_api_request_duration_seconds",
		Help:    "Search API request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gourmet_api_errors_total",
		Help: "Total failed page fetches by error class",
	}, []string{"class"})
)

// Gate decides whether a request may be sent. A non-nil error refuses it.
type Gate interface {
	Allow(ctx context.Context) error
}

// Client is the search API client. It keeps no state between calls.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	gate       Gate
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the search endpoint (default: DefaultBaseURL)
	BaseURL string

	// APIKey sent as the key query parameter (REQUIRED)
	APIKey string

	// Timeout per request, used when HTTPClient is nil
	Timeout time.Duration

	// HTTPClient overrides the default transport (optional)
	HTTPClient *http.Client

	// Gate is consulted before each request, e.g. a daily quota (optional)
	Gate Gate
}

// DefaultConfig returns a configuration pointing at the public endpoint.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		Timeout: 15 * time.Second,
	}
}

// New creates a new search API client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	endpoint, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if endpoint.Host == "" {
		return nil, fmt.Errorf("base url has no host (got %q)", cfg.BaseURL)
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
		endpoint:   endpoint,
		gate:       cfg.Gate,
		config:     cfg,
		logger:     log.With().Str("component", "search-client").Logger(),
	}, nil
}

// FetchPage requests one page of shops starting at the 1-based startOffset.
// It performs at most one HTTP call and never retries; failures are
// returned as *APIError.
func (c *Client) FetchPage(ctx context.Context, criteria model.SearchCriteria, startOffset, pageSize int) (*model.SearchResultPage, error) {
	page, err := c.fetchPage(ctx, criteria, startOffset, pageSize)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ClassOf(err))).Inc()
		return nil, err
	}
	return page, nil
}

func (c *Client) fetchPage(ctx context.Context, criteria model.SearchCriteria, start, count int) (*model.SearchResultPage, error) {
	if err := validateRequest(criteria, start, count); err != nil {
		c.logger.Warn().Err(err).Msg("Rejected search request")
		return nil, err
	}

	target := requestURL(c.endpoint, buildQuery(c.config.APIKey, criteria, start, count))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, configError("create request: %v", err)
	}

	if c.gate != nil {
		if err := c.gate.Allow(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Request refused by gate")
			apiRequestsTotal.WithLabelValues("refused").Inc()
			return nil, networkError(0, "request not sent", err)
		}
	}

	logger := c.logger.With().
		Int("start", start).
		Int("count", count).
		Str("range", criteria.Radius.Label()).
		Bool("keyword", criteria.Keyword != "").
		Bool("genre", criteria.Genre != "").
		Logger()

	logger.Debug().Msg("Executing search request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	apiRequestDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		logger.Error().Err(err).Msg("HTTP request failed")
		apiRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, networkError(0, "request failed", err)
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(ErrorClassNetwork)).
			Msg("Search API returned non-200 status")
		return nil, networkError(resp.StatusCode, resp.Status, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read response body")
		return nil, networkError(resp.StatusCode, "read response body", err)
	}

	page, err := decodePage(body)
	if err != nil {
		logger.Warn().Err(err).Str("error_class", string(ClassOf(err))).Msg("Failed to decode search response")
		return nil, err
	}

	logger.Debug().
		Int("returned", len(page.Records)).
		Int("available", page.TotalAvailable).
		Dur("duration", time.Since(startTime)).
		Msg("Search page fetched")

	return page, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
