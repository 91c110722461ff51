// Package metrics provides centralized Prometheus metrics access for the gourmet search client.
// All metrics are defined in their respective packages (client, pagination, ratelimit)
// to maintain modularity and avoid circular dependencies.
//
// This package provides the scrape handler and a reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the search client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving every registered metric.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - gourmet_api_requests_total{status} (Counter): Search API requests by HTTP status
//   - gourmet_api_request_duration_seconds (Histogram): Search API request duration
//   - gourmet_api_errors_total{class} (Counter): Failed fetches by class (config, network, decode)
//
// Session Metrics (pkg/pagination):
//   - gourmet_session_pages_total{kind} (Counter): Pages applied to sessions (first, more)
//   - gourmet_session_stale_responses_total (Counter): Responses dropped after a newer search
//   - gourmet_session_errors_total{class} (Counter): Failed session fetches by class
//
// Quota Metrics (pkg/ratelimit):
//   - gourmet_quota_used (Gauge): Requests admitted against today's quota
//   - gourmet_quota_blocks_total (Counter): Requests refused with an exhausted quota
//   - gourmet_quota_warnings_total (Counter): Requests admitted above the warning ratio
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   sum(rate(gourmet_api_errors_total[5m])) by (class)
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(gourmet_api_request_duration_seconds_bucket[5m]))
//
//   # Load-more share of pages
//   rate(gourmet_session_pages_total{kind="more"}[5m]) / rate(gourmet_session_pages_total[5m])
//
//   # Quota headroom
//   gourmet_quota_used > 2400
