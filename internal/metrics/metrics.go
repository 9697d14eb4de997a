// Package metrics exposes Prometheus collectors for AdGuard DNS API traffic,
// token refreshes and whitelist mutations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequests counts provider API calls by operation and HTTP status code.
	// Transport failures are recorded with code "error".
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnsmedic_adguard_requests_total",
		Help: "AdGuard DNS API requests by operation and status code",
	}, []string{"operation", "code"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dnsmedic_adguard_request_duration_seconds",
		Help:    "AdGuard DNS API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnsmedic_adguard_retries_total",
		Help: "Retried AdGuard DNS API requests by reason",
	}, []string{"operation", "reason"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnsmedic_token_refreshes_total",
		Help: "Access token refresh exchanges by result",
	}, []string{"result"})

	RulesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dnsmedic_whitelist_rules_added_total",
		Help: "Whitelist rules written to the filtering configuration",
	})

	BlockedDomains = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dnsmedic_blocked_domains_last_fetch",
		Help: "Blocked entries in the most recent query log page",
	})
)

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer creates an HTTP server serving /metrics (Prometheus) and /healthz.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}
