// Package metrics declares the dealer's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rate lookups answered, by tier: cache | primary | secondary | fallback.
	RateLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealer_rate_lookups_total",
			Help: "Exchange rate lookups by the tier that answered them.",
		},
		[]string{"tier"},
	)

	// Outbound calls to rate providers.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealer_provider_requests_total",
			Help: "Total number of rate provider requests (by provider and result).",
		},
		[]string{"provider", "result"}, // result = "ok" | "declined"
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealer_provider_request_duration_seconds",
			Help:    "Duration of rate provider requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
		},
		[]string{"provider"},
	)

	QuotesIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealer_quotes_issued_total",
			Help: "Signed quotes issued (by target currency and chain).",
		},
		[]string{"currency", "chain"},
	)

	QuoteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealer_quote_errors_total",
			Help: "Rejected or failed quote requests by error code.",
		},
		[]string{"code"},
	)

	// Settlement attempts by outcome: "ok" or the revert reason.
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealer_settlements_total",
			Help: "Settlement attempts by result.",
		},
		[]string{"result"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealer_events_published_total",
			Help: "Settlement events published to NATS (by subject and result).",
		},
		[]string{"subject", "result"},
	)

	EventPublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealer_event_publish_latency_seconds",
			Help:    "Latency of NATS publishes in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Nonce reservations in the issued registry by result: reserved | duplicate | error.
	NonceReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealer_nonce_reservations_total",
			Help: "Issued-nonce reservations by result.",
		},
		[]string{"result"},
	)
)

// ObserveDuration records the time since start on the given histogram.
func ObserveDuration(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}
