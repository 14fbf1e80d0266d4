// Package metrics exposes Prometheus collectors for the coin ledger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_transfers_total",
			Help: "Total number of coin transfer attempts labeled by status",
		},
		[]string{"status"},
	)
	transferCoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coin_transfer_coins_total",
			Help: "Total coins successfully transferred",
		},
	)
	quotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Quota rejections labeled by which cap was hit",
		},
		[]string{"cap"},
	)
	recordDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "record_duration_seconds",
			Help:    "Duration of ledger Record operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	rankingQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ranking_query_duration_seconds",
			Help:    "Duration of ranking queries in seconds labeled by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups labeled by prefix and outcome (hit, miss, error)",
		},
		[]string{"prefix", "outcome"},
	)
	vouchersIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vouchers_issued_total",
			Help: "Total number of vouchers issued",
		},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests labeled by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds labeled by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// RecordTransfer counts one Record attempt and its outcome.
func RecordTransfer(status string, coins int, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}

	transfersTotal.WithLabelValues(status).Inc()
	recordDurationSeconds.Observe(duration.Seconds())

	if status == "ok" && coins > 0 {
		transferCoins.Add(float64(coins))
	}
}

// RecordQuotaRejection counts a rejection for the named cap ("daily" or
// "restaurant").
func RecordQuotaRejection(cap string) {
	if cap == "" {
		cap = "unknown"
	}

	quotaRejectionsTotal.WithLabelValues(cap).Inc()
}

// RecordRankingQuery observes one ranking query.
func RecordRankingQuery(kind string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}

	rankingQueryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCacheLookup counts a cache lookup outcome for a key prefix.
func RecordCacheLookup(prefix, outcome string) {
	if prefix == "" {
		prefix = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	cacheLookupsTotal.WithLabelValues(prefix, outcome).Inc()
}

// RecordVoucherIssued counts a first-time voucher issuance.
func RecordVoucherIssued() {
	vouchersIssuedTotal.Inc()
}

// RecordHTTPRequest counts one handled HTTP request.
func RecordHTTPRequest(route, method, code string, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}

	httpRequestsTotal.WithLabelValues(route, method, code).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
