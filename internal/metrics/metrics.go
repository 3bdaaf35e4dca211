package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks outbound scrapes against comdirect, by surface and outcome.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comdirect_upstream_requests_total",
			Help: "Total number of upstream comdirect requests (by target and outcome).",
		},
		[]string{"target", "outcome"},
	)

	// Measures duration of upstream scrapes.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comdirect_upstream_request_duration_seconds",
			Help:    "Duration of upstream comdirect requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"target"},
	)

	// Counts extraction failures by pipeline stage (classify, basedata,
	// venues, liquidity, quote, csv).
	ParseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comdirect_parse_failures_total",
			Help: "Number of markup/CSV extraction failures by stage.",
		},
		[]string{"stage"},
	)

	// Distribution of CSV pages fetched per history request.
	HistoryPagesFetched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "comdirect_history_pages_fetched",
			Help:    "Number of CSV pages fetched per history request.",
			Buckets: prometheus.LinearBuckets(1, 5, 11), // 1 → 51
		},
	)

	// Snapshot lookups by tier (memo, redis, postgres) and result (hit, miss).
	SnapshotLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comdirect_snapshot_lookups_total",
			Help: "Instrument snapshot lookups by cache tier and result.",
		},
		[]string{"tier", "result"},
	)

	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Number of NATS publish failures",
		},
		[]string{"subject"},
	)

	// Inbound API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of inbound HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"route", "method", "status"},
	)
)

// ObserveDuration records the time taken since start on the given histogram vec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncUpstreamRequest(target, outcome string) {
	UpstreamRequestsTotal.WithLabelValues(target, outcome).Inc()
}

func IncParseFailure(stage string) {
	ParseFailuresTotal.WithLabelValues(stage).Inc()
}

func IncSnapshotLookup(tier, result string) {
	SnapshotLookupsTotal.WithLabelValues(tier, result).Inc()
}
