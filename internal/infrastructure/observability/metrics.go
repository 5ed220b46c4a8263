package observability

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// outcome is one of: success, invalid_state, insufficient_balance,
	// not_authorized, partial_commit, locked, error.
	RedemptionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemption_transitions_total",
			Help: "Redemption transitions by target status and outcome",
		},
		[]string{"target", "outcome"},
	)

	NotificationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_total",
			Help: "Change events applied to the local notification feed",
		},
		[]string{"kind"},
	)

	NotificationResubscribes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_resubscribes_total",
			Help: "Number of times the notification feed was refetched and resubscribed",
		},
	)

	NotificationFeedSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_feed_size",
			Help: "Number of notifications held in the local feed",
		},
	)
)

func InitMetrics(addr string) {
	prometheus.MustRegister(
		RepositoryCalls,
		RepositoryDuration,
		RedemptionTransitions,
		NotificationEvents,
		NotificationResubscribes,
		NotificationFeedSize,
	)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
}
