// Package metrics provides Prometheus instrumentation for the pairing
// engine. It exposes gauges for queue and pair counts, counters for match,
// relay and moderation throughput, and a histogram for time-to-match.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueSize tracks the current number of participants waiting for a
	// partner.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairbot_queue_size",
		Help: "Current number of participants in the wait queue",
	})

	// ActivePairs tracks the current number of active conversations.
	ActivePairs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairbot_active_pairs",
		Help: "Current number of active pairs",
	})

	// MatchesTotal counts successful pairings.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairbot_matches_total",
		Help: "Total number of pairs created",
	})

	// SearchTimeoutsTotal counts searches that exhausted the wait horizon.
	SearchTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairbot_search_timeouts_total",
		Help: "Total number of searches ended by timeout",
	})

	// MatchDuration records the time from search request to pairing.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pairbot_match_duration_seconds",
		Help:    "Time from search request to pairing",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30},
	})

	// RelayedTotal counts relayed payloads, labeled by content kind.
	RelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairbot_relayed_total",
		Help: "Total number of relayed payloads",
	}, []string{"kind"})

	// RelayFailuresTotal counts deliveries that failed and broke a pair.
	RelayFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairbot_relay_failures_total",
		Help: "Total number of relay delivery failures",
	})

	// ReportsTotal counts submitted abuse reports.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairbot_reports_total",
		Help: "Total number of submitted reports",
	})

	// BansTotal counts bans, labeled by origin: "auto" or "manual".
	BansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairbot_bans_total",
		Help: "Total number of bans applied",
	}, []string{"origin"})
)

func init() {
	prometheus.MustRegister(
		QueueSize,
		ActivePairs,
		MatchesTotal,
		SearchTimeoutsTotal,
		MatchDuration,
		RelayedTotal,
		RelayFailuresTotal,
		ReportsTotal,
		BansTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
