package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sendsTotal counts executor outcomes.
	// Labels:
	// - result: sent | retry | failed | deferred | skipped
	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "sender",
			Name:      "sends_total",
			Help:      "Queue item executions by outcome.",
		},
		[]string{"result"},
	)

	// failuresTotal counts classified transport failures.
	// Labels:
	// - category: auth | connection | tls | unknown
	failuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "sender",
			Name:      "failures_total",
			Help:      "Transport failures by category.",
		},
		[]string{"category"},
	)

	deferralsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "sender",
			Name:      "deferrals_total",
			Help:      "Queue items deferred because no sending account had capacity.",
		},
	)

	transportSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "sender",
			Name:      "transport_seconds",
			Help:      "Duration of mail transport calls.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// cyclesTotal counts dequeue cycles.
	// Labels:
	// - result: ok | error | skipped
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Dequeue cycles by result.",
		},
		[]string{"result"},
	)

	queuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "scheduler",
			Name:      "queued_items_total",
			Help:      "Queue items created by campaign starts.",
		},
	)

	// trackingEventsTotal counts tracking callbacks.
	// Labels:
	// - event: open | click
	// - known: true | false (whether the token matched a delivery)
	trackingEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "tracking",
			Name:      "events_total",
			Help:      "Open and click callbacks.",
		},
		[]string{"event", "known"},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit policy.",
		},
		[]string{"policy"},
	)
)

func IncSend(result string) {
	if result == "" {
		result = "unknown"
	}
	sendsTotal.WithLabelValues(result).Inc()
}

func IncFailure(category string) {
	if category == "" {
		category = "unknown"
	}
	failuresTotal.WithLabelValues(category).Inc()
}

func IncDeferral() {
	deferralsTotal.Inc()
}

func ObserveTransport(d time.Duration) {
	transportSeconds.Observe(d.Seconds())
}

func IncCycle(result string) {
	cyclesTotal.WithLabelValues(result).Inc()
}

func AddQueued(n int) {
	queuedTotal.Add(float64(n))
}

func IncTrackingEvent(event string, known bool) {
	k := "false"
	if known {
		k = "true"
	}
	trackingEventsTotal.WithLabelValues(event, k).Inc()
}

func IncRateLimited(policy string) {
	rateLimitedTotal.WithLabelValues(policy).Inc()
}
