package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Domain metrics. HTTP metrics live in the middleware package.
var (
	descriptionsScored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "descriptions_scored_total",
		Help: "Descriptions persisted together with their score.",
	})

	lowScores = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "descriptions_low_score_total",
		Help: "Scored descriptions below the low-score threshold.",
	})

	sessionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_completed_total",
		Help: "Sessions moved to the completed state.",
	})

	completionRaces = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_completion_lost_race_total",
		Help: "Completion attempts that found the session already completed.",
	})

	evaluatorLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evaluator_request_duration_seconds",
		Help:    "Latency of structured evaluator calls.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	}, []string{"task"})

	evaluatorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluator_failures_total",
		Help: "Evaluator calls that failed at the transport level.",
	}, []string{"task"})

	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Side-effect notifications by event and outcome.",
	}, []string{"event", "outcome"})
)

func init() {
	prometheus.MustRegister(
		descriptionsScored, lowScores, sessionsCompleted, completionRaces,
		evaluatorLatency, evaluatorFailures, notifications,
	)
}

// ObserveEvaluatorCall records one evaluator round trip.
func ObserveEvaluatorCall(task string, d time.Duration, err error) {
	evaluatorLatency.WithLabelValues(task).Observe(d.Seconds())
	if err != nil {
		evaluatorFailures.WithLabelValues(task).Inc()
	}
}

// DescriptionScored counts a persisted description; low marks a score under
// the alert threshold.
func DescriptionScored(low bool) {
	descriptionsScored.Inc()
	if low {
		lowScores.Inc()
	}
}

// SessionCompleted counts a completion; lostRace marks an attempt that found
// the session already completed.
func SessionCompleted(lostRace bool) {
	if lostRace {
		completionRaces.Inc()
		return
	}
	sessionsCompleted.Inc()
}

// NotificationOutcome counts a dispatched side effect ("sent", "failed", "dropped").
func NotificationOutcome(event, outcome string) {
	notifications.WithLabelValues(event, outcome).Inc()
}
