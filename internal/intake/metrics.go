package intake

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts handled turns.
	// Labels: stage (stage the turn arrived in), signal
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievanced",
			Subsystem: "intake",
			Name:      "turns_total",
			Help:      "Total number of conversation turns handled",
		},
		[]string{"stage", "signal"},
	)

	// StageTransitionsTotal counts stage changes.
	StageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievanced",
			Subsystem: "intake",
			Name:      "stage_transitions_total",
			Help:      "Total number of stage transitions",
		},
		[]string{"from", "to"},
	)

	// OTPEventsTotal counts OTP issues, resends and verification outcomes.
	OTPEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievanced",
			Subsystem: "intake",
			Name:      "otp_events_total",
			Help:      "OTP lifecycle events by kind",
		},
		[]string{"event"},
	)

	// SessionsTotal counts sessions by how they ended.
	// Labels: result (started, submitted, exited)
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievanced",
			Subsystem: "intake",
			Name:      "sessions_total",
			Help:      "Conversation sessions by lifecycle event",
		},
		[]string{"result"},
	)

	// SubmitFailuresTotal counts submissions that could not be stored.
	SubmitFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "grievanced",
			Subsystem: "intake",
			Name:      "submit_failures_total",
			Help:      "Submissions that failed in the store and were offered a retry",
		},
	)

	// ClassifierDegradedTotal counts classifications that fell back to an
	// empty result. Labels: reason (timeout, error)
	ClassifierDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievanced",
			Subsystem: "intake",
			Name:      "classifier_degraded_total",
			Help:      "Classifications that degraded to no categories",
		},
		[]string{"reason"},
	)

	// TurnDuration tracks how long a turn takes end to end.
	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grievanced",
			Subsystem: "intake",
			Name:      "turn_duration_seconds",
			Help:      "Duration of turn handling in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)

// ObserveClassifierDegraded is a classifier.OnDegraded hook.
func ObserveClassifierDegraded(reason string) {
	ClassifierDegradedTotal.WithLabelValues(reason).Inc()
}
