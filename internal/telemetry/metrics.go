package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ehunt"

var (
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Checkpoint scans by outcome reason, ok when the challenge was released.",
	}, []string{"result"})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Answer verifications by outcome reason.",
	}, []string{"result"})

	QuizSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quiz_submissions_total",
		Help:      "Quiz submissions by outcome reason.",
	}, []string{"result"})

	PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_awarded_total",
		Help:      "Points credited to teams.",
	}, []string{"source"})

	ClockTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clock_transitions_total",
		Help:      "Event clock actions applied by admins.",
	}, []string{"action"})
)

// Result is the metric label of an operation outcome.
func Result(reason string) string {
	if reason == "" {
		return "ok"
	}
	return reason
}
