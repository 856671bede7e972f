package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consult_model_calls_total",
			Help: "Count of outbound model calls",
		},
		[]string{"kind", "status"},
	)
	ModelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consult_model_call_duration_seconds",
			Help:    "Time taken by outbound model calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)
	SessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consult_sessions_created_total",
			Help: "Count of consultation sessions created",
		},
	)
	AnalysesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "consult_analyses_completed_total",
			Help: "Count of final analyses delivered",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		ModelCalls,
		ModelCallDuration,
		SessionsCreated,
		AnalysesCompleted,
	)
}
