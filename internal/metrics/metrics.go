package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mila_http_requests_total",
			Help: "Total number of admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mila_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mila_completion_requests_total",
			Help: "Completion attempts by model and outcome.",
		},
		[]string{"model", "outcome"},
	)

	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mila_completion_duration_seconds",
			Help:    "Completion attempt latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model"},
	)

	CompletionInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mila_completion_in_flight",
			Help: "Completion requests currently holding a concurrency slot.",
		},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mila_turns_total",
			Help: "Chat turns by result.",
		},
		[]string{"result"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mila_active_sessions",
			Help: "Number of per-user session slots held in memory.",
		},
	)

	RemindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mila_reminders_total",
			Help: "Inactivity reminders by delivery status.",
		},
		[]string{"status"},
	)

	TelegramUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mila_telegram_updates_total",
			Help: "Telegram updates received by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CompletionRequestsTotal,
		CompletionDuration,
		CompletionInFlight,
		TurnsTotal,
		ActiveSessions,
		RemindersTotal,
		TelegramUpdatesTotal,
	)
}
