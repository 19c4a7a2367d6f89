package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "havenito_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "havenito_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Messaging metrics
	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "havenito_messages_persisted_total",
			Help: "Total messages persisted",
		},
		[]string{"path"}, // "ws" or "http"
	)

	DuplicatesSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "havenito_duplicates_suppressed_total",
			Help: "Total resubmissions collapsed into an existing message",
		},
	)

	TypingEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "havenito_typing_events_total",
			Help: "Total typing indicator events relayed",
		},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "havenito_notifications_dispatched_total",
			Help: "Total notification events dispatched",
		},
		[]string{"kind"},
	)

	// Fan-out metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "havenito_active_sessions",
			Help: "Currently connected push sessions",
		},
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "havenito_dropped_frames_total",
			Help: "Frames dropped because a session buffer was full",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "havenito_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
