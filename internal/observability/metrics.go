package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facelog",
		Name:      "batches_total",
		Help:      "Camera log batches by outcome",
	}, []string{"outcome"})

	IdentitiesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facelog",
		Name:      "identities_created_total",
		Help:      "Total number of identities created by ingestion",
	})

	DetectionsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facelog",
		Name:      "detections_logged_total",
		Help:      "Total number of detection log entries written",
	}, []string{"camera_id"})

	MatchDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facelog",
		Name:      "match_distance",
		Help:      "Best Euclidean distance found per detection",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 15),
	})

	RegistrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facelog",
		Name:      "registry_size",
		Help:      "Number of identities held in the in-memory registry",
	})

	QueuedBatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facelog",
		Name:      "queued_batches",
		Help:      "Number of pending batches in the detections stream",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facelog",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "facelog",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	}, []string{"channel"})

	LiveDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facelog",
		Name:      "live_dropped_total",
		Help:      "Subscribers dropped because their send buffer was full",
	})
)

// Batch outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)
