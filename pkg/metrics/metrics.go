package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in attempts by result (success|failure|denied).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiofolio_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiofolio_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studiofolio_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// GalleryOperations counts gallery mutations by collection, operation and result.
	GalleryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiofolio_gallery_operations_total",
			Help: "Gallery mutations by collection, operation and result",
		},
		[]string{"collection", "operation", "result"},
	)

	// GalleryItems reports the item count of each collection after every published snapshot.
	GalleryItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "studiofolio_gallery_items",
			Help: "Number of items in each gallery collection",
		},
		[]string{"collection"},
	)

	// TranscodeDuration measures image transcoding by outcome (reused|encoded|failed).
	TranscodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studiofolio_transcode_duration_seconds",
			Help:    "Time spent transcoding uploaded images",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	// Uploads counts binary uploads by purpose (gallery|avatar) and result.
	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiofolio_uploads_total",
			Help: "Binary uploads by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	// UploadBytes sums the bytes written to object storage.
	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiofolio_upload_bytes_total",
			Help: "Bytes written to object storage",
		},
		[]string{"purpose"},
	)

	// StorageOperations counts object storage calls by driver, operation and result.
	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiofolio_storage_operations_total",
			Help: "Object storage calls by driver, operation and result",
		},
		[]string{"driver", "operation", "result"},
	)

	// StorageBreakerState exposes the storage circuit breaker (0 closed, 1 half-open, 2 open).
	StorageBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiofolio_storage_breaker_state",
			Help: "Object storage circuit breaker state",
		},
	)

	// TestimonialSubmissions counts submissions by result (accepted|invalid|expired|used|error).
	TestimonialSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiofolio_testimonial_submissions_total",
			Help: "Testimonial submissions by result",
		},
		[]string{"result"},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studiofolio_realtime_connections",
			Help: "Number of open realtime websocket connections",
		},
	)

	// RealtimeBroadcasts counts messages fanned out per stream.
	RealtimeBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiofolio_realtime_broadcasts_total",
			Help: "Realtime messages broadcast per stream",
		},
		[]string{"stream"},
	)

	// MaintenanceRuns counts cleanup job runs by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiofolio_maintenance_runs_total",
			Help: "Maintenance job runs by job and result",
		},
		[]string{"job", "result"},
	)

	// MaintenanceRemoved counts rows and objects removed by maintenance jobs.
	MaintenanceRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studiofolio_maintenance_removed_total",
			Help: "Records and objects removed by maintenance jobs",
		},
		[]string{"job"},
	)
)

// Result maps an error to the result label used across counters.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
