package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SamplesIngested counts persisted telemetry samples by outcome.
	SamplesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telemetry_samples_ingested_total", Help: "Telemetry samples by ingest outcome."},
		[]string{"outcome"},
	)
	// CommandsPublished counts command dispatch outcomes.
	CommandsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "commands_published_total", Help: "Command queue publishes by outcome."},
		[]string{"outcome"},
	)
	// CommandAcks counts worker acknowledgement outcomes applied.
	CommandAcks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "command_acks_total", Help: "Worker command acknowledgements by status."},
		[]string{"status"},
	)
	// GeofenceChecks counts on-demand membership evaluations.
	GeofenceChecks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "geofence_checks_total", Help: "Geofence membership evaluations."},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SamplesIngested)
		Registry.MustRegister(CommandsPublished)
		Registry.MustRegister(CommandAcks)
		Registry.MustRegister(GeofenceChecks)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
