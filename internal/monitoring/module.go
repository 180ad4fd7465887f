// Package monitoring exposes health probes and the Prometheus endpoint.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options control monitoring module configuration.
type Options struct {
	// CheckTimeout bounds every health probe.
	CheckTimeout time.Duration
	// Gatherer serves /metrics. Defaults to the process-wide Prometheus registry
	// that pkg/metrics registers into.
	Gatherer prometheus.Gatherer
}

// Module bundles the health manager, the job tracker and the metrics handler.
type Module struct {
	gatherer prometheus.Gatherer
	health   *HealthManager
	jobs     *JobTracker
	started  time.Time
}

// NewModule constructs a monitoring module.
func NewModule(opts Options) *Module {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Module{
		gatherer: gatherer,
		health:   NewHealthManager(opts.CheckTimeout),
		jobs:     NewJobTracker(),
		started:  time.Now(),
	}
}

// Handler returns an http.Handler serving Prometheus metrics.
func (m *Module) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Health exposes the health manager responsible for liveness and readiness probes.
func (m *Module) Health() *HealthManager {
	return m.health
}

// Jobs exposes the background job tracker.
func (m *Module) Jobs() *JobTracker {
	return m.jobs
}

// Uptime is the time since the module was created.
func (m *Module) Uptime() time.Duration {
	return time.Since(m.started)
}
