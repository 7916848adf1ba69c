// Package telemetry provides the session and manager packages' ambient
// metrics surface: a small set of counters and gauges describing group
// and frame throughput, active subscriptions, and reconnection
// attempts, exposed on an operator-supplied prometheus.Registerer. It
// never binds its own HTTP listener; wiring /metrics to a server is the
// caller's responsibility.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config controls whether metrics collection is active.
type Config struct {
	// Service names this process in any label applied process-wide.
	Service string
	// Metrics enables metric recording. When false, Setup still
	// succeeds but Recorder methods are no-ops.
	Metrics bool
	// Registerer receives the collectors. Defaults to
	// prometheus.DefaultRegisterer when nil.
	Registerer prometheus.Registerer
}

type metrics struct {
	groupsTotal        *prometheus.CounterVec
	framesTotal        *prometheus.CounterVec
	groupLatency       *prometheus.HistogramVec
	subscribersActive  *prometheus.GaugeVec
	reconnectsTotal    prometheus.Counter
	catalogErrorsTotal prometheus.Counter
}

var (
	mu      sync.Mutex
	enabled bool
	m       *metrics
)

// Setup installs the metric collectors on cfg.Registerer (or the global
// default registerer). It is idempotent: calling it again after
// Shutdown re-installs fresh collectors.
func Setup(_ context.Context, cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if !cfg.Metrics {
		enabled = false
		m = nil
		return nil
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	nm := &metrics{
		groupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moqclient",
			Name:      "groups_total",
			Help:      "Groups received per track.",
		}, []string{"track"}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moqclient",
			Name:      "frames_total",
			Help:      "Frames received per track.",
		}, []string{"track"}),
		groupLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "moqclient",
			Name:      "group_latency_seconds",
			Help:      "Time spent reading one group to completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"track"}),
		subscribersActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "moqclient",
			Name:      "subscribers_active",
			Help:      "Active subscription workers per track.",
		}, []string{"track"}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moqclient",
			Name:      "reconnects_total",
			Help:      "Manager-driven reconnection attempts.",
		}),
		catalogErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moqclient",
			Name:      "catalog_parse_errors_total",
			Help:      "Malformed catalog updates rejected by the processor.",
		}),
	}

	for _, c := range []prometheus.Collector{
		nm.groupsTotal, nm.framesTotal, nm.groupLatency,
		nm.subscribersActive, nm.reconnectsTotal, nm.catalogErrorsTotal,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m = nm
	enabled = true
	return nil
}

// Shutdown disables metric recording. Previously registered collectors
// are left on the registerer; Setup re-registration tolerates that.
func Shutdown(_ context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	enabled = false
	m = nil
	return nil
}

// MetricsEnabled reports whether Setup was last called with Metrics true.
func MetricsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

func current() *metrics {
	mu.Lock()
	defer mu.Unlock()
	return m
}

// Recorder records metrics for one track. The zero value is not usable;
// construct with NewRecorder.
type Recorder struct {
	track string
}

// NewRecorder returns a Recorder for track. Safe to call whether or not
// Setup has enabled metrics.
func NewRecorder(track string) *Recorder {
	return &Recorder{track: track}
}

// GroupReceived increments the groups-received counter for this track.
func (r *Recorder) GroupReceived() {
	if cm := current(); cm != nil {
		cm.groupsTotal.WithLabelValues(r.track).Inc()
	}
}

// FramesReceived adds n to the frames-received counter for this track.
func (r *Recorder) FramesReceived(n int) {
	if cm := current(); cm != nil {
		cm.framesTotal.WithLabelValues(r.track).Add(float64(n))
	}
}

// GroupLatency observes how long a group took to read to completion.
func (r *Recorder) GroupLatency(d time.Duration) {
	if cm := current(); cm != nil {
		cm.groupLatency.WithLabelValues(r.track).Observe(d.Seconds())
	}
}

// IncSubscribers increments the active-subscriber gauge for this track.
func (r *Recorder) IncSubscribers() {
	if cm := current(); cm != nil {
		cm.subscribersActive.WithLabelValues(r.track).Inc()
	}
}

// DecSubscribers decrements the active-subscriber gauge for this track.
func (r *Recorder) DecSubscribers() {
	if cm := current(); cm != nil {
		cm.subscribersActive.WithLabelValues(r.track).Dec()
	}
}

// ReconnectAttempted increments the process-wide reconnect counter. It
// has no per-track label: reconnection happens at the session level.
func ReconnectAttempted() {
	if cm := current(); cm != nil {
		cm.reconnectsTotal.Inc()
	}
}

// CatalogParseError increments the process-wide malformed-catalog counter.
func CatalogParseError() {
	if cm := current(); cm != nil {
		cm.catalogErrorsTotal.Inc()
	}
}
