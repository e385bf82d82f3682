// Package metrics exposes prometheus instruments for filesystem operations,
// identifier caches and remote backend calls.
//
// A nil *Metrics is valid and records nothing, so callers never need to check
// whether metrics are enabled.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/brettbedarf/remotefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "remotefs"

// Metrics holds every instrument of a single mount.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	remoteCalls       *prometheus.CounterVec
	remoteDuration    *prometheus.HistogramVec
	bytesRead         prometheus.Counter
	openHandles       prometheus.Gauge
}

// New registers the instruments on reg. A nil reg returns nil, which disables metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	return &Metrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of filesystem callbacks by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of filesystem callbacks in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
					30.0,   // 30s
				},
			},
			[]string{"operation"},
		),
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Identifier cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		remoteCalls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_calls_total",
				Help:      "Remote backend calls by call and status",
			},
			[]string{"call", "status"},
		),
		remoteDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_call_duration_seconds",
				Help:      "Duration of remote backend calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"call"},
		),
		bytesRead: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_read_total",
				Help:      "Bytes returned to the filesystem by read callbacks",
			},
		),
		openHandles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_handles",
				Help:      "Currently open file handles",
			},
		),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveOperation records one filesystem callback.
func (m *Metrics) ObserveOperation(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, Status(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRemote records one backend call.
func (m *Metrics) ObserveRemote(call string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(call, Status(err)).Inc()
	m.remoteDuration.WithLabelValues(call).Observe(d.Seconds())
}

// CacheHit records a live entry found in the named cache.
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records an absent or expired entry in the named cache.
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(cache, "miss").Inc()
}

// AddBytesRead counts bytes handed back to the filesystem.
func (m *Metrics) AddBytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.Add(float64(n))
}

// HandleOpened and HandleClosed track the open handle count.
func (m *Metrics) HandleOpened() {
	if m == nil {
		return
	}
	m.openHandles.Inc()
}

func (m *Metrics) HandleClosed() {
	if m == nil {
		return
	}
	m.openHandles.Dec()
}

// Status classifies err into a low-cardinality label value.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, remotefs.ErrNotFound):
		return "not_found"
	case errors.Is(err, remotefs.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, remotefs.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, remotefs.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, remotefs.ErrTransport):
		return "transport"
	default:
		return "error"
	}
}
