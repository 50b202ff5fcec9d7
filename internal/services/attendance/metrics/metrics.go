// Package metrics exposes Prometheus counters for attendance sessions and scans.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rollcall_attendance"

// Recorder owns a private registry so tests and multiple servers never collide.
type Recorder struct {
	registry *prometheus.Registry

	scans            *prometheus.CounterVec
	scanDistance     prometheus.Histogram
	sessionsOpened   prometheus.Counter
	sessionsClosed   prometheus.Counter
	sessionConflicts prometheus.Counter
	countdownStreams prometheus.Gauge
}

// New registers the attendance collectors plus the Go runtime collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scan attempts by verification outcome.",
		}, []string{"outcome"}),
		scanDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_distance_meters",
			Help:      "Distance between scanner and session anchor for scans that reached the proximity check.",
			Buckets:   []float64{5, 10, 25, 50, 75, 100, 150, 250, 500, 1000},
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Sessions that became active.",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Sessions closed by an instructor before their deadline.",
		}),
		sessionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_conflicts_total",
			Help:      "Session opens rejected because another session was active.",
		}),
		countdownStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "countdown_streams",
			Help:      "Open countdown websocket streams.",
		}),
	}
	r.registry.MustRegister(
		r.scans,
		r.scanDistance,
		r.sessionsOpened,
		r.sessionsClosed,
		r.sessionConflicts,
		r.countdownStreams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveScan counts one scan outcome. distance is recorded when known.
func (r *Recorder) ObserveScan(outcome string, distance *float64) {
	if r == nil {
		return
	}
	r.scans.WithLabelValues(outcome).Inc()
	if distance != nil {
		r.scanDistance.Observe(*distance)
	}
}

// SessionOpened counts an activated session.
func (r *Recorder) SessionOpened() {
	if r == nil {
		return
	}
	r.sessionsOpened.Inc()
}

// SessionClosed counts an instructor close.
func (r *Recorder) SessionClosed() {
	if r == nil {
		return
	}
	r.sessionsClosed.Inc()
}

// SessionConflict counts a rejected open.
func (r *Recorder) SessionConflict() {
	if r == nil {
		return
	}
	r.sessionConflicts.Inc()
}

// StreamStarted tracks an open countdown stream; call the returned func when it ends.
func (r *Recorder) StreamStarted() func() {
	if r == nil {
		return func() {}
	}
	r.countdownStreams.Inc()
	return r.countdownStreams.Dec
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
