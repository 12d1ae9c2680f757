// Package metrics provides Prometheus metrics for the calls the panel makes
// to OBS.
package metrics

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// RemoteMetrics counts and times every OBS request. It implements
// obs.Observer.
type RemoteMetrics struct {
	registry *prometheus.Registry

	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// NewRemoteMetrics creates the collectors and registers them on registry.
func NewRemoteMetrics(registry *prometheus.Registry) (*RemoteMetrics, error) {
	m := &RemoteMetrics{
		registry: registry,
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "obs_panel_remote_calls_total",
				Help: "Total number of requests sent to OBS",
			},
			[]string{"call", "status"}, // call: StartStream, GetSceneList, ...; status: success, error
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "obs_panel_remote_call_duration_seconds",
				Help:    "Time taken for requests sent to OBS",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"call"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *RemoteMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.callsTotal.Describe(ch)
	m.callDuration.Describe(ch)
}

// Collect implements the Collector interface
func (m *RemoteMetrics) Collect(ch chan<- prometheus.Metric) {
	m.callsTotal.Collect(ch)
	m.callDuration.Collect(ch)
}

// ObserveCall records one request. Calls that never reached OBS are
// counted but not timed.
func (m *RemoteMetrics) ObserveCall(call string, took time.Duration, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	m.callsTotal.WithLabelValues(call, status).Inc()
	if took > 0 {
		m.callDuration.WithLabelValues(call).Observe(took.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *RemoteMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
