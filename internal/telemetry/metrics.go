// Package telemetry provides Prometheus metrics for the barkwatch pipeline
// and an optional HTTP endpoint serving them.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all Prometheus metrics for the detection pipeline.
type Metrics struct {
	CaptureOverruns  prometheus.Counter
	DeviceRestarts   prometheus.Counter
	WindowsScored    *prometheus.CounterVec
	EventsEmitted    prometheus.Counter
	ClipsWritten     prometheus.Counter
	ClipWriteErrors  prometheus.Counter
	PublishDelivered *prometheus.CounterVec
	PublishRetries   prometheus.Counter
	PublishDropped   prometheus.Counter
	QueueDepth       prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the pipeline metrics on a dedicated registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.CaptureOverruns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barkwatch_capture_overruns_total",
		Help: "Total number of analysis buffer overruns where oldest audio was dropped",
	})
	m.DeviceRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barkwatch_device_restarts_total",
		Help: "Total number of audio capture device reopen attempts",
	})
	m.WindowsScored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barkwatch_windows_scored_total",
		Help: "Total number of audio windows scored, by detector source",
	}, []string{"source"})
	m.EventsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barkwatch_events_emitted_total",
		Help: "Total number of bark events emitted by the smoother",
	})
	m.ClipsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barkwatch_clips_written_total",
		Help: "Total number of capture clips written to disk",
	})
	m.ClipWriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barkwatch_clip_write_errors_total",
		Help: "Total number of capture clip write failures",
	})
	m.PublishDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barkwatch_publish_delivered_total",
		Help: "Total number of events delivered, by sink",
	}, []string{"sink"})
	m.PublishRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barkwatch_publish_retries_total",
		Help: "Total number of sink delivery retries",
	})
	m.PublishDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "barkwatch_publish_dropped_total",
		Help: "Total number of events dropped from a full publish queue",
	})
	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "barkwatch_publish_queue_depth",
		Help: "Number of events waiting in the publish queue",
	})

	collectors := []prometheus.Collector{
		m.CaptureOverruns, m.DeviceRestarts, m.WindowsScored, m.EventsEmitted,
		m.ClipsWritten, m.ClipWriteErrors, m.PublishDelivered, m.PublishRetries,
		m.PublishDropped, m.QueueDepth,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
		}
	}

	return m, nil
}

// Registry returns the registry holding the pipeline metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
