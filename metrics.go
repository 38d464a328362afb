package transcoder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by transcode runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	SamplesWritten *prometheus.CounterVec
	FramesDropped  prometheus.Counter
	FrameWait      prometheus.Histogram
	ActiveRuns     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transcoder_runs_total",
				Help: "Total number of transcode runs by result",
			},
			[]string{"result"}, // "transcoded", "not-needed", "canceled", "failed"
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "transcoder_run_duration_seconds",
				Help:    "Transcode run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		SamplesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transcoder_samples_written_total",
				Help: "Total number of samples written to sinks",
			},
			[]string{"track"},
		),
		FramesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "transcoder_frames_dropped_total",
				Help: "Total number of video frames dropped to honor the output frame rate",
			},
		),
		FrameWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "transcoder_frame_wait_seconds",
				Help:    "Time the compositor waited for a decoded frame",
				Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "transcoder_active_runs",
				Help: "Number of transcode runs in progress",
			},
		),
	}
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

func (m *Metrics) runFinished(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) sampleWritten(track TrackType) {
	if m == nil {
		return
	}
	m.SamplesWritten.WithLabelValues(track.String()).Inc()
}

func (m *Metrics) frameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

func (m *Metrics) observeFrameWait(d time.Duration) {
	if m == nil {
		return
	}
	m.FrameWait.Observe(d.Seconds())
}
