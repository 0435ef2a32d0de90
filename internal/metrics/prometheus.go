package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the relay
type Metrics struct {
	// Upload metrics
	UploadBytes   prometheus.Histogram
	AudioDuration prometheus.Histogram
	StagedFiles   prometheus.Gauge

	// Transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_upload_bytes",
			Help:    "Size of accepted audio uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 7), // 16KB .. 64MB
		}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_audio_duration_seconds",
			Help:    "Probed playback length of accepted uploads",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		StagedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stt_staged_files",
			Help: "Transient upload files currently on disk",
		}),

		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_requests_total",
			Help: "Total number of transcription requests sent to the provider",
		}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_transcription_failures_total",
			Help: "Failed speech to text requests by error kind",
		}, []string{"kind"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_transcription_duration_seconds",
			Help:    "Time spent waiting on the provider",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration float64) {
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

// RecordUpload records an accepted upload, durationSeconds <= 0 means unknown
func (m *Metrics) RecordUpload(sizeBytes int64, durationSeconds float64) {
	m.UploadBytes.Observe(float64(sizeBytes))
	if durationSeconds > 0 {
		m.AudioDuration.Observe(durationSeconds)
	}
}

// RecordTranscription records one provider round trip
func (m *Metrics) RecordTranscription(duration float64) {
	m.TranscriptionRequests.Inc()
	m.TranscriptionDuration.Observe(duration)
}

// RecordFailure records a failed request by error kind
func (m *Metrics) RecordFailure(kind string) {
	m.TranscriptionFailures.WithLabelValues(kind).Inc()
}
