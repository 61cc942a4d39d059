// Package observability exposes Prometheus metrics for upload attempts.
package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docqa/internal/core"
)

const namespace = "docqa"

// PrometheusHooks implements core.UploadHooks by recording upload metrics.
type PrometheusHooks struct {
	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	uploadBytes    prometheus.Histogram
}

var (
	defaultHooks     *PrometheusHooks
	defaultHooksOnce sync.Once
)

// NewPrometheusHooks returns the hooks registered with the default registerer.
// Registration happens once per process.
func NewPrometheusHooks() *PrometheusHooks {
	defaultHooksOnce.Do(func() {
		defaultHooks = NewPrometheusHooksWith(prometheus.DefaultRegisterer)
	})
	return defaultHooks
}

// NewPrometheusHooksWith registers the upload metrics with reg.
func NewPrometheusHooksWith(reg prometheus.Registerer) *PrometheusHooks {
	factory := promauto.With(reg)

	return &PrometheusHooks{
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of document upload attempts",
		}, []string{"outcome", "error_type"}),

		uploadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Upload attempt duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uploads_in_flight",
			Help:      "Number of uploads currently in flight",
		}),

		uploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of uploaded documents in bytes",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
		}),
	}
}

// OnUploadStart implements core.UploadHooks.
func (h *PrometheusHooks) OnUploadStart(_ context.Context, file *core.SelectedFile) {
	h.inFlight.Inc()
	if file != nil {
		h.uploadBytes.Observe(float64(file.Size()))
	}
}

// OnUploadDone implements core.UploadHooks.
func (h *PrometheusHooks) OnUploadDone(_ context.Context, _ *core.SelectedFile, outcome core.Outcome, elapsed time.Duration) {
	h.inFlight.Dec()

	label, errType := "success", ""
	if !outcome.OK() {
		label, errType = "failure", errorType(outcome.Err)
	}
	h.uploadsTotal.WithLabelValues(label, errType).Inc()
	h.uploadDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func errorType(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var uploadErr *core.UploadError
	if errors.As(err, &uploadErr) {
		return string(uploadErr.Type)
	}
	return "unknown"
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
