package telemetry

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slouchless_ticks_total",
			Help: "Monitor loop ticks by outcome",
		},
		[]string{"outcome"},
	)

	inferenceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slouchless_inference_duration_seconds",
			Help:    "Duration of detector calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"backend"},
	)

	inferenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slouchless_inference_errors_total",
			Help: "Detector failures by backend and kind",
		},
		[]string{"backend", "kind"},
	)

	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slouchless_verdicts_total",
			Help: "Classified detector verdicts by status",
		},
		[]string{"status"},
	)

	inferenceInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slouchless_inference_in_flight",
			Help: "Detector calls currently in flight (never above 1)",
		},
	)

	captureErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "slouchless_capture_errors_total",
			Help: "Frame capture failures",
		},
	)

	popupSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slouchless_popup_sessions_total",
			Help: "Popup open attempts by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slouchless_notifications_total",
			Help: "Notification dispatches by provider and result",
		},
		[]string{"provider", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		ticksTotal,
		inferenceLatency,
		inferenceErrors,
		verdictsTotal,
		inferenceInFlight,
		captureErrors,
		popupSessions,
		notificationsTotal,
	)
}

// TrackTick counts one monitor tick with the given outcome.
func TrackTick(outcome string) {
	ticksTotal.WithLabelValues(outcome).Inc()
}

// ObserveInferenceLatency records the duration of a detector call.
func ObserveInferenceLatency(backend string, d time.Duration) {
	inferenceLatency.WithLabelValues(backend).Observe(d.Seconds())
}

// TrackInferenceError counts a detector failure.
func TrackInferenceError(backend, kind string) {
	inferenceErrors.WithLabelValues(backend, kind).Inc()
}

// TrackVerdict counts a classified result.
func TrackVerdict(status string) {
	verdictsTotal.WithLabelValues(status).Inc()
}

// SetInferenceInFlight publishes the current in-flight count.
func SetInferenceInFlight(n int) {
	inferenceInFlight.Set(float64(n))
}

// TrackCaptureError counts a failed frame capture.
func TrackCaptureError() {
	captureErrors.Inc()
}

// TrackPopupSession counts a popup open attempt.
func TrackPopupSession(backend, outcome string) {
	popupSessions.WithLabelValues(backend, outcome).Inc()
}

// TrackNotification counts a notification dispatch.
func TrackNotification(provider string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	notificationsTotal.WithLabelValues(provider, result).Inc()
}

var (
	metricsMu      sync.Mutex
	metricsRunning bool
)

// StartMetricsServer starts a HTTP server exposing Prometheus metrics.
// A second call while the server is running is a no-op.
func StartMetricsServer(addr string) error {
	metricsMu.Lock()
	if metricsRunning {
		metricsMu.Unlock()
		return nil
	}
	metricsRunning = true
	metricsMu.Unlock()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	LogInfo("Starting metrics server", "addr", addr)
	err := http.ListenAndServe(addr, mux)

	metricsMu.Lock()
	metricsRunning = false
	metricsMu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
