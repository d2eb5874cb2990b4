package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder aggregates Prometheus counters and gauges for HTTP requests,
// stream lifecycle transitions, signature verification outcomes, and archive
// report outcomes. A single Recorder owns its registry so tests can run with
// isolated instances.
type Recorder struct {
	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	lifecycleEvents   *prometheus.CounterVec
	unknownChannels   *prometheus.CounterVec
	verifications     *prometheus.CounterVec
	archiveReports    *prometheus.CounterVec
	liveChannelsGauge prometheus.Gauge
}

var defaultRecorder = New()

// New constructs a Recorder with a fresh registry and all collectors
// registered.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_http_requests_total",
		Help: "Total HTTP requests by method, normalized path, and status code",
	}, []string{"method", "path", "status"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_http_request_duration_seconds",
		Help:    "HTTP request latency by method and normalized path",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
	lifecycleEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_stream_lifecycle_events_total",
		Help: "Stream lifecycle transitions processed, by event",
	}, []string{"event"})
	unknownChannels := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_unknown_channel_total",
		Help: "Operations that targeted a channel with no status record, by operation",
	}, []string{"operation"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_signature_verifications_total",
		Help: "Signature verification results, by outcome",
	}, []string{"outcome"})
	archiveReports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_archive_reports_total",
		Help: "Archive report submissions, by outcome",
	}, []string{"outcome"})
	liveChannelsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "media_live_channels",
		Help: "Number of channels currently registered as live",
	})

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		lifecycleEvents,
		unknownChannels,
		verifications,
		archiveReports,
		liveChannelsGauge,
	)

	return &Recorder{
		registry:          registry,
		requestsTotal:     requestsTotal,
		requestDuration:   requestDuration,
		lifecycleEvents:   lifecycleEvents,
		unknownChannels:   unknownChannels,
		verifications:     verifications,
		archiveReports:    archiveReports,
		liveChannelsGauge: liveChannelsGauge,
	}
}

// Default returns the singleton Recorder shared by packages that do not
// require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest records count and latency for a completed HTTP request.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	normalized := normalizePath(path)
	r.requestsTotal.WithLabelValues(strings.ToUpper(method), normalized, statusText(status)).Inc()
	r.requestDuration.WithLabelValues(strings.ToUpper(method), normalized).Observe(duration.Seconds())
}

// LifecycleEvent records a processed lifecycle transition such as "live",
// "offline", "transcode_start", or "transcode_stop".
func (r *Recorder) LifecycleEvent(event string) {
	r.lifecycleEvents.WithLabelValues(normalizeName(event)).Inc()
}

// UnknownChannel records an operation that missed the status store.
func (r *Recorder) UnknownChannel(operation string) {
	r.unknownChannels.WithLabelValues(normalizeName(operation)).Inc()
}

// VerificationResult records a signature verification outcome such as
// "valid", "invalid", "transport_error", "empty_response",
// "malformed_response", or "remote_error".
func (r *Recorder) VerificationResult(outcome string) {
	r.verifications.WithLabelValues(normalizeName(outcome)).Inc()
}

// ArchiveReport records the outcome of an archive submission.
func (r *Recorder) ArchiveReport(ok bool) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	r.archiveReports.WithLabelValues(outcome).Inc()
}

// SetLiveChannels sets the live channel gauge to the provided count.
func (r *Recorder) SetLiveChannels(n int) {
	r.liveChannelsGauge.Set(float64(n))
}

// Handler returns an http.Handler that serves the Recorder's registry.
// updateGauges runs before each scrape so gauge values derived from other
// components (e.g. the live registry) stay current.
func (r *Recorder) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, req)
	})
}

func statusText(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	const digits = "0123456789"
	return string([]byte{digits[status/100], digits[status/10%10], digits[status%10]})
}

// normalizePath collapses per-channel path segments so label cardinality stays
// bounded.
func normalizePath(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	segments := strings.Split(trimmed, "/")
	if len(segments) >= 3 && segments[0] == "api" && segments[1] == "streams" {
		switch segments[2] {
		case "live", "transcode":
		default:
			segments[2] = ":channel"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return strings.ReplaceAll(normalized, " ", "_")
}
