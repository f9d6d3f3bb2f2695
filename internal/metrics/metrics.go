package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vhf_balise"

// Runner counters (incremented directly by the scheduling loop).
var (
	TicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Total scheduler ticks executed.",
	})

	ProviderFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_fetches_total",
		Help:      "Bulk measurement fetches per provider and outcome.",
	}, []string{"provider", "outcome"})

	ProviderFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_fetch_duration_seconds",
		Help:      "Bulk measurement fetch duration per provider.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	TransmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transmissions_total",
		Help:      "Announcement executions per terminal status.",
	}, []string{"status"})

	TransmitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transmit_duration_seconds",
		Help:      "Wall time of one PTT key-up cycle.",
		Buckets:   prometheus.LinearBuckets(1, 2, 15), // 1s → 29s under the 30s watchdog
	})

	PTTActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ptt_active",
		Help:      "1 while the PTT line is keyed.",
	})
)

// TTS counters (incremented by the audio cache).
var (
	Syntheses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tts_syntheses_total",
		Help:      "TTS synthesis runs per outcome.",
	}, []string{"outcome"})

	SynthesisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tts_synthesis_duration_seconds",
		Help:      "TTS synthesis duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_cache_hits_total",
		Help:      "Audio cache lookups served from disk.",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_cache_misses_total",
		Help:      "Audio cache lookups that triggered synthesis.",
	})
)

// HTTP metrics (incremented by middleware on the admin API).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		ProviderFetchesTotal,
		ProviderFetchDuration,
		TransmissionsTotal,
		TransmitDuration,
		PTTActive,
		Syntheses,
		SynthesisDuration,
		CacheHits,
		CacheMisses,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
