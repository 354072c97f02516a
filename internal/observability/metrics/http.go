package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

const namespace = "docchat"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	ragRetrievalHitTotal   *prometheus.CounterVec
	ragNoContextTotal      *prometheus.CounterVec
	ragRetrievalFailed     *prometheus.CounterVec
	ragRetrievedChunks     *prometheus.HistogramVec
	webSearchTotal         *prometheus.CounterVec
	webScrapeTotal         *prometheus.CounterVec
	completionTotal        *prometheus.CounterVec
	completionDuration     *prometheus.HistogramVec
	llmStreamedTokensTotal *prometheus.CounterVec
	upstreamCircuitOpen    *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by traffic control, by reason.",
		},
		[]string{"service", "reason"},
	)
	ragRetrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieval_hit_total",
			Help:      "Total chat turns with at least one retrieved passage.",
		},
		[]string{"service", "mode"},
	)
	ragNoContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "no_context_total",
			Help:      "Total chat turns without retrieved passages.",
		},
		[]string{"service", "mode"},
	)
	ragRetrievalFailed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieval_unavailable_total",
			Help:      "Total chat turns answered without context because retrieval failed.",
		},
		[]string{"service", "mode"},
	)
	ragRetrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved passages per chat turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		},
		[]string{"service", "mode"},
	)
	webSearchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "search_total",
			Help:      "Web searches by outcome.",
		},
		[]string{"service", "outcome"},
	)
	webScrapeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "scrape_total",
			Help:      "Scraped pages by outcome.",
		},
		[]string{"service", "outcome"},
	)
	completionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "completions_total",
			Help:      "Streaming completions by mode and terminal state.",
		},
		[]string{"service", "mode", "model", "state"},
	)
	completionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "completion_duration_seconds",
			Help:      "Streaming completion duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"service", "mode"},
	)
	llmStreamedTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "streamed_tokens_total",
			Help:      "Tokens streamed from the completion backend.",
		},
		[]string{"service", "mode", "model"},
	)

	upstreamCircuitOpen := newCircuitGauge()

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		ragRetrievalHitTotal,
		ragNoContextTotal,
		ragRetrievalFailed,
		ragRetrievedChunks,
		webSearchTotal,
		webScrapeTotal,
		completionTotal,
		completionDuration,
		llmStreamedTokensTotal,
		upstreamCircuitOpen,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		rejectedTotal:          rejectedTotal,
		ragRetrievalHitTotal:   ragRetrievalHitTotal,
		ragNoContextTotal:      ragNoContextTotal,
		ragRetrievalFailed:     ragRetrievalFailed,
		ragRetrievedChunks:     ragRetrievedChunks,
		webSearchTotal:         webSearchTotal,
		webScrapeTotal:         webScrapeTotal,
		completionTotal:        completionTotal,
		completionDuration:     completionDuration,
		llmStreamedTokensTotal: llmStreamedTokensTotal,
		upstreamCircuitOpen:    upstreamCircuitOpen,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/threads/"):
		return "/v1/threads/{thread_id}/messages"
	case strings.HasPrefix(path, "/v1/chat/"):
		if domain.ChatMode(strings.TrimPrefix(path, "/v1/chat/")).Valid() {
			return path
		}
		return "/v1/chat/{mode}"
	case strings.HasPrefix(path, "/mcp"):
		return "/mcp"
	default:
		return path
	}
}

// RecordRejected counts requests refused by rate limiting or backpressure.
func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	m.rejectedTotal.WithLabelValues(service, reason).Inc()
}

// ObserveCircuit records breaker transitions of upstream operations.
func (m *HTTPServerMetrics) ObserveCircuit(service, operation string, open bool) {
	setCircuit(m.upstreamCircuitOpen, service, operation, open)
}

// Pipeline returns an observer that records chat turn outcomes for service.
func (m *HTTPServerMetrics) Pipeline(service string) *PipelineMetrics {
	return &PipelineMetrics{metrics: m, service: service}
}

type PipelineMetrics struct {
	metrics *HTTPServerMetrics
	service string
}

func (p *PipelineMetrics) ObserveRetrieval(mode domain.ChatMode, hits int, unavailable bool) {
	m := p.metrics
	if unavailable {
		m.ragRetrievalFailed.WithLabelValues(p.service, string(mode)).Inc()
	}
	m.ragRetrievedChunks.WithLabelValues(p.service, string(mode)).Observe(float64(hits))
	if hits > 0 {
		m.ragRetrievalHitTotal.WithLabelValues(p.service, string(mode)).Inc()
		return
	}
	m.ragNoContextTotal.WithLabelValues(p.service, string(mode)).Inc()
}

func (p *PipelineMetrics) ObserveWebSearch(results int, degraded bool) {
	outcome := "ok"
	switch {
	case degraded:
		outcome = "degraded"
	case results == 0:
		outcome = "empty"
	}
	p.metrics.webSearchTotal.WithLabelValues(p.service, outcome).Inc()
}

func (p *PipelineMetrics) ObserveScrapes(results []domain.ScrapeResult) {
	for _, result := range results {
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		p.metrics.webScrapeTotal.WithLabelValues(p.service, outcome).Inc()
	}
}

func (p *PipelineMetrics) ObserveCompletion(mode domain.ChatMode, model string, state domain.CompletionState, tokens int, duration time.Duration) {
	if model == "" {
		model = "unknown"
	}
	m := p.metrics
	m.completionTotal.WithLabelValues(p.service, string(mode), model, string(state)).Inc()
	m.completionDuration.WithLabelValues(p.service, string(mode)).Observe(duration.Seconds())
	if tokens > 0 {
		m.llmStreamedTokensTotal.WithLabelValues(p.service, string(mode), model).Add(float64(tokens))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
