package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const workerSubsystem = "worker"

// WorkerMetrics tracks the ingestion worker. Its counters are keyed by the
// service label so one registry can serve several worker processes in tests.
type WorkerMetrics struct {
	registry *prometheus.Registry

	outcomes      *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	queueLag      *prometheus.HistogramVec
	chunksIndexed *prometheus.CounterVec
	circuitOpen   *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	m := &WorkerMetrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: workerSubsystem,
			Name:      "document_process_total",
			Help:      "Documents processed by the worker, by outcome.",
		}, []string{"service", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: workerSubsystem,
			Name:      "document_process_duration_seconds",
			Help:      "Wall time from extraction to indexing, by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"service", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   workerSubsystem,
			Name:        "document_process_in_flight",
			Help:        "Documents currently being processed.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		queueLag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: workerSubsystem,
			Name:      "queue_lag_seconds",
			Help:      "Time a document waited between upload and pickup.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"service"}),
		chunksIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: workerSubsystem,
			Name:      "chunks_indexed_total",
			Help:      "Passages written to the vector index.",
		}, []string{"service"}),
		circuitOpen: newCircuitGauge(),
	}
	m.registry.MustRegister(m.outcomes, m.durations, m.inFlight, m.queueLag, m.chunksIndexed, m.circuitOpen)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.inFlight.Inc()
}

// FinishDocument closes a StartDocument call.
func (m *WorkerMetrics) FinishDocument(service string, elapsed time.Duration, err error) {
	m.inFlight.Dec()
	status := outcome(err)
	m.outcomes.WithLabelValues(service, status).Inc()
	m.durations.WithLabelValues(service, status).Observe(elapsed.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag >= 0 {
		m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
	}
}

func (m *WorkerMetrics) AddChunksIndexed(service string, chunks int) {
	if chunks > 0 {
		m.chunksIndexed.WithLabelValues(service).Add(float64(chunks))
	}
}

func (m *WorkerMetrics) ObserveCircuit(service, operation string, open bool) {
	setCircuit(m.circuitOpen, service, operation, open)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
