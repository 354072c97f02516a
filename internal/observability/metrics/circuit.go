package metrics

import "github.com/prometheus/client_golang/prometheus"

func newCircuitGauge() *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_open",
			Help:      "1 while the circuit breaker of an upstream operation is open.",
		},
		[]string{"service", "operation"},
	)
}

func setCircuit(gauge *prometheus.GaugeVec, service, operation string, open bool) {
	value := 0.0
	if open {
		value = 1
	}
	gauge.WithLabelValues(service, operation).Set(value)
}
