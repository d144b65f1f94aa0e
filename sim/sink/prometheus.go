package sink

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qnet-sim/qnet-sim/sim"
)

// PrometheusWriter aggregates samples into Prometheus metrics and writes them
// in the text exposition format on Close, for node_exporter's textfile
// collector. It uses its own registry, so several writers never collide.
type PrometheusWriter struct {
	path     string
	registry *prometheus.Registry

	queueLength  *prometheus.GaugeVec
	responseTime *prometheus.HistogramVec
	samples      *prometheus.CounterVec
}

// NewPrometheusWriter creates a writer that will write to path.
func NewPrometheusWriter(path, runID string) *PrometheusWriter {
	labels := prometheus.Labels{"run_id": runID}
	w := &PrometheusWriter{
		path:     path,
		registry: prometheus.NewRegistry(),
		queueLength: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "qnet_queue_length",
				Help:        "Last recorded queue length of a stage",
				ConstLabels: labels,
			},
			[]string{"replication", "stat"},
		),
		responseTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "qnet_response_time",
				Help:        "Response time in virtual time units",
				ConstLabels: labels,
				Buckets:     prometheus.ExponentialBuckets(0.01, 2, 20),
			},
			[]string{"replication", "stat"},
		),
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "qnet_samples_total",
				Help:        "Number of recorded samples",
				ConstLabels: labels,
			},
			[]string{"replication", "stat"},
		),
	}
	w.registry.MustRegister(w.queueLength, w.responseTime, w.samples)
	return w
}

// Record updates the metrics of s.
func (w *PrometheusWriter) Record(s sim.Sample) error {
	rep := strconv.Itoa(s.Replication)
	name := string(s.Name)
	w.samples.WithLabelValues(rep, name).Inc()
	if s.Name.IsQueueLength() {
		w.queueLength.WithLabelValues(rep, name).Set(s.Value)
	} else {
		w.responseTime.WithLabelValues(rep, name).Observe(s.Value)
	}
	return nil
}

// Close writes every metric to the text file.
func (w *PrometheusWriter) Close() error {
	return prometheus.WriteToTextfile(w.path, w.registry)
}
