// Tracks end-of-run performance metrics: per-statistic distributions,
// time-averaged queue lengths and throughput, plus cross-replication summaries.

package sim

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution captures statistical summary of a metric.
type Distribution struct {
	Mean   float64
	StdDev float64
	P50    float64
	P95    float64
	P99    float64
	Min    float64
	Max    float64
	Count  int
}

// NewDistribution computes a Distribution from raw values.
// Returns zero-value Distribution for empty input.
func NewDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return Distribution{
		Mean:   mean,
		StdDev: std,
		P50:    percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Count:  len(sorted),
	}
}

// percentile computes the p-th percentile using linear interpolation.
// Input must be sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// TimeAverage returns the time-weighted mean of a piecewise-constant level
// sampled at times, held until end. The window starts at the first sample.
// Returns 0 when the window is empty.
func TimeAverage(times, values []float64, end float64) float64 {
	if len(times) == 0 || len(times) != len(values) {
		return 0
	}
	weights := make([]float64, len(times))
	total := 0.0
	for i := range times {
		next := end
		if i+1 < len(times) {
			next = times[i+1]
		}
		if next > times[i] {
			weights[i] = next - times[i]
			total += weights[i]
		}
	}
	if total == 0 {
		return values[len(values)-1]
	}
	return stat.Mean(values, weights)
}

// Metrics aggregates statistics about one replication for final reporting.
type Metrics struct {
	Replication  int
	Seed         int64
	SimEndedTime float64 // horizon if it was reached, else the last event time
	Warmup       float64

	IssuedRequests    int64
	CompletedRequests int64
	InFlightRequests  int

	// Throughput is completed requests per time unit after warm-up.
	Throughput float64

	// Stats summarizes per-request observations (response times).
	Stats map[StatName]Distribution
	// QueueLength is the time-averaged length of each stage queue.
	QueueLength map[StatName]float64
	// PeakQueueLength is the largest recorded length of each stage queue.
	PeakQueueLength map[StatName]float64
}

// NewMetrics builds the metrics of a finished network run.
func NewMetrics(n *Network) *Metrics {
	var completed int64
	for _, c := range n.Clients.Clients() {
		completed += c.Completed
	}
	m := &Metrics{
		Replication:       n.Config.Run.Replication,
		Seed:              n.Config.Run.Seed,
		SimEndedTime:      n.Sim.EndTime(),
		Warmup:            n.Config.Run.Warmup,
		IssuedRequests:    n.Clients.IssuedRequests(),
		CompletedRequests: completed,
		InFlightRequests:  n.Clients.PendingRequests(),
		Stats:             make(map[StatName]Distribution),
		QueueLength:       make(map[StatName]float64),
		PeakQueueLength:   make(map[StatName]float64),
	}
	for _, name := range AllStats {
		ser := n.Collector.Series(name)
		if name.IsQueueLength() {
			m.QueueLength[name] = TimeAverage(ser.Times, ser.Values, m.SimEndedTime)
			peak := 0.0
			for _, v := range ser.Values {
				peak = math.Max(peak, v)
			}
			m.PeakQueueLength[name] = peak
			continue
		}
		m.Stats[name] = NewDistribution(ser.Values)
	}
	if window := m.SimEndedTime - m.Warmup; window > 0 {
		m.Throughput = float64(m.Stats[StatTotalResponseTimeClient].Count) / window
	}
	return m
}

// Print writes a human-readable report of the replication to w.
func (m *Metrics) Print(w io.Writer) {
	fmt.Fprintf(w, "=== Replication %d (seed %d) ===\n", m.Replication, m.Seed)
	fmt.Fprintf(w, "Simulated time       : %g\n", m.SimEndedTime)
	if m.Warmup > 0 {
		fmt.Fprintf(w, "Warm-up              : %g\n", m.Warmup)
	}
	fmt.Fprintf(w, "Issued Requests      : %d\n", m.IssuedRequests)
	fmt.Fprintf(w, "Completed Requests   : %d\n", m.CompletedRequests)
	fmt.Fprintf(w, "In-flight Requests   : %d\n", m.InFlightRequests)
	fmt.Fprintf(w, "Throughput           : %.4f req/unit\n", m.Throughput)
	for _, name := range AllStats {
		if name.IsQueueLength() {
			fmt.Fprintf(w, "%-27s: avg %.4f, peak %g\n", name, m.QueueLength[name], m.PeakQueueLength[name])
			continue
		}
		d := m.Stats[name]
		if d.Count == 0 {
			fmt.Fprintf(w, "%-27s: no samples\n", name)
			continue
		}
		fmt.Fprintf(w, "%-27s: n=%d mean %.4f sd %.4f p50 %.4f p95 %.4f p99 %.4f max %.4f\n",
			name, d.Count, d.Mean, d.StdDev, d.P50, d.P95, d.P99, d.Max)
	}
}

// Estimate is a cross-replication mean with the half-width of its 95%
// confidence interval. HalfWidth is 0 with fewer than two replications.
type Estimate struct {
	Mean      float64
	HalfWidth float64
	N         int
}

// NewEstimate computes the Student-t 95% interval over independent
// per-replication values.
func NewEstimate(values []float64) Estimate {
	n := len(values)
	if n == 0 {
		return Estimate{}
	}
	if n == 1 {
		return Estimate{Mean: values[0], N: 1}
	}
	mean, std := stat.MeanStdDev(values, nil)
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}.Quantile(0.975)
	return Estimate{Mean: mean, HalfWidth: t * std / math.Sqrt(float64(n)), N: n}
}

// ReplicationSummary combines independent replications of the same model.
type ReplicationSummary struct {
	Replications int
	Throughput   Estimate
	// MeanResponse estimates the mean of each response-time statistic.
	MeanResponse map[StatName]Estimate
	// QueueLength estimates the time-averaged length of each stage queue.
	QueueLength map[StatName]Estimate
}

// SummarizeReplications builds a ReplicationSummary. Replications without
// samples of a statistic do not contribute to its estimate.
func SummarizeReplications(ms []*Metrics) *ReplicationSummary {
	s := &ReplicationSummary{
		Replications: len(ms),
		MeanResponse: make(map[StatName]Estimate),
		QueueLength:  make(map[StatName]Estimate),
	}
	throughput := make([]float64, 0, len(ms))
	for _, m := range ms {
		throughput = append(throughput, m.Throughput)
	}
	s.Throughput = NewEstimate(throughput)

	for _, name := range AllStats {
		var values []float64
		for _, m := range ms {
			if name.IsQueueLength() {
				values = append(values, m.QueueLength[name])
			} else if d := m.Stats[name]; d.Count > 0 {
				values = append(values, d.Mean)
			}
		}
		if name.IsQueueLength() {
			s.QueueLength[name] = NewEstimate(values)
		} else {
			s.MeanResponse[name] = NewEstimate(values)
		}
	}
	return s
}

// Print writes the summary with 95% confidence intervals to w.
func (s *ReplicationSummary) Print(w io.Writer) {
	fmt.Fprintf(w, "=== Summary over %d replications (95%% CI) ===\n", s.Replications)
	fmt.Fprintf(w, "%-27s: %.4f ± %.4f\n", "throughput", s.Throughput.Mean, s.Throughput.HalfWidth)
	for _, name := range AllStats {
		e, ok := s.MeanResponse[name]
		if !ok {
			e = s.QueueLength[name]
		}
		if e.N == 0 {
			fmt.Fprintf(w, "%-27s: no samples\n", name)
			continue
		}
		fmt.Fprintf(w, "%-27s: %.4f ± %.4f\n", name, e.Mean, e.HalfWidth)
	}
}
