package sim

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDistribution(t *testing.T) {
	// GIVEN five unsorted observations
	d := NewDistribution([]float64{5, 1, 4, 2, 3})

	// THEN the summary matches the hand-computed values
	assert.Equal(t, 5, d.Count)
	assert.InDelta(t, 3.0, d.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), d.StdDev, 1e-12)
	assert.Equal(t, 3.0, d.P50)
	assert.InDelta(t, 4.8, d.P95, 1e-12)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 5.0, d.Max)
}

func TestNewDistribution_EmptyAndSingle(t *testing.T) {
	assert.Equal(t, Distribution{}, NewDistribution(nil))

	d := NewDistribution([]float64{7})
	assert.Equal(t, 7.0, d.Mean)
	assert.Equal(t, 0.0, d.StdDev)
	assert.Equal(t, 7.0, d.P99)
}

func TestTimeAverage(t *testing.T) {
	// GIVEN a queue at 0 on [0,1), 1 on [1,5) and 0 on [5,10]
	avg := TimeAverage([]float64{0, 1, 5}, []float64{0, 1, 0}, 10)

	// THEN the time-weighted mean is 4/10
	assert.InDelta(t, 0.4, avg, 1e-12)
}

func TestTimeAverage_SameInstantUpdates(t *testing.T) {
	// GIVEN two updates at t=0; only the last one holds for any time
	avg := TimeAverage([]float64{0, 0, 2}, []float64{5, 1, 3}, 4)
	assert.InDelta(t, 2.0, avg, 1e-12)
}

func TestTimeAverage_Degenerate(t *testing.T) {
	assert.Equal(t, 0.0, TimeAverage(nil, nil, 10))
	assert.Equal(t, 2.0, TimeAverage([]float64{3}, []float64{2}, 3))
}

func TestNewEstimate(t *testing.T) {
	// GIVEN three replication means
	e := NewEstimate([]float64{1, 2, 3})

	// THEN the half-width uses the Student-t quantile with 2 degrees of freedom
	assert.Equal(t, 3, e.N)
	assert.InDelta(t, 2.0, e.Mean, 1e-12)
	assert.InDelta(t, 4.302653/math.Sqrt(3), e.HalfWidth, 1e-4)

	single := NewEstimate([]float64{4})
	assert.Equal(t, Estimate{Mean: 4, N: 1}, single)
}

func TestMetrics_FromRun(t *testing.T) {
	// GIVEN the single worker scenario run to completion
	n := newTestNetwork(t, 2, 1, 5, 0, 0)
	issueAt(n, 0, 0)
	issueAt(n, 1, 1)
	require.NoError(t, n.Sim.Run(context.Background()))

	// WHEN metrics are built
	m := NewMetrics(n)

	// THEN counts, response times and queue averages reflect the run
	assert.Equal(t, int64(2), m.IssuedRequests)
	assert.Equal(t, int64(2), m.CompletedRequests)
	assert.Equal(t, 0, m.InFlightRequests)
	assert.Equal(t, 10.0, m.SimEndedTime)
	assert.InDelta(t, 0.2, m.Throughput, 1e-12)
	assert.InDelta(t, 7.0, m.Stats[StatTotalResponseTimeClient].Mean, 1e-12)
	assert.InDelta(t, 0.4, m.QueueLength[StatQueueLengthStage1], 1e-12)
	assert.Equal(t, 1.0, m.PeakQueueLength[StatQueueLengthStage1])

	var buf bytes.Buffer
	m.Print(&buf)
	assert.Contains(t, buf.String(), "Completed Requests   : 2")
	assert.Contains(t, buf.String(), "totalResponseTime@client")
}

func TestSummarizeReplications(t *testing.T) {
	// GIVEN three replications of the same configuration with different seeds
	var ms []*Metrics
	for rep := 0; rep < 3; rep++ {
		cfg := randomConfig(100 + int64(rep))
		cfg.Run.Replication = rep
		n, err := NewNetwork(cfg)
		require.NoError(t, err)
		m, err := n.Run(context.Background())
		require.NoError(t, err)
		ms = append(ms, m)
	}

	// WHEN they are summarized
	s := SummarizeReplications(ms)

	// THEN every statistic has an estimate over all replications
	assert.Equal(t, 3, s.Replications)
	assert.Equal(t, 3, s.Throughput.N)
	for _, name := range AllStats {
		var e Estimate
		if name.IsQueueLength() {
			e = s.QueueLength[name]
		} else {
			e = s.MeanResponse[name]
		}
		assert.Equal(t, 3, e.N, "estimate %s", name)
		assert.GreaterOrEqual(t, e.HalfWidth, 0.0)
	}

	var buf bytes.Buffer
	s.Print(&buf)
	assert.Contains(t, buf.String(), "Summary over 3 replications")
}
