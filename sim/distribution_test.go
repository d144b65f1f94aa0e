package sim

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

func draw(s Sampler, n int) []float64 {
	src := rand.NewPCG(1, 2)
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Sample(src)
	}
	return out
}

func TestUniformSampler_RangeAndMean(t *testing.T) {
	// GIVEN a uniform sampler with mean 3
	values := draw(UniformSampler{Mean: 3}, 20000)

	// THEN every draw lies in [0, 6) and the sample mean is close to 3
	for _, v := range values {
		if v < 0 || v >= 6 {
			t.Fatalf("draw %v outside [0, 6)", v)
		}
	}
	assert.InDelta(t, 3.0, stat.Mean(values, nil), 0.1)
}

func TestUniformSampler_ZeroMean_IsZero(t *testing.T) {
	for _, v := range draw(UniformSampler{Mean: 0}, 10) {
		assert.Equal(t, 0.0, v)
	}
}

func TestExponentialSampler_Mean(t *testing.T) {
	values := draw(ExponentialSampler{Mean: 2}, 20000)
	for _, v := range values {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.InDelta(t, 2.0, stat.Mean(values, nil), 0.1)
}

func TestLogNormalSampler_UnderlyingNormalParameters(t *testing.T) {
	// GIVEN log-normal(mu=1, sigma=0.5)
	values := draw(LogNormalSampler{Mu: 1, Sigma: 0.5}, 20000)

	// THEN log of the draws has mean 1 and standard deviation 0.5
	logs := make([]float64, len(values))
	for i, v := range values {
		assert.Greater(t, v, 0.0)
		logs[i] = math.Log(v)
	}
	mean, std := stat.MeanStdDev(logs, nil)
	assert.InDelta(t, 1.0, mean, 0.05)
	assert.InDelta(t, 0.5, std, 0.05)
}

func TestSamplers_SameStreamSameDraws(t *testing.T) {
	a := draw(ExponentialSampler{Mean: 1}, 5)
	b := draw(ExponentialSampler{Mean: 1}, 5)
	assert.Equal(t, a, b)
}

func TestConstantSampler(t *testing.T) {
	assert.Equal(t, []float64{4, 4}, draw(ConstantSampler{Value: 4}, 2))
	assert.Equal(t, "constant(4)", ConstantSampler{Value: 4}.String())
	assert.Equal(t, "uniform(0, 6)", UniformSampler{Mean: 3}.String())
}
