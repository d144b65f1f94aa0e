package sim

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws one non-negative delay from the given stream.
type Sampler interface {
	Sample(src rand.Source) float64
}

// UniformSampler draws from [0, 2*Mean), so the mean delay is Mean.
type UniformSampler struct {
	Mean float64
}

func (s UniformSampler) Sample(src rand.Source) float64 {
	return distuv.Uniform{Min: 0, Max: 2 * s.Mean, Src: src}.Rand()
}

func (s UniformSampler) String() string { return fmt.Sprintf("uniform(0, %g)", 2*s.Mean) }

// LogNormalSampler draws exp(N(Mu, Sigma)). Mu and Sigma are the mean and
// standard deviation of the underlying normal.
type LogNormalSampler struct {
	Mu    float64
	Sigma float64
}

func (s LogNormalSampler) Sample(src rand.Source) float64 {
	return distuv.LogNormal{Mu: s.Mu, Sigma: s.Sigma, Src: src}.Rand()
}

func (s LogNormalSampler) String() string { return fmt.Sprintf("lognormal(%g, %g)", s.Mu, s.Sigma) }

// ExponentialSampler draws exponential delays with the given mean.
type ExponentialSampler struct {
	Mean float64
}

func (s ExponentialSampler) Sample(src rand.Source) float64 {
	if s.Mean <= 0 {
		return 0
	}
	return distuv.Exponential{Rate: 1 / s.Mean, Src: src}.Rand()
}

func (s ExponentialSampler) String() string { return fmt.Sprintf("exponential(%g)", s.Mean) }

// ConstantSampler always returns Value and never touches the stream.
type ConstantSampler struct {
	Value float64
}

func (s ConstantSampler) Sample(rand.Source) float64 { return s.Value }

func (s ConstantSampler) String() string { return fmt.Sprintf("constant(%g)", s.Value) }
