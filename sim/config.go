package sim

import (
	"errors"
	"fmt"
	"math"
)

// RunConfig groups run-level parameters.
type RunConfig struct {
	Seed            int64   // master seed of the partitioned RNG
	Horizon         float64 // virtual end time; 0 = run until the event queue drains
	Warmup          float64 // samples before this time are not recorded
	Replication     int     // index tagged onto every sample
	CheckInvariants bool    // verify stage invariants after every event
}

// ClientConfig groups client generator parameters.
type ClientConfig struct {
	NumClients           int     // clients 0..NumClients-1 (must be >= 1)
	MeanThinkTime        float64 // exponential think time mean (must be > 0)
	ClosedLoop           bool    // next think time starts at completion instead of at issue
	MaxRequestsPerClient int64   // 0 = unbounded
}

// PoolStageConfig groups stage 1 parameters.
type PoolStageConfig struct {
	Threads         int     // pool capacity (must be >= 1)
	MeanServiceTime float64 // uniform over [0, 2*mean)
}

// MutexStageConfig groups stage 2 parameters.
type MutexStageConfig struct {
	MeanServiceTime float64 // uniform mean, or mu of the log-normal
	UseLogNormal    bool    // log-normal instead of uniform service times
	StdDev          float64 // sigma of the log-normal
}

// PassThroughStageConfig groups stage 3 parameters.
type PassThroughStageConfig struct {
	MeanServiceTime float64 // uniform over [0, 2*mean)
}

// Config is everything needed to build a Network.
type Config struct {
	Run     RunConfig
	Clients ClientConfig
	Stage1  PoolStageConfig
	Stage2  MutexStageConfig
	Stage3  PassThroughStageConfig
}

// Sampler returns the stage 2 service time sampler selected by UseLogNormal.
func (c MutexStageConfig) Sampler() Sampler {
	if c.UseLogNormal {
		return LogNormalSampler{Mu: c.MeanServiceTime, Sigma: c.StdDev}
	}
	return UniformSampler{Mean: c.MeanServiceTime}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

	check(c.Clients.NumClients >= 1, "clients.count must be >= 1, got %d", c.Clients.NumClients)
	check(finite(c.Clients.MeanThinkTime) && c.Clients.MeanThinkTime > 0, "clients.mean_think_time must be > 0, got %v", c.Clients.MeanThinkTime)
	check(c.Clients.MaxRequestsPerClient >= 0, "clients.max_requests must be >= 0, got %d", c.Clients.MaxRequestsPerClient)
	check(c.Stage1.Threads >= 1, "stage1.threads must be >= 1, got %d", c.Stage1.Threads)
	check(finite(c.Stage1.MeanServiceTime) && c.Stage1.MeanServiceTime >= 0, "stage1.mean_service_time must be >= 0, got %v", c.Stage1.MeanServiceTime)
	check(finite(c.Stage2.MeanServiceTime), "stage2.mean_service_time must be finite, got %v", c.Stage2.MeanServiceTime)
	if !c.Stage2.UseLogNormal {
		check(c.Stage2.MeanServiceTime >= 0, "stage2.mean_service_time must be >= 0, got %v", c.Stage2.MeanServiceTime)
	}
	check(finite(c.Stage2.StdDev) && c.Stage2.StdDev >= 0, "stage2.std_dev must be >= 0, got %v", c.Stage2.StdDev)
	check(finite(c.Stage3.MeanServiceTime) && c.Stage3.MeanServiceTime >= 0, "stage3.mean_service_time must be >= 0, got %v", c.Stage3.MeanServiceTime)
	check(finite(c.Run.Horizon) && c.Run.Horizon >= 0, "horizon must be >= 0, got %v", c.Run.Horizon)
	check(finite(c.Run.Warmup) && c.Run.Warmup >= 0, "warmup must be >= 0, got %v", c.Run.Warmup)
	if c.Run.Horizon > 0 {
		check(c.Run.Warmup < c.Run.Horizon, "warmup (%v) must be before horizon (%v)", c.Run.Warmup, c.Run.Horizon)
	}
	check(c.Run.Horizon > 0 || c.Clients.MaxRequestsPerClient > 0, "horizon 0 requires clients.max_requests > 0, otherwise the run never ends")
	return errors.Join(errs...)
}
