package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	sim "github.com/qnet-sim/qnet-sim/sim"
)

// ClientsConfig is the clients section of the run file.
type ClientsConfig struct {
	Count         int     `yaml:"count"`
	MeanThinkTime float64 `yaml:"mean_think_time"`
	ClosedLoop    bool    `yaml:"closed_loop"`
	MaxRequests   int64   `yaml:"max_requests"`
}

// Stage1Config is the stage1 section of the run file.
type Stage1Config struct {
	Threads         int     `yaml:"threads"`
	MeanServiceTime float64 `yaml:"mean_service_time"`
}

// Stage2Config is the stage2 section of the run file.
type Stage2Config struct {
	MeanServiceTime float64 `yaml:"mean_service_time"`
	LogNormal       bool    `yaml:"lognormal"`
	StdDev          float64 `yaml:"std_dev"`
}

// Stage3Config is the stage3 section of the run file.
type Stage3Config struct {
	MeanServiceTime float64 `yaml:"mean_service_time"`
}

// FileConfig represents the full run file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type FileConfig struct {
	Seed            int64         `yaml:"seed"`
	Horizon         float64       `yaml:"horizon"`
	Warmup          float64       `yaml:"warmup"`
	Replications    int           `yaml:"replications"`
	Clients         ClientsConfig `yaml:"clients"`
	Stage1          Stage1Config  `yaml:"stage1"`
	Stage2          Stage2Config  `yaml:"stage2"`
	Stage3          Stage3Config  `yaml:"stage3"`
	CheckInvariants bool          `yaml:"check_invariants"`
}

// DefaultFileConfig returns the configuration used when no file is given.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Seed:         42,
		Horizon:      10000,
		Replications: 1,
		Clients: ClientsConfig{
			Count:         10,
			MeanThinkTime: 10,
		},
		Stage1: Stage1Config{Threads: 4, MeanServiceTime: 1},
		Stage2: Stage2Config{MeanServiceTime: 1, StdDev: 0.5},
		Stage3: Stage3Config{MeanServiceTime: 1},
	}
}

// LoadFileConfig reads path over the defaults. Missing fields keep their
// default; unknown fields are an error.
func LoadFileConfig(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	// Parse YAML with strict field checking: typos must cause errors
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ToSim returns the simulation config of replication rep. Replication i runs
// with seed Seed+i.
func (c FileConfig) ToSim(rep int) sim.Config {
	return sim.Config{
		Run: sim.RunConfig{
			Seed:            c.Seed + int64(rep),
			Horizon:         c.Horizon,
			Warmup:          c.Warmup,
			Replication:     rep,
			CheckInvariants: c.CheckInvariants,
		},
		Clients: sim.ClientConfig{
			NumClients:           c.Clients.Count,
			MeanThinkTime:        c.Clients.MeanThinkTime,
			ClosedLoop:           c.Clients.ClosedLoop,
			MaxRequestsPerClient: c.Clients.MaxRequests,
		},
		Stage1: sim.PoolStageConfig{
			Threads:         c.Stage1.Threads,
			MeanServiceTime: c.Stage1.MeanServiceTime,
		},
		Stage2: sim.MutexStageConfig{
			MeanServiceTime: c.Stage2.MeanServiceTime,
			UseLogNormal:    c.Stage2.LogNormal,
			StdDev:          c.Stage2.StdDev,
		},
		Stage3: sim.PassThroughStageConfig{
			MeanServiceTime: c.Stage3.MeanServiceTime,
		},
	}
}

// Validate reports every invalid field at once.
func (c FileConfig) Validate() error {
	var errs []error
	if c.Replications < 1 {
		errs = append(errs, fmt.Errorf("replications must be >= 1, got %d", c.Replications))
	}
	if err := c.ToSim(0).Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
