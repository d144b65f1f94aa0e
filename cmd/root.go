package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/qnet-sim/qnet-sim/sim"
	"github.com/qnet-sim/qnet-sim/sim/sink"
	"github.com/qnet-sim/qnet-sim/sim/trace"
)

var (
	configPath string   // YAML run file
	logLevel   string   // Log verbosity level
	sinkSpecs  []string // kind=path statistics sinks
	tracePath  string   // CSV file for the lifecycle trace of replication 0
	traceLevel string   // Trace verbosity: none, events

	// Overrides of the run file; only flags set explicitly are applied
	seed            int64   // Master seed; replication i uses seed+i
	horizon         float64 // Virtual end time, 0 = until drained
	warmup          float64 // Samples before this time are dropped
	replications    int     // Independent runs
	numClients      int     // Number of clients
	meanThinkTime   float64 // Exponential think time mean
	closedLoop      bool    // Next think time starts at completion
	maxRequests     int64   // Requests per client, 0 = unbounded
	threads         int     // Stage 1 pool capacity
	s1Mean          float64 // Stage 1 mean service time
	s2Mean          float64 // Stage 2 mean service time (mu if log-normal)
	s2LogNormal     bool    // Stage 2 log-normal service times
	s2StdDev        float64 // Stage 2 log-normal sigma
	s3Mean          float64 // Stage 3 mean service time
	checkInvariants bool    // Verify invariants after every event
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "qnet-sim",
	Short: "Discrete-event simulator for a closed three-stage queueing network",
}

// runCmd executes the simulation using the run file and CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the queueing network simulation",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		cfg, err := resolveConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		startTime := time.Now()
		if err := runSimulation(ctx, cfg, sinkSpecs, tracePath, traceLevel, os.Stdout); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %v.", time.Since(startTime))
	},
}

// validateCmd checks the run file and flags without running anything
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the run configuration",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		if _, err := resolveConfig(cmd); err != nil {
			logrus.Fatalf("%v", err)
		}
		for _, spec := range sinkSpecs {
			if _, _, err := sink.ParseSpec(spec); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// resolveConfig loads the run file (or the defaults), applies the flags the
// user set explicitly and validates the result.
func resolveConfig(cmd *cobra.Command) (FileConfig, error) {
	cfg := DefaultFileConfig()
	if configPath != "" {
		loaded, err := LoadFileConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	applyFlagOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *FileConfig) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("seed", func() { cfg.Seed = seed })
	set("horizon", func() { cfg.Horizon = horizon })
	set("warmup", func() { cfg.Warmup = warmup })
	set("replications", func() { cfg.Replications = replications })
	set("clients", func() { cfg.Clients.Count = numClients })
	set("think-time", func() { cfg.Clients.MeanThinkTime = meanThinkTime })
	set("closed-loop", func() { cfg.Clients.ClosedLoop = closedLoop })
	set("max-requests", func() { cfg.Clients.MaxRequests = maxRequests })
	set("threads", func() { cfg.Stage1.Threads = threads })
	set("stage1-mean", func() { cfg.Stage1.MeanServiceTime = s1Mean })
	set("stage2-mean", func() { cfg.Stage2.MeanServiceTime = s2Mean })
	set("stage2-lognormal", func() { cfg.Stage2.LogNormal = s2LogNormal })
	set("stage2-stddev", func() { cfg.Stage2.StdDev = s2StdDev })
	set("stage3-mean", func() { cfg.Stage3.MeanServiceTime = s3Mean })
	set("check-invariants", func() { cfg.CheckInvariants = checkInvariants })
}

// runSimulation runs every replication of cfg, feeding all of them into the
// sinks, and prints per-replication reports (plus a summary for two or more
// replications) to out. The trace is written only at level "events".
func runSimulation(ctx context.Context, cfg FileConfig, specs []string, tracePath, traceLevel string, out io.Writer) (err error) {
	if !trace.IsValidTraceLevel(traceLevel) {
		return fmt.Errorf("invalid trace level %q (valid: none, events)", traceLevel)
	}
	runID := xid.New().String()
	logrus.WithFields(logrus.Fields{
		"run_id":       runID,
		"replications": cfg.Replications,
		"horizon":      cfg.Horizon,
	}).Info("Starting run")

	var sinks []sink.Writer
	defer func() {
		for _, w := range sinks {
			if cerr := w.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()
	for _, spec := range specs {
		w, oerr := sink.Open(spec, runID)
		if oerr != nil {
			return oerr
		}
		sinks = append(sinks, w)
	}

	var st *trace.SimulationTrace
	if tracePath != "" {
		st = trace.NewSimulationTrace(trace.TraceLevel(traceLevel))
	}

	results := make([]*sim.Metrics, 0, cfg.Replications)
	for rep := 0; rep < cfg.Replications; rep++ {
		opts := make([]sim.Option, 0, len(sinks)+1)
		for _, w := range sinks {
			opts = append(opts, sim.WithSink(w))
		}
		if rep == 0 {
			opts = append(opts, sim.WithTrace(st))
		}
		n, nerr := sim.NewNetwork(cfg.ToSim(rep), opts...)
		if nerr != nil {
			return nerr
		}
		m, rerr := n.Run(ctx)
		if rerr != nil {
			return fmt.Errorf("replication %d: %w", rep, rerr)
		}
		m.Print(out)
		results = append(results, m)
	}
	if len(results) >= 2 {
		sim.SummarizeReplications(results).Print(out)
	}

	if st.Enabled() {
		if werr := writeTrace(tracePath, st); werr != nil {
			return werr
		}
		summary := trace.Summarize(st)
		logrus.Infof("Trace: %d events, %d requests issued, written to %s",
			summary.TotalEvents, summary.IssuedRequests, tracePath)
	}
	return nil
}

func writeTrace(path string, st *trace.SimulationTrace) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	if err := st.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	return f.Close()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, validateCmd} {
		f := c.Flags()
		f.StringVar(&configPath, "config", "", "YAML run file (flags set explicitly override it)")
		f.StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
		f.StringArrayVar(&sinkSpecs, "sink", nil, "Statistics sink kind=path (csv, sqlite, parquet, prom); repeatable")

		f.Int64Var(&seed, "seed", 42, "Master seed; replication i uses seed+i")
		f.Float64Var(&horizon, "horizon", 10000, "Virtual end time (0 = until the event queue drains)")
		f.Float64Var(&warmup, "warmup", 0, "Samples earlier than this virtual time are dropped")
		f.IntVar(&replications, "replications", 1, "Number of independent replications")
		f.IntVar(&numClients, "clients", 10, "Number of clients")
		f.Float64Var(&meanThinkTime, "think-time", 10, "Mean exponential think time")
		f.BoolVar(&closedLoop, "closed-loop", false, "Start the next think time at completion instead of at issue")
		f.Int64Var(&maxRequests, "max-requests", 0, "Requests per client (0 = unbounded)")
		f.IntVar(&threads, "threads", 4, "Stage 1 worker pool capacity")
		f.Float64Var(&s1Mean, "stage1-mean", 1, "Stage 1 mean service time")
		f.Float64Var(&s2Mean, "stage2-mean", 1, "Stage 2 mean service time (mu of the underlying normal if log-normal)")
		f.BoolVar(&s2LogNormal, "stage2-lognormal", false, "Stage 2 log-normal service times")
		f.Float64Var(&s2StdDev, "stage2-stddev", 0.5, "Stage 2 log-normal sigma")
		f.Float64Var(&s3Mean, "stage3-mean", 1, "Stage 3 mean service time")
		f.BoolVar(&checkInvariants, "check-invariants", false, "Verify network invariants after every event")
	}
	runCmd.Flags().StringVar(&tracePath, "trace", "", "Write the lifecycle trace of replication 0 to this CSV file")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "events", "Trace verbosity (none, events)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
