package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/simehr/simehr/internal/observability"
	"github.com/simehr/simehr/sim"
	"github.com/simehr/simehr/sim/catalog"
	"github.com/simehr/simehr/sim/trace"
)

// envPrefix namespaces environment overrides: SIMEHR_SPEED, SIMEHR_STATE, ...
const envPrefix = "SIMEHR"

// runOptions is the resolved process configuration for one session.
type runOptions struct {
	Config      string        // kernel parameters YAML; empty uses sim.DefaultConfig
	Catalog     string        // content YAML; empty uses the embedded defaults
	Plan        string        // scripted trainee actions
	Speed       float64       // initial simulation speed
	SpeedSet    bool          // Speed came from a flag or SIMEHR_SPEED and overrides the config file
	Duration    time.Duration // wall time to run
	Seed        int64
	State       string        // SQLite snapshot database; empty disables persistence
	Fresh       bool          // discard saved state before starting
	Autosave    time.Duration // wall time between snapshots
	MetricsAddr string
	Trace       string
	LogLevel    string
	Realtime    bool // drive from the system clock instead of stepping a virtual one
}

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "simehr",
	Short: "Clinical workflow training simulator",
}

// runCmd runs one simulated ED session
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulated ED session",
	Long: `Run a simulated ED session against the loaded content.

By default the session is headless: a virtual wall clock is stepped at the
fast-tick period, so --duration of wall time completes immediately. With
--realtime the session runs against the system clock.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := loadRunOptions(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		level, err := logrus.ParseLevel(opts.LogLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", opts.LogLevel)
		}
		logrus.SetLevel(level)

		if err := runSession(cmd.Context(), opts, os.Stdout); err != nil {
			logrus.Fatalf("Session failed: %v", err)
		}
		logrus.Info("Session complete.")
	},
}

// loadRunOptions resolves flags with environment overrides, the way viper
// layers them: an explicitly set flag wins over SIMEHR_*, which wins over defaults.
func loadRunOptions(cmd *cobra.Command) (runOptions, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return runOptions{}, fmt.Errorf("binding flags: %w", err)
	}

	opts := runOptions{
		Config:      v.GetString("config"),
		Catalog:     v.GetString("catalog"),
		Plan:        v.GetString("plan"),
		Speed:       v.GetFloat64("speed"),
		SpeedSet:    v.IsSet("speed"),
		Duration:    v.GetDuration("duration"),
		Seed:        v.GetInt64("seed"),
		State:       v.GetString("state"),
		Fresh:       v.GetBool("fresh"),
		Autosave:    v.GetDuration("autosave"),
		MetricsAddr: v.GetString("metrics-addr"),
		Trace:       v.GetString("trace"),
		LogLevel:    v.GetString("log"),
		Realtime:    v.GetBool("realtime"),
	}
	if opts.Speed < 0 {
		return opts, fmt.Errorf("--speed must be >= 0, got %g", opts.Speed)
	}
	if opts.Duration <= 0 {
		return opts, fmt.Errorf("--duration must be > 0, got %s", opts.Duration)
	}
	if opts.Autosave <= 0 {
		return opts, fmt.Errorf("--autosave must be > 0, got %s", opts.Autosave)
	}
	if !trace.IsValidTraceLevel(opts.Trace) {
		return opts, fmt.Errorf("unknown trace level %q", opts.Trace)
	}
	return opts, nil
}

func loadBundle(path string) (*catalog.Bundle, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// runSession runs one session to completion and writes the summary to out.
func runSession(ctx context.Context, opts runOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	bundle, err := loadBundle(opts.Catalog)
	if err != nil {
		return err
	}
	var plan *Plan
	if opts.Plan != "" {
		if plan, err = LoadPlan(opts.Plan); err != nil {
			return err
		}
		if err := plan.Validate(bundle); err != nil {
			return fmt.Errorf("plan %s: %w", opts.Plan, err)
		}
	}

	cfg, err := loadSimConfig(opts.Config)
	if err != nil {
		return err
	}
	if opts.SpeedSet {
		cfg.InitialSpeed = opts.Speed
	}

	var wall sim.WallClock = sim.SystemWallClock{}
	var manual *sim.ManualWallClock
	if !opts.Realtime {
		manual = sim.NewManualWallClock(time.Now())
		wall = manual
	}
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(opts.Trace)})
	s, err := sim.NewSimulator(cfg, bundle.Content, wall, sim.NewSimulationKey(opts.Seed), sim.WithTrace(st))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector, err := observability.NewSimCollector(reg)
	if err != nil {
		return err
	}
	s.Subscribe(collector)
	if opts.MetricsAddr != "" {
		stop := serveMetrics(opts.MetricsAddr, collector.Handler())
		defer stop()
	}

	saver := openState(ctx, opts, s)
	defer saver.close()

	logrus.Infof("Starting session: %d patients, %d catalog items, speed %gx, seed %d",
		len(bundle.Content.Patients), len(bundle.Content.Catalog), cfg.InitialSpeed, opts.Seed)

	exec := newPlanExecutor(plan, bundle)
	if opts.Realtime {
		runRealtime(ctx, s, exec, saver, opts.Duration)
	} else {
		runHeadless(ctx, s, manual, exec, saver, opts.Duration)
	}
	if !exec.Done() {
		logrus.Warnf("session ended with %d plan actions not reached", len(exec.actions)-exec.next)
	}

	saver.save(context.Background(), s)
	buildReport(s).Print(out)
	return nil
}

// runHeadless steps the simulator on the calling goroutine.
func runHeadless(ctx context.Context, s *sim.Simulator, wall *sim.ManualWallClock, exec *planExecutor, saver *autosaver, d time.Duration) {
	stepper := sim.NewStepper(s, wall)
	fast := s.Config().FastTick
	exec.Step(s, 0)
	for spent := time.Duration(0); spent < d; spent += fast {
		if ctx.Err() != nil {
			logrus.Warnf("session interrupted at %s simulated", s.Clock().Elapsed().Round(time.Second))
			return
		}
		stepper.Step()
		exec.Step(s, fast)
		saver.tick(ctx, s, fast)
	}
}

// runRealtime hands the simulator to a Runner for d of wall time. Plan steps
// and autosaves are submitted as commands so they run on the Runner's goroutine.
func runRealtime(ctx context.Context, s *sim.Simulator, exec *planExecutor, saver *autosaver, d time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	runner := sim.NewRunner(s)
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	fast := s.Config().FastTick
	ticker := time.NewTicker(fast)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				logrus.Warnf("runner stopped: %v", err)
			}
			return
		case <-ticker.C:
			if err := runner.Do(ctx, func(s *sim.Simulator) {
				exec.Step(s, fast)
				saver.tick(ctx, s, fast)
			}); err != nil {
				logrus.Debugf("plan step skipped: %v", err)
			}
		}
	}
}

func serveMetrics(addr string, h http.Handler) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Warnf("metrics server: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on %s/metrics", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// Execute runs the CLI root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// addRunFlags declares the run flags on c.
func addRunFlags(c *cobra.Command) {
	defaults := sim.DefaultConfig()

	c.Flags().String("config", "", "Kernel parameters YAML (tick cadences, vitals constants, thresholds); empty uses the defaults")
	c.Flags().String("catalog", "", "Content YAML (catalog, patients, results, scripts); empty uses the built-in content")
	c.Flags().String("plan", "", "YAML plan of trainee actions at simulated offsets")
	c.Flags().Float64("speed", defaults.InitialSpeed, "Initial simulation speed (simulated seconds per real second); overrides --config")
	c.Flags().Duration("duration", 15*time.Minute, "Wall time to run the session")
	c.Flags().Int64("seed", 42, "Seed for every random draw in the session")
	c.Flags().String("state", "", "SQLite file for snapshots; restores the latest on start")
	c.Flags().Bool("fresh", false, "Discard saved state before starting")
	c.Flags().Duration("autosave", 30*time.Second, "Wall time between snapshots when --state is set")
	c.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	c.Flags().String("trace", string(trace.TraceLevelNone), "Decision trace level (none, decisions, full)")
	c.Flags().String("log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	c.Flags().Bool("realtime", false, "Run against the system clock")
}

// init sets up CLI flags and subcommands
func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
