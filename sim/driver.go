package sim

import (
	"context"
	"errors"
	"time"
)

// Runner drives a Simulator in real time on a single goroutine: a fast ticker
// for the clock and pipeline, a slow ticker for vitals, and a command channel
// through which other goroutines run code against the Simulator.
type Runner struct {
	sim  *Simulator
	fast time.Duration
	slow time.Duration
	cmds chan command
}

type command struct {
	fn   func(*Simulator)
	done chan struct{}
}

// ErrRunnerStopped is returned by Do when the Runner exited before running the command.
var ErrRunnerStopped = errors.New("runner stopped")

// NewRunner returns a Runner using the simulator's configured cadences.
func NewRunner(sim *Simulator) *Runner {
	return &Runner{
		sim:  sim,
		fast: sim.cfg.FastTick,
		slow: sim.cfg.VitalsCadence,
		cmds: make(chan command),
	}
}

// Run blocks until ctx is cancelled. Every tick and command executes on the calling goroutine.
func (r *Runner) Run(ctx context.Context) error {
	fast := time.NewTicker(r.fast)
	defer fast.Stop()
	slow := time.NewTicker(r.slow)
	defer slow.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fast.C:
			r.sim.Tick()
		case <-slow.C:
			r.sim.SlowTick()
		case cmd := <-r.cmds:
			cmd.fn(r.sim)
			close(cmd.done)
		}
	}
}

// Do runs fn on the Runner's goroutine and waits for it to finish.
func (r *Runner) Do(ctx context.Context, fn func(*Simulator)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ErrRunnerStopped
	}
}

// Stepper drives a Simulator against a ManualWallClock without real waiting:
// each step advances the wall clock by one fast tick, runs Tick, and runs
// SlowTick whenever a vitals cadence has elapsed.
type Stepper struct {
	sim       *Simulator
	wall      *ManualWallClock
	fast      time.Duration
	slowEvery int64
	steps     int64
}

// NewStepper binds a simulator to the manual wall clock it was constructed with.
func NewStepper(sim *Simulator, wall *ManualWallClock) *Stepper {
	every := int64(sim.cfg.VitalsCadence / sim.cfg.FastTick)
	if every < 1 {
		every = 1
	}
	return &Stepper{sim: sim, wall: wall, fast: sim.cfg.FastTick, slowEvery: every}
}

// Step advances one fast tick.
func (st *Stepper) Step() {
	st.wall.Advance(st.fast)
	st.steps++
	st.sim.Tick()
	if st.steps%st.slowEvery == 0 {
		st.sim.SlowTick()
	}
}

// Advance steps through d of wall time.
func (st *Stepper) Advance(d time.Duration) {
	for n := int64(d / st.fast); n > 0; n-- {
		st.Step()
	}
}

// AdvanceSim steps until simulated elapsed time reaches target or maxWall of
// wall time has passed. Returns false when the limit stopped it, e.g. while
// paused or at speed 0.
func (st *Stepper) AdvanceSim(target, maxWall time.Duration) bool {
	for spent := time.Duration(0); st.sim.clock.Elapsed() < target; spent += st.fast {
		if spent >= maxWall {
			return false
		}
		st.Step()
	}
	return true
}

// FastForward advances a simulator bound to wall through d of wall time.
func FastForward(sim *Simulator, wall *ManualWallClock, d time.Duration) {
	NewStepper(sim, wall).Advance(d)
}
