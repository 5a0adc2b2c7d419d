// Package sim provides the clinical workflow simulation kernel for SimEHR.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - clock.go: VirtualClock (real elapsed time → simulated time, pause, speed re-basing)
//   - order.go, pipeline.go: Order lifecycle (Placed → stages → Resulted/Ready) and the tick-driven pipeline
//   - simulator.go: the Simulator context, Tick/SlowTick, and the command surface
//
// Then the engines the Simulator composes:
//   - rules.go: RuleSet evaluation (allow / warn / block) over a read-only Chart
//   - results.go: tiered result generation (patient → generic → synthetic) and auto-flagging
//   - vitals.go: jitter, decaying medication effects, homeostatic drift, alerts
//   - scenario.go: one-shot scripted events with optional conditions
//   - disposition.go: encounter endings and the admitting team's callback
//   - event.go: the deferred event queue (two-phase results, notification expiry, callbacks)
//
// # Architecture
//
// The Simulator owns all mutable state and is driven from a single goroutine.
// Runner (driver.go) owns that goroutine in real time; Stepper drives a
// ManualWallClock for headless runs and tests. Content (content.go) is the
// immutable configuration injected at construction; sim/catalog loads it from YAML.
//
// Every state change emits a Signal to registered Listeners. Snapshot and Restore
// (snapshot.go) move state to and from a persistence collaborator.
//
// Randomness flows through PartitionedRNG so that the same SimulationKey, content,
// and command sequence reproduce the same run.
package sim
