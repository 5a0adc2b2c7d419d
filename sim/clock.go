package sim

import "time"

// WallClock is the source of real time. Production code uses SystemWallClock;
// headless runs and tests drive a ManualWallClock.
type WallClock interface {
	Now() time.Time
}

// SystemWallClock reads the operating system clock.
type SystemWallClock struct{}

// Now returns time.Now().
func (SystemWallClock) Now() time.Time { return time.Now() }

// ManualWallClock only moves when Advance is called.
type ManualWallClock struct {
	now time.Time
}

// NewManualWallClock returns a clock frozen at start.
func NewManualWallClock(start time.Time) *ManualWallClock {
	return &ManualWallClock{now: start}
}

// Now returns the current manual time.
func (m *ManualWallClock) Now() time.Time { return m.now }

// Advance moves the clock forward. Negative durations are ignored.
func (m *ManualWallClock) Advance(d time.Duration) {
	if d > 0 {
		m.now = m.now.Add(d)
	}
}

// VirtualClock converts real elapsed time into simulated time.
//
// Simulated time is origin + speed × active, where active is the real time elapsed
// since origin minus every paused interval. RebaseTo moves the simulated side onto
// a restored timeline without touching the real side. A speed change re-bases the formula at
// the current instant so simulated time stays continuous: nothing already observed
// moves backward, and only time elapsed after the change runs at the new speed.
//
// Thread-safety: NOT thread-safe. Owned by the Simulator's goroutine.
type VirtualClock struct {
	wall        WallClock
	origin      time.Time     // wall time at start
	start       time.Time     // simulated epoch; Elapsed is measured from here
	speed       float64       // multiplier, >= 0
	paused      bool          // true between Pause and Resume
	pausedAt    time.Time     // wall time of the last Pause
	pausedTotal time.Duration // sum of completed paused intervals

	baseSim    time.Time     // simulated time at the last re-base
	baseActive time.Duration // active elapsed at the last re-base
}

// NewVirtualClock starts a clock at the wall clock's current time.
func NewVirtualClock(wall WallClock, speed float64) *VirtualClock {
	c := &VirtualClock{wall: wall, speed: clampSpeed(speed)}
	c.Reset()
	return c
}

// Reset restarts the clock at the current wall time, running and at the current speed.
func (c *VirtualClock) Reset() {
	c.origin = c.wall.Now()
	c.start = c.origin
	c.paused = false
	c.pausedAt = time.Time{}
	c.pausedTotal = 0
	c.baseSim = c.origin
	c.baseActive = 0
}

// Active returns the unpaused real time elapsed since origin. Frozen while paused.
func (c *VirtualClock) Active() time.Duration {
	end := c.wall.Now()
	if c.paused {
		end = c.pausedAt
	}
	return end.Sub(c.origin) - c.pausedTotal
}

// Now returns the current simulated time.
func (c *VirtualClock) Now() time.Time {
	return c.simAt(c.Active())
}

// Elapsed returns simulated time elapsed since the simulated epoch.
func (c *VirtualClock) Elapsed() time.Duration {
	return c.Now().Sub(c.start)
}

// RebaseTo continues a saved timeline: from this instant Now returns now and
// Elapsed returns elapsed. Active real time, pause state and speed are kept.
func (c *VirtualClock) RebaseTo(now time.Time, elapsed time.Duration) {
	c.baseSim = now
	c.baseActive = c.Active()
	c.start = now.Add(-elapsed)
}

func (c *VirtualClock) simAt(active time.Duration) time.Time {
	return c.baseSim.Add(scaleDuration(active-c.baseActive, c.speed))
}

// Origin returns the wall time the clock was started at.
func (c *VirtualClock) Origin() time.Time { return c.origin }

// Speed returns the current multiplier.
func (c *VirtualClock) Speed() float64 { return c.speed }

// Paused reports whether the clock is frozen.
func (c *VirtualClock) Paused() bool { return c.paused }

// SetSpeed changes the multiplier. Negative values are clamped to 0.
func (c *VirtualClock) SetSpeed(speed float64) {
	active := c.Active()
	c.baseSim = c.simAt(active)
	c.baseActive = active
	c.speed = clampSpeed(speed)
}

// Pause freezes simulated time. No-op when already paused.
func (c *VirtualClock) Pause() {
	if c.paused {
		return
	}
	c.pausedAt = c.wall.Now()
	c.paused = true
}

// Resume unfreezes simulated time. No-op when running.
func (c *VirtualClock) Resume() {
	if !c.paused {
		return
	}
	c.pausedTotal += c.wall.Now().Sub(c.pausedAt)
	c.paused = false
}

// realDelay converts a simulated delay into active real time. Callers handle speed 0.
func realDelay(simulated time.Duration, speed float64) time.Duration {
	return time.Duration(float64(simulated) / speed)
}

func scaleDuration(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

func clampSpeed(s float64) float64 {
	if s < 0 {
		return 0
	}
	return s
}
