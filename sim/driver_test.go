package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_DoRunsOnLoopGoroutine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FastTick = 5 * time.Millisecond
	cfg.VitalsCadence = 20 * time.Millisecond
	s, err := NewSimulator(cfg, testContent(), SystemWallClock{}, NewSimulationKey(1))
	require.NoError(t, err)
	r := NewRunner(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var placed Placement
	require.NoError(t, r.Do(ctx, func(s *Simulator) {
		placed, err = s.PlaceOrder("P1", "L1", PrioritySTAT, PlaceOptions{})
	}))
	require.NoError(t, err)
	assert.True(t, placed.Placed())

	var orders int
	require.NoError(t, r.Do(ctx, func(s *Simulator) { orders = len(s.Orders("P1")) }))
	assert.Equal(t, 1, orders)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_DoAfterStop(t *testing.T) {
	s, _ := newTestSim(t)
	r := NewRunner(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func(*Simulator) { t.Error("must not run") })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestStepper_SlowTickCadence(t *testing.T) {
	// GIVEN 45s vitals cadence at 200ms fast ticks
	s, wall := newTestSim(t)
	p, _ := s.Patient("P1")
	n := len(p.Vitals)
	st := NewStepper(s, wall)

	// WHEN 90 seconds pass
	st.Advance(90 * time.Second)

	// THEN exactly two periodic readings are charted
	assert.Len(t, p.Vitals, n+2)
	assert.Equal(t, testStart.Add(90*time.Second), wall.Now())
}

func TestStepper_AdvanceSim(t *testing.T) {
	s, wall := newTestSim(t)
	s.SetSpeed(10)
	st := NewStepper(s, wall)

	require.True(t, st.AdvanceSim(10*time.Minute, time.Hour))
	assert.GreaterOrEqual(t, s.Clock().Elapsed(), 10*time.Minute)
	assert.Less(t, wall.Now().Sub(testStart), 61*time.Second)

	s.Pause()
	assert.False(t, st.AdvanceSim(20*time.Minute, time.Minute), "paused clock never reaches the target")
}
