package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simehr/simehr/sim/trace"
)

func TestPlaceOrder_DrawsStagesOnce(t *testing.T) {
	s, _ := newTestSim(t)

	o := mustPlace(t, s, "P1", "L1", PrioritySTAT)

	require.Len(t, o.Stages, 4)
	assert.Equal(t, "Placed", o.Stages[0].Name)
	assert.True(t, o.Stages[0].Completed, "Placed is complete at creation")
	assert.Equal(t, []time.Duration{2 * time.Minute, 3 * time.Minute, time.Minute},
		[]time.Duration{o.Stages[1].Delay, o.Stages[2].Delay, o.Stages[3].Delay})
	assert.Equal(t, 1, o.NextStage())
	assert.Equal(t, StatusPlaced, o.Status)
}

func TestPipeline_STATResultsBeforeRoutine(t *testing.T) {
	// GIVEN a STAT and a Routine lab placed at the same simulated time
	s, wall := newTestSim(t)
	stat := mustPlace(t, s, "P1", "L1", PrioritySTAT)
	routine := mustPlace(t, s, "P1", "L4", PriorityRoutine)
	st := NewStepper(s, wall)

	// WHEN the pipeline runs until the STAT order results
	require.True(t, stepUntil(st, 10*time.Minute, func() bool { return stat.Resulted }))

	// THEN the Routine order is still in flight
	assert.False(t, routine.Resulted)
	assert.True(t, routine.InFlight())

	require.True(t, stepUntil(st, time.Hour, func() bool { return routine.Resulted }))
	assert.True(t, stat.Stages[3].CompletedAt.Before(routine.Stages[3].CompletedAt))
}

func TestPipeline_StagesCompleteInOrder(t *testing.T) {
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelFull})
	s, wall := newTestSim(t, WithTrace(st))
	o := mustPlace(t, s, "P1", "I1", PriorityRoutine)

	FastForward(s, wall, 30*time.Minute)

	require.True(t, o.Resulted)
	var idx []int
	for _, tr := range st.Transitions {
		if tr.OrderID == o.ID {
			idx = append(idx, tr.StageIndex)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4}, idx)
	for i := 1; i < len(o.Stages); i++ {
		prev, cur := o.Stages[i-1], o.Stages[i]
		if cur.CompletedAt.Before(prev.CompletedAt) {
			t.Errorf("stage %d completed at %v before stage %d at %v", i, cur.CompletedAt, i-1, prev.CompletedAt)
		}
		if got := cur.CompletedAt.Sub(prev.CompletedAt); got < cur.Delay {
			t.Errorf("stage %d took %v, want >= %v", i, got, cur.Delay)
		}
	}
}

func TestPipeline_CancelMidFlight(t *testing.T) {
	// GIVEN a five-stage imaging order with two stages complete
	s, wall := newTestSim(t)
	o := mustPlace(t, s, "P1", "I1", PriorityRoutine)
	st := NewStepper(s, wall)
	require.True(t, stepUntil(st, 10*time.Minute, func() bool { return o.CurrentStage == 1 }))

	// WHEN it is cancelled and time keeps running
	require.True(t, s.CancelOrder("P1", o.ID))
	st.Advance(time.Hour)

	// THEN no further stage completes and no result is generated
	assert.True(t, o.Cancelled)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, 1, o.CurrentStage)
	for _, stg := range o.Stages[2:] {
		assert.False(t, stg.Completed, stg.Name)
	}
	assert.False(t, o.Resulted)
	for _, r := range s.Results("P1") {
		assert.NotEqual(t, o.ID, r.OrderID)
	}

	// AND cancelling again is a no-op
	assert.False(t, s.CancelOrder("P1", o.ID))
}

func TestCancelOrder_RejectsResulted(t *testing.T) {
	s, wall := newTestSim(t)
	o := mustPlace(t, s, "P1", "L1", PrioritySTAT)
	FastForward(s, wall, 10*time.Minute)
	require.True(t, o.Resulted)

	assert.False(t, s.CancelOrder("P1", o.ID))
	assert.False(t, s.CancelOrder("P1", "missing"))
	assert.False(t, o.Cancelled)
}

func TestPipeline_SpeedChangeAffectsOnlyRemainingStages(t *testing.T) {
	// GIVEN a STAT lab one stage in at 1x
	s, wall := newTestSim(t)
	o := mustPlace(t, s, "P1", "L1", PrioritySTAT)
	st := NewStepper(s, wall)
	require.True(t, stepUntil(st, 5*time.Minute, func() bool { return o.CurrentStage == 1 }))
	firstDone := o.Stages[1].CompletedAt

	// WHEN the clock jumps to 60x
	s.SetSpeed(60)

	// THEN the remaining four simulated minutes take seconds of wall time
	require.True(t, stepUntil(st, 10*time.Second, func() bool { return o.Resulted }))
	assert.Equal(t, firstDone, o.Stages[1].CompletedAt, "completed stages keep their recorded time")
	assert.False(t, o.Stages[3].CompletedAt.Before(o.Stages[2].CompletedAt))
}

func TestPipeline_NothingMovesWhilePausedOrStopped(t *testing.T) {
	tests := []struct {
		name string
		stop func(s *Simulator)
	}{
		{"paused", func(s *Simulator) { s.Pause() }},
		{"speed zero", func(s *Simulator) { s.SetSpeed(0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, wall := newTestSim(t)
			o := mustPlace(t, s, "P1", "L1", PrioritySTAT)
			tt.stop(s)

			FastForward(s, wall, time.Hour)

			assert.Equal(t, 0, o.CurrentStage)
			assert.True(t, o.InFlight())
		})
	}
}

func TestDeferredEvents_HoldWhilePausedOrStopped(t *testing.T) {
	tests := []struct {
		name  string
		stop  func(s *Simulator)
		start func(s *Simulator)
	}{
		{"paused", func(s *Simulator) { s.Pause() }, func(s *Simulator) { s.Resume() }},
		{"speed zero", func(s *Simulator) { s.SetSpeed(0) }, func(s *Simulator) { s.SetSpeed(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a pending culture and a pending admission request
			s, wall := newTestSim(t)
			o := mustPlace(t, s, "P1", "L3", PrioritySTAT)
			require.True(t, stepUntil(NewStepper(s, wall), 10*time.Minute, func() bool { return o.Resulted }))
			r := s.Results("P1")[0]
			require.True(t, r.Pending)
			_, err := s.Disposition("P1", DispositionAdmit)
			require.NoError(t, err)

			// WHEN simulated time stops for an hour of wall time
			tt.stop(s)
			FastForward(s, wall, time.Hour)

			// THEN neither fires
			assert.True(t, r.Pending)
			rec, _ := s.DispositionOf("P1")
			assert.Equal(t, DispositionPending, rec.Outcome)

			// WHEN time runs again past both delays
			tt.start(s)
			FastForward(s, wall, 2*time.Minute+time.Second)

			// THEN both complete
			assert.False(t, r.Pending)
			assert.Equal(t, "POSITIVE: E. coli", r.Value)
			rec, _ = s.DispositionOf("P1")
			assert.NotEqual(t, DispositionPending, rec.Outcome)
		})
	}
}

func TestPipeline_ResumeContinuesWithoutSkipping(t *testing.T) {
	s, wall := newTestSim(t)
	o := mustPlace(t, s, "P1", "L1", PrioritySTAT)
	FastForward(s, wall, time.Minute)
	s.Pause()
	FastForward(s, wall, time.Hour)
	s.Resume()

	// 1m elapsed of the 2m collection stage; 30s more is not enough
	FastForward(s, wall, 30*time.Second)
	assert.Equal(t, 0, o.CurrentStage)

	FastForward(s, wall, 31*time.Second)
	assert.Equal(t, 1, o.CurrentStage)
}

func TestPipeline_OneResultSetPerOrder(t *testing.T) {
	s, wall := newTestSim(t)
	rec := &recorder{}
	s.Subscribe(rec)
	o := mustPlace(t, s, "P1", "L2", PrioritySTAT)

	FastForward(s, wall, time.Hour)

	require.True(t, o.Resulted)
	n := 0
	for _, r := range s.Results("P1") {
		if r.OrderID == o.ID {
			n++
		}
	}
	assert.Equal(t, 2, n, "Na and K, generated once")
	assert.Equal(t, 1, rec.count(SignalResultAvailable))
}

func TestStageETA(t *testing.T) {
	s, wall := newTestSim(t)
	o := mustPlace(t, s, "P1", "L1", PrioritySTAT)
	wall.Advance(30 * time.Second)

	eta, ok := s.StageETA(o)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, eta)

	s.SetSpeed(0)
	_, ok = s.StageETA(o)
	assert.False(t, ok)
}

func TestMedication_ReadyThenAdminister(t *testing.T) {
	// GIVEN a morphine order on P1
	s, wall := newTestSim(t)
	o := mustPlace(t, s, "P1", "M4", PriorityRoutine)
	assert.False(t, s.Administer("P1", o.ID), "not ready yet")

	// WHEN it reaches its terminal stage
	FastForward(s, wall, 4*time.Minute)

	// THEN it waits for administration instead of resulting
	require.True(t, o.Ready())
	assert.Equal(t, StatusReady, o.Status)
	assert.False(t, o.Resulted)

	p, _ := s.Patient("P1")
	before := *p.LatestVitals()

	// AND administering applies the full effect immediately as a labeled entry
	require.True(t, s.Administer("P1", o.ID))
	after := p.LatestVitals()
	assert.Equal(t, SourcePostMed, after.Source)
	assert.Equal(t, before.HR-6, after.HR)
	assert.Equal(t, before.SBP-10, after.SBP)
	assert.Equal(t, before.Pain-4, after.Pain)
	assert.Equal(t, StatusGiven, o.Status)

	assert.False(t, s.Administer("P1", o.ID), "administering twice is a no-op")
	assert.False(t, s.CancelOrder("P1", o.ID))
}

func TestDelayEvents_ExtendInFlightStage(t *testing.T) {
	content := testContent()
	content.DelayEvents = []DelayEvent{{Category: CategoryLab, Message: "Analyzer down", Probability: 1, Min: 10 * time.Minute, Max: 10 * time.Minute}}
	cfg := DefaultConfig()
	cfg.InitialSpeed = 1
	wall := NewManualWallClock(testStart)
	s, err := NewSimulator(cfg, content, wall, NewSimulationKey(5))
	require.NoError(t, err)
	o := mustPlace(t, s, "P1", "L1", PrioritySTAT)
	med := mustPlace(t, s, "P1", "M4", PriorityRoutine)

	s.SlowTick()

	assert.Equal(t, 10*time.Minute, o.Stages[1].ExtraDelay)
	assert.Zero(t, med.Stages[1].ExtraDelay)
	FastForward(s, wall, 5*time.Minute)
	assert.Equal(t, 0, o.CurrentStage, "collection is held by the delay")
}
