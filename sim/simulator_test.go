package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSimulator_SeedsPatients(t *testing.T) {
	s, _ := newTestSim(t)

	patients := s.Patients()
	require.Len(t, patients, 2)
	assert.Equal(t, "P1", patients[0].ID)
	assert.Equal(t, "P2", patients[1].ID)

	p1 := patients[0]
	assert.Equal(t, PatientActive, p1.Status)
	require.Len(t, p1.Vitals, 2)
	assert.Equal(t, testStart.Add(-10*time.Minute), p1.Vitals[0].Time)
	require.NotNil(t, p1.Baseline)
	assert.Equal(t, 88, p1.Baseline.HR, "baseline defaults to the last seeded reading")
	assert.Equal(t, testStart, p1.ScenarioStart)
}

func TestNewSimulator_DoesNotMutateContent(t *testing.T) {
	content := testContent()
	s, err := NewSimulator(DefaultConfig(), content, NewManualWallClock(testStart), NewSimulationKey(1))
	require.NoError(t, err)

	s.VitalsTick()
	_, err = s.Disposition("P1", DispositionDischarge)
	require.NoError(t, err)

	assert.Equal(t, PatientStatus(""), content.Patients[0].Patient.Status)
	assert.Empty(t, content.Patients[0].Patient.Vitals)
}

func TestNewSimulator_RejectsBadInput(t *testing.T) {
	bad := DefaultConfig()
	bad.FastTick = 0
	_, err := NewSimulator(bad, testContent(), nil, NewSimulationKey(1))
	assert.Error(t, err)

	c := testContent()
	c.Catalog = append(c.Catalog, CatalogItem{ID: "L1", Name: "dup", Category: CategoryLab})
	_, err = NewSimulator(DefaultConfig(), c, nil, NewSimulationKey(1))
	assert.ErrorContains(t, err, "duplicate id")
}

func TestContent_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Content)
		want   string
	}{
		{"valid", func(*Content) {}, ""},
		{"unknown category", func(c *Content) { c.Catalog[0].Category = "surgery" }, "unknown category"},
		{"empty patient id", func(c *Content) { c.Patients[0].Patient.ID = "" }, "empty id"},
		{"script for unknown patient", func(c *Content) { c.Scripts["P9"] = nil }, "unknown patient"},
		{"duplicate event id", func(c *Content) {
			c.Scripts["P1"] = append(c.Scripts["P1"], ScenarioEvent{ID: "page-pain", Kind: EventPage})
		}, "duplicate event id"},
		{"bad kind", func(c *Content) { c.Scripts["P1"][0].Kind = "alarm" }, "unknown kind"},
		{"admission for unknown patient", func(c *Content) { c.Admissions["P9"] = AdmissionScript{} }, "unknown patient"},
		{"probability", func(c *Content) { c.DelayEvents = []DelayEvent{{Probability: 1.5}} }, "probability"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testContent()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
	var nilContent *Content
	assert.Error(t, nilContent.Validate())
}

func TestTimingTable_Fallbacks(t *testing.T) {
	tt := testContent().Timing

	assert.Len(t, tt.Templates(CategoryLab, PrioritySTAT), 3)
	assert.Equal(t, tt.Templates(CategoryLab, PriorityRoutine), tt.Templates(CategoryLab, PriorityUrgent), "missing priority uses Routine")
	assert.Equal(t, tt.Templates(CategoryLab, PriorityRoutine), tt.Templates(CategoryLab, ""))
	assert.Equal(t, fallbackStages, tt.Templates(CategoryNursing, PrioritySTAT))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative speed", func(c *Config) { c.InitialSpeed = -1 }},
		{"zero fast tick", func(c *Config) { c.FastTick = 0 }},
		{"cadence shorter than tick", func(c *Config) { c.VitalsCadence = time.Millisecond }},
		{"zero effect window", func(c *Config) { c.MedEffectWindow = 0 }},
		{"fraction above one", func(c *Config) { c.MedEffectFraction = 1.5 }},
		{"empty history", func(c *Config) { c.HistoryCap = 0 }},
		{"zero audit cap", func(c *Config) { c.AuditCap = 0 }},
		{"inverted clamp", func(c *Config) { c.Clamp.HR = Bounds{Min: 200, Max: 40} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSimulator_SpeedAndPauseAreAudited(t *testing.T) {
	s, _ := newTestSim(t)

	s.SetSpeed(-3)
	s.Pause()
	s.Pause()
	s.Resume()
	s.Resume()

	assert.Equal(t, 0.0, s.Clock().Speed())
	var actions []string
	for _, a := range s.Audit() {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []string{"Clock speed set to 0x", "Simulation paused", "Simulation resumed"}, actions)
}

func TestChart_UnknownPatient(t *testing.T) {
	s, _ := newTestSim(t)
	_, err := s.Chart("P9")
	assert.ErrorIs(t, err, ErrUnknownPatient)

	c, err := s.Chart("P2")
	require.NoError(t, err)
	assert.Equal(t, "2.8", c.LatestResult("cr").Value)
}

func TestPatient_Helpers(t *testing.T) {
	p := &Patient{Name: "Osei, Ben", Problems: []string{"CHF (EF 25%)"}}
	assert.Equal(t, "Osei", p.ShortName())
	prob, ok := p.HasProblem("heart failure", "chf")
	assert.True(t, ok)
	assert.Equal(t, "CHF (EF 25%)", prob)
	assert.Nil(t, p.LatestVitals())
	assert.Equal(t, "Solo", (&Patient{Name: "Solo"}).ShortName())
}
