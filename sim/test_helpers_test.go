package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func intp(v int) *int { return &v }

func fixed(name string, d time.Duration) StageTemplate {
	return StageTemplate{Name: name, Min: d, Max: d}
}

func testVitals(hr, sbp, dbp, rr, spo2 int, temp float64, pain int) VitalsSnapshot {
	return VitalsSnapshot{HR: hr, SBP: sbp, DBP: dbp, RR: rr, SpO2: spo2, Temp: temp, Pain: pain, Source: "Triage"}
}

// morphineGiven holds once any morphine order has been administered.
var morphineGiven = ConditionFunc(func(c Chart) bool {
	for _, o := range c.Orders {
		if o.Item.ID == "M4" && o.Administered {
			return true
		}
	}
	return false
})

// troponinMissing holds while no troponin result is charted.
var troponinMissing = ConditionFunc(func(c Chart) bool {
	return c.LatestResult("Troponin I") == nil
})

// testContent is a small two-patient scenario with deterministic stage delays.
func testContent() *Content {
	return &Content{
		Catalog: []CatalogItem{
			{ID: "L1", Name: "Troponin I", Category: CategoryLab, ResultKey: "trop"},
			{ID: "L2", Name: "Basic Metabolic Panel", Category: CategoryLab, ResultKey: "bmp"},
			{ID: "L3", Name: "Blood Culture x2", Category: CategoryLab, ResultKey: "bcx"},
			{ID: "L4", Name: "Lipase", Category: CategoryLab, ResultKey: "lipase"},
			{ID: "I1", Name: "CT Angiography Chest", Category: CategoryImaging, ResultKey: "cta"},
			{ID: "M1", Name: "Piperacillin-Tazobactam 4.5g IV", Category: CategoryMedication},
			{ID: "M2", Name: "Cefazolin 2g IV", Category: CategoryMedication},
			{ID: "M3", Name: "Ketorolac 15mg IV", Category: CategoryMedication},
			{ID: "M4", Name: "Morphine 4mg IV", Category: CategoryMedication,
				MedEffect: &VitalsDelta{HR: -6, SBP: -10, DBP: -5, RR: -3, Pain: -4}},
			{ID: "M5", Name: "Metoprolol 5mg IV", Category: CategoryMedication},
			{ID: "N1", Name: "Cardiac Monitoring", Category: CategoryNursing},
		},
		Patients: []PatientSeed{
			{
				Patient: Patient{
					ID: "P1", Name: "Hartley, Alice", Age: 62, Sex: "F",
					Allergies:  []Allergy{{Agent: "Penicillin", Reaction: "Hives", Severity: "Moderate"}},
					Problems:   []string{"Hypertension"},
					Creatinine: 1.0,
					Location:   "ED 4",
				},
				Vitals: []SeedVitals{
					{Offset: -10 * time.Minute, Vitals: testVitals(92, 152, 90, 18, 97, 98.6, 7)},
					{Offset: -5 * time.Minute, Vitals: testVitals(88, 148, 88, 18, 97, 98.6, 6)},
				},
			},
			{
				Patient: Patient{
					ID: "P2", Name: "Osei, Ben", Age: 74, Sex: "M",
					Problems:   []string{"CHF (EF 25%)", "CKD stage 4"},
					Creatinine: 2.8,
					Location:   "ED 7",
				},
				Vitals: []SeedVitals{
					{Offset: -5 * time.Minute, Vitals: testVitals(55, 86, 50, 9, 91, 97.8, 2)},
				},
				PreResults: []SeedResult{
					{Offset: -30 * time.Minute, Item: ResultItem{Name: "Cr", Value: "2.8", Unit: "mg/dL", Bounds: &RefBounds{Lo: 0.6, Hi: 1.2}}},
				},
			},
		},
		Timing: TimingTable{
			CategoryLab: {
				PrioritySTAT:    {fixed("Collected", 2*time.Minute), fixed("Processing", 3*time.Minute), fixed("Resulted", time.Minute)},
				PriorityRoutine: {fixed("Collected", 10*time.Minute), fixed("Processing", 20*time.Minute), fixed("Resulted", 5*time.Minute)},
			},
			CategoryImaging: {
				PriorityRoutine: {fixed("Scheduled", 5*time.Minute), fixed("In Progress", 5*time.Minute), fixed("Read", 5*time.Minute), fixed("Resulted", 5*time.Minute)},
			},
			CategoryMedication: {
				PriorityRoutine: {fixed("Pharmacy Verify", time.Minute), fixed("Dispensed", time.Minute), fixed("Ready", time.Minute)},
			},
		},
		Generators: []GeneratorTier{
			PatientGenerators{
				"P1": {
					"trop": GeneratorFunc(func(req GenerateRequest) []ResultItem {
						series := []string{"0.42", "0.89", "1.64"}
						v := series[len(series)-1]
						if req.Sequence < len(series) {
							v = series[req.Sequence]
						}
						return []ResultItem{{Name: "Troponin I", Value: v, Unit: "ng/mL", Bounds: &RefBounds{Lo: 0, Hi: 0.04}}}
					}),
				},
			},
			GenericGenerators{
				"bmp": GeneratorFunc(func(GenerateRequest) []ResultItem {
					return []ResultItem{
						{Name: "Na", Value: "139", Unit: "mEq/L", Bounds: &RefBounds{Lo: 135, Hi: 145}},
						{Name: "K", Value: "5.3", Unit: "mEq/L", Bounds: &RefBounds{Lo: 3.5, Hi: 5.0}},
					}
				}),
				"bcx": GeneratorFunc(func(GenerateRequest) []ResultItem {
					return []ResultItem{{
						Name: "Blood Culture", Value: "Pending", Pending: true,
						PendingFinal: &PendingFinal{Value: "POSITIVE: E. coli", Flag: FlagCritical, Delay: 90 * time.Second},
					}}
				}),
			},
		},
		Scripts: map[string][]ScenarioEvent{
			"P1": {
				{ID: "page-pain", Delay: 5 * time.Minute, Kind: EventPage, From: "RN Kim", Message: "Pain is 8/10"},
				{ID: "drop", Delay: 20 * time.Minute, Kind: EventDeterioration, Message: "BP dropping",
					Set: &VitalsPatch{SBP: intp(84)}, Delta: &VitalsDelta{HR: 20}, Condition: morphineGiven},
			},
		},
		Admissions: map[string]AdmissionScript{
			"P1": {
				Service:       "Cardiology",
				AcceptMessage: "Cardiology accepting to CCU.",
				Rejections:    []AdmissionRejection{{Condition: troponinMissing, Message: "No troponin yet."}},
				DelayMin:      2 * time.Minute,
				DelayMax:      2 * time.Minute,
			},
		},
	}
}

func newTestSim(t *testing.T, opts ...Option) (*Simulator, *ManualWallClock) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.InitialSpeed = 1
	wall := NewManualWallClock(testStart)
	s, err := NewSimulator(cfg, testContent(), wall, NewSimulationKey(42), opts...)
	require.NoError(t, err)
	return s, wall
}

func mustPlace(t *testing.T, s *Simulator, pid, catalogID string, pri Priority) *Order {
	t.Helper()
	pl, err := s.PlaceOrder(pid, catalogID, pri, PlaceOptions{})
	require.NoError(t, err)
	require.True(t, pl.Placed(), "order %s for %s declined: %s", catalogID, pid, pl.Verdict.Message)
	return pl.Order
}

// stepUntil steps until cond holds or limit of wall time passes.
func stepUntil(st *Stepper, limit time.Duration, cond func() bool) bool {
	for spent := time.Duration(0); spent <= limit; spent += st.fast {
		if cond() {
			return true
		}
		st.Step()
	}
	return cond()
}

// recorder collects signals.
type recorder struct {
	signals []Signal
}

func (r *recorder) OnSignal(s Signal) { r.signals = append(r.signals, s) }

func (r *recorder) count(kind SignalKind) int {
	n := 0
	for _, s := range r.signals {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
