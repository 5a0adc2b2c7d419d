package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartFor(p *Patient, orders []*Order, results []*Result) Chart {
	return Chart{Patient: p, Orders: orders, Results: results, Now: testStart}
}

func propose(name string, cat Category) ProposedOrder {
	return ProposedOrder{Item: CatalogItem{ID: name, Name: name, Category: cat}, Priority: PriorityRoutine}
}

func TestDefaultRules_Outcomes(t *testing.T) {
	penicillin := &Patient{ID: "P1", Allergies: []Allergy{{Agent: "Penicillin", Reaction: "Hives"}},
		Vitals: []VitalsSnapshot{testVitals(88, 148, 88, 18, 97, 98.6, 6)}}
	sulfa := &Patient{ID: "P2", Allergies: []Allergy{{Agent: "Sulfa drugs", Reaction: "Rash"}}}
	contrast := &Patient{ID: "P3", Allergies: []Allergy{{Agent: "Iodinated contrast", Reaction: "Anaphylaxis"}}}
	renal := &Patient{ID: "P4", Creatinine: 2.8, Problems: []string{"CHF (EF 25%)"},
		Vitals: []VitalsSnapshot{testVitals(55, 86, 50, 9, 91, 97.8, 2)}}
	soft := &Patient{ID: "P5", Creatinine: 0.9, Vitals: []VitalsSnapshot{testVitals(80, 96, 60, 16, 98, 98.6, 0)}}

	tests := []struct {
		name    string
		patient *Patient
		order   ProposedOrder
		want    Outcome
		rule    string
	}{
		{"direct allergy", penicillin, propose("Penicillin VK 500mg PO", CategoryMedication), OutcomeBlock, "allergy"},
		{"penicillin class", penicillin, propose("Piperacillin-Tazobactam 4.5g IV", CategoryMedication), OutcomeBlock, "cross-reactivity"},
		{"cephalosporin cross-reactivity", penicillin, propose("Cefazolin 2g IV", CategoryMedication), OutcomeWarn, "cross-reactivity"},
		{"unrelated drug", penicillin, propose("Acetaminophen 1g PO", CategoryMedication), OutcomeAllow, ""},
		{"sulfonamide", sulfa, propose("Bactrim DS PO", CategoryMedication), OutcomeBlock, "cross-reactivity"},
		{"contrast study", contrast, propose("CT Angiography Chest", CategoryImaging), OutcomeWarn, "cross-reactivity"},
		{"non-contrast imaging", contrast, propose("CXR Portable", CategoryImaging), OutcomeAllow, ""},
		{"ketorolac renal", renal, propose("Ketorolac 15mg IV", CategoryMedication), OutcomeBlock, "renal-dosing"},
		{"metformin renal", renal, propose("Metformin 500mg PO", CategoryMedication), OutcomeWarn, "renal-dosing"},
		{"vancomycin renal", renal, propose("Vancomycin 1g IV", CategoryMedication), OutcomeWarn, "renal-dosing"},
		{"nitro hypotension", renal, propose("Nitroglycerin 0.4mg SL", CategoryMedication), OutcomeBlock, "hypotension"},
		{"furosemide soft pressure", soft, propose("Furosemide 40mg IV", CategoryMedication), OutcomeWarn, "hypotension"},
		{"metoprolol hypotension wins", renal, propose("Metoprolol 5mg IV", CategoryMedication), OutcomeBlock, "hypotension"},
		{"opioid respiratory depression", renal, propose("Morphine 4mg IV", CategoryMedication), OutcomeBlock, "respiratory-depression"},
		{"fluid bolus in CHF", renal, propose("Normal Saline 1L Bolus", CategoryMedication), OutcomeWarn, "chf-fluids"},
	}
	rules := DefaultRules(3 * time.Minute)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := rules.Evaluate(tt.order, chartFor(tt.patient, nil, nil))
			assert.Equal(t, tt.want, v.Outcome, v.Message)
			assert.Equal(t, tt.rule, v.Rule)
		})
	}
}

func TestRenalDosing_PrefersResultedCreatinine(t *testing.T) {
	// GIVEN a patient seeded with normal creatinine but a newer high result
	p := &Patient{ID: "P1", Creatinine: 0.9}
	results := []*Result{
		{Name: "Cr", Value: "1.1", ResultedAt: testStart.Add(-time.Hour)},
		{Name: "Cr", Value: "2.0", ResultedAt: testStart.Add(-time.Minute)},
		{Name: "Cr", Value: "Pending", Pending: true, ResultedAt: testStart},
	}

	// WHEN ketorolac is proposed
	v := DefaultRules(time.Minute).Evaluate(propose("Ketorolac 15mg IV", CategoryMedication), chartFor(p, nil, results))

	// THEN the latest final creatinine blocks it
	assert.Equal(t, OutcomeBlock, v.Outcome)
	assert.Contains(t, v.Message, "2.0")
}

func TestDuplicateOrder_Window(t *testing.T) {
	p := &Patient{ID: "P1"}
	item := CatalogItem{ID: "L1", Name: "Troponin I", Category: CategoryLab}
	order := ProposedOrder{Item: item}

	tests := []struct {
		name     string
		existing Order
		want     Outcome
	}{
		{"recent", Order{Item: item, PlacedAt: testStart.Add(-time.Minute)}, OutcomeWarn},
		{"outside window", Order{Item: item, PlacedAt: testStart.Add(-4 * time.Minute)}, OutcomeAllow},
		{"cancelled", Order{Item: item, PlacedAt: testStart, Cancelled: true}, OutcomeAllow},
		{"already resulted", Order{Item: item, PlacedAt: testStart, Resulted: true}, OutcomeAllow},
		{"other item", Order{Item: CatalogItem{ID: "L2"}, PlacedAt: testStart}, OutcomeAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := tt.existing
			v := DefaultRules(3*time.Minute).Evaluate(order, chartFor(p, []*Order{&existing}, nil))
			assert.Equal(t, tt.want, v.Outcome)
		})
	}
}

func TestRuleSet_BlockShortCircuitsAndWarningsAggregate(t *testing.T) {
	calls := 0
	rs := RuleSet{
		{Name: "w1", Check: func(ProposedOrder, Chart) *Finding { calls++; return warn("first") }},
		{Name: "w2", Check: func(ProposedOrder, Chart) *Finding { calls++; return warn("second") }},
		{Name: "b", Check: func(ProposedOrder, Chart) *Finding { calls++; return block("stop") }},
		{Name: "after", Check: func(ProposedOrder, Chart) *Finding { calls++; return nil }},
	}

	v := rs.Evaluate(ProposedOrder{}, Chart{Patient: &Patient{}})

	assert.Equal(t, OutcomeBlock, v.Outcome)
	assert.Equal(t, "b", v.Rule)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"first", "second"}, v.Warnings())

	v = rs[:2].Evaluate(ProposedOrder{}, Chart{Patient: &Patient{}})
	assert.Equal(t, OutcomeWarn, v.Outcome)
	assert.Equal(t, "w1", v.Rule)
	assert.Equal(t, "first", v.Message)
}

func TestPlaceOrder_BlockedWritesNoState(t *testing.T) {
	// GIVEN P1 with a penicillin allergy
	s, _ := newTestSim(t)
	rec := &recorder{}
	s.Subscribe(rec)
	auditBefore := len(s.Audit())

	// WHEN piperacillin is ordered
	pl, err := s.PlaceOrder("P1", "M1", PrioritySTAT, PlaceOptions{})

	// THEN it is declined without creating anything
	require.NoError(t, err)
	assert.False(t, pl.Placed())
	assert.Equal(t, OutcomeBlock, pl.Verdict.Outcome)
	assert.Empty(t, s.Orders("P1"))
	assert.Len(t, s.Audit(), auditBefore)
	assert.Empty(t, s.Notifications())
	assert.Equal(t, 1, rec.count(SignalOrderRejected))
}

func TestPlaceOrder_WarningPlacesUnlessRejected(t *testing.T) {
	s, _ := newTestSim(t)

	pl, err := s.PlaceOrder("P1", "M2", PriorityRoutine, PlaceOptions{RejectWarnings: true})
	require.NoError(t, err)
	assert.False(t, pl.Placed())
	assert.Equal(t, OutcomeWarn, pl.Verdict.Outcome)

	pl, err = s.PlaceOrder("P1", "M2", PriorityRoutine, PlaceOptions{})
	require.NoError(t, err)
	assert.True(t, pl.Placed())
	assert.Equal(t, OutcomeWarn, pl.Verdict.Outcome)
}

func TestPlaceOrder_DuplicateWarnsOnSecondOrder(t *testing.T) {
	s, _ := newTestSim(t)
	mustPlace(t, s, "P1", "L1", PrioritySTAT)

	pl, err := s.PlaceOrder("P1", "L1", PrioritySTAT, PlaceOptions{})

	require.NoError(t, err)
	assert.Equal(t, OutcomeWarn, pl.Verdict.Outcome)
	assert.Equal(t, "duplicate-order", pl.Verdict.Rule)
}

func TestPlaceOrder_Errors(t *testing.T) {
	s, _ := newTestSim(t)

	_, err := s.PlaceOrder("P9", "L1", PrioritySTAT, PlaceOptions{})
	assert.ErrorIs(t, err, ErrUnknownPatient)

	_, err = s.PlaceOrder("P1", "ZZ", PrioritySTAT, PlaceOptions{})
	assert.ErrorIs(t, err, ErrUnknownCatalogItem)

	_, err = s.PlaceOrder("P1", "L1", Priority("ASAP"), PlaceOptions{})
	assert.Error(t, err)
}
