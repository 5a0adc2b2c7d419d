package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simehr/simehr/sim"
)

func order(id, name, resultKey string) *sim.Order {
	return &sim.Order{Item: sim.CatalogItem{ID: id, Name: name, ResultKey: resultKey}}
}

func TestConditionDoc_Holds(t *testing.T) {
	heparin := order("M16", "Heparin 60 units/kg IV bolus", "")
	trop := order("L4", "Troponin I", "trop")
	cancelledTrop := order("L4", "Troponin I", "trop")
	cancelledTrop.Cancelled = true
	givenAlbuterol := order("M19", "Albuterol 2.5mg nebulizer", "")
	givenAlbuterol.Administered = true

	tests := []struct {
		name   string
		doc    ConditionDoc
		orders []*sim.Order
		want   bool
	}{
		{
			name: "missing_any holds with nothing ordered",
			doc:  ConditionDoc{MissingAny: []MatcherDoc{{ResultKey: "trop"}}},
			want: true,
		},
		{
			name:   "missing_any clears once ordered",
			doc:    ConditionDoc{MissingAny: []MatcherDoc{{ResultKey: "trop"}}},
			orders: []*sim.Order{trop},
			want:   false,
		},
		{
			name:   "cancelled orders do not count",
			doc:    ConditionDoc{MissingAny: []MatcherDoc{{ResultKey: "trop"}}},
			orders: []*sim.Order{cancelledTrop},
			want:   true,
		},
		{
			name:   "missing_any holds while one of several is missing",
			doc:    ConditionDoc{MissingAny: []MatcherDoc{{NameContains: []string{"heparin"}}, {ResultKey: "trop"}}},
			orders: []*sim.Order{heparin},
			want:   true,
		},
		{
			name:   "missing_all clears when any one is ordered",
			doc:    ConditionDoc{MissingAll: []MatcherDoc{{NameContains: []string{"metoprolol"}}, {NameContains: []string{"HEPARIN"}}}},
			orders: []*sim.Order{heparin},
			want:   false,
		},
		{
			name:   "catalog id matcher",
			doc:    ConditionDoc{MissingAny: []MatcherDoc{{CatalogID: "M16"}}},
			orders: []*sim.Order{heparin},
			want:   false,
		},
		{
			name:   "not_administered holds while only ordered",
			doc:    ConditionDoc{NotAdministered: []MatcherDoc{{NameContains: []string{"heparin"}}}},
			orders: []*sim.Order{heparin},
			want:   true,
		},
		{
			name:   "not_administered clears once given",
			doc:    ConditionDoc{NotAdministered: []MatcherDoc{{NameContains: []string{"albuterol"}}}},
			orders: []*sim.Order{givenAlbuterol},
			want:   false,
		},
		{
			name: "clauses are AND-ed",
			doc: ConditionDoc{
				MissingAny:      []MatcherDoc{{ResultKey: "trop"}},
				NotAdministered: []MatcherDoc{{NameContains: []string{"albuterol"}}},
			},
			orders: []*sim.Order{givenAlbuterol},
			want:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := tt.doc.Resolve()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cond.Holds(sim.Chart{Orders: tt.orders}))
		})
	}
}

func TestConditionDoc_ResultFlagged(t *testing.T) {
	// GIVEN a condition on a critical lactate
	cond, err := ConditionDoc{ResultFlagged: &FlaggedDoc{Name: "lactate", Flag: sim.FlagCritical}}.Resolve()
	require.NoError(t, err)

	// WHEN only a normal lactate is charted THEN it does not hold
	normal := sim.Chart{Results: []*sim.Result{{Name: "Lactate", Value: "1.1", Flag: sim.FlagNormal}}}
	assert.False(t, cond.Holds(normal))

	// WHEN a critical lactate is charted THEN it holds
	critical := sim.Chart{Results: []*sim.Result{{Name: "Lactate", Value: "4.6", Flag: sim.FlagCritical}}}
	assert.True(t, cond.Holds(critical))
}

func TestConditionDoc_ResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  ConditionDoc
	}{
		{name: "no clauses", doc: ConditionDoc{}},
		{name: "empty matcher list", doc: ConditionDoc{MissingAny: []MatcherDoc{}}},
		{name: "empty matcher", doc: ConditionDoc{MissingAll: []MatcherDoc{{}}}},
		{name: "unknown flag", doc: ConditionDoc{ResultFlagged: &FlaggedDoc{Name: "K", Flag: "SKY-HIGH"}}},
		{name: "flag without name", doc: ConditionDoc{ResultFlagged: &FlaggedDoc{Flag: sim.FlagHigh}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.doc.Resolve()
			assert.Error(t, err)
		})
	}
}
