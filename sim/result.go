package sim

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Flag classifies a result value.
type Flag string

const (
	FlagNormal   Flag = "NORMAL"
	FlagHigh     Flag = "HIGH"
	FlagLow      Flag = "LOW"
	FlagCritical Flag = "CRITICAL"
	FlagAbnormal Flag = "ABNORMAL"
	FlagPending  Flag = "PENDING"
)

// ValidFlags is the set of recognized flags. Empty means "derive from bounds".
var ValidFlags = map[Flag]bool{
	"": true, FlagNormal: true, FlagHigh: true, FlagLow: true,
	FlagCritical: true, FlagAbnormal: true, FlagPending: true,
}

// RefBounds is a numeric reference range used for auto-flagging.
type RefBounds struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// ClassifyFlag derives a flag from a value and its reference bounds:
// beyond 2×Hi or below 0.5×Lo is CRITICAL, above Hi is HIGH, below Lo is LOW.
// Non-numeric values and missing bounds are NORMAL.
func ClassifyFlag(value string, bounds *RefBounds) Flag {
	if bounds == nil {
		return FlagNormal
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return FlagNormal
	}
	switch {
	case v > bounds.Hi*2 || v < bounds.Lo*0.5:
		return FlagCritical
	case v > bounds.Hi:
		return FlagHigh
	case v < bounds.Lo:
		return FlagLow
	default:
		return FlagNormal
	}
}

// PendingFinal is the second phase of a two-phase result.
type PendingFinal struct {
	Value string        `json:"value"`
	Flag  Flag          `json:"flag"`
	Delay time.Duration `json:"delay"` // simulated; zero means Config.DefaultFinalize
}

// ResultItem is one generated value before it becomes a Result record.
type ResultItem struct {
	Name         string
	Value        string
	Unit         string
	Reference    string // display form of the reference range
	Bounds       *RefBounds
	Flag         Flag   // empty means auto-flag from Bounds
	Category     string // display grouping: Lab, Imaging, Diagnostic
	Report       string
	Pending      bool
	PendingFinal *PendingFinal
}

// Result is a resulted value on the patient's chart.
// Once Pending is false, Value and Flag never change.
type Result struct {
	ID           string        `json:"id"`
	PatientID    string        `json:"patient_id"`
	OrderID      string        `json:"order_id,omitempty"` // empty for pre-seeded results
	ResultKey    string        `json:"result_key,omitempty"`
	Name         string        `json:"name"`
	Value        string        `json:"value"`
	Unit         string        `json:"unit,omitempty"`
	Reference    string        `json:"reference,omitempty"`
	Bounds       *RefBounds    `json:"bounds,omitempty"`
	Flag         Flag          `json:"flag"`
	Category     string        `json:"category"`
	Report       string        `json:"report,omitempty"`
	Acknowledged bool          `json:"acknowledged"`
	Pending      bool          `json:"pending"`
	PendingFinal *PendingFinal `json:"pending_final,omitempty"`
	ResultedAt   time.Time     `json:"resulted_at"`
	FinalizedAt  time.Time     `json:"finalized_at"`
}

// Numeric returns the value as a float when it parses as one.
func (r *Result) Numeric() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
	return v, err == nil
}

func (r *Result) clone() *Result {
	c := *r
	if r.Bounds != nil {
		b := *r.Bounds
		c.Bounds = &b
	}
	if r.PendingFinal != nil {
		pf := *r.PendingFinal
		c.PendingFinal = &pf
	}
	return &c
}

// GenerateRequest is the input handed to a ResultGenerator.
type GenerateRequest struct {
	Order    *Order
	Patient  *Patient
	Sequence int // prior resulted orders for this patient and result key
	Rand     *rand.Rand
}

// ResultGenerator produces the items for one resulted order.
type ResultGenerator interface {
	Generate(req GenerateRequest) []ResultItem
}

// GeneratorFunc adapts a function to ResultGenerator.
type GeneratorFunc func(req GenerateRequest) []ResultItem

// Generate calls f.
func (f GeneratorFunc) Generate(req GenerateRequest) []ResultItem { return f(req) }

// GeneratorTier is one level of the result fallback chain.
type GeneratorTier interface {
	Name() string
	Lookup(patientID, resultKey string) (ResultGenerator, bool)
}

// PatientGenerators is the patient-specific tier: patient ID → result key → generator.
type PatientGenerators map[string]map[string]ResultGenerator

// Name implements GeneratorTier.
func (PatientGenerators) Name() string { return "patient" }

// Lookup implements GeneratorTier.
func (p PatientGenerators) Lookup(patientID, resultKey string) (ResultGenerator, bool) {
	g, ok := p[patientID][resultKey]
	return g, ok && g != nil
}

// GenericGenerators is the tier shared by every patient: result key → generator.
type GenericGenerators map[string]ResultGenerator

// Name implements GeneratorTier.
func (GenericGenerators) Name() string { return "generic" }

// Lookup implements GeneratorTier.
func (g GenericGenerators) Lookup(_, resultKey string) (ResultGenerator, bool) {
	gen, ok := g[resultKey]
	return gen, ok && gen != nil
}
