package sim

import "time"

// Category is the order catalog's top-level grouping; it selects the stage table.
type Category string

const (
	CategoryLab        Category = "lab"
	CategoryImaging    Category = "imaging"
	CategoryDiagnostic Category = "diagnostic"
	CategoryMedication Category = "medication"
	CategoryNursing    Category = "nursing"
)

// ValidCategories is the set of recognized order categories.
var ValidCategories = map[Category]bool{
	CategoryLab:        true,
	CategoryImaging:    true,
	CategoryDiagnostic: true,
	CategoryMedication: true,
	CategoryNursing:    true,
}

// Priority is the urgency tier that scales stage delay ranges.
type Priority string

const (
	PrioritySTAT    Priority = "STAT"
	PriorityUrgent  Priority = "Urgent"
	PriorityRoutine Priority = "Routine"
)

// ValidPriorities is the set of recognized priorities. Empty means Routine.
var ValidPriorities = map[Priority]bool{"": true, PrioritySTAT: true, PriorityUrgent: true, PriorityRoutine: true}

// OrDefault maps the empty priority to Routine.
func (p Priority) OrDefault() Priority {
	if p == "" {
		return PriorityRoutine
	}
	return p
}

// Status text for states that are not stage names.
const (
	StatusPlaced    = "Placed"
	StatusReady     = "Ready"
	StatusGiven     = "Given"
	StatusCancelled = "Cancelled"
)

// VitalsDelta is a signed change per vital. Used for medication effect profiles
// and scenario deltas.
type VitalsDelta struct {
	HR   float64 `yaml:"hr,omitempty" json:"hr,omitempty"`
	SBP  float64 `yaml:"sbp,omitempty" json:"sbp,omitempty"`
	DBP  float64 `yaml:"dbp,omitempty" json:"dbp,omitempty"`
	RR   float64 `yaml:"rr,omitempty" json:"rr,omitempty"`
	SpO2 float64 `yaml:"spo2,omitempty" json:"spo2,omitempty"`
	Temp float64 `yaml:"temp,omitempty" json:"temp,omitempty"`
	Pain float64 `yaml:"pain,omitempty" json:"pain,omitempty"`
}

// Scaled returns the delta multiplied by f.
func (d VitalsDelta) Scaled(f float64) VitalsDelta {
	return VitalsDelta{
		HR: d.HR * f, SBP: d.SBP * f, DBP: d.DBP * f, RR: d.RR * f,
		SpO2: d.SpO2 * f, Temp: d.Temp * f, Pain: d.Pain * f,
	}
}

// Add returns the component-wise sum.
func (d VitalsDelta) Add(o VitalsDelta) VitalsDelta {
	return VitalsDelta{
		HR: d.HR + o.HR, SBP: d.SBP + o.SBP, DBP: d.DBP + o.DBP, RR: d.RR + o.RR,
		SpO2: d.SpO2 + o.SpO2, Temp: d.Temp + o.Temp, Pain: d.Pain + o.Pain,
	}
}

// CatalogItem is one orderable entry. Immutable once loaded.
type CatalogItem struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Category  Category     `json:"category"`
	SubType   string       `json:"sub_type,omitempty"`
	ResultKey string       `json:"result_key,omitempty"`
	MedEffect *VitalsDelta `json:"med_effect,omitempty"` // nil when the drug has no vitals effect
}

// Stage is one step of an order's processing sequence.
//
// Targets are never stored: the pipeline recomputes each tick from the previous
// stage's CompletedActive, so a speed change only affects time still to elapse.
type Stage struct {
	Name       string        `json:"name"`
	Delay      time.Duration `json:"delay"`                 // simulated, drawn once at placement
	ExtraDelay time.Duration `json:"extra_delay,omitempty"` // simulated, added by operational delay events
	Completed  bool          `json:"completed"`

	CompletedAt     time.Time     `json:"completed_at"`       // simulated
	CompletedActive time.Duration `json:"completed_active"`       // clock active elapsed at completion
}

// Order is a placed catalog item moving through its stage pipeline.
type Order struct {
	ID           string      `json:"id"`
	PatientID    string      `json:"patient_id"`
	Item         CatalogItem `json:"item"`
	Priority     Priority    `json:"priority"`
	Stages       []Stage     `json:"stages"`
	CurrentStage int         `json:"current_stage"`
	Status       string      `json:"status"`
	PlacedAt     time.Time   `json:"placed_at"`

	Cancelled      bool      `json:"cancelled"`
	Resulted       bool      `json:"resulted"`
	Administered   bool      `json:"administered"`
	AdministeredAt time.Time `json:"administered_at"`
}

// NextStage returns the index of the in-flight stage, or -1 once every stage is complete.
func (o *Order) NextStage() int {
	for i := range o.Stages {
		if !o.Stages[i].Completed {
			return i
		}
	}
	return -1
}

// Terminal reports whether the final stage has completed.
func (o *Order) Terminal() bool {
	return o.NextStage() == -1
}

// InFlight reports whether the pipeline still advances this order.
func (o *Order) InFlight() bool {
	return !o.Cancelled && !o.Resulted && !o.Terminal()
}

// Ready reports whether a medication awaits administration.
func (o *Order) Ready() bool {
	return o.Item.Category == CategoryMedication && o.Terminal() && !o.Cancelled && !o.Administered
}

func (o *Order) clone() *Order {
	c := *o
	c.Stages = append([]Stage(nil), o.Stages...)
	if o.Item.MedEffect != nil {
		eff := *o.Item.MedEffect
		c.Item.MedEffect = &eff
	}
	return &c
}
