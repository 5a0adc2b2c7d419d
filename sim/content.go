package sim

import (
	"fmt"
	"time"
)

// StageTemplate names one stage and the [Min, Max] range its simulated delay is drawn from.
type StageTemplate struct {
	Name string
	Min  time.Duration
	Max  time.Duration
}

// TimingTable maps category and priority to the stage templates that follow "Placed".
type TimingTable map[Category]map[Priority][]StageTemplate

// fallbackStages is used for categories the table does not cover.
var fallbackStages = []StageTemplate{{Name: "Completed", Min: 10 * time.Second, Max: 10 * time.Second}}

// Templates returns the templates for a category and priority.
// A priority missing from the table falls back to Routine; an unknown category
// falls back to a single ten-second "Completed" stage.
func (t TimingTable) Templates(cat Category, pri Priority) []StageTemplate {
	byPri, ok := t[cat]
	if !ok {
		return fallbackStages
	}
	if tmpl, ok := byPri[pri.OrDefault()]; ok && len(tmpl) > 0 {
		return tmpl
	}
	if tmpl, ok := byPri[PriorityRoutine]; ok && len(tmpl) > 0 {
		return tmpl
	}
	return fallbackStages
}

// SeedVitals is a charted reading at an offset from simulation start (usually negative).
type SeedVitals struct {
	Offset time.Duration
	Vitals VitalsSnapshot
}

// SeedResult is a pre-seeded result at an offset from simulation start.
type SeedResult struct {
	Offset time.Duration
	Item   ResultItem
}

// PatientSeed is the scripted starting state of one patient.
type PatientSeed struct {
	Patient    Patient
	Vitals     []SeedVitals
	PreResults []SeedResult
}

// AdmissionRejection is one reason the admitting team declines.
type AdmissionRejection struct {
	Condition Condition
	Message   string
}

// AdmissionScript is the admitting team's scripted response to Admit/Observation.
type AdmissionScript struct {
	Service       string
	AcceptMessage string
	Rejections    []AdmissionRejection // first holding condition wins
	DelayMin      time.Duration        // simulated
	DelayMax      time.Duration        // simulated
}

// DelayEvent is an operational slowdown that may hit a whole category.
type DelayEvent struct {
	Category    Category
	Message     string
	Probability float64 // per slow tick
	Min         time.Duration
	Max         time.Duration
}

// Content is the immutable configuration injected at startup: catalog, patients,
// timing, generators, and scripts. Callers must not mutate it after NewSimulator.
type Content struct {
	Catalog     []CatalogItem
	Patients    []PatientSeed
	Timing      TimingTable
	Generators  []GeneratorTier // consulted in order before the synthetic fallback
	Scripts     map[string][]ScenarioEvent
	Admissions  map[string]AdmissionScript
	DelayEvents []DelayEvent
}

// Validate checks referential integrity.
func (c *Content) Validate() error {
	if c == nil {
		return fmt.Errorf("content is nil")
	}
	seen := make(map[string]bool, len(c.Catalog))
	for i, item := range c.Catalog {
		if item.ID == "" {
			return fmt.Errorf("catalog[%d]: empty id", i)
		}
		if seen[item.ID] {
			return fmt.Errorf("catalog[%d]: duplicate id %q", i, item.ID)
		}
		seen[item.ID] = true
		if !ValidCategories[item.Category] {
			return fmt.Errorf("catalog item %s: unknown category %q", item.ID, item.Category)
		}
	}
	patients := make(map[string]bool, len(c.Patients))
	for i, seed := range c.Patients {
		id := seed.Patient.ID
		if id == "" {
			return fmt.Errorf("patients[%d]: empty id", i)
		}
		if patients[id] {
			return fmt.Errorf("patients[%d]: duplicate id %q", i, id)
		}
		patients[id] = true
	}
	for pid, script := range c.Scripts {
		if !patients[pid] {
			return fmt.Errorf("scenario script for unknown patient %q", pid)
		}
		ids := make(map[string]bool, len(script))
		for _, ev := range script {
			if ids[ev.ID] {
				return fmt.Errorf("scenario %s: duplicate event id %q", pid, ev.ID)
			}
			ids[ev.ID] = true
			if !ValidEventKinds[ev.Kind] {
				return fmt.Errorf("scenario %s/%s: unknown kind %q", pid, ev.ID, ev.Kind)
			}
		}
	}
	for pid := range c.Admissions {
		if !patients[pid] {
			return fmt.Errorf("admission script for unknown patient %q", pid)
		}
	}
	for i, d := range c.DelayEvents {
		if d.Probability < 0 || d.Probability > 1 {
			return fmt.Errorf("delay_events[%d]: probability %v outside [0,1]", i, d.Probability)
		}
	}
	return nil
}
