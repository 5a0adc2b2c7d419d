package sim

import (
	"sort"
	"time"
)

// EventKind classifies a scenario event.
type EventKind string

const (
	EventPage          EventKind = "page"
	EventCallback      EventKind = "callback"
	EventDeterioration EventKind = "deterioration"
	EventReminder      EventKind = "reminder"
)

// ValidEventKinds is the set of recognized scenario event kinds.
var ValidEventKinds = map[EventKind]bool{
	EventPage: true, EventCallback: true, EventDeterioration: true, EventReminder: true,
}

// Condition is a predicate over the current chart.
type Condition interface {
	Holds(chart Chart) bool
}

// ConditionFunc adapts a function to Condition.
type ConditionFunc func(chart Chart) bool

// Holds calls f.
func (f ConditionFunc) Holds(chart Chart) bool { return f(chart) }

// ScenarioEvent is a scripted one-shot interruption for one patient.
type ScenarioEvent struct {
	ID        string
	Delay     time.Duration // simulated, from the patient's scenario start
	Kind      EventKind
	From      string // who pages or calls back, when applicable
	Message   string
	Set       *VitalsPatch // deterioration: absolute values
	Delta     *VitalsDelta // deterioration: relative change
	Condition Condition    // nil means unconditional
}

// ScenarioEngine tracks which events have fired per patient.
// Fired state is the only state it owns; scripts are content.
type ScenarioEngine struct {
	fired map[string]map[string]bool // patient ID → event ID → fired
}

// NewScenarioEngine returns an engine with nothing fired.
func NewScenarioEngine() *ScenarioEngine {
	return &ScenarioEngine{fired: make(map[string]map[string]bool)}
}

// Due returns the events that become eligible now and marks them fired.
// An event is eligible once elapsed ≥ Delay and its condition holds; a false
// condition leaves it pending for later evaluation.
func (e *ScenarioEngine) Due(patientID string, script []ScenarioEvent, elapsed time.Duration, chart Chart) []ScenarioEvent {
	var due []ScenarioEvent
	for _, ev := range script {
		if e.Fired(patientID, ev.ID) || elapsed < ev.Delay {
			continue
		}
		if ev.Condition != nil && !ev.Condition.Holds(chart) {
			continue
		}
		e.markFired(patientID, ev.ID)
		due = append(due, ev)
	}
	return due
}

// Fired reports whether the event already fired for the patient.
func (e *ScenarioEngine) Fired(patientID, eventID string) bool {
	return e.fired[patientID][eventID]
}

func (e *ScenarioEngine) markFired(patientID, eventID string) {
	m, ok := e.fired[patientID]
	if !ok {
		m = make(map[string]bool)
		e.fired[patientID] = m
	}
	m[eventID] = true
}

// Reset forgets every firing.
func (e *ScenarioEngine) Reset() {
	e.fired = make(map[string]map[string]bool)
}

// Export returns fired event IDs per patient, in script order when scripts are given.
func (e *ScenarioEngine) Export(scripts map[string][]ScenarioEvent) map[string][]string {
	out := make(map[string][]string)
	for pid, m := range e.fired {
		var ids []string
		seen := make(map[string]bool)
		for _, ev := range scripts[pid] {
			if m[ev.ID] {
				ids = append(ids, ev.ID)
				seen[ev.ID] = true
			}
		}
		var extra []string
		for id, ok := range m {
			if ok && !seen[id] {
				extra = append(extra, id)
			}
		}
		sort.Strings(extra)
		ids = append(ids, extra...)
		if len(ids) > 0 {
			out[pid] = ids
		}
	}
	return out
}

// Import replaces fired state.
func (e *ScenarioEngine) Import(fired map[string][]string) {
	e.Reset()
	for pid, ids := range fired {
		for _, id := range ids {
			e.markFired(pid, id)
		}
	}
}
