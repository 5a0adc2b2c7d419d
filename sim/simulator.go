package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/simehr/simehr/sim/trace"
)

// Simulator is the explicit simulation context: it owns the clock, every
// patient, order, result, note and notification, and the deferred event queue.
// Components receive it (or a Chart derived from it) rather than reaching for
// shared state.
//
// Thread-safety: NOT thread-safe. All calls must come from one goroutine; use
// Runner to share a Simulator with other goroutines.
type Simulator struct {
	cfg     Config
	content *Content
	catalog map[string]CatalogItem

	clock     *VirtualClock
	rng       *PartitionedRNG
	rules     RuleSet
	resulter  *ResultEngine
	vitals    VitalsEngine
	scenarios *ScenarioEngine
	trace     *trace.SimulationTrace

	patients      []*Patient // content order
	byID          map[string]*Patient
	orders        map[string][]*Order  // patient ID → orders, oldest first
	results       map[string][]*Result // patient ID → results, oldest first
	notes         map[string][]*Note
	dispositions  map[string]*DispositionRecord
	audit         []AuditEntry
	notifications []Notification

	queue    EventQueue // due in active real time
	simQueue EventQueue // due in simulated elapsed time
	seq      int64
	epoch    uint64

	listeners []Listener
}

// Option customizes a Simulator at construction.
type Option func(*Simulator)

// WithRules replaces the default rule set.
func WithRules(rules RuleSet) Option {
	return func(s *Simulator) { s.rules = rules }
}

// WithTrace records decisions into st.
func WithTrace(st *trace.SimulationTrace) Option {
	return func(s *Simulator) { s.trace = st }
}

// NewSimulator validates cfg and content and seeds a fresh simulation whose
// clock starts at wall.Now().
func NewSimulator(cfg Config, content *Content, wall WallClock, key SimulationKey, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := content.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content: %w", err)
	}
	if wall == nil {
		wall = SystemWallClock{}
	}
	s := &Simulator{
		cfg:       cfg,
		content:   content,
		catalog:   make(map[string]CatalogItem, len(content.Catalog)),
		clock:     NewVirtualClock(wall, cfg.InitialSpeed),
		rng:       NewPartitionedRNG(key),
		rules:     DefaultRules(cfg.DuplicateWindow),
		resulter:  NewResultEngine(content.Generators...),
		vitals:    NewVitalsEngine(cfg),
		scenarios: NewScenarioEngine(),
	}
	for _, item := range content.Catalog {
		s.catalog[item.ID] = item
	}
	for _, opt := range opts {
		opt(s)
	}
	s.seed()
	return s, nil
}

// seed rebuilds every patient and chart from content at the current clock time.
func (s *Simulator) seed() {
	now := s.clock.Now()
	s.patients = make([]*Patient, 0, len(s.content.Patients))
	s.byID = make(map[string]*Patient, len(s.content.Patients))
	s.orders = make(map[string][]*Order)
	s.results = make(map[string][]*Result)
	s.notes = make(map[string][]*Note)
	s.dispositions = make(map[string]*DispositionRecord)
	s.audit = nil
	s.notifications = nil
	s.scenarios.Reset()

	for _, seed := range s.content.Patients {
		p := seed.Patient.clone()
		if p.Status == "" {
			p.Status = PatientActive
		}
		p.ScenarioStart = now
		p.Vitals = p.Vitals[:0]
		for _, sv := range seed.Vitals {
			v := sv.Vitals
			v.Time = now.Add(sv.Offset)
			p.Vitals = append(p.Vitals, v)
		}
		if len(p.Vitals) > s.cfg.HistoryCap {
			p.Vitals = p.Vitals[len(p.Vitals)-s.cfg.HistoryCap:]
		}
		if p.Baseline == nil {
			if last := p.LatestVitals(); last != nil {
				b := *last
				p.Baseline = &b
			}
		}
		for _, sr := range seed.PreResults {
			item := sr.Item
			finishItem(&item, CategoryLab)
			r := s.newResult(p.ID, nil, item)
			r.ResultedAt = now.Add(sr.Offset)
			s.results[p.ID] = append(s.results[p.ID], r)
		}
		s.patients = append(s.patients, p)
		s.byID[p.ID] = p
	}
}

// Reset discards all simulation state, reseeds from content, and restarts the
// clock. Deferred events scheduled before the reset never execute.
func (s *Simulator) Reset() {
	s.clearEvents()
	s.clock.Reset()
	s.rng.Reseed()
	s.trace.Reset()
	s.seed()
	s.log("", "System reset: all simulation data cleared")
	s.emit(Signal{Kind: SignalReset})
}

// Tick is the fast periodic driver step: deferred events, then the order
// pipeline, then scenario events. No-op while paused.
func (s *Simulator) Tick() {
	if s.clock.Paused() {
		return
	}
	s.drainEvents()
	s.advanceOrders()
	s.runScenarios()
}

// SlowTick is the slow periodic driver step: one vitals reading per patient in
// care, then operational delay events. No-op while paused.
func (s *Simulator) SlowTick() {
	if s.clock.Paused() {
		return
	}
	s.VitalsTick()
	s.runDelayEvents()
}

// VitalsTick appends one periodic reading for every in-care patient with history
// and raises threshold alerts. No-op while paused.
func (s *Simulator) VitalsTick() {
	if s.clock.Paused() {
		return
	}
	now := s.clock.Now()
	rng := s.rng.ForSubsystem(SubsystemVitals)
	for _, p := range s.patients {
		if !p.Status.InCare() {
			continue
		}
		next, ok := s.vitals.Next(p, s.orders[p.ID], now, rng)
		if !ok {
			continue
		}
		s.recordVitals(p, next)
		for _, a := range s.vitals.Alerts(p, next) {
			alert := a
			s.notify(NotifyCritical, p.ID, "Vitals Alert", alert.Message)
			s.emit(Signal{Kind: SignalVitalsAlert, PatientID: p.ID, Alert: &alert})
		}
	}
}

func (s *Simulator) recordVitals(p *Patient, v VitalsSnapshot) {
	p.Vitals = appendVitals(p.Vitals, v, s.cfg.HistoryCap)
	latest := v
	s.emit(Signal{Kind: SignalVitalsUpdated, PatientID: p.ID, Vitals: &latest})
}

// applyMedEffect appends an immediate, undecayed post-medication reading.
func (s *Simulator) applyMedEffect(p *Patient, eff VitalsDelta) {
	last := p.LatestVitals()
	if last == nil {
		return
	}
	s.recordVitals(p, s.vitals.Immediate(*last, eff, SourcePostMed, s.clock.Now()))
}

// runScenarios fires every due scenario event for in-care patients.
func (s *Simulator) runScenarios() {
	now := s.clock.Now()
	for _, p := range s.patients {
		script := s.content.Scripts[p.ID]
		if len(script) == 0 || !p.Status.InCare() {
			continue
		}
		due := s.scenarios.Due(p.ID, script, now.Sub(p.ScenarioStart), s.chart(p))
		for i := range due {
			s.fireScenario(p, &due[i])
		}
	}
}

func (s *Simulator) fireScenario(p *Patient, ev *ScenarioEvent) {
	logrus.Debugf("<< scenario %s/%s (%s)", p.ID, ev.ID, ev.Kind)
	s.trace.RecordFiring(trace.FiringRecord{PatientID: p.ID, EventID: ev.ID, Kind: string(ev.Kind), Clock: s.clock.Now()})
	title := scenarioTitle(ev)
	s.log(p.ID, fmt.Sprintf("%s: %s", title, ev.Message))
	if ev.Kind == EventDeterioration && (ev.Set != nil || ev.Delta != nil) {
		if last := p.LatestVitals(); last != nil {
			s.recordVitals(p, s.vitals.Patched(*last, ev.Set, ev.Delta, SourceScenario, s.clock.Now()))
		}
	}
	s.notify(NotificationKind(ev.Kind), p.ID, title, ev.Message)
	s.emit(Signal{Kind: SignalScenarioFired, PatientID: p.ID, Event: ev})
}

func scenarioTitle(ev *ScenarioEvent) string {
	switch ev.Kind {
	case EventPage:
		if ev.From != "" {
			return "Page from " + ev.From
		}
		return "Page"
	case EventCallback:
		if ev.From != "" {
			return "Callback: " + ev.From
		}
		return "Callback"
	case EventDeterioration:
		return "Patient Deteriorating"
	default:
		return "Reminder"
	}
}

// chart builds the read-only context for rules and conditions.
func (s *Simulator) chart(p *Patient) Chart {
	return Chart{Patient: p, Orders: s.orders[p.ID], Results: s.results[p.ID], Now: s.clock.Now()}
}

// Chart returns the rule/condition context for a patient.
func (s *Simulator) Chart(patientID string) (Chart, error) {
	p, ok := s.byID[patientID]
	if !ok {
		return Chart{}, fmt.Errorf("%w: %s", ErrUnknownPatient, patientID)
	}
	return s.chart(p), nil
}

func (s *Simulator) findOrder(patientID, orderID string) *Order {
	for _, o := range s.orders[patientID] {
		if o.ID == orderID {
			return o
		}
	}
	return nil
}

// === Command surface: clock ===

// SetSpeed changes the clock multiplier. Negative values are clamped to 0.
func (s *Simulator) SetSpeed(speed float64) {
	s.clock.SetSpeed(speed)
	s.log("", fmt.Sprintf("Clock speed set to %gx", s.clock.Speed()))
}

// Pause freezes the simulation. Idempotent.
func (s *Simulator) Pause() {
	if s.clock.Paused() {
		return
	}
	s.clock.Pause()
	s.log("", "Simulation paused")
}

// Resume unfreezes the simulation. Idempotent.
func (s *Simulator) Resume() {
	if !s.clock.Paused() {
		return
	}
	s.clock.Resume()
	s.log("", "Simulation resumed")
}

// === Accessors ===

// Config returns the kernel parameters.
func (s *Simulator) Config() Config { return s.cfg }

// Clock returns the simulation clock. Callers must use the Simulator's commands to mutate it.
func (s *Simulator) Clock() *VirtualClock { return s.clock }

// Trace returns the decision trace, or nil when tracing is off.
func (s *Simulator) Trace() *trace.SimulationTrace { return s.trace }

// CatalogItem looks up an orderable item.
func (s *Simulator) CatalogItem(id string) (CatalogItem, bool) {
	item, ok := s.catalog[id]
	return item, ok
}

// Patients returns every patient in content order.
func (s *Simulator) Patients() []*Patient {
	return append([]*Patient(nil), s.patients...)
}

// Patient looks up a patient.
func (s *Simulator) Patient(id string) (*Patient, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Orders returns a patient's orders, oldest first.
func (s *Simulator) Orders(patientID string) []*Order {
	return append([]*Order(nil), s.orders[patientID]...)
}

// Results returns a patient's results, oldest first.
func (s *Simulator) Results(patientID string) []*Result {
	return append([]*Result(nil), s.results[patientID]...)
}

// ActiveOrders counts orders still moving through the pipeline.
func (s *Simulator) ActiveOrders() int {
	n := 0
	for _, orders := range s.orders {
		for _, o := range orders {
			if o.InFlight() {
				n++
			}
		}
	}
	return n
}
