package sim

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// SnapshotVersion is the schema version written into every snapshot. Restore
// rejects any other version.
const SnapshotVersion = 4

// PatientState is the transient part of a patient; demographics come from content.
type PatientState struct {
	ID            string           `json:"id"`
	Location      string           `json:"location"`
	Status        PatientStatus    `json:"status"`
	DischargedAt  time.Time        `json:"discharged_at"`
	EDCourse      string           `json:"ed_course"`
	ScenarioStart time.Time        `json:"scenario_start"`
	Vitals        []VitalsSnapshot `json:"vitals"`
}

// Snapshot is the serializable simulation state handed to a persistence collaborator.
type Snapshot struct {
	Version      int                          `json:"v"`
	SavedAt      time.Time                    `json:"saved_at"` // simulated
	Elapsed      time.Duration                `json:"elapsed"`  // simulated, since session start
	Speed        float64                      `json:"speed"`
	Patients     []PatientState               `json:"patients"`
	Orders       map[string][]*Order          `json:"orders"`
	Results      map[string][]*Result         `json:"results"`
	Notes        map[string][]*Note           `json:"notes"`
	Audit        []AuditEntry                 `json:"audit"`
	Dispositions map[string]DispositionRecord `json:"dispositions"`
	FiredEvents  map[string][]string          `json:"fired_events"`
}

// Encode serializes the snapshot as JSON.
func (snap Snapshot) Encode() ([]byte, error) {
	return json.Marshal(snap)
}

// DecodeSnapshot parses a snapshot, returning ErrSchemaMismatch for other versions.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: got v%d, want v%d", ErrSchemaMismatch, snap.Version, SnapshotVersion)
	}
	return snap, nil
}

// Snapshot returns a deep copy of the persistable state. The newest
// Config.SnapshotAuditCap audit entries are kept.
func (s *Simulator) Snapshot() Snapshot {
	snap := Snapshot{
		Version:      SnapshotVersion,
		SavedAt:      s.clock.Now(),
		Elapsed:      s.clock.Elapsed(),
		Speed:        s.clock.Speed(),
		Orders:       make(map[string][]*Order, len(s.orders)),
		Results:      make(map[string][]*Result, len(s.results)),
		Notes:        make(map[string][]*Note, len(s.notes)),
		Dispositions: make(map[string]DispositionRecord, len(s.dispositions)),
		FiredEvents:  s.scenarios.Export(s.content.Scripts),
	}
	for _, p := range s.patients {
		snap.Patients = append(snap.Patients, PatientState{
			ID:            p.ID,
			Location:      p.Location,
			Status:        p.Status,
			DischargedAt:  p.DischargedAt,
			EDCourse:      p.EDCourse,
			ScenarioStart: p.ScenarioStart,
			Vitals:        append([]VitalsSnapshot(nil), p.Vitals...),
		})
	}
	for pid, orders := range s.orders {
		for _, o := range orders {
			snap.Orders[pid] = append(snap.Orders[pid], o.clone())
		}
	}
	for pid, results := range s.results {
		for _, r := range results {
			snap.Results[pid] = append(snap.Results[pid], r.clone())
		}
	}
	for pid, notes := range s.notes {
		for _, n := range notes {
			c := *n
			snap.Notes[pid] = append(snap.Notes[pid], &c)
		}
	}
	for pid, d := range s.dispositions {
		snap.Dispositions[pid] = *d
	}
	audit := s.audit
	if over := len(audit) - s.cfg.SnapshotAuditCap; over > 0 {
		audit = audit[over:]
	}
	snap.Audit = append([]AuditEntry(nil), audit...)
	return snap
}

// Restore replaces simulation state with snap. On version mismatch it returns
// ErrSchemaMismatch and changes nothing.
//
// Patients are reseeded from content and overlaid with their saved transient
// fields; saved patients unknown to content are dropped. The clock continues the
// saved timeline at the saved speed, so simulated time never runs backward across
// a restart. Deferred work is re-armed from the restore: pending-final results get
// their full delay again, in-flight stages restart their wait now, and pending
// admission requests draw a fresh delay.
func (s *Simulator) Restore(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: got v%d, want v%d", ErrSchemaMismatch, snap.Version, SnapshotVersion)
	}
	s.clearEvents()
	s.clock.SetSpeed(snap.Speed)
	if !snap.SavedAt.IsZero() {
		s.clock.RebaseTo(snap.SavedAt, snap.Elapsed)
	}
	s.seed()
	active := s.clock.Active()
	elapsed := s.clock.Elapsed()

	for _, ps := range snap.Patients {
		p, ok := s.byID[ps.ID]
		if !ok {
			logrus.Warnf("snapshot patient %q not in content; dropped", ps.ID)
			continue
		}
		if ps.Location != "" {
			p.Location = ps.Location
		}
		if ps.Status != "" {
			p.Status = ps.Status
		}
		p.DischargedAt = ps.DischargedAt
		p.EDCourse = ps.EDCourse
		if !ps.ScenarioStart.IsZero() {
			p.ScenarioStart = ps.ScenarioStart
		}
		if len(ps.Vitals) > 0 {
			p.Vitals = append([]VitalsSnapshot(nil), ps.Vitals...)
		}
	}

	for pid, orders := range snap.Orders {
		if _, ok := s.byID[pid]; !ok {
			continue
		}
		for _, saved := range orders {
			o := saved.clone()
			if o.InFlight() && o.NextStage() > 0 {
				o.Stages[o.NextStage()-1].CompletedActive = active
			}
			s.orders[pid] = append(s.orders[pid], o)
		}
	}

	s.results = make(map[string][]*Result)
	for pid, results := range snap.Results {
		if _, ok := s.byID[pid]; !ok {
			continue
		}
		for _, saved := range results {
			r := saved.clone()
			s.results[pid] = append(s.results[pid], r)
			if r.Pending && r.PendingFinal != nil {
				delay := r.PendingFinal.Delay
				if delay <= 0 {
					delay = s.cfg.DefaultFinalize
				}
				s.scheduleSim(&finalizeResultEvent{due: elapsed + delay, patientID: pid, resultID: r.ID})
			}
		}
	}

	for pid, notes := range snap.Notes {
		for _, saved := range notes {
			n := *saved
			s.notes[pid] = append(s.notes[pid], &n)
		}
	}

	for pid, d := range snap.Dispositions {
		if _, ok := s.byID[pid]; !ok {
			continue
		}
		rec := d
		s.dispositions[pid] = &rec
		if rec.Outcome != DispositionPending {
			continue
		}
		script, ok := s.content.Admissions[pid]
		if !ok {
			rec.Outcome = DispositionRejected
			continue
		}
		delay := UniformDuration(s.rng.ForSubsystem(SubsystemDispositions), script.DelayMin, script.DelayMax)
		s.scheduleSim(&admissionCallbackEvent{due: elapsed + delay, patientID: pid, requestID: rec.RequestID})
	}

	s.audit = append([]AuditEntry(nil), snap.Audit...)
	if over := len(s.audit) - s.cfg.AuditCap; over > 0 {
		s.audit = s.audit[over:]
	}
	s.scenarios.Import(snap.FiredEvents)
	s.log("", "State restored from snapshot")
	s.emit(Signal{Kind: SignalReset})
	return nil
}
