package sim

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DispositionKind is how the encounter ends.
type DispositionKind string

const (
	DispositionDischarge   DispositionKind = "Discharge"
	DispositionAMA         DispositionKind = "AMA"
	DispositionAdmit       DispositionKind = "Admit"
	DispositionObservation DispositionKind = "Observation"
	DispositionTransfer    DispositionKind = "Transfer"
	DispositionDeceased    DispositionKind = "Deceased"
)

// ValidDispositions is the set of recognized disposition kinds.
var ValidDispositions = map[DispositionKind]bool{
	DispositionDischarge: true, DispositionAMA: true, DispositionAdmit: true,
	DispositionObservation: true, DispositionTransfer: true, DispositionDeceased: true,
}

// Disposition outcomes.
const (
	DispositionPending  = "pending"
	DispositionAccepted = "accepted"
	DispositionRejected = "rejected"
	DispositionExecuted = "executed"
)

// DispositionRecord tracks the latest disposition request for a patient.
type DispositionRecord struct {
	RequestID   string          `json:"request_id"`
	Kind        DispositionKind `json:"kind"`
	Outcome     string          `json:"outcome"`
	Service     string          `json:"service,omitempty"`
	Message     string          `json:"message,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}

// DispositionOf returns the patient's latest disposition record.
func (s *Simulator) DispositionOf(patientID string) (DispositionRecord, bool) {
	d, ok := s.dispositions[patientID]
	if !ok {
		return DispositionRecord{}, false
	}
	return *d, true
}

// Disposition ends the encounter. Only Active patients accept one, and not while
// an admission request is pending; otherwise it returns false and changes nothing.
// Admit and Observation are answered by the patient's admission script after a
// drawn simulated delay; the other kinds take effect immediately.
func (s *Simulator) Disposition(patientID string, kind DispositionKind) (bool, error) {
	p, ok := s.byID[patientID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPatient, patientID)
	}
	if !ValidDispositions[kind] {
		return false, fmt.Errorf("unknown disposition %q", kind)
	}
	if p.Status != PatientActive {
		return false, nil
	}
	if d, ok := s.dispositions[patientID]; ok && d.Outcome == DispositionPending {
		return false, nil
	}
	now := s.clock.Now()
	rec := &DispositionRecord{RequestID: s.rng.NewID(), Kind: kind, RequestedAt: now}
	s.dispositions[patientID] = rec

	switch kind {
	case DispositionAdmit, DispositionObservation:
		script, scripted := s.content.Admissions[patientID]
		if !scripted {
			s.admit(p, rec, "", "Admission accepted.")
			return true, nil
		}
		rec.Outcome = DispositionPending
		rec.Service = script.Service
		delay := UniformDuration(s.rng.ForSubsystem(SubsystemDispositions), script.DelayMin, script.DelayMax)
		s.scheduleSim(&admissionCallbackEvent{
			due:       s.clock.Elapsed() + delay,
			patientID: patientID,
			requestID: rec.RequestID,
		})
		s.log(patientID, fmt.Sprintf("%s requested: %s", kind, script.Service))
		s.notify(NotifyInfo, patientID, "Admission Requested", fmt.Sprintf("%s: paging %s", p.ShortName(), script.Service))
	case DispositionDischarge, DispositionAMA:
		p.Status = PatientDischarged
		p.DischargedAt = now
		s.execute(p, rec, kind)
	case DispositionTransfer:
		p.Status = PatientTransferred
		p.DischargedAt = now
		p.Location = "Transfer Pending"
		s.execute(p, rec, kind)
	case DispositionDeceased:
		p.Status = PatientDeceased
		p.DischargedAt = now
		s.execute(p, rec, kind)
	}
	s.emit(Signal{Kind: SignalPatientUpdated, PatientID: patientID})
	return true, nil
}

func (s *Simulator) execute(p *Patient, rec *DispositionRecord, kind DispositionKind) {
	rec.Outcome = DispositionExecuted
	rec.ResolvedAt = s.clock.Now()
	s.addSignedNote(p.ID, dispositionNoteType[kind], dispositionNote(p, kind, s.pendingResultNames(p.ID)))
	s.log(p.ID, fmt.Sprintf("Disposition: %s", kind))
	notifyKind := NotifyInfo
	if kind == DispositionAMA || kind == DispositionDeceased {
		notifyKind = NotifyCritical
	}
	s.notify(notifyKind, p.ID, fmt.Sprintf("Patient %s", dispositionVerb[kind]), p.ShortName())
}

// resolveAdmission runs when the admitting team calls back.
func (s *Simulator) resolveAdmission(patientID, requestID string) {
	p, ok := s.byID[patientID]
	rec := s.dispositions[patientID]
	if !ok || rec == nil || rec.RequestID != requestID || rec.Outcome != DispositionPending {
		logrus.Debugf("<< admission callback %s: request superseded", patientID)
		return
	}
	if p.Status != PatientActive {
		rec.Outcome = DispositionRejected
		rec.ResolvedAt = s.clock.Now()
		return
	}
	script := s.content.Admissions[patientID]
	chart := s.chart(p)
	for _, rej := range script.Rejections {
		if rej.Condition != nil && rej.Condition.Holds(chart) {
			rec.Outcome = DispositionRejected
			rec.Message = rej.Message
			rec.ResolvedAt = s.clock.Now()
			s.log(patientID, fmt.Sprintf("Admission declined by %s", script.Service))
			s.notify(NotifyCallback, patientID, fmt.Sprintf("Callback: %s", script.Service), rej.Message)
			s.emit(Signal{Kind: SignalPatientUpdated, PatientID: patientID})
			return
		}
	}
	msg := script.AcceptMessage
	if msg == "" {
		msg = fmt.Sprintf("%s accepting.", script.Service)
	}
	s.admit(p, rec, script.Service, msg)
	s.emit(Signal{Kind: SignalPatientUpdated, PatientID: patientID})
}

func (s *Simulator) admit(p *Patient, rec *DispositionRecord, service, msg string) {
	rec.Outcome = DispositionAccepted
	rec.Service = service
	rec.Message = msg
	rec.ResolvedAt = s.clock.Now()
	p.Status = PatientAdmitted
	if rec.Kind == DispositionObservation {
		p.Status = PatientObservation
	}
	s.addSignedNote(p.ID, "Admission Order", admissionNote(p, rec))
	s.log(p.ID, fmt.Sprintf("ADMITTED (%s) to %s", rec.Kind, service))
	s.notify(NotifyCallback, p.ID, "Patient Admitted", msg)
}

func (s *Simulator) pendingResultNames(patientID string) []string {
	var names []string
	for _, r := range s.results[patientID] {
		if r.Pending {
			names = append(names, r.Name)
		}
	}
	return names
}
