package sim

import (
	"fmt"
	"strings"
	"time"
)

// NoteStatus is a note's signature state.
type NoteStatus string

const (
	NoteDraft  NoteStatus = "Draft"
	NoteSigned NoteStatus = "Signed"
)

// Note is a clinical note on the patient's chart.
type Note struct {
	ID        string     `json:"id"`
	PatientID string     `json:"patient_id"`
	Type      string     `json:"type"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	Status    NoteStatus `json:"status"`
	Time      time.Time  `json:"time"`
	SignedAt  time.Time  `json:"signed_at"`
}

const systemAuthor = "Sim Provider"

// AddNote saves a draft note.
func (s *Simulator) AddNote(patientID, noteType, author, content string) (*Note, error) {
	if _, ok := s.byID[patientID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPatient, patientID)
	}
	if author == "" {
		author = systemAuthor
	}
	n := &Note{
		ID:        s.rng.NewID(),
		PatientID: patientID,
		Type:      noteType,
		Author:    author,
		Content:   content,
		Status:    NoteDraft,
		Time:      s.clock.Now(),
	}
	s.notes[patientID] = append(s.notes[patientID], n)
	s.log(patientID, fmt.Sprintf("Note saved: %s", noteType))
	return n, nil
}

// SignNote signs a draft. Returns false for unknown or already signed notes.
func (s *Simulator) SignNote(patientID, noteID string) bool {
	for _, n := range s.notes[patientID] {
		if n.ID != noteID {
			continue
		}
		if n.Status == NoteSigned {
			return false
		}
		n.Status = NoteSigned
		n.SignedAt = s.clock.Now()
		s.log(patientID, fmt.Sprintf("Note signed: %s", n.Type))
		return true
	}
	return false
}

// Notes returns a patient's notes, oldest first.
func (s *Simulator) Notes(patientID string) []*Note {
	return append([]*Note(nil), s.notes[patientID]...)
}

// SetEDCourse replaces the patient's free-text ED course.
func (s *Simulator) SetEDCourse(patientID, text string) error {
	p, ok := s.byID[patientID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPatient, patientID)
	}
	p.EDCourse = text
	s.log(patientID, "ED course updated")
	s.emit(Signal{Kind: SignalPatientUpdated, PatientID: patientID})
	return nil
}

func (s *Simulator) addSignedNote(patientID, noteType, content string) {
	now := s.clock.Now()
	s.notes[patientID] = append(s.notes[patientID], &Note{
		ID:        s.rng.NewID(),
		PatientID: patientID,
		Type:      noteType,
		Author:    systemAuthor,
		Content:   content,
		Status:    NoteSigned,
		Time:      now,
		SignedAt:  now,
	})
}

var dispositionNoteType = map[DispositionKind]string{
	DispositionDischarge: "Discharge Summary",
	DispositionAMA:       "AMA Discharge Note",
	DispositionTransfer:  "Transfer Note",
	DispositionDeceased:  "Death Note",
}

var dispositionVerb = map[DispositionKind]string{
	DispositionDischarge: "Discharged",
	DispositionAMA:       "Left AMA",
	DispositionTransfer:  "Transferred",
	DispositionDeceased:  "Deceased",
}

func dispositionNote(p *Patient, kind DispositionKind, pending []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nPatient: %s | MRN: %s\n", strings.ToUpper(dispositionNoteType[kind]), p.Name, p.MRN)
	switch kind {
	case DispositionDischarge, DispositionAMA:
		course := p.EDCourse
		if course == "" {
			course = "[See ED course notes]"
		}
		fmt.Fprintf(&b, "\nED COURSE:\n%s\n\nDISCHARGE MEDICATIONS:\n", course)
		for _, m := range p.HomeMeds {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	case DispositionTransfer:
		list := "None"
		if len(pending) > 0 {
			list = strings.Join(pending, ", ")
		}
		fmt.Fprintf(&b, "\nPending results at transfer: %s\n", list)
		if v := p.LatestVitals(); v != nil {
			fmt.Fprintf(&b, "Last vitals: HR %d, BP %s, RR %d, SpO2 %d%%, Temp %.1f\n", v.HR, v.BP(), v.RR, v.SpO2, v.Temp)
		}
	}
	b.WriteString("\nSIMULATED: NOT FOR CLINICAL USE")
	return b.String()
}

func admissionNote(p *Patient, rec *DispositionRecord) string {
	allergies := "NKDA"
	if len(p.Allergies) > 0 {
		agents := make([]string, len(p.Allergies))
		for i, a := range p.Allergies {
			agents[i] = a.Agent
		}
		allergies = strings.Join(agents, ", ")
	}
	status := "Inpatient"
	if rec.Kind == DispositionObservation {
		status = "Observation"
	}
	return fmt.Sprintf("ADMISSION ORDER\n\nPatient: %s | MRN: %s\nAdmit to: %s\nStatus: %s\nAllergies: %s\nCode Status: Full Code",
		p.Name, p.MRN, rec.Service, status, allergies)
}
