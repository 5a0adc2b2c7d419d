package sim

import (
	"strings"
	"time"
)

// PatientStatus is the patient's place in the encounter.
type PatientStatus string

const (
	PatientActive      PatientStatus = "Active"
	PatientAdmitted    PatientStatus = "Admitted"
	PatientObservation PatientStatus = "Observation"
	PatientDischarged  PatientStatus = "Discharged"
	PatientTransferred PatientStatus = "Transferred"
	PatientDeceased    PatientStatus = "Deceased"
)

// InCare reports whether the patient is still under the simulated team's care.
// Patients out of care receive no vitals readings and no scenario events.
func (s PatientStatus) InCare() bool {
	switch s {
	case PatientDischarged, PatientTransferred, PatientDeceased:
		return false
	}
	return true
}

// Allergy is one charted allergy.
type Allergy struct {
	Agent    string `json:"agent"`
	Reaction string `json:"reaction,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// Patient is the kernel's live view of one scripted patient.
// Demographic fields come from content; the rest is transient simulation state.
type Patient struct {
	ID             string
	Name           string
	MRN            string
	DOB            string
	Age            int
	Sex            string
	Encounter      string
	Acuity         string
	ChiefComplaint string
	Triage         string
	Allergies      []Allergy
	Alerts         []string
	Problems       []string
	HomeMeds       []string
	Creatinine     float64 // seed value used by renal checks until a resulted creatinine exists

	// Baseline is the reading homeostatic drift pulls toward; defaults to the last seeded reading.
	Baseline *VitalsSnapshot

	Location      string
	Status        PatientStatus
	DischargedAt  time.Time
	EDCourse      string
	ScenarioStart time.Time
	Vitals        []VitalsSnapshot // oldest first, capped at Config.HistoryCap
}

// LatestVitals returns the newest reading, or nil when the history is empty.
func (p *Patient) LatestVitals() *VitalsSnapshot {
	if len(p.Vitals) == 0 {
		return nil
	}
	return &p.Vitals[len(p.Vitals)-1]
}

// ShortName returns the family name from a "Family, Given" name.
func (p *Patient) ShortName() string {
	if i := strings.Index(p.Name, ","); i > 0 {
		return p.Name[:i]
	}
	return p.Name
}

// HasProblem reports whether any problem list entry contains one of the terms (case-insensitive).
func (p *Patient) HasProblem(terms ...string) (string, bool) {
	for _, prob := range p.Problems {
		lp := strings.ToLower(prob)
		for _, t := range terms {
			if strings.Contains(lp, strings.ToLower(t)) {
				return prob, true
			}
		}
	}
	return "", false
}

func (p *Patient) clone() *Patient {
	c := *p
	c.Allergies = append([]Allergy(nil), p.Allergies...)
	c.Alerts = append([]string(nil), p.Alerts...)
	c.Problems = append([]string(nil), p.Problems...)
	c.HomeMeds = append([]string(nil), p.HomeMeds...)
	c.Vitals = append([]VitalsSnapshot(nil), p.Vitals...)
	if p.Baseline != nil {
		b := *p.Baseline
		c.Baseline = &b
	}
	return &c
}
