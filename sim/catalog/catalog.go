// Package catalog loads the static simulation content (order catalog, patients,
// stage timing, result generators, scenario scripts, admission scripts, delay
// events, note templates) from YAML and resolves it once into *sim.Content.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/simehr/simehr/sim"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Document is the on-disk content format.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Document struct {
	Version       int                           `yaml:"version"`
	Timing        map[sim.Category]TimingDoc    `yaml:"timing"`
	DelayEvents   []DelayEventDoc               `yaml:"delay_events"`
	Catalog       []CatalogItemDoc              `yaml:"catalog"`
	Patients      []PatientDoc                  `yaml:"patients"`
	Results       ResultsDoc                    `yaml:"results"`
	Scripts       map[string][]ScenarioEventDoc `yaml:"scripts"`
	Admissions    map[string]AdmissionDoc       `yaml:"admissions"`
	NoteTemplates map[string]string             `yaml:"note_templates"`
	SmartPhrases  map[string]string             `yaml:"smart_phrases"`
}

// Span is a [min, max] duration range written as a two-element sequence, e.g. [2s, 4s].
type Span struct {
	Min time.Duration
	Max time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Span) UnmarshalYAML(node *yaml.Node) error {
	var raw []string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: span must be [min, max]: %w", node.Line, err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("line %d: span must have exactly 2 elements, got %d", node.Line, len(raw))
	}
	lo, err := time.ParseDuration(raw[0])
	if err != nil {
		return fmt.Errorf("line %d: span min: %w", node.Line, err)
	}
	hi, err := time.ParseDuration(raw[1])
	if err != nil {
		return fmt.Errorf("line %d: span max: %w", node.Line, err)
	}
	if lo < 0 || hi < lo {
		return fmt.Errorf("line %d: span [%v, %v] must satisfy 0 <= min <= max", node.Line, lo, hi)
	}
	s.Min, s.Max = lo, hi
	return nil
}

// TimingDoc names a category's stages (after "Placed") and gives one span per
// stage for each priority.
type TimingDoc struct {
	Stages []string                `yaml:"stages"`
	Ranges map[sim.Priority][]Span `yaml:"ranges"`
}

// CatalogItemDoc is one orderable entry.
type CatalogItemDoc struct {
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Category  sim.Category     `yaml:"category"`
	SubType   string           `yaml:"sub_type"`
	ResultKey string           `yaml:"result_key"`
	MedEffect *sim.VitalsDelta `yaml:"med_effect"`
}

// DelayEventDoc is an operational slowdown.
type DelayEventDoc struct {
	Category    sim.Category `yaml:"category"`
	Probability float64      `yaml:"probability"`
	Delay       Span         `yaml:"delay"`
	Message     string       `yaml:"message"`
}

// AllergyDoc is one charted allergy.
type AllergyDoc struct {
	Agent    string `yaml:"agent"`
	Reaction string `yaml:"reaction"`
	Severity string `yaml:"severity"`
}

// VitalsDoc is one seeded vitals reading at an offset from simulation start.
type VitalsDoc struct {
	Offset time.Duration `yaml:"offset"`
	HR     int           `yaml:"hr"`
	SBP    int           `yaml:"sbp"`
	DBP    int           `yaml:"dbp"`
	RR     int           `yaml:"rr"`
	SpO2   int           `yaml:"spo2"`
	Temp   float64       `yaml:"temp"`
	Pain   int           `yaml:"pain"`
	Source string        `yaml:"source"`
}

// PreResultDoc is a result already on the chart when the simulation starts.
type PreResultDoc struct {
	Offset    time.Duration `yaml:"offset"`
	Name      string        `yaml:"name"`
	Value     string        `yaml:"value"`
	Unit      string        `yaml:"unit"`
	Reference string        `yaml:"reference"`
	Flag      sim.Flag      `yaml:"flag"`
	Category  string        `yaml:"category"`
	Report    string        `yaml:"report"`
	Pending   bool          `yaml:"pending"`
}

// PatientDoc is one scripted patient.
type PatientDoc struct {
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name"`
	MRN            string         `yaml:"mrn"`
	DOB            string         `yaml:"dob"`
	Age            int            `yaml:"age"`
	Sex            string         `yaml:"sex"`
	Location       string         `yaml:"location"`
	Encounter      string         `yaml:"encounter"`
	Acuity         string         `yaml:"acuity"`
	ChiefComplaint string         `yaml:"chief_complaint"`
	Triage         string         `yaml:"triage"`
	Allergies      []AllergyDoc   `yaml:"allergies"`
	Alerts         []string       `yaml:"alerts"`
	Problems       []string       `yaml:"problems"`
	HomeMeds       []string       `yaml:"home_meds"`
	Creatinine     float64        `yaml:"creatinine"`
	EDCourse       string         `yaml:"ed_course"`
	Vitals         []VitalsDoc    `yaml:"vitals"`
	PreResults     []PreResultDoc `yaml:"pre_results"`
}

// ResultsDoc holds the result generator tiers: per-patient first, then generic.
type ResultsDoc struct {
	Patients map[string]map[string][]ItemDoc `yaml:"patients"`
	Generic  map[string][]ItemDoc            `yaml:"generic"`
}

// ScenarioEventDoc is one scripted event.
type ScenarioEventDoc struct {
	ID      string           `yaml:"id"`
	Delay   time.Duration    `yaml:"delay"`
	Kind    sim.EventKind    `yaml:"kind"`
	From    string           `yaml:"from"`
	Message string           `yaml:"message"`
	Set     *sim.VitalsPatch `yaml:"set"`
	Delta   *sim.VitalsDelta `yaml:"delta"`
	When    *ConditionDoc    `yaml:"when"`
}

// RejectionDoc is one reason an admitting team declines.
type RejectionDoc struct {
	When    ConditionDoc `yaml:"when"`
	Message string       `yaml:"message"`
}

// AdmissionDoc is a patient's admitting-team script.
type AdmissionDoc struct {
	Service       string         `yaml:"service"`
	AcceptMessage string         `yaml:"accept_message"`
	Delay         Span           `yaml:"delay"`
	Rejections    []RejectionDoc `yaml:"rejections"`
}

// Bundle is resolved content plus the note-writing aids that live beside it.
type Bundle struct {
	Content       *sim.Content
	NoteTemplates map[string]string
	SmartPhrases  map[string]string
}

// Default returns the embedded default content.
func Default() (*Bundle, error) {
	b, err := Parse(defaultsYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded defaults: %w", err)
	}
	return b, nil
}

// Load reads and resolves a content file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and resolves YAML content.
func Parse(data []byte) (*Bundle, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing content: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	content, err := doc.Resolve()
	if err != nil {
		return nil, err
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}
	return &Bundle{Content: content, NoteTemplates: doc.NoteTemplates, SmartPhrases: doc.SmartPhrases}, nil
}

// Validate checks the fields the kernel's own validation cannot see.
func (d *Document) Validate() error {
	for cat, t := range d.Timing {
		if !sim.ValidCategories[cat] {
			return fmt.Errorf("timing: unknown category %q", cat)
		}
		if len(t.Stages) == 0 {
			return fmt.Errorf("timing.%s: at least one stage required", cat)
		}
		for pri, spans := range t.Ranges {
			if pri == "" || !sim.ValidPriorities[pri] {
				return fmt.Errorf("timing.%s: unknown priority %q; valid: STAT, Urgent, Routine", cat, pri)
			}
			if len(spans) != len(t.Stages) {
				return fmt.Errorf("timing.%s.%s: %d spans for %d stages", cat, pri, len(spans), len(t.Stages))
			}
		}
	}
	for i, de := range d.DelayEvents {
		if !sim.ValidCategories[de.Category] {
			return fmt.Errorf("delay_events[%d]: unknown category %q", i, de.Category)
		}
	}
	for pid, tiers := range d.Results.Patients {
		for key, items := range tiers {
			if err := validateItems(fmt.Sprintf("results.patients.%s.%s", pid, key), items); err != nil {
				return err
			}
		}
	}
	for key, items := range d.Results.Generic {
		if err := validateItems("results.generic."+key, items); err != nil {
			return err
		}
	}
	for i, p := range d.Patients {
		for j, pr := range p.PreResults {
			if !sim.ValidFlags[pr.Flag] {
				return fmt.Errorf("patients[%d].pre_results[%d]: unknown flag %q", i, j, pr.Flag)
			}
		}
	}
	return nil
}

// Resolve turns the document into kernel content. Conditions and generators
// are built here, once.
func (d *Document) Resolve() (*sim.Content, error) {
	c := &sim.Content{
		Catalog:    make([]sim.CatalogItem, 0, len(d.Catalog)),
		Timing:     make(sim.TimingTable, len(d.Timing)),
		Scripts:    make(map[string][]sim.ScenarioEvent, len(d.Scripts)),
		Admissions: make(map[string]sim.AdmissionScript, len(d.Admissions)),
	}
	for _, item := range d.Catalog {
		c.Catalog = append(c.Catalog, sim.CatalogItem{
			ID:        item.ID,
			Name:      item.Name,
			Category:  item.Category,
			SubType:   item.SubType,
			ResultKey: item.ResultKey,
			MedEffect: item.MedEffect,
		})
	}
	for cat, t := range d.Timing {
		byPri := make(map[sim.Priority][]sim.StageTemplate, len(t.Ranges))
		for pri, spans := range t.Ranges {
			tmpl := make([]sim.StageTemplate, len(spans))
			for i, sp := range spans {
				tmpl[i] = sim.StageTemplate{Name: t.Stages[i], Min: sp.Min, Max: sp.Max}
			}
			byPri[pri] = tmpl
		}
		c.Timing[cat] = byPri
	}
	for _, de := range d.DelayEvents {
		c.DelayEvents = append(c.DelayEvents, sim.DelayEvent{
			Category:    de.Category,
			Message:     de.Message,
			Probability: de.Probability,
			Min:         de.Delay.Min,
			Max:         de.Delay.Max,
		})
	}
	for _, p := range d.Patients {
		c.Patients = append(c.Patients, p.seed())
	}

	patientTier := make(sim.PatientGenerators, len(d.Results.Patients))
	for pid, byKey := range d.Results.Patients {
		patientTier[pid] = make(map[string]sim.ResultGenerator, len(byKey))
		for key, items := range byKey {
			patientTier[pid][key] = newItemGenerator(items)
		}
	}
	genericTier := make(sim.GenericGenerators, len(d.Results.Generic))
	for key, items := range d.Results.Generic {
		genericTier[key] = newItemGenerator(items)
	}
	c.Generators = []sim.GeneratorTier{patientTier, genericTier}

	for pid, events := range d.Scripts {
		script := make([]sim.ScenarioEvent, 0, len(events))
		for _, ev := range events {
			se := sim.ScenarioEvent{
				ID:      ev.ID,
				Delay:   ev.Delay,
				Kind:    ev.Kind,
				From:    ev.From,
				Message: ev.Message,
				Set:     ev.Set,
				Delta:   ev.Delta,
			}
			if ev.When != nil {
				cond, err := ev.When.Resolve()
				if err != nil {
					return nil, fmt.Errorf("scripts.%s.%s: %w", pid, ev.ID, err)
				}
				se.Condition = cond
			}
			script = append(script, se)
		}
		c.Scripts[pid] = script
	}
	for pid, a := range d.Admissions {
		script := sim.AdmissionScript{
			Service:       a.Service,
			AcceptMessage: a.AcceptMessage,
			DelayMin:      a.Delay.Min,
			DelayMax:      a.Delay.Max,
		}
		for i, rej := range a.Rejections {
			cond, err := rej.When.Resolve()
			if err != nil {
				return nil, fmt.Errorf("admissions.%s.rejections[%d]: %w", pid, i, err)
			}
			script.Rejections = append(script.Rejections, sim.AdmissionRejection{Condition: cond, Message: rej.Message})
		}
		c.Admissions[pid] = script
	}
	return c, nil
}

func (p PatientDoc) seed() sim.PatientSeed {
	seed := sim.PatientSeed{
		Patient: sim.Patient{
			ID:             p.ID,
			Name:           p.Name,
			MRN:            p.MRN,
			DOB:            p.DOB,
			Age:            p.Age,
			Sex:            p.Sex,
			Encounter:      p.Encounter,
			Acuity:         p.Acuity,
			ChiefComplaint: p.ChiefComplaint,
			Triage:         p.Triage,
			Alerts:         append([]string(nil), p.Alerts...),
			Problems:       append([]string(nil), p.Problems...),
			HomeMeds:       append([]string(nil), p.HomeMeds...),
			Creatinine:     p.Creatinine,
			Location:       p.Location,
			EDCourse:       p.EDCourse,
		},
	}
	for _, a := range p.Allergies {
		seed.Patient.Allergies = append(seed.Patient.Allergies, sim.Allergy{Agent: a.Agent, Reaction: a.Reaction, Severity: a.Severity})
	}
	for _, v := range p.Vitals {
		seed.Vitals = append(seed.Vitals, sim.SeedVitals{
			Offset: v.Offset,
			Vitals: sim.VitalsSnapshot{
				HR: v.HR, SBP: v.SBP, DBP: v.DBP, RR: v.RR,
				SpO2: v.SpO2, Temp: v.Temp, Pain: v.Pain, Source: v.Source,
			},
		})
	}
	for _, r := range p.PreResults {
		seed.PreResults = append(seed.PreResults, sim.SeedResult{
			Offset: r.Offset,
			Item: sim.ResultItem{
				Name:      r.Name,
				Value:     r.Value,
				Unit:      r.Unit,
				Reference: r.Reference,
				Flag:      r.Flag,
				Category:  r.Category,
				Report:    r.Report,
				Pending:   r.Pending,
			},
		})
	}
	return seed
}
