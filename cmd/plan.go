package cmd

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/simehr/simehr/sim"
	"github.com/simehr/simehr/sim/catalog"
)

// ActionKind names one scripted trainee action.
type ActionKind string

const (
	ActionPlace       ActionKind = "place"
	ActionCancel      ActionKind = "cancel"
	ActionAdminister  ActionKind = "administer"
	ActionAcknowledge ActionKind = "acknowledge"
	ActionSpeed       ActionKind = "speed"
	ActionPause       ActionKind = "pause"
	ActionResume      ActionKind = "resume"
	ActionDisposition ActionKind = "disposition"
	ActionNote        ActionKind = "note"
	ActionCourse      ActionKind = "course"
)

var validActions = map[ActionKind]bool{
	ActionPlace: true, ActionCancel: true, ActionAdminister: true, ActionAcknowledge: true,
	ActionSpeed: true, ActionPause: true, ActionResume: true, ActionDisposition: true,
	ActionNote: true, ActionCourse: true,
}

// Plan is a scripted trainee session: actions run when the simulated clock
// reaches their offset. Actions sharing an offset run in file order.
type Plan struct {
	Actions []Action `yaml:"actions"`
}

// Action is one plan entry. Which fields apply depends on Do.
type Action struct {
	At       time.Duration       `yaml:"at"` // simulated, since the run started
	Do       ActionKind          `yaml:"do"`
	Patient  string              `yaml:"patient,omitempty"`
	Item     string              `yaml:"item,omitempty"` // catalog ID
	Priority sim.Priority        `yaml:"priority,omitempty"`
	Strict   bool                `yaml:"strict,omitempty"` // place: decline on warnings
	Speed    float64             `yaml:"speed,omitempty"`
	For      time.Duration       `yaml:"for,omitempty"` // pause: wall time before resuming
	Kind     sim.DispositionKind `yaml:"kind,omitempty"`
	Template string              `yaml:"template,omitempty"` // note: rendered before Text
	Text     string              `yaml:"text,omitempty"`     // note/course; smart phrases expand
	Author   string              `yaml:"author,omitempty"`
	Sign     bool                `yaml:"sign,omitempty"`
}

// LoadPlan reads and strictly parses a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan strictly parses a plan; unknown fields are errors.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	sort.SliceStable(p.Actions, func(i, j int) bool { return p.Actions[i].At < p.Actions[j].At })
	return &p, nil
}

// Validate checks every action against the loaded content.
func (p *Plan) Validate(b *catalog.Bundle) error {
	patients := make(map[string]bool, len(b.Content.Patients))
	for _, seed := range b.Content.Patients {
		patients[seed.Patient.ID] = true
	}
	items := make(map[string]sim.CatalogItem, len(b.Content.Catalog))
	for _, item := range b.Content.Catalog {
		items[item.ID] = item
	}

	for i, a := range p.Actions {
		prefix := fmt.Sprintf("actions[%d] (%s at %s)", i, a.Do, a.At)
		if !validActions[a.Do] {
			return fmt.Errorf("actions[%d]: unknown action %q", i, a.Do)
		}
		if a.At < 0 {
			return fmt.Errorf("%s: offset must be >= 0", prefix)
		}
		switch a.Do {
		case ActionSpeed:
			if a.Speed < 0 {
				return fmt.Errorf("%s: speed must be >= 0", prefix)
			}
			continue
		case ActionPause:
			if a.For < 0 {
				return fmt.Errorf("%s: for must be >= 0", prefix)
			}
			continue
		case ActionResume:
			continue
		}

		if !patients[a.Patient] {
			return fmt.Errorf("%s: unknown patient %q", prefix, a.Patient)
		}
		switch a.Do {
		case ActionPlace, ActionCancel, ActionAdminister:
			item, ok := items[a.Item]
			if !ok {
				return fmt.Errorf("%s: unknown catalog item %q", prefix, a.Item)
			}
			if a.Do == ActionAdminister && item.Category != sim.CategoryMedication {
				return fmt.Errorf("%s: %s is not a medication", prefix, a.Item)
			}
			if a.Priority != "" && !sim.ValidPriorities[a.Priority] {
				return fmt.Errorf("%s: unknown priority %q", prefix, a.Priority)
			}
		case ActionDisposition:
			if !sim.ValidDispositions[a.Kind] {
				return fmt.Errorf("%s: unknown disposition %q", prefix, a.Kind)
			}
		case ActionNote:
			if a.Template == "" && a.Text == "" {
				return fmt.Errorf("%s: note needs a template or text", prefix)
			}
			if a.Template != "" {
				if _, ok := b.NoteTemplates[a.Template]; !ok {
					return fmt.Errorf("%s: unknown note template %q", prefix, a.Template)
				}
			}
		case ActionCourse:
			if a.Text == "" {
				return fmt.Errorf("%s: course needs text", prefix)
			}
		}
	}
	return nil
}

// planExecutor applies plan actions as the simulated clock reaches them.
// Its methods must run on the goroutine that owns the simulator.
type planExecutor struct {
	actions []Action
	next    int
	bundle  *catalog.Bundle

	resumeAfter time.Duration // wall time left on a timed pause; zero when none
}

func newPlanExecutor(p *Plan, b *catalog.Bundle) *planExecutor {
	if p == nil {
		return &planExecutor{bundle: b}
	}
	return &planExecutor{actions: p.Actions, bundle: b}
}

// Done reports whether every action has run.
func (e *planExecutor) Done() bool {
	return e.next >= len(e.actions) && e.resumeAfter == 0
}

// Step runs the actions that are due. wall is the wall time since the last call,
// used to expire timed pauses.
func (e *planExecutor) Step(s *sim.Simulator, wall time.Duration) {
	if e.resumeAfter > 0 {
		e.resumeAfter -= wall
		if e.resumeAfter <= 0 {
			e.resumeAfter = 0
			s.Resume()
			logrus.Infof("plan: resumed after timed pause at %s", s.Clock().Elapsed().Round(time.Second))
		}
	}
	for e.next < len(e.actions) && e.actions[e.next].At <= s.Clock().Elapsed() {
		a := e.actions[e.next]
		e.next++
		if err := e.apply(s, a); err != nil {
			logrus.Warnf("plan: %s at %s: %v", a.Do, a.At, err)
		}
	}
}

func (e *planExecutor) apply(s *sim.Simulator, a Action) error {
	switch a.Do {
	case ActionPlace:
		p, err := s.PlaceOrder(a.Patient, a.Item, a.Priority, sim.PlaceOptions{RejectWarnings: a.Strict})
		if err != nil {
			return err
		}
		if !p.Placed() {
			logrus.Infof("plan: %s for %s not placed (%s): %s", a.Item, a.Patient, p.Verdict.Outcome, p.Verdict.Message)
		}
	case ActionCancel:
		o := latestOrder(s, a.Patient, a.Item, func(o *sim.Order) bool { return !o.Resulted && !o.Cancelled && !o.Administered })
		if o == nil || !s.CancelOrder(a.Patient, o.ID) {
			return fmt.Errorf("no cancellable %s order", a.Item)
		}
	case ActionAdminister:
		o := latestOrder(s, a.Patient, a.Item, (*sim.Order).Ready)
		if o == nil || !s.Administer(a.Patient, o.ID) {
			return fmt.Errorf("no ready %s order", a.Item)
		}
	case ActionAcknowledge:
		for _, r := range s.Results(a.Patient) {
			if !r.Pending && !r.Acknowledged {
				s.AcknowledgeResult(a.Patient, r.ID)
			}
		}
	case ActionSpeed:
		s.SetSpeed(a.Speed)
	case ActionPause:
		s.Pause()
		e.resumeAfter = a.For
	case ActionResume:
		e.resumeAfter = 0
		s.Resume()
	case ActionDisposition:
		ok, err := s.Disposition(a.Patient, a.Kind)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("patient %s cannot take a disposition now", a.Patient)
		}
	case ActionNote:
		return e.note(s, a)
	case ActionCourse:
		return s.SetEDCourse(a.Patient, e.bundle.ExpandPhrases(a.Text))
	default:
		return fmt.Errorf("unknown action %q", a.Do)
	}
	return nil
}

func (e *planExecutor) note(s *sim.Simulator, a Action) error {
	p, ok := s.Patient(a.Patient)
	if !ok {
		return fmt.Errorf("%w: %s", sim.ErrUnknownPatient, a.Patient)
	}
	var body string
	noteType := "Progress Note"
	if a.Template != "" {
		rendered, ok := e.bundle.RenderTemplate(a.Template, p)
		if !ok {
			return fmt.Errorf("unknown note template %q", a.Template)
		}
		body = rendered
		noteType = a.Template
	}
	if a.Text != "" {
		if body != "" {
			body += "\n"
		}
		body += e.bundle.ExpandPhrases(a.Text)
	}
	author := a.Author
	if author == "" {
		author = "Trainee"
	}
	n, err := s.AddNote(a.Patient, noteType, author, body)
	if err != nil {
		return err
	}
	if a.Sign {
		s.SignNote(a.Patient, n.ID)
	}
	return nil
}

// latestOrder returns the newest order for patientID with the catalog ID that satisfies keep.
func latestOrder(s *sim.Simulator, patientID, catalogID string, keep func(*sim.Order) bool) *sim.Order {
	orders := s.Orders(patientID)
	for i := len(orders) - 1; i >= 0; i-- {
		if o := orders[i]; o.Item.ID == catalogID && keep(o) {
			return o
		}
	}
	return nil
}
