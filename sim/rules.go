package sim

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the result of rule evaluation.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeWarn  Outcome = "warn"
	OutcomeBlock Outcome = "block"
)

// Finding is one rule's objection to a proposed order.
type Finding struct {
	Rule    string
	Outcome Outcome // warn or block
	Message string
}

// Verdict is the aggregate outcome of a rule set.
// Rule and Message describe the deciding finding: the block, or the first warning.
type Verdict struct {
	Outcome  Outcome
	Rule     string
	Message  string
	Findings []Finding
}

// Warnings returns the messages of all warn findings.
func (v Verdict) Warnings() []string {
	var out []string
	for _, f := range v.Findings {
		if f.Outcome == OutcomeWarn {
			out = append(out, f.Message)
		}
	}
	return out
}

// ProposedOrder is an order under evaluation, before it exists.
type ProposedOrder struct {
	Item     CatalogItem
	Priority Priority
}

// Chart is the read-only patient context rules and conditions evaluate against.
type Chart struct {
	Patient *Patient
	Orders  []*Order
	Results []*Result
	Now     time.Time
}

// LatestResult returns the most recently resulted, final result whose name matches
// one of names (case-insensitive).
func (c Chart) LatestResult(names ...string) *Result {
	var best *Result
	for _, r := range c.Results {
		if r.Pending {
			continue
		}
		for _, n := range names {
			if strings.EqualFold(r.Name, n) {
				if best == nil || !r.ResultedAt.Before(best.ResultedAt) {
					best = r
				}
				break
			}
		}
	}
	return best
}

// Rule is a named pure check. Check returns nil when the rule has no objection.
type Rule struct {
	Name  string
	Check func(order ProposedOrder, chart Chart) *Finding
}

// RuleSet evaluates rules in declaration order.
type RuleSet []Rule

// Evaluate runs every rule until the first block. Warnings are aggregated.
func (rs RuleSet) Evaluate(order ProposedOrder, chart Chart) Verdict {
	v := Verdict{Outcome: OutcomeAllow}
	for _, r := range rs {
		f := r.Check(order, chart)
		if f == nil {
			continue
		}
		if f.Rule == "" {
			f.Rule = r.Name
		}
		v.Findings = append(v.Findings, *f)
		if f.Outcome == OutcomeBlock {
			v.Outcome = OutcomeBlock
			v.Rule = f.Rule
			v.Message = f.Message
			return v
		}
		if v.Outcome == OutcomeAllow {
			v.Outcome = OutcomeWarn
			v.Rule = f.Rule
			v.Message = f.Message
		}
	}
	return v
}

// DefaultRules returns the bundled safety checks.
func DefaultRules(duplicateWindow time.Duration) RuleSet {
	return RuleSet{
		{Name: "allergy", Check: checkAllergy},
		{Name: "cross-reactivity", Check: checkCrossReactivity},
		{Name: "renal-dosing", Check: checkRenalDosing},
		{Name: "hypotension", Check: checkHypotension},
		{Name: "bradycardia", Check: checkBradycardia},
		{Name: "respiratory-depression", Check: checkRespiratoryDepression},
		{Name: "chf-fluids", Check: checkCHFFluids},
		{Name: "duplicate-order", Check: duplicateCheck(duplicateWindow)},
	}
}

func block(msg string, args ...any) *Finding {
	return &Finding{Outcome: OutcomeBlock, Message: fmt.Sprintf(msg, args...)}
}

func warn(msg string, args ...any) *Finding {
	return &Finding{Outcome: OutcomeWarn, Message: fmt.Sprintf(msg, args...)}
}

func nameHas(order ProposedOrder, terms ...string) bool {
	name := strings.ToLower(order.Item.Name)
	for _, t := range terms {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}

func checkAllergy(order ProposedOrder, chart Chart) *Finding {
	name := strings.ToLower(order.Item.Name)
	for _, a := range chart.Patient.Allergies {
		agent := strings.ToLower(strings.TrimSpace(a.Agent))
		if agent != "" && strings.Contains(name, agent) {
			return block("ALLERGY ALERT: patient allergic to %s (%s). Order blocked.", a.Agent, a.Reaction)
		}
	}
	return nil
}

var (
	penicillinClass = []string{"piperacillin", "amoxicillin", "ampicillin", "nafcillin"}
	cephalosporins  = []string{"cefazolin", "ceftriaxone", "cephalexin", "cefepime"}
	sulfonamides    = []string{"sulfamethoxazole", "bactrim", "tmp-smx"}
	contrastStudies = []string{"contrast", "angiography"}
)

func checkCrossReactivity(order ProposedOrder, chart Chart) *Finding {
	var first *Finding
	for _, a := range chart.Patient.Allergies {
		agent := strings.ToLower(a.Agent)
		var f *Finding
		switch {
		case strings.Contains(agent, "penicillin") && nameHas(order, penicillinClass...):
			f = block("ALLERGY: patient allergic to %s; %s is a penicillin-class antibiotic. Order blocked.", a.Agent, order.Item.Name)
		case strings.Contains(agent, "penicillin") && nameHas(order, cephalosporins...):
			f = warn("CROSS-REACTIVITY: penicillin allergy (%s); cephalosporin ordered, ~1-2%% cross-reactivity risk. Consider a carbapenem.", a.Reaction)
		case strings.Contains(agent, "sulfa") && nameHas(order, sulfonamides...):
			f = block("ALLERGY: patient allergic to sulfa drugs. Order blocked.")
		case (strings.Contains(agent, "contrast") || strings.Contains(agent, "iodine")) &&
			order.Item.Category == CategoryImaging && nameHas(order, contrastStudies...):
			f = warn("CONTRAST ALLERGY: %s (%s). Premedicate or choose a non-contrast study.", a.Agent, a.Reaction)
		}
		if f == nil {
			continue
		}
		if f.Outcome == OutcomeBlock {
			return f
		}
		if first == nil {
			first = f
		}
	}
	return first
}

// creatinine returns the latest resulted creatinine, falling back to the seed value.
func creatinine(chart Chart) float64 {
	if r := chart.LatestResult("Cr", "Creatinine"); r != nil {
		if v, ok := r.Numeric(); ok {
			return v
		}
	}
	return chart.Patient.Creatinine
}

func checkRenalDosing(order ProposedOrder, chart Chart) *Finding {
	cr := creatinine(chart)
	if cr <= 0 {
		return nil
	}
	switch {
	case cr > 1.5 && nameHas(order, "ketorolac"):
		return block("CONTRAINDICATED: ketorolac with creatinine %.1f (renal impairment). Use acetaminophen instead.", cr)
	case cr > 2.0 && nameHas(order, "metformin"):
		return warn("Metformin may be contraindicated with creatinine %.1f. Risk of lactic acidosis.", cr)
	case cr > 1.5 && nameHas(order, "meropenem", "vancomycin"):
		return warn("DOSE ADJUSTMENT: %s with creatinine %.1f. Verify dose.", order.Item.Name, cr)
	}
	return nil
}

func checkHypotension(order ProposedOrder, chart Chart) *Finding {
	v := chart.Patient.LatestVitals()
	if v == nil {
		return nil
	}
	switch {
	case v.SBP < 90 && nameHas(order, "nitroglycerin"):
		return block("CONTRAINDICATED: nitroglycerin with SBP %d. Patient is hypotensive.", v.SBP)
	case v.SBP < 90 && nameHas(order, "metoprolol"):
		return block("HOLD: metoprolol with SBP %d. Will worsen hypotension.", v.SBP)
	case v.SBP < 90 && nameHas(order, "lisinopril"):
		return block("HOLD: ACE inhibitor with SBP %d.", v.SBP)
	case v.SBP < 100 && nameHas(order, "furosemide"):
		return warn("Caution: furosemide with SBP %d. May worsen hypotension.", v.SBP)
	}
	return nil
}

func checkBradycardia(order ProposedOrder, chart Chart) *Finding {
	v := chart.Patient.LatestVitals()
	if v == nil {
		return nil
	}
	if v.HR < 60 && nameHas(order, "metoprolol") {
		return block("HOLD: beta-blocker with HR %d. Risk of symptomatic bradycardia.", v.HR)
	}
	return nil
}

func checkRespiratoryDepression(order ProposedOrder, chart Chart) *Finding {
	v := chart.Patient.LatestVitals()
	if v == nil {
		return nil
	}
	if v.RR < 10 && nameHas(order, "morphine", "fentanyl", "lorazepam") {
		return block("HOLD: respiratory depressant with RR %d. Consider naloxone if opioid-related.", v.RR)
	}
	return nil
}

func checkCHFFluids(order ProposedOrder, chart Chart) *Finding {
	prob, ok := chart.Patient.HasProblem("chf", "heart failure")
	if !ok {
		return nil
	}
	if nameHas(order, "bolus") && nameHas(order, "saline", "ringer") {
		return warn("CAUTION: IV fluid bolus with %s. Risk of pulmonary edema; consider smaller volumes or pressors.", prob)
	}
	return nil
}

func duplicateCheck(window time.Duration) func(ProposedOrder, Chart) *Finding {
	return func(order ProposedOrder, chart Chart) *Finding {
		for _, o := range chart.Orders {
			if o.Item.ID != order.Item.ID || o.Cancelled || o.Resulted {
				continue
			}
			age := chart.Now.Sub(o.PlacedAt)
			if age >= 0 && age < window {
				return warn("DUPLICATE: %s was already ordered %s ago.", order.Item.Name, age.Round(time.Second))
			}
		}
		return nil
	}
}
