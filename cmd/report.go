package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/simehr/simehr/sim"
	"github.com/simehr/simehr/sim/trace"
)

// patientReport is one patient's end-of-session tally.
type patientReport struct {
	ID             string
	Name           string
	Status         sim.PatientStatus
	Disposition    string
	Orders         int
	InFlight       int
	Cancelled      int
	Administered   int
	Results        int
	Critical       int
	Unacknowledged int
	Notes          int
	LastVitals     string
}

// sessionReport summarizes a finished run.
type sessionReport struct {
	Elapsed       time.Duration // simulated
	Speed         float64
	Patients      []patientReport
	Notifications int
	AuditEntries  int
	Trace         *trace.TraceSummary // nil when tracing is off
}

func buildReport(s *sim.Simulator) sessionReport {
	r := sessionReport{
		Elapsed:       s.Clock().Elapsed(),
		Speed:         s.Clock().Speed(),
		Notifications: len(s.Notifications()),
		AuditEntries:  len(s.Audit()),
	}
	for _, p := range s.Patients() {
		pr := patientReport{ID: p.ID, Name: p.Name, Status: p.Status}
		if d, ok := s.DispositionOf(p.ID); ok {
			pr.Disposition = fmt.Sprintf("%s (%s)", d.Kind, d.Outcome)
			if d.Service != "" {
				pr.Disposition += " to " + d.Service
			}
		}
		for _, o := range s.Orders(p.ID) {
			pr.Orders++
			switch {
			case o.Cancelled:
				pr.Cancelled++
			case o.Administered:
				pr.Administered++
			case o.InFlight():
				pr.InFlight++
			}
		}
		for _, res := range s.Results(p.ID) {
			pr.Results++
			if res.Flag == sim.FlagCritical {
				pr.Critical++
			}
			if !res.Acknowledged && !res.Pending {
				pr.Unacknowledged++
			}
		}
		pr.Notes = len(s.Notes(p.ID))
		if v := p.LatestVitals(); v != nil {
			pr.LastVitals = fmt.Sprintf("HR %d BP %s RR %d SpO2 %d%% T %.1f", v.HR, v.BP(), v.RR, v.SpO2, v.Temp)
		}
		r.Patients = append(r.Patients, pr)
	}
	sort.Slice(r.Patients, func(i, j int) bool { return r.Patients[i].ID < r.Patients[j].ID })
	if st := s.Trace(); st != nil && st.Config.Level != trace.TraceLevelNone && st.Config.Level != "" {
		r.Trace = trace.Summarize(st)
	}
	return r
}

// Print writes the report in the same aligned style as the metrics printout.
func (r sessionReport) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Session Summary ===")
	fmt.Fprintf(w, "Simulated Time       : %s\n", r.Elapsed.Round(time.Second))
	fmt.Fprintf(w, "Speed                : %gx\n", r.Speed)
	fmt.Fprintf(w, "Open Notifications   : %d\n", r.Notifications)
	fmt.Fprintf(w, "Audit Entries        : %d\n", r.AuditEntries)
	for _, p := range r.Patients {
		fmt.Fprintf(w, "\n[%s] %s - %s\n", p.ID, p.Name, p.Status)
		if p.Disposition != "" {
			fmt.Fprintf(w, "  Disposition        : %s\n", p.Disposition)
		}
		fmt.Fprintf(w, "  Orders             : %d (in flight %d, cancelled %d, given %d)\n",
			p.Orders, p.InFlight, p.Cancelled, p.Administered)
		fmt.Fprintf(w, "  Results            : %d (critical %d, unacknowledged %d)\n",
			p.Results, p.Critical, p.Unacknowledged)
		fmt.Fprintf(w, "  Notes              : %d\n", p.Notes)
		if p.LastVitals != "" {
			fmt.Fprintf(w, "  Last Vitals        : %s\n", p.LastVitals)
		}
	}
	if r.Trace == nil {
		return
	}
	t := r.Trace
	fmt.Fprintln(w, "\n=== Decision Trace ===")
	fmt.Fprintf(w, "Verdicts             : %d (allow %d, warn %d, block %d, declined %d)\n",
		t.TotalVerdicts, t.AllowedCount, t.WarnedCount, t.BlockedCount, t.DeclinedCount)
	rules := make([]string, 0, len(t.RuleDistribution))
	for name := range t.RuleDistribution {
		rules = append(rules, name)
	}
	sort.Strings(rules)
	for _, name := range rules {
		fmt.Fprintf(w, "  %-19s: %d\n", name, t.RuleDistribution[name])
	}
	fmt.Fprintf(w, "Stage Transitions    : %d (terminal %d)\n", t.Transitions, t.TerminalStages)
	fmt.Fprintf(w, "Scenario Firings     : %d\n", t.Firings)
}
