package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalVerdicts    int
	AllowedCount     int
	WarnedCount      int
	BlockedCount     int
	DeclinedCount    int            // warned orders the placer chose not to place
	RuleDistribution map[string]int // deciding rule name → count of warn/block verdicts
	TerminalStages   int
	Transitions      int
	Firings          int
	FiringsByKind    map[string]int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		RuleDistribution: make(map[string]int),
		FiringsByKind:    make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalVerdicts = len(st.Verdicts)
	for _, v := range st.Verdicts {
		switch v.Outcome {
		case "block":
			summary.BlockedCount++
		case "warn":
			summary.WarnedCount++
			if !v.Placed {
				summary.DeclinedCount++
			}
		default:
			summary.AllowedCount++
		}
		if v.Rule != "" {
			summary.RuleDistribution[v.Rule]++
		}
	}

	summary.Transitions = len(st.Transitions)
	for _, tr := range st.Transitions {
		if tr.Terminal {
			summary.TerminalStages++
		}
	}

	summary.Firings = len(st.Firings)
	for _, f := range st.Firings {
		summary.FiringsByKind[f.Kind]++
	}

	return summary
}
