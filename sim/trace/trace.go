package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures rule verdicts and scenario firings.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelFull additionally captures every stage transition.
	TraceLevelFull TraceLevel = "full"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelFull:      true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a simulation session.
// A nil *SimulationTrace is valid and records nothing.
type SimulationTrace struct {
	Config      TraceConfig
	Verdicts    []VerdictRecord
	Transitions []TransitionRecord
	Firings     []FiringRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:      config,
		Verdicts:    make([]VerdictRecord, 0),
		Transitions: make([]TransitionRecord, 0),
		Firings:     make([]FiringRecord, 0),
	}
}

func (st *SimulationTrace) enabled() bool {
	return st != nil && st.Config.Level != TraceLevelNone && st.Config.Level != ""
}

// RecordVerdict appends a rule verdict record.
func (st *SimulationTrace) RecordVerdict(record VerdictRecord) {
	if !st.enabled() {
		return
	}
	st.Verdicts = append(st.Verdicts, record)
}

// RecordTransition appends a stage transition record. Only kept at TraceLevelFull.
func (st *SimulationTrace) RecordTransition(record TransitionRecord) {
	if !st.enabled() || st.Config.Level != TraceLevelFull {
		return
	}
	st.Transitions = append(st.Transitions, record)
}

// RecordFiring appends a scenario firing record.
func (st *SimulationTrace) RecordFiring(record FiringRecord) {
	if !st.enabled() {
		return
	}
	st.Firings = append(st.Firings, record)
}

// Reset drops all collected records, keeping the configuration.
func (st *SimulationTrace) Reset() {
	if st == nil {
		return
	}
	st.Verdicts = st.Verdicts[:0]
	st.Transitions = st.Transitions[:0]
	st.Firings = st.Firings[:0]
}
