// Package trace provides decision-trace recording for post-run analysis of a training session.
// This package has no dependencies on sim/; it stores pure data types.
package trace

import "time"

// VerdictRecord captures a single rule evaluation performed at order placement.
type VerdictRecord struct {
	PatientID string
	CatalogID string
	Clock     time.Time
	Outcome   string // allow, warn, block
	Rule      string // name of the deciding rule; empty for allow
	Message   string
	Placed    bool // whether an order was created
}

// TransitionRecord captures one order stage completion.
type TransitionRecord struct {
	OrderID    string
	PatientID  string
	Stage      string
	StageIndex int
	Clock      time.Time
	Terminal   bool
}

// FiringRecord captures a scenario event that fired.
type FiringRecord struct {
	PatientID string
	EventID   string
	Kind      string
	Clock     time.Time
}
