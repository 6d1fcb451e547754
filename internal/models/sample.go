package models

import "time"

// Sample is a single immutable time-series point. For signals with alert
// fields the named sub-field values ride along with the primary value.
type Sample struct {
	Timestamp time.Time          `json:"timestamp"`
	Value     float64            `json:"value"`
	Fields    map[string]float64 `json:"fields,omitempty"`
}

// Transition classifies the outcome of one checked write against the
// previously persisted health flags.
type Transition string

const (
	// TransitionNone means flags were evaluated but did not change.
	TransitionNone Transition = "no_change"
	// TransitionProblem means the tolerant flag flipped healthy to unhealthy.
	TransitionProblem Transition = "became_unhealthy"
	// TransitionRecovery means the tolerant flag flipped unhealthy to healthy.
	TransitionRecovery Transition = "became_healthy"
	// TransitionSkipped means evaluation did not run (unchecked or historical
	// write) and the flags were left untouched.
	TransitionSkipped Transition = "not_evaluated"
)
