package models

import (
	"fmt"
	"time"
)

// Operator is the comparison applied between a sample value and the threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "=="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Valid reports whether the operator is one of the supported comparisons.
func (o Operator) Valid() bool {
	switch o {
	case OpGreater, OpLess, OpEqual, OpGreaterEqual, OpLessEqual:
		return true
	}
	return false
}

// ThresholdPolicy holds the alert settings evaluated on every checked write of
// its signal. Exactly one policy exists per signal.
type ThresholdPolicy struct {
	Operator  Operator `yaml:"operator" json:"operator"`
	Threshold float64  `yaml:"threshold" json:"threshold"`
	// Tolerance is an integer multiplier of the configured base interval; the
	// product is the trailing window a crossing must be sustained for. Zero
	// disables debouncing.
	Tolerance int `yaml:"tolerance" json:"tolerance"`
	// Active gates notifications only: an inactive policy still updates the
	// signal's health flags.
	Active bool `yaml:"active" json:"active"`
	// ProblemVerb overrides the default problem-notification verb, e.g.
	// "is not reachable" for reachability checks.
	ProblemVerb string `yaml:"problem_verb" json:"problem_verb,omitempty"`
}

// Crossed applies the configured operator to value against the threshold.
// A crossing value is the "bad" condition.
func (p *ThresholdPolicy) Crossed(value float64) bool {
	switch p.Operator {
	case OpGreater:
		return value > p.Threshold
	case OpLess:
		return value < p.Threshold
	case OpEqual:
		return value == p.Threshold
	case OpGreaterEqual:
		return value >= p.Threshold
	case OpLessEqual:
		return value <= p.Threshold
	}
	return false
}

// WindowDuration converts the tolerance multiplier into a wall-clock window.
func (p *ThresholdPolicy) WindowDuration(baseInterval time.Duration) time.Duration {
	if p.Tolerance <= 0 {
		return 0
	}
	return time.Duration(p.Tolerance) * baseInterval
}

// CrossedBy reports whether the sample satisfies the crossing condition for
// the given signal. Signals with alert fields cross when any declared
// alert-relevant field crosses; a field absent from an individual sample does
// not count as crossing.
func (p *ThresholdPolicy) CrossedBy(signal *Signal, sample Sample) (bool, error) {
	if !signal.HasAlertFields() {
		return p.Crossed(sample.Value), nil
	}
	evaluated := false
	for _, name := range signal.AlertFields {
		value, ok := sample.Fields[name]
		if !ok {
			continue
		}
		evaluated = true
		if p.Crossed(value) {
			return true, nil
		}
	}
	if !evaluated && sample.Fields != nil {
		return false, &ConfigurationError{
			Signal: signal.Key,
			Reason: fmt.Sprintf("none of the alert fields %v present in sample", signal.AlertFields),
		}
	}
	return false, nil
}

// Validate rejects malformed policy definitions at configuration time.
func (p *ThresholdPolicy) Validate(signal *Signal) error {
	if !p.Operator.Valid() {
		return &ConfigurationError{Signal: signal.Key, Reason: fmt.Sprintf("unsupported operator %q", p.Operator)}
	}
	if p.Tolerance < 0 {
		return &ConfigurationError{Signal: signal.Key, Reason: "tolerance must not be negative"}
	}
	for _, name := range signal.AlertFields {
		if name == "" {
			return &ConfigurationError{Signal: signal.Key, Reason: "empty alert field name"}
		}
	}
	return nil
}
