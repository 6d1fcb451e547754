package models

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a policy or signal definition that cannot be
// evaluated, e.g. an alert field selector naming a sub-field the signal does
// not declare. Writes failing with it are aborted before persistence.
type ConfigurationError struct {
	Signal string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("signal %s: configuration error: %s", e.Signal, e.Reason)
}

// MissingFieldError reports a checked write that omitted every alert-relevant
// sub-field required by the signal configuration.
type MissingFieldError struct {
	Signal string
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("signal %s: write requires field values for alert fields %s",
		e.Signal, strings.Join(e.Fields, ", "))
}

// UnknownFieldError reports a write carrying a sub-field name the signal
// configuration does not declare.
type UnknownFieldError struct {
	Signal string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("signal %s: field %q is not declared in the signal configuration", e.Signal, e.Field)
}
