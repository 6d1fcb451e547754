package models

// ObjectRef identifies the object a signal is attached to (a device, a user).
type ObjectRef struct {
	Kind  string `yaml:"kind" json:"kind"`
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	URL   string `yaml:"url" json:"url,omitempty"`
}

// Signal is a monitored metric stream. The alerting core only appends samples
// to it and maintains its two health flags; everything else is configuration
// owned by whoever registered the signal.
type Signal struct {
	// Key is the time-series identity of the signal.
	Key string `yaml:"key" json:"key"`
	// Name is the human-facing display name used in notifications.
	Name string `yaml:"name" json:"name"`
	// Organization scopes recipient resolution; empty means global.
	Organization string `yaml:"organization" json:"organization,omitempty"`
	// Target is the related object, if any.
	Target *ObjectRef `yaml:"target" json:"target,omitempty"`
	// Fields enumerates the named sub-fields a sample may carry.
	Fields []string `yaml:"fields" json:"fields,omitempty"`
	// AlertFields is the subset of Fields that is alert-relevant. When empty
	// the policy evaluates the sample's primary value.
	AlertFields []string `yaml:"alert_fields" json:"alert_fields,omitempty"`
}

// HasAlertFields reports whether threshold evaluation reads named sub-fields
// instead of the primary value.
func (s *Signal) HasAlertFields() bool {
	return len(s.AlertFields) > 0
}

// DeclaresField reports whether name is part of the signal's field set.
func (s *Signal) DeclaresField(name string) bool {
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	for _, f := range s.AlertFields {
		if f == name {
			return true
		}
	}
	return false
}

// ValidateFieldValues checks a checked write's sub-field values against the
// signal configuration. Unknown keys and missing alert-relevant fields are
// both rejected before anything is persisted.
func (s *Signal) ValidateFieldValues(values map[string]float64) error {
	if !s.HasAlertFields() {
		return nil
	}
	for name := range values {
		if !s.DeclaresField(name) {
			return &UnknownFieldError{Signal: s.Key, Field: name}
		}
	}
	for _, name := range s.AlertFields {
		if _, ok := values[name]; ok {
			return nil
		}
	}
	return &MissingFieldError{Signal: s.Key, Fields: append([]string(nil), s.AlertFields...)}
}

// HealthState is the persisted per-signal snapshot of both health flags.
type HealthState struct {
	// Healthy reflects only the most recent evaluated sample.
	Healthy bool `json:"healthy"`
	// TolerantHealthy is the debounced flag; transitions of this flag are the
	// sole trigger for notifications.
	TolerantHealthy bool `json:"tolerant_healthy"`
	// TransitionSeq increments on every TolerantHealthy flip and lets the
	// dispatcher deduplicate retried transitions.
	TransitionSeq uint64 `json:"transition_seq"`
}

// NewHealthState returns the default state for a signal that never crossed.
func NewHealthState() HealthState {
	return HealthState{Healthy: true, TolerantHealthy: true}
}
