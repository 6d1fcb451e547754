package models

import "time"

// Level is the severity attached to a notification event.
type Level string

const (
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Default verbs and subject prefixes for threshold notifications.
const (
	VerbProblem  = "crossed the threshold"
	VerbRecovery = "returned within the threshold"

	SubjectPrefixProblem  = "PROBLEM"
	SubjectPrefixRecovery = "RECOVERY"
)

// NotificationEvent is a single alert delivered to a single recipient. One
// event exists per resolved recipient per tolerant-health transition.
type NotificationEvent struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	// Actor is the signal the event originates from.
	Actor string `json:"actor"`
	// ActionObject references the alert settings that triggered the event.
	ActionObject string     `json:"action_object"`
	Target       *ObjectRef `json:"target,omitempty"`
	Level        Level      `json:"level"`
	Verb         string     `json:"verb"`
	Message      string     `json:"message"`
	EmailSubject string     `json:"email_subject"`
	Timestamp    time.Time  `json:"timestamp"`
	// TransitionSeq carries the per-signal transition version the event
	// belongs to.
	TransitionSeq uint64 `json:"transition_seq"`
}
