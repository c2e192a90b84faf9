package models

import (
	"time"
)

// Intent is the classified purpose of a user utterance.
type Intent string

const (
	IntentGreeting       Intent = "GREETING"
	IntentThanks         Intent = "THANKS"
	IntentSendEmail      Intent = "SEND_EMAIL"
	IntentCreateReminder Intent = "CREATE_REMINDER"
	IntentCreateTask     Intent = "CREATE_TASK"
	IntentCreateEvent    Intent = "CREATE_EVENT"
	IntentCheckCalendar  Intent = "CHECK_CALENDAR"
	IntentSaveKnowledge  Intent = "SAVE_KNOWLEDGE"
	IntentSearch         Intent = "SEARCH"
	IntentResearch       Intent = "RESEARCH"
	IntentFetchNews      Intent = "FETCH_NEWS"
	IntentGetQuote       Intent = "GET_QUOTE"
	IntentStartLoop      Intent = "START_LOOP"
	IntentUnknown        Intent = "UNKNOWN"
)

// knownIntents is the closed set of intents the classifier may emit.
var knownIntents = map[Intent]bool{
	IntentGreeting:       true,
	IntentThanks:         true,
	IntentSendEmail:      true,
	IntentCreateReminder: true,
	IntentCreateTask:     true,
	IntentCreateEvent:    true,
	IntentCheckCalendar:  true,
	IntentSaveKnowledge:  true,
	IntentSearch:         true,
	IntentResearch:       true,
	IntentFetchNews:      true,
	IntentGetQuote:       true,
	IntentStartLoop:      true,
	IntentUnknown:        true,
}

// NormalizeIntent coerces unrecognized labels to IntentUnknown.
func NormalizeIntent(raw string) Intent {
	intent := Intent(raw)
	if knownIntents[intent] {
		return intent
	}
	return IntentUnknown
}

// IsKnownIntent reports whether the intent is in the closed set.
func IsKnownIntent(intent Intent) bool {
	return knownIntents[intent]
}

// Entities holds best-effort extracted slots for an utterance. Values are
// multi-valued because some slots (recipients) legitimately repeat.
type Entities map[string][]string

// First returns the first value for a key, or "".
func (e Entities) First(key string) string {
	if len(e[key]) == 0 {
		return ""
	}
	return e[key][0]
}

// IntentClassification is the immutable result of classifying one utterance.
// It is never persisted on its own; a copy travels inside an Approval's
// action data when the intent requires sign-off.
type IntentClassification struct {
	// Intent is the classified purpose.
	Intent Intent `json:"intent"`

	// Confidence is the classifier's confidence, clamped to [0,1].
	Confidence float64 `json:"confidence"`

	// Entities holds extracted slots (recipient, time, subject, ...).
	Entities Entities `json:"entities"`

	// Reply is an optional conversational reply supplied by the classifier.
	Reply string `json:"reply,omitempty"`

	// Source names the classification path: heuristic, remote or fallback.
	Source string `json:"source,omitempty"`

	// RawUtterance is the original user text.
	RawUtterance string `json:"raw_utterance"`

	// Timestamp is when the classification was produced.
	Timestamp time.Time `json:"timestamp"`
}

// ClampConfidence bounds a confidence value to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
