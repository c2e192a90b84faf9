package classifier

import (
	"regexp"
	"strings"

	"aide/internal/models"
)

// rule is one entry in an ordered classification table: a predicate over the
// lowercased utterance, the intent it yields, a fixed confidence, and an
// optional entity extractor run against the original text.
type rule struct {
	name       string
	match      func(lower string) bool
	intent     models.Intent
	confidence float64
	extract    func(text string) models.Entities
	reply      string
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// timePattern grabs a trailing time phrase ("at 5pm", "tomorrow morning",
	// "on friday", "in 2 hours").
	timePattern = regexp.MustCompile(`(?i)\b(at \d{1,2}(:\d{2})?\s?(am|pm)?|tomorrow( morning| afternoon| evening| night)?|tonight|today|on \w+day|in \d+ (minutes?|hours?|days?)|next week)\b.*$`)

	// aboutPattern grabs an "about ..." or "saying ..." clause.
	aboutPattern = regexp.MustCompile(`(?i)\b(?:about|saying|regarding)\s+(.+)$`)
)

func containsAny(lower string, phrases ...string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func extractEmail(text string) models.Entities {
	entities := models.Entities{}
	if addresses := emailPattern.FindAllString(text, -1); len(addresses) > 0 {
		entities["recipient"] = addresses
	}
	if m := aboutPattern.FindStringSubmatch(text); len(m) > 1 {
		entities["subject"] = []string{strings.TrimSpace(m[1])}
	}
	return entities
}

func extractTime(text string) models.Entities {
	entities := models.Entities{}
	if m := timePattern.FindString(text); m != "" {
		entities["time"] = []string{strings.TrimSpace(m)}
	}
	if m := aboutPattern.FindStringSubmatch(text); len(m) > 1 {
		entities["subject"] = []string{strings.TrimSpace(m[1])}
	}
	return entities
}

func extractQuery(text string) models.Entities {
	lower := strings.ToLower(text)
	for _, prefix := range []string{"search for ", "search ", "look up ", "find ", "research "} {
		if strings.HasPrefix(lower, prefix) {
			return models.Entities{"query": []string{strings.TrimSpace(text[len(prefix):])}}
		}
	}
	return models.Entities{"query": []string{strings.TrimSpace(text)}}
}

// bypassRules short-circuit classification before the remote call for a
// small set of high-precision trigger phrases. They exist to guarantee
// sub-second response for common commands.
var bypassRules = []rule{
	{
		name: "news",
		match: func(lower string) bool {
			return containsAny(lower, "news", "headlines", "what's happening in the world")
		},
		intent:     models.IntentFetchNews,
		confidence: 1.0,
	},
	{
		name: "loop",
		match: func(lower string) bool {
			return containsAny(lower, "start a loop", "start loop", "run a loop", "begin loop")
		},
		intent:     models.IntentStartLoop,
		confidence: 1.0,
	},
	{
		name: "quote",
		match: func(lower string) bool {
			return containsAny(lower, "quote of the day", "motivational quote", "inspire me", "give me a quote")
		},
		intent:     models.IntentGetQuote,
		confidence: 1.0,
	},
}

// fallbackRules classify locally when the remote call is unavailable or
// fails. Evaluated in priority order; the first match wins.
var fallbackRules = []rule{
	{
		name: "greeting",
		match: func(lower string) bool {
			trimmed := strings.TrimRight(lower, "!. ")
			for _, greeting := range []string{"hi", "hey", "hello", "good morning", "good afternoon", "good evening", "yo"} {
				if trimmed == greeting || strings.HasPrefix(trimmed, greeting+" ") {
					return true
				}
			}
			return false
		},
		intent:     models.IntentGreeting,
		confidence: 0.95,
		reply:      "Hey! What can I do for you?",
	},
	{
		name: "thanks",
		match: func(lower string) bool {
			return containsAny(lower, "thank", "thx", "appreciate it")
		},
		intent:     models.IntentThanks,
		confidence: 0.9,
		reply:      "You're welcome!",
	},
	{
		name: "email",
		match: func(lower string) bool {
			return containsAny(lower, "email", "e-mail") || strings.Contains(lower, "mail to")
		},
		intent:     models.IntentSendEmail,
		confidence: 0.85,
		extract:    extractEmail,
	},
	{
		name: "reminder",
		match: func(lower string) bool {
			return containsAny(lower, "remind me", "reminder", "don't let me forget")
		},
		intent:     models.IntentCreateReminder,
		confidence: 0.85,
		extract:    extractTime,
	},
	{
		name: "calendar-create",
		match: func(lower string) bool {
			return containsAny(lower, "schedule", "book a meeting", "add to my calendar", "set up a meeting", "create an event")
		},
		intent:     models.IntentCreateEvent,
		confidence: 0.85,
		extract:    extractTime,
	},
	{
		name: "calendar-check",
		match: func(lower string) bool {
			return containsAny(lower, "calendar", "my schedule", "what's on my agenda", "am i free", "do i have anything")
		},
		intent:     models.IntentCheckCalendar,
		confidence: 0.85,
		extract:    extractTime,
	},
	{
		name: "task",
		match: func(lower string) bool {
			return containsAny(lower, "add a task", "create a task", "todo", "to-do", "add to my list")
		},
		intent:     models.IntentCreateTask,
		confidence: 0.8,
	},
	{
		name: "knowledge",
		match: func(lower string) bool {
			return containsAny(lower, "save this", "remember that", "note that", "save to my notes")
		},
		intent:     models.IntentSaveKnowledge,
		confidence: 0.8,
	},
	{
		name: "research",
		match: func(lower string) bool {
			return strings.Contains(lower, "research")
		},
		intent:     models.IntentResearch,
		confidence: 0.8,
		extract:    extractQuery,
	},
	{
		name: "search",
		match: func(lower string) bool {
			return containsAny(lower, "search", "look up", "find out", "google")
		},
		intent:     models.IntentSearch,
		confidence: 0.75,
		extract:    extractQuery,
	},
}

const unknownReply = "I'm not sure what you'd like me to do. Could you rephrase that?"
