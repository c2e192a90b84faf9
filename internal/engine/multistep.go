package engine

import (
	"regexp"
	"strings"
)

// conjunctions mark a prompt as spanning several work units.
var conjunctions = []string{
	" then ",
	" after that",
	" afterwards",
	" next,",
	" followed by ",
	" finally ",
	" step by step",
}

// verbPairPattern matches "research X and create Y" style prompts: a
// gathering verb and a producing verb joined by "and".
var verbPairPattern = regexp.MustCompile(
	`\b(research|find|gather|collect|analy[sz]e|review|read|compare)\b.+\band\b.+\b(create|write|summari[sz]e|draft|build|compile|produce|prepare)\b`)

// IsMultiStep reports whether a prompt is eligible for the iteration
// engine. Prompts failing this gate are rejected upstream with a hint.
func IsMultiStep(prompt string) bool {
	lower := " " + strings.ToLower(strings.TrimSpace(prompt)) + " "
	for _, conjunction := range conjunctions {
		if strings.Contains(lower, conjunction) {
			return true
		}
	}
	return verbPairPattern.MatchString(lower)
}

// MultiStepHint is the message returned when a prompt fails the gate.
const MultiStepHint = "That looks like a single-step request. Multi-step tasks combine several actions, e.g. \"research competitors and create a summary\"."
