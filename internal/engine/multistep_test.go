package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMultiStep(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   bool
	}{
		{"then conjunction", "research the market, then write a report", true},
		{"after that", "find three vendors and after that compare prices", true},
		{"step by step", "work through the migration step by step", true},
		{"verb pair", "research competitors and create a summary", true},
		{"gather and compile", "gather the quarterly numbers and compile a deck", true},
		{"single action", "send an email to bob", false},
		{"greeting", "hey there", false},
		{"single search", "search for pasta recipes", false},
		{"and without work verbs", "remind me about milk and bread", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMultiStep(tt.prompt))
		})
	}
}
