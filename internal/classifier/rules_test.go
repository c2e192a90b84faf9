package classifier

import (
	"testing"
)

func TestExtractEmail(t *testing.T) {
	entities := extractEmail("send an email to alice@example.com about the quarterly numbers")
	if entities.First("recipient") != "alice@example.com" {
		t.Fatalf("expected recipient, got %v", entities)
	}
	if entities.First("subject") != "the quarterly numbers" {
		t.Fatalf("expected subject, got %v", entities)
	}

	entities = extractEmail("email bob@x.io and carol@y.io")
	if len(entities["recipient"]) != 2 {
		t.Fatalf("expected 2 recipients, got %v", entities["recipient"])
	}
}

func TestExtractTime(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"remind me to call mom at 5pm", "at 5pm"},
		{"remind me about the dentist tomorrow morning", "tomorrow morning"},
		{"remind me in 2 hours", "in 2 hours"},
	}
	for _, tt := range tests {
		entities := extractTime(tt.text)
		if entities.First("time") != tt.want {
			t.Fatalf("%q: expected time %q, got %v", tt.text, tt.want, entities)
		}
	}

	if e := extractTime("remind me to breathe"); e.First("time") != "" {
		t.Fatalf("expected no time phrase, got %v", e)
	}
}

func TestExtractQuery(t *testing.T) {
	entities := extractQuery("search for hiking trails near oslo")
	if entities.First("query") != "hiking trails near oslo" {
		t.Fatalf("unexpected query %v", entities)
	}

	entities = extractQuery("research the norwegian tax system")
	if entities.First("query") != "the norwegian tax system" {
		t.Fatalf("unexpected query %v", entities)
	}
}
