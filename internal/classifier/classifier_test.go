package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"aide/internal/llm"
	"aide/internal/models"
)

// stubClient returns a canned response or error.
type stubClient struct {
	text string
	err  error
	last llm.Request
}

func (s *stubClient) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.last = req
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.text}, nil
}

func TestClassifyFallbackRules(t *testing.T) {
	c := New(Options{})

	tests := []struct {
		utterance     string
		intent        models.Intent
		minConfidence float64
	}{
		{"hey", models.IntentGreeting, 0.9},
		{"Hello there", models.IntentGreeting, 0.9},
		{"thanks a lot", models.IntentThanks, 0.9},
		{"send email to a@b.com about the launch", models.IntentSendEmail, 0.8},
		{"remind me to stretch at 5pm", models.IntentCreateReminder, 0.8},
		{"schedule a meeting tomorrow", models.IntentCreateEvent, 0.8},
		{"what's on my calendar today", models.IntentCheckCalendar, 0.8},
		{"add a task: water plants", models.IntentCreateTask, 0.7},
		{"remember that the wifi password is hunter2", models.IntentSaveKnowledge, 0.7},
		{"search for good running shoes", models.IntentSearch, 0.7},
		{"research quantum computing", models.IntentResearch, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			got := c.Classify(context.Background(), tt.utterance, nil)
			if got.Intent != tt.intent {
				t.Fatalf("expected %s, got %s", tt.intent, got.Intent)
			}
			if got.Confidence < tt.minConfidence || got.Confidence > 1 {
				t.Fatalf("confidence %v out of expected range", got.Confidence)
			}
			if got.RawUtterance != tt.utterance {
				t.Fatalf("raw utterance not preserved")
			}
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	c := New(Options{})

	got := c.Classify(context.Background(), "flibbertigibbet", nil)
	if got.Intent != models.IntentUnknown {
		t.Fatalf("expected UNKNOWN, got %s", got.Intent)
	}
	if got.Confidence != 0.5 {
		t.Fatalf("expected confidence 0.5, got %v", got.Confidence)
	}
	if got.Reply == "" {
		t.Fatal("expected a clarification reply")
	}
}

func TestClassifyBypassSkipsRemote(t *testing.T) {
	client := &stubClient{err: errors.New("should not be called")}
	c := New(Options{Client: client})

	tests := []struct {
		utterance string
		intent    models.Intent
	}{
		{"give me the news", models.IntentFetchNews},
		{"start a loop to organize my notes", models.IntentStartLoop},
		{"quote of the day please", models.IntentGetQuote},
	}
	for _, tt := range tests {
		got := c.Classify(context.Background(), tt.utterance, nil)
		if got.Intent != tt.intent {
			t.Fatalf("%q: expected %s, got %s", tt.utterance, tt.intent, got.Intent)
		}
		if got.Confidence != 1.0 {
			t.Fatalf("%q: bypass should classify at 1.0, got %v", tt.utterance, got.Confidence)
		}
	}
	if client.last.Prompt != "" {
		t.Fatal("bypass must not invoke the remote client")
	}
}

func TestClassifyRemote(t *testing.T) {
	client := &stubClient{
		text: `{"intent":"SEND_EMAIL","confidence":0.92,"entities":{"recipient":"a@b.com","cc":["c@d.com","e@f.com"]}}`,
	}
	c := New(Options{Client: client})

	got := c.Classify(context.Background(), "shoot a note to my accountant", nil)
	if got.Intent != models.IntentSendEmail {
		t.Fatalf("expected SEND_EMAIL, got %s", got.Intent)
	}
	if got.Confidence != 0.92 {
		t.Fatalf("expected confidence 0.92, got %v", got.Confidence)
	}
	if got.Entities.First("recipient") != "a@b.com" {
		t.Fatalf("expected recipient entity, got %v", got.Entities)
	}
	if len(got.Entities["cc"]) != 2 {
		t.Fatalf("expected 2 cc entries, got %v", got.Entities["cc"])
	}
}

func TestClassifyRemoteNormalization(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		intent     models.Intent
		confidence float64
	}{
		{
			"unknown label coerced",
			`{"intent":"ORDER_PIZZA","confidence":0.9}`,
			models.IntentUnknown, 0.9,
		},
		{
			"confidence clamped high",
			`{"intent":"SEARCH","confidence":3.5}`,
			models.IntentSearch, 1.0,
		},
		{
			"confidence clamped low",
			`{"intent":"SEARCH","confidence":-1}`,
			models.IntentSearch, 0.0,
		},
		{
			"json inside code fence",
			"```json\n{\"intent\":\"THANKS\",\"confidence\":0.8}\n```",
			models.IntentThanks, 0.8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{Client: &stubClient{text: tt.text}})
			got := c.Classify(context.Background(), "whatever", nil)
			if got.Intent != tt.intent {
				t.Fatalf("expected %s, got %s", tt.intent, got.Intent)
			}
			if got.Confidence != tt.confidence {
				t.Fatalf("expected confidence %v, got %v", tt.confidence, got.Confidence)
			}
			if got.Entities == nil {
				t.Fatal("entities must default to empty, not nil")
			}
		})
	}
}

func TestClassifyRemoteFailureFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		client llm.Client
	}{
		{"transport error", &stubClient{err: errors.New("connection refused")}},
		{"garbage body", &stubClient{text: "not json at all"}},
		{"missing intent", &stubClient{text: `{"confidence":0.9}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{Client: tt.client})
			got := c.Classify(context.Background(), "send email to x@y.com", nil)
			if got.Intent != models.IntentSendEmail {
				t.Fatalf("fallback should classify email, got %s", got.Intent)
			}
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Fatalf("confidence %v out of [0,1]", got.Confidence)
			}
		})
	}
}

func TestClassifyRemoteTimeout(t *testing.T) {
	slow := &slowClient{delay: 200 * time.Millisecond}
	c := New(Options{Client: slow, RemoteTimeout: 10 * time.Millisecond})

	start := time.Now()
	got := c.Classify(context.Background(), "hey", nil)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("classification took too long: %v", elapsed)
	}
	if got.Intent != models.IntentGreeting {
		t.Fatalf("expected fallback GREETING, got %s", got.Intent)
	}
}

type slowClient struct {
	delay time.Duration
}

func (s *slowClient) Complete(ctx context.Context, _ llm.Request) (llm.Response, error) {
	select {
	case <-ctx.Done():
		return llm.Response{}, ctx.Err()
	case <-time.After(s.delay):
		return llm.Response{Text: `{"intent":"THANKS","confidence":0.9}`}, nil
	}
}

func TestBuildPromptLimitsHistory(t *testing.T) {
	c := New(Options{HistoryTurns: 2})

	history := []Turn{
		{Role: "user", Text: "one"},
		{Role: "assistant", Text: "two"},
		{Role: "user", Text: "three"},
		{Role: "assistant", Text: "four"},
	}
	prompt := c.buildPrompt("five", history)
	if strings.Contains(prompt, "one") || strings.Contains(prompt, "two") {
		t.Fatalf("old turns should be dropped: %q", prompt)
	}
	if !strings.Contains(prompt, "three") || !strings.Contains(prompt, "four") {
		t.Fatalf("recent turns should be kept: %q", prompt)
	}
}
