package adapters

import (
	"context"
	"fmt"

	"aide/internal/llm"
	"aide/internal/models"
)

// LLMReadAdapter answers read-only intents through the language model.
// It is the default adapter; purpose-built data sources can replace it
// per intent by registering ahead of it.
type LLMReadAdapter struct {
	client llm.Client
}

// NewLLMReadAdapter creates an LLMReadAdapter.
func NewLLMReadAdapter(client llm.Client) *LLMReadAdapter {
	return &LLMReadAdapter{client: client}
}

var readPrompts = map[models.Intent]string{
	models.IntentSearch:        "Answer the user's search query concisely.",
	models.IntentFetchNews:     "Summarize current news relevant to the user's request. Note that your knowledge may be out of date.",
	models.IntentGetQuote:      "Provide an inspirational or requested quote with attribution.",
	models.IntentCheckCalendar: "The user asked about their calendar. Explain that no calendar source is connected and suggest what to set up.",
}

// CanHandle reports whether the adapter answers the intent.
func (a *LLMReadAdapter) CanHandle(intent models.Intent) bool {
	_, ok := readPrompts[intent]
	return ok && a.client != nil
}

// Fetch answers the classified query.
func (a *LLMReadAdapter) Fetch(ctx context.Context, classification models.IntentClassification) (string, error) {
	system, ok := readPrompts[classification.Intent]
	if !ok {
		return "", fmt.Errorf("unsupported intent %s", classification.Intent)
	}

	resp, err := a.client.Complete(ctx, llm.Request{
		System: system,
		Prompt: classification.RawUtterance,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
