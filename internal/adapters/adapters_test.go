package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/llm"
	"aide/internal/models"
)

type stubClient struct {
	response llm.Response
	err      error
	requests []llm.Request
}

func (c *stubClient) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	c.requests = append(c.requests, req)
	return c.response, c.err
}

func TestOutboxWatcherCanHandle(t *testing.T) {
	watcher := NewOutboxWatcher(t.TempDir())

	assert.True(t, watcher.CanHandle(models.ActionTypeSendEmail))
	assert.True(t, watcher.CanHandle(models.ActionTypeSaveKnowledge))
	assert.False(t, watcher.CanHandle(models.ActionTypeRunLoop))
	assert.False(t, watcher.CanHandle(models.ActionTypeUnknown))
}

func TestOutboxWatcherWritesRecord(t *testing.T) {
	root := t.TempDir()
	watcher := NewOutboxWatcher(root)

	actionData, _ := json.Marshal(models.ActionPayload{
		Intent:       models.IntentSendEmail,
		Entities:     models.Entities{"recipient": {"bob@example.com"}},
		RawUtterance: "send an email to bob@example.com",
	})
	approval := &models.Approval{
		ID:         "appr-1",
		UserID:     "user-1",
		ActionType: models.ActionTypeSendEmail,
		ActionData: actionData,
	}

	result, err := watcher.Execute(context.Background(), approval)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "send_email")

	data, err := os.ReadFile(filepath.Join(root, "send_email", "appr-1.json"))
	require.NoError(t, err)

	var record outboxRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "appr-1", record.ApprovalID)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "send_email", record.ActionType)
}

func TestLLMReadAdapterCanHandle(t *testing.T) {
	adapter := NewLLMReadAdapter(&stubClient{})

	assert.True(t, adapter.CanHandle(models.IntentSearch))
	assert.True(t, adapter.CanHandle(models.IntentCheckCalendar))
	assert.False(t, adapter.CanHandle(models.IntentSendEmail))

	disabled := NewLLMReadAdapter(nil)
	assert.False(t, disabled.CanHandle(models.IntentSearch))
}

func TestLLMReadAdapterFetch(t *testing.T) {
	client := &stubClient{response: llm.Response{Text: "pasta is boiled dough"}}
	adapter := NewLLMReadAdapter(client)

	out, err := adapter.Fetch(context.Background(), models.IntentClassification{
		Intent:       models.IntentSearch,
		RawUtterance: "search for pasta",
	})
	require.NoError(t, err)
	assert.Equal(t, "pasta is boiled dough", out)
	require.Len(t, client.requests, 1)
	assert.Equal(t, "search for pasta", client.requests[0].Prompt)
}

func TestLLMReadAdapterFetchError(t *testing.T) {
	adapter := NewLLMReadAdapter(&stubClient{err: errors.New("unavailable")})

	_, err := adapter.Fetch(context.Background(), models.IntentClassification{
		Intent:       models.IntentFetchNews,
		RawUtterance: "check the news",
	})
	assert.Error(t, err)
}
