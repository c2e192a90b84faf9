package router

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/approval"
	"aide/internal/cache"
	"aide/internal/db"
	"aide/internal/models"
	"aide/internal/vault"
)

type stubAdapter struct {
	intents map[models.Intent]bool
	calls   int
	output  string
	err     error
}

func (a *stubAdapter) CanHandle(intent models.Intent) bool {
	return a.intents[intent]
}

func (a *stubAdapter) Fetch(_ context.Context, _ models.IntentClassification) (string, error) {
	a.calls++
	return a.output, a.err
}

func setupTestRouter(t *testing.T, adapters ...ReadAdapter) (*Router, *approval.Gateway) {
	t.Helper()

	database, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store, err := vault.NewStore(t.TempDir())
	require.NoError(t, err)

	events := db.NewEventRepository(database)
	gateway := approval.NewGateway(db.NewApprovalRepository(database), events, store)
	queryCache := cache.New(t.TempDir(), time.Hour)

	return NewRouter(gateway, events, queryCache, 0.7, adapters...), gateway
}

func classification(intent models.Intent, confidence float64, utterance string) models.IntentClassification {
	return models.IntentClassification{
		Intent:       intent,
		Confidence:   confidence,
		Entities:     models.Entities{},
		RawUtterance: utterance,
		Timestamp:    time.Now().UTC(),
	}
}

func TestRouteGreeting(t *testing.T) {
	router, gateway := setupTestRouter(t)

	c := classification(models.IntentGreeting, 0.95, "hey")
	c.Reply = "Hello! How can I help you today?"

	result, err := router.Route(context.Background(), "user-1", c)
	require.NoError(t, err)

	assert.Equal(t, "Hello! How can I help you today?", result.Reply)
	assert.False(t, result.NeedsClarification)
	assert.Empty(t, result.ApprovalID)

	pending, err := gateway.ListPending(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRouteLowConfidenceAsksForClarification(t *testing.T) {
	router, gateway := setupTestRouter(t)

	result, err := router.Route(context.Background(), "user-1",
		classification(models.IntentSendEmail, 0.5, "maybe message bob?"))
	require.NoError(t, err)

	assert.True(t, result.NeedsClarification)
	assert.Contains(t, result.Reply, "email")
	assert.Empty(t, result.ApprovalID)

	pending, err := gateway.ListPending(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRouteMutatingIntentCreatesApproval(t *testing.T) {
	router, gateway := setupTestRouter(t)

	c := classification(models.IntentSendEmail, 0.85, "send an email to bob@example.com")
	c.Entities = models.Entities{"recipient": {"bob@example.com"}}

	result, err := router.Route(context.Background(), "user-1", c)
	require.NoError(t, err)

	require.NotEmpty(t, result.ApprovalID)
	assert.Contains(t, result.Reply, "bob@example.com")

	pending, err := gateway.Get(context.Background(), result.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, pending.Status)
	assert.Equal(t, models.ActionTypeSendEmail, pending.ActionType)
	assert.Empty(t, pending.ExecutionStatus)
}

func TestRouteConfidentUnknownIsGated(t *testing.T) {
	router, gateway := setupTestRouter(t)

	result, err := router.Route(context.Background(), "user-1",
		classification(models.IntentUnknown, 0.9, "do the thing with the stuff"))
	require.NoError(t, err)

	require.NotEmpty(t, result.ApprovalID)

	pending, err := gateway.Get(context.Background(), result.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionTypeUnknown, pending.ActionType)
}

func TestRouteReadOnlyUsesAdapterAndCache(t *testing.T) {
	adapter := &stubAdapter{
		intents: map[models.Intent]bool{models.IntentSearch: true},
		output:  "three results about gophers",
	}
	router, _ := setupTestRouter(t, adapter)

	c := classification(models.IntentSearch, 0.8, "search for gophers")
	c.Entities = models.Entities{"query": {"gophers"}}

	first, err := router.Route(context.Background(), "user-1", c)
	require.NoError(t, err)
	assert.Equal(t, "three results about gophers", first.Reply)
	assert.False(t, first.Cached)

	second, err := router.Route(context.Background(), "user-1", c)
	require.NoError(t, err)
	assert.Equal(t, "three results about gophers", second.Reply)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, adapter.calls)
}

func TestRouteCalendarReadIsNeverCached(t *testing.T) {
	adapter := &stubAdapter{
		intents: map[models.Intent]bool{models.IntentCheckCalendar: true},
		output:  "two meetings today",
	}
	router, _ := setupTestRouter(t, adapter)

	c := classification(models.IntentCheckCalendar, 0.85, "what's on my calendar today")

	for i := 0; i < 2; i++ {
		result, err := router.Route(context.Background(), "user-1", c)
		require.NoError(t, err)
		assert.False(t, result.Cached)
	}
	assert.Equal(t, 2, adapter.calls)
}

func TestRouteReadOnlyWithoutAdapter(t *testing.T) {
	router, gateway := setupTestRouter(t)

	result, err := router.Route(context.Background(), "user-1",
		classification(models.IntentGetQuote, 0.9, "quote AAPL"))
	require.NoError(t, err)

	assert.Contains(t, result.Reply, "GET_QUOTE")
	assert.Empty(t, result.ApprovalID)

	pending, err := gateway.ListPending(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRouteAdapterFailureDegrades(t *testing.T) {
	adapter := &stubAdapter{
		intents: map[models.Intent]bool{models.IntentFetchNews: true},
		err:     errors.New("feed unreachable"),
	}
	router, _ := setupTestRouter(t, adapter)

	c := classification(models.IntentFetchNews, 1.0, "check the news")

	first, err := router.Route(context.Background(), "user-1", c)
	require.NoError(t, err)
	assert.Contains(t, first.Reply, "couldn't fetch")

	// A failure must not poison the cache.
	second, err := router.Route(context.Background(), "user-1", c)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Equal(t, 2, adapter.calls)
}

func TestRouteResearchIsGatedAsLoop(t *testing.T) {
	router, gateway := setupTestRouter(t)

	result, err := router.Route(context.Background(), "user-1",
		classification(models.IntentResearch, 0.8, "research the eiffel tower and write a summary"))
	require.NoError(t, err)

	require.NotEmpty(t, result.ApprovalID)

	pending, err := gateway.Get(context.Background(), result.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionTypeRunLoop, pending.ActionType)
}
