// Package router dispatches classified utterances: conversational intents
// answer immediately, read-only intents execute through adapters, and
// anything that changes the outside world becomes a pending approval.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aide/internal/approval"
	"aide/internal/cache"
	"aide/internal/db"
	"aide/internal/logging"
	"aide/internal/models"
)

// ReadAdapter serves a read-only intent. Adapters never mutate external
// state; anything that does goes through the approval gateway instead.
type ReadAdapter interface {
	CanHandle(intent models.Intent) bool
	Fetch(ctx context.Context, classification models.IntentClassification) (string, error)
}

// RouteResult is the router's answer for one utterance.
type RouteResult struct {
	// Intent is the classified intent the result answers.
	Intent models.Intent `json:"intent"`

	// Reply is the text shown to the user.
	Reply string `json:"reply"`

	// NeedsClarification is set when confidence was below the threshold
	// and the reply is a clarifying question.
	NeedsClarification bool `json:"needs_clarification,omitempty"`

	// ApprovalID references the pending approval, when one was created.
	ApprovalID string `json:"approval_id,omitempty"`

	// Cached is set when a read-only result was served from the cache.
	Cached bool `json:"cached,omitempty"`
}

// readOnlyIntents may execute without approval.
var readOnlyIntents = map[models.Intent]bool{
	models.IntentSearch:        true,
	models.IntentFetchNews:     true,
	models.IntentGetQuote:      true,
	models.IntentCheckCalendar: true,
}

// cacheableIntents are read-only intents whose results are worth keeping
// for the freshness window. Calendar reads are always live.
var cacheableIntents = map[models.Intent]bool{
	models.IntentSearch:    true,
	models.IntentFetchNews: true,
	models.IntentGetQuote:  true,
}

// Router routes classifications to their handling path.
type Router struct {
	gateway   *approval.Gateway
	events    *db.EventRepository
	cache     *cache.FileCache
	adapters  []ReadAdapter
	threshold float64
	logger    zerolog.Logger
}

// NewRouter creates a Router. threshold gates actionable intents; cache
// may be nil to disable read-through caching.
func NewRouter(gateway *approval.Gateway, events *db.EventRepository, queryCache *cache.FileCache, threshold float64, adapters ...ReadAdapter) *Router {
	return &Router{
		gateway:   gateway,
		events:    events,
		cache:     queryCache,
		adapters:  adapters,
		threshold: threshold,
		logger:    logging.Component("router"),
	}
}

// Route dispatches one classification. Routing itself never mutates
// external state; the only side effects are audit events, cache writes
// and pending approvals.
func (r *Router) Route(ctx context.Context, userID string, classification models.IntentClassification) (*RouteResult, error) {
	r.recordClassified(ctx, classification)

	switch {
	case classification.Intent == models.IntentGreeting || classification.Intent == models.IntentThanks:
		return r.converse(classification), nil

	case classification.Confidence < r.threshold:
		return r.clarify(classification), nil

	case readOnlyIntents[classification.Intent]:
		return r.fetch(ctx, classification), nil

	default:
		// Everything else mutates the outside world, including UNKNOWN:
		// when in doubt, gate it.
		return r.requestApproval(ctx, userID, classification)
	}
}

func (r *Router) converse(classification models.IntentClassification) *RouteResult {
	reply := classification.Reply
	if reply == "" {
		reply = conversationalReply(classification.Intent)
	}
	return &RouteResult{Intent: classification.Intent, Reply: reply}
}

func (r *Router) clarify(classification models.IntentClassification) *RouteResult {
	r.logger.Debug().
		Str("intent", string(classification.Intent)).
		Float64("confidence", classification.Confidence).
		Msg("confidence below threshold")
	return &RouteResult{
		Intent:             classification.Intent,
		Reply:              clarificationFor(classification.Intent),
		NeedsClarification: true,
	}
}

func (r *Router) fetch(ctx context.Context, classification models.IntentClassification) *RouteResult {
	result := &RouteResult{Intent: classification.Intent}
	key := cacheKey(classification)

	if r.cache != nil && cacheableIntents[classification.Intent] {
		if entry, ok, err := r.cache.Get(key); err == nil && ok {
			result.Reply = entry.Result
			result.Cached = true
			return result
		}
	}

	adapter := r.adapterFor(classification.Intent)
	if adapter == nil {
		result.Reply = fmt.Sprintf("I can't handle %s requests yet.", classification.Intent)
		return result
	}

	output, err := adapter.Fetch(ctx, classification)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("intent", string(classification.Intent)).
			Msg("read adapter failed")
		result.Reply = "I couldn't fetch that right now. Please try again later."
		return result
	}

	if r.cache != nil && cacheableIntents[classification.Intent] {
		if err := r.cache.Set(key, output); err != nil {
			r.logger.Warn().Err(err).Msg("failed to cache result")
		}
	}
	result.Reply = output
	return result
}

func (r *Router) requestApproval(ctx context.Context, userID string, classification models.IntentClassification) (*RouteResult, error) {
	actionType := models.ActionTypeForIntent(classification.Intent)
	payload := models.ActionPayload{
		Intent:       classification.Intent,
		Entities:     classification.Entities,
		RawUtterance: classification.RawUtterance,
	}

	pending, err := r.gateway.Create(ctx, userID, actionType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}

	return &RouteResult{
		Intent:     classification.Intent,
		Reply:      confirmationFor(actionType, classification),
		ApprovalID: pending.ID,
	}, nil
}

func (r *Router) adapterFor(intent models.Intent) ReadAdapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(intent) {
			return adapter
		}
	}
	return nil
}

func (r *Router) recordClassified(ctx context.Context, classification models.IntentClassification) {
	payload, _ := json.Marshal(models.ClassifiedPayload{
		Intent:     classification.Intent,
		Confidence: classification.Confidence,
		Source:     classification.Source,
	})
	event := &models.Event{
		Type:       models.EventTypeMessageClassified,
		EntityType: models.EntityTypeMessage,
		EntityID:   uuid.New().String(),
		Payload:    payload,
	}
	if err := r.events.Append(ctx, event); err != nil {
		r.logger.Warn().Err(err).Msg("failed to append event")
	}
}

// cacheKey scopes cached results per intent so a search and a news fetch
// for the same words never collide.
func cacheKey(classification models.IntentClassification) string {
	query := classification.Entities.First("query")
	if query == "" {
		query = classification.RawUtterance
	}
	return string(classification.Intent) + ":" + cache.NormalizeQuery(query)
}
