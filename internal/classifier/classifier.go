// Package classifier turns user utterances into intent classifications.
//
// Classification is layered: a heuristic bypass table answers a few
// high-precision trigger phrases instantly, the remote language model
// handles everything else, and an ordered local rule table takes over
// whenever the remote path is unavailable or misbehaves. Classify never
// returns an error.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aide/internal/llm"
	"aide/internal/logging"
	"aide/internal/models"
)

// Turn is one prior exchange supplied as classification context.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Options configures a Classifier.
type Options struct {
	// Client is the remote language model; nil disables the remote path.
	Client llm.Client

	// RemoteTimeout bounds the remote call (default 5s).
	RemoteTimeout time.Duration

	// HistoryTurns caps how many prior turns travel with the utterance
	// (default 5).
	HistoryTurns int
}

// Classifier classifies utterances. All configuration is immutable after
// construction.
type Classifier struct {
	client        llm.Client
	remoteTimeout time.Duration
	historyTurns  int
	logger        zerolog.Logger
	now           func() time.Time
}

// New creates a Classifier.
func New(opts Options) *Classifier {
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 5 * time.Second
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 5
	}
	return &Classifier{
		client:        opts.Client,
		remoteTimeout: opts.RemoteTimeout,
		historyTurns:  opts.HistoryTurns,
		logger:        logging.Component("classifier"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Classify returns a valid classification for any utterance. Remote
// failures fall back to the local rule table and are never surfaced.
func (c *Classifier) Classify(ctx context.Context, utterance string, history []Turn) models.IntentClassification {
	lower := strings.ToLower(strings.TrimSpace(utterance))

	for _, r := range bypassRules {
		if r.match(lower) {
			c.logger.Debug().Str("rule", r.name).Msg("bypass rule matched")
			return c.result(r, utterance, "heuristic")
		}
	}

	if c.client != nil {
		if classification, ok := c.classifyRemote(ctx, utterance, history); ok {
			return classification
		}
	}

	return c.classifyLocal(utterance, lower)
}

func (c *Classifier) classifyLocal(utterance, lower string) models.IntentClassification {
	for _, r := range fallbackRules {
		if r.match(lower) {
			c.logger.Debug().Str("rule", r.name).Msg("fallback rule matched")
			return c.result(r, utterance, "fallback")
		}
	}
	return models.IntentClassification{
		Intent:       models.IntentUnknown,
		Confidence:   0.5,
		Entities:     models.Entities{},
		Reply:        unknownReply,
		Source:       "fallback",
		RawUtterance: utterance,
		Timestamp:    c.now(),
	}
}

func (c *Classifier) result(r rule, utterance, source string) models.IntentClassification {
	entities := models.Entities{}
	if r.extract != nil {
		entities = r.extract(utterance)
	}
	return models.IntentClassification{
		Intent:       r.intent,
		Confidence:   models.ClampConfidence(r.confidence),
		Entities:     entities,
		Reply:        r.reply,
		Source:       source,
		RawUtterance: utterance,
		Timestamp:    c.now(),
	}
}

const classifySystemPrompt = `You are an intent classifier for a personal assistant.
Classify the user's latest message into exactly one intent from this set:
GREETING, THANKS, SEND_EMAIL, CREATE_REMINDER, CREATE_TASK, CREATE_EVENT,
CHECK_CALENDAR, SAVE_KNOWLEDGE, SEARCH, RESEARCH, FETCH_NEWS, GET_QUOTE,
START_LOOP, UNKNOWN.
Respond with a single JSON object and nothing else:
{"intent": "...", "confidence": 0.0, "entities": {}, "reply": "..."}
Entities values may be strings or arrays of strings. The reply field is a
short conversational response, only for GREETING, THANKS and UNKNOWN.`

// remoteResult is the JSON shape the model is instructed to return.
type remoteResult struct {
	Intent     string                     `json:"intent"`
	Confidence float64                    `json:"confidence"`
	Entities   map[string]json.RawMessage `json:"entities"`
	Reply      string                     `json:"reply"`
}

func (c *Classifier) classifyRemote(ctx context.Context, utterance string, history []Turn) (models.IntentClassification, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.remoteTimeout)
	defer cancel()

	resp, err := c.client.Complete(ctx, llm.Request{
		System: classifySystemPrompt,
		Prompt: c.buildPrompt(utterance, history),
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("remote classification failed, using fallback")
		return models.IntentClassification{}, false
	}

	parsed, err := parseRemoteResult(resp.Text)
	if err != nil {
		c.logger.Warn().Err(err).Msg("unparsable remote classification, using fallback")
		return models.IntentClassification{}, false
	}

	return models.IntentClassification{
		Intent:       models.NormalizeIntent(parsed.Intent),
		Confidence:   models.ClampConfidence(parsed.Confidence),
		Entities:     decodeEntities(parsed.Entities),
		Reply:        parsed.Reply,
		Source:       "remote",
		RawUtterance: utterance,
		Timestamp:    c.now(),
	}, true
}

func (c *Classifier) buildPrompt(utterance string, history []Turn) string {
	var builder strings.Builder
	if len(history) > c.historyTurns {
		history = history[len(history)-c.historyTurns:]
	}
	for _, turn := range history {
		builder.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Text))
	}
	builder.WriteString("user: ")
	builder.WriteString(utterance)
	return builder.String()
}

// parseRemoteResult extracts the first JSON object from the model output,
// tolerating code fences and surrounding prose.
func parseRemoteResult(text string) (remoteResult, error) {
	var result remoteResult

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return result, fmt.Errorf("no JSON object in response")
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return result, fmt.Errorf("invalid classification JSON: %w", err)
	}
	if result.Intent == "" {
		return result, fmt.Errorf("classification missing intent")
	}
	return result, nil
}

// decodeEntities accepts string or []string values and defaults a missing
// entities object to empty.
func decodeEntities(raw map[string]json.RawMessage) models.Entities {
	entities := models.Entities{}
	for key, value := range raw {
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			entities[key] = []string{single}
			continue
		}
		var multiple []string
		if err := json.Unmarshal(value, &multiple); err == nil {
			entities[key] = multiple
		}
	}
	return entities
}
