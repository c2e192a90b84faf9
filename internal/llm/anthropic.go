package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Anthropic client errors.
var (
	ErrMissingAPIKey = errors.New("llm: api key not configured")
	ErrEmptyResponse = errors.New("llm: empty response body")
)

const (
	defaultEndpoint  = "https://api.anthropic.com/v1/messages"
	defaultModel     = "claude-3-5-sonnet-20240620"
	defaultMaxTokens = 1024
	apiVersion       = "2023-06-01"
)

// AnthropicClient talks to the Anthropic messages API over plain HTTP.
type AnthropicClient struct {
	endpoint   string
	model      string
	apiKeyEnv  string
	maxTokens  int
	httpClient *http.Client
}

// AnthropicOption customizes the client.
type AnthropicOption func(*AnthropicClient)

// WithEndpoint overrides the API endpoint.
func WithEndpoint(url string) AnthropicOption {
	return func(c *AnthropicClient) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// WithModel overrides the model identifier.
func WithModel(model string) AnthropicOption {
	return func(c *AnthropicClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithAPIKeyEnv names the environment variable holding the API key.
func WithAPIKeyEnv(name string) AnthropicOption {
	return func(c *AnthropicClient) {
		if name != "" {
			c.apiKeyEnv = name
		}
	}
}

// WithMaxTokens sets the default completion cap.
func WithMaxTokens(n int) AnthropicOption {
	return func(c *AnthropicClient) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) AnthropicOption {
	return func(c *AnthropicClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewAnthropicClient creates a client with sensible defaults.
func NewAnthropicClient(opts ...AnthropicOption) *AnthropicClient {
	client := &AnthropicClient{
		endpoint:  defaultEndpoint,
		model:     defaultModel,
		apiKeyEnv: "ANTHROPIC_API_KEY",
		maxTokens: defaultMaxTokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   Usage              `json:"usage"`
}

func (r anthropicResponse) firstText() string {
	for _, block := range r.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text
		}
	}
	return ""
}

// Complete sends the request and returns the first text block.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	apiKey := os.Getenv(c.apiKeyEnv)
	if apiKey == "" {
		return Response{}, ErrMissingAPIKey
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	payload := anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: req.Prompt}},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("llm: %s", resp.Status)
	}

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Response{}, err
	}

	text := decoded.firstText()
	if text == "" {
		return Response{}, ErrEmptyResponse
	}

	return Response{Text: text, Usage: decoded.Usage}, nil
}
