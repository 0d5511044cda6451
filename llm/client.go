// Package llm provides an OpenAI-compatible chat and embedding client.
// Most hosted model providers follow OpenAI's API format with minor
// variations, so one client covers OpenAI, DeepSeek, Qwen, and local
// gateways alike.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultChatModel      = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultTimeout        = 60 * time.Second

	chatEndpoint      = "/chat/completions"
	embeddingEndpoint = "/embeddings"
)

// Client talks to one OpenAI-compatible API endpoint. It is safe for
// concurrent use.
type Client struct {
	name           string
	apiKey         string
	baseURL        string
	chatModel      string
	embeddingModel string
	temperature    float64
	headers        map[string]string
	httpClient     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBaseURL overrides the API endpoint, e.g. for DeepSeek or a local
// gateway.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithChatModel sets the model used for completions.
func WithChatModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.chatModel = model
		}
	}
}

// WithEmbeddingModel sets the model used for embeddings.
func WithEmbeddingModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithTemperature sets the sampling temperature for completions.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client with the given provider name, used as the error
// component in failures.
func New(name string, opts ...Option) *Client {
	c := &Client{
		name:           name,
		baseURL:        defaultBaseURL,
		chatModel:      defaultChatModel,
		embeddingModel: defaultEmbeddingModel,
		temperature:    0.7,
		headers:        make(map[string]string),
		httpClient:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name the client was created with.
func (c *Client) Name() string { return c.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a system and user prompt and returns the first choice's
// content.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	var parsed chatResponse
	if err := c.post(ctx, chatEndpoint, chatRequest{
		Model:       c.chatModel,
		Messages:    messages,
		Temperature: c.temperature,
	}, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", eduerrors.NewInternalError(c.name, "completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, eduerrors.NewInvalidRequestError(c.name, "embedding input must not be empty")
	}

	var parsed embeddingResponse
	if err := c.post(ctx, embeddingEndpoint, embeddingRequest{
		Model: c.embeddingModel,
		Input: inputs,
	}, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) != len(inputs) {
		return nil, eduerrors.NewInternalError(c.name,
			fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(parsed.Data)))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, eduerrors.NewInternalError(c.name, "embedding index out of range")
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.baseURL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eduerrors.NewConnectionError(c.name, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return c.mapError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// mapError converts an OpenAI-compatible error body to a typed error.
func (c *Client) mapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return eduerrors.NewInvalidRequestError(c.name, message)
	case http.StatusNotFound:
		return eduerrors.NewNotFoundError(c.name, message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return eduerrors.NewConnectionError(c.name, message)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return eduerrors.NewConnectionError(c.name, message)
	default:
		return eduerrors.NewInternalError(c.name, message)
	}
}
