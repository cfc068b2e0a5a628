// Package completion wraps the DeepSeek chat-completion API.
//
// Two call shapes are offered. Generate returns the raw message content and
// only treats a null content field as a failure. GenerateJSON asks the model
// for a JSON object and fails on any empty content (null, absent or "")
// before decoding it into the caller's type. Generate passes empty strings
// through; GenerateJSON does not.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ashureev/studydeck/internal/config"
)

// ErrEmptyResponse is returned when the provider produced no content.
var ErrEmptyResponse = errors.New("DeepSeek returned empty response") //nolint:staticcheck // provider name is a proper noun

// ErrNoChoices is returned when the provider response carries no choices.
var ErrNoChoices = errors.New("DeepSeek returned no choices") //nolint:staticcheck // provider name is a proper noun

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deepseek API error (%d): %s", e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of a failed response is kept on APIError.
const maxErrorBody = 4096

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			// Content stays nil when the provider sends null or omits it.
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls the chat-completion endpoint. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New returns a client for cfg. The API key is captured once here.
func New(cfg config.DeepSeekConfig, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("completion: API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("completion: base URL is required")
	}
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the model name sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Generate sends prompt as a single user message and returns the reply.
// Only a null content field is an error; an empty string is returned as is.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	content, err := c.complete(ctx, chatRequest{
		Model:    c.model,
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if content == nil {
		return "", ErrEmptyResponse
	}
	return *content, nil
}

// GenerateJSONRaw sends a system and a user message, asks for a JSON object
// and returns the unparsed content. Null, absent and empty content all fail.
func (c *Client) GenerateJSONRaw(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error) {
	content, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}
	if content == nil || *content == "" {
		return nil, ErrEmptyResponse
	}
	return []byte(*content), nil
}

// GenerateJSON is GenerateJSONRaw decoded into T. The shape of T is not
// checked beyond what encoding/json enforces; decode errors are returned
// unwrapped so callers can inspect *json.SyntaxError.
func GenerateJSON[T any](ctx context.Context, c *Client, systemPrompt, userPrompt string) (T, error) {
	var out T
	raw, err := c.GenerateJSONRaw(ctx, systemPrompt, userPrompt)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, body chatRequest) (*string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepseek request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("deepseek parse error: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return result.Choices[0].Message.Content, nil
}
