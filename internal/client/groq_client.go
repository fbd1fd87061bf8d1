package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/config"
)

var (
	// ErrNotConfigured is returned without a request when no API key is set
	ErrNotConfigured = errors.New("groq API key not configured")
	ErrNoChoices     = errors.New("no choices in response")
	// ErrTruncated means the model stopped at the token limit, so the
	// content is incomplete
	ErrTruncated = errors.New("response truncated at token limit")
)

// GroqError is a non-200 answer from the Groq API
type GroqError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *GroqError) Error() string {
	return fmt.Sprintf("groq API error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the same request may succeed later
func (e *GroqError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err wraps a retryable Groq API error
func IsRetryable(err error) bool {
	var gerr *GroqError
	return errors.As(err, &gerr) && gerr.Retryable()
}

// GroqClient calls the OpenAI-compatible chat completions endpoint of Groq
type GroqClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CompletionOption tunes a single chat completion
type CompletionOption func(*ChatCompletionRequest)

func WithTemperature(t float64) CompletionOption {
	return func(r *ChatCompletionRequest) { r.Temperature = t }
}

func WithMaxTokens(n int) CompletionOption {
	return func(r *ChatCompletionRequest) { r.MaxTokens = n }
}

// WithJSONResponse asks the model for a single JSON object
func WithJSONResponse() CompletionOption {
	return func(r *ChatCompletionRequest) { r.ResponseFormat = &responseFormat{Type: "json_object"} }
}

func NewGroqClient(cfg *config.GroqConfig) *GroqClient {
	return &GroqClient{
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// ChatCompletion returns the content of the first choice. An empty system
// prompt sends the user message alone.
func (c *GroqClient) ChatCompletion(ctx context.Context, system, user string, opts ...CompletionOption) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	var messages []ChatMessage
	if system != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: user})

	reqBody := ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   1024,
	}
	for _, opt := range opts {
		opt(&reqBody)
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp.StatusCode, respBody)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrNoChoices
	}
	choice := chatResp.Choices[0]
	if choice.FinishReason == "length" {
		return "", ErrTruncated
	}
	return choice.Message.Content, nil
}

// apiError prefers Groq's structured error message and falls back to the raw body
func apiError(status int, body []byte) *GroqError {
	gerr := &GroqError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		gerr.Message = parsed.Error.Message
		gerr.Type = parsed.Error.Type
	}
	return gerr
}

func (c *GroqClient) IsConfigured() bool {
	return c.apiKey != ""
}
