// Package llm wraps OpenAI-compatible chat completion endpoints (Groq, OpenAI).
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default Groq endpoint and model.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"
	// Temperature keeps answers close to deterministic.
	Temperature = 0.2
)

// ErrNoChoices is returned when the endpoint answers without any choice.
var ErrNoChoices = errors.New("llm: no choices returned")

// Config selects the endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client implements a single-shot chat completion.
type Client struct {
	client *openai.Client
	model  string
}

// New creates a client. Retries are left to the caller's resilience guard.
func New(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	opts := []option.RequestOption{option.WithBaseURL(cfg.BaseURL), option.WithMaxRetries(0)}
	if cfg.APIKey == "" {
		log.Info("llm api key not set, trying unauthenticated access", "base_url", cfg.BaseURL)
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := openai.NewClient(opts...)
	return &Client{client: &client, model: cfg.Model}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate sends the system and user prompts and returns the first choice.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       c.model,
		Temperature: openai.Float(Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
