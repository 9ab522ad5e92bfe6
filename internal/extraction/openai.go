package extraction

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"invoicer/internal/config"
	"invoicer/internal/logger"
)

// Completer sends one prompt to a chat model and returns its raw text.
type Completer interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CompletionConfig configures an OpenAI-compatible chat completer.
type CompletionConfig struct {
	Name        string  // Provider name reported to callers
	APIKey      string  // Bearer token
	BaseURL     string  // OpenAI-compatible API root
	Model       string  // Model identifier at the provider
	Temperature float32 // Sampling temperature, low for extraction
	MaxTokens   int     // Response token cap
	JSONMode    bool    // Request response_format json_object
}

// OpenAICompleter implements Completer on any OpenAI-compatible endpoint.
type OpenAICompleter struct {
	client *openai.Client
	config CompletionConfig
	log    zerolog.Logger
}

var _ Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter creates a completer. It fails fast when no API key is set.
func NewOpenAICompleter(cfg CompletionConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, WrapExtractionError("NewOpenAICompleter", cfg.Name, ErrProviderNotConfigured, "API key is empty")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return NewOpenAICompleterWithClient(openai.NewClientWithConfig(clientCfg), cfg), nil
}

// NewOpenAICompleterWithClient creates a completer with an explicit client (for testing).
func NewOpenAICompleterWithClient(client *openai.Client, cfg CompletionConfig) *OpenAICompleter {
	return &OpenAICompleter{
		client: client,
		config: cfg,
		log:    logger.WithComponent("extraction-" + cfg.Name),
	}
}

// GeminiConfig returns the completion settings for Google Gemini through its
// OpenAI-compatible endpoint.
func GeminiConfig(cfg *config.Config) CompletionConfig {
	return CompletionConfig{
		Name:        ProviderGemini,
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GeminiBaseURL,
		Model:       cfg.GeminiModel,
		Temperature: cfg.AITemperature,
		MaxTokens:   cfg.AIMaxTokens,
		JSONMode:    true,
	}
}

// GroqConfig returns the completion settings for Groq.
func GroqConfig(cfg *config.Config) CompletionConfig {
	return CompletionConfig{
		Name:        ProviderGroq,
		APIKey:      cfg.GroqAPIKey,
		BaseURL:     cfg.GroqBaseURL,
		Model:       cfg.GroqModel,
		Temperature: cfg.AITemperature,
		MaxTokens:   cfg.AIMaxTokens,
		JSONMode:    true,
	}
}

// Name implements Completer.
func (c *OpenAICompleter) Name() string { return c.config.Name }

// Complete implements Completer. A single attempt is made.
func (c *OpenAICompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	const op = "Complete"

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if c.config.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	c.log.Debug().
		Int("prompt_length", len(prompt)).
		Str("model", c.config.Model).
		Float32("temperature", c.config.Temperature).
		Msg("Sending completion request")

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", WrapExtractionError(op, c.config.Name, classifyAPIError(err), err.Error())
	}

	// Empty output is the Normalizer's to default, not a failed call.
	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	if strings.TrimSpace(content) == "" {
		c.log.Warn().
			Int("choices", len(resp.Choices)).
			Msg("Model returned no content")
	}
	c.log.Debug().
		Int("response_length", len(content)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("Received completion response")
	return content, nil
}

// classifyAPIError maps rejected credentials to ErrProviderNotConfigured so
// the caller reports the provider as unavailable.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Join(ErrProviderNotConfigured, err)
		}
	}
	return errors.Join(ErrModelCall, err)
}
