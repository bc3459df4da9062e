// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/config"
)

// OpenAIClient talks to any OpenAI-compatible chat completions server.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient initializes the client. The endpoint may be a base URL
// (".../v1") or the full chat completions URL.
func NewOpenAIClient(cfg config.InferenceConfig, logger *zap.Logger) (*OpenAIClient, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultOpenAIEndpoint
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = baseURL(endpoint)
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: logger.Named("llm_client.openai"),
	}, nil
}

func baseURL(endpoint string) string {
	u := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return strings.TrimSuffix(u, "/chat/completions")
}

// Generate sends the observation and the annotated screenshot and returns the
// content of the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.UserPrompt}}
	if req.ImageB64 != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/png;base64," + req.ImageB64,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: float32(req.Options.Temperature),
		TopP:        float32(req.Options.TopP),
		MaxTokens:   req.Options.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	}

	c.logger.Info("Sending inference request.",
		zap.String("model", c.model),
		zap.Int("observation_len", len(req.UserPrompt)),
		zap.Int("image_len", len(req.ImageB64)),
	)

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	c.logger.Info("LLM generation complete (OpenAI)",
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (c *OpenAIClient) Close() error {
	return nil
}
