package llm

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint,
// including local Ollama.
type OpenAIClient struct {
	api   *openai.Client
	model string
}

// NewOpenAIClient creates a client. An empty baseURL uses the OpenAI
// default endpoint.
func NewOpenAIClient(baseURL, apiKey, modelName string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	msgs := []openai.ChatCompletionMessage{}
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "provider", "openai", "model", c.model, "raw_len", len(raw))

	return &Response{
		Content:      raw,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Ping sends a minimal completion to verify the endpoint and model.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	_, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	return nil
}
