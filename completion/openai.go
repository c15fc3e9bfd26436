package completion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIClient requests breakdowns from the chat completions API in JSON mode.
type OpenAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: cfg.Model, timeout: cfg.Timeout}
}

func (c *OpenAIClient) RequestBreakdown(ctx context.Context, task string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(task),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", unavailable(ProviderOpenAI, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", unavailable(ProviderOpenAI, errors.New("no choices returned"))
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", unavailable(ProviderOpenAI, errors.New("empty content"))
	}
	return content, nil
}
