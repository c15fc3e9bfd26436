package completion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient requests breakdowns from the messages API.
type AnthropicClient struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

func NewAnthropicClient(cfg Config) *AnthropicClient {
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
	return &AnthropicClient{client: anthropic.NewClient(opts...), model: anthropic.Model(cfg.Model), timeout: cfg.Timeout}
}

func (c *AnthropicClient) RequestBreakdown(ctx context.Context, task string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(task)),
		},
	})
	if err != nil {
		return "", unavailable(ProviderAnthropic, err)
	}
	if resp == nil {
		return "", unavailable(ProviderAnthropic, errors.New("nil response"))
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", unavailable(ProviderAnthropic, errors.New("empty content"))
	}
	return text.String(), nil
}
