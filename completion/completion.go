// Package completion asks a hosted language model to break a task into a
// title and a short list of subtasks.
package completion

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"breakdown-api/domain"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultTimeout        = 30 * time.Second

	temperature = 0.7
	maxTokens   = 500
)

const systemPrompt = `You break a user's task into a short plan.
Respond with a single JSON object and nothing else, shaped as {"title": string, "subtasks": [string]}.
"title" is a 2-5 word Title Cased phrase describing the task.
"subtasks" holds 3 to 5 concrete, actionable steps, each under 100 characters.`

// Config selects and configures a completion provider.
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// New returns the client for cfg.Provider, defaulting to OpenAI.
func New(cfg Config) (domain.Completer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		return NewOpenAIClient(cfg), nil
	case ProviderAnthropic:
		if cfg.Model == "" {
			cfg.Model = DefaultAnthropicModel
		}
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}

func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrCompletionUnavailable, provider, err)
}
