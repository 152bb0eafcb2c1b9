// Package llm wraps chat-completion providers behind a single Client.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabfab/filing-agent/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

type Options struct {
	Provider string
	Model    string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
}

// NewClient builds the configured provider, rate limited when
// cfg.LLM.RequestsPerSecond is positive.
func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		GeminiAPIKey:  cfg.GeminiAPIKey,
	}

	var (
		client Client
		err    error
	)
	switch opts.Provider {
	case config.ProviderOllama:
		client = NewOllamaClient(opts)
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		client = NewOpenAIClient(opts)
	case config.ProviderGemini:
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider selected but GEMINI_API_KEY not set")
		}
		client, err = NewGeminiClient(context.Background(), opts)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}

	if cfg.LLM.RequestsPerSecond > 0 {
		client = NewRateLimited(client, cfg.LLM.RequestsPerSecond)
	}
	return client, nil
}

// Complete sends a single user prompt and returns the trimmed reply.
func Complete(ctx context.Context, client Client, prompt string) (string, error) {
	if client == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	reply, err := client.Generate(ctx, []Message{{Role: RoleUser, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
