package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openAIMaxAttempts = 3
	openAIBaseBackoff = 500 * time.Millisecond
)

type openAIClient struct {
	client  *openai.Client
	model   string
	backoff time.Duration
}

func NewOpenAIClient(opts Options) Client {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		backoff: openAIBaseBackoff,
	}
}

// Generate asks for a single deterministic completion. Rate limit and
// server errors are retried with exponential backoff, since parallel
// sub-query answering bursts several requests at once.
func (c *openAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		N:           1,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	for attempt := 1; ; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil || attempt == openAIMaxAttempts || !retryableOpenAIError(err) {
			break
		}
		wait := c.backoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("create openai chat completion: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	if err != nil {
		return "", fmt.Errorf("create openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion returned no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("openai chat completion stopped by content filter")
	}
	return choice.Message.Content, nil
}

func retryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return false
}
