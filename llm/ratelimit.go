package llm

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited wraps next so that at most rps requests per second reach the
// provider. Callers block until a token is available or ctx ends.
func NewRateLimited(next Client, rps float64) Client {
	burst := int(math.Max(1, math.Ceil(rps)))
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (c *rateLimited) Generate(ctx context.Context, messages []Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}
	return c.next.Generate(ctx, messages)
}
