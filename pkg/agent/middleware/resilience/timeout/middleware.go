// Package timeout bounds each provider request with its own deadline.
package timeout

import (
	"context"
	"time"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
)

// Middleware gives every request a deadline of duration. A non-positive duration
// leaves requests unbounded.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			next.GetModelName,
		)
	}
}
