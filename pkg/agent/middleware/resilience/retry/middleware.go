package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
	"github.com/Flagro/holosophos-erc3/pkg/agent/middleware/metrics"
	"github.com/Flagro/holosophos-erc3/pkg/logx"
)

// Middleware retries failed requests according to policy, with exponential backoff.
// Exhausting the attempts on a retryable error yields a ServiceUnavailable error.
func Middleware(policy *Policy, recorder metrics.Recorder, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if logger == nil {
		logger = logx.NewLogger("retry")
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						if delay := policy.CalculateDelay(attempt); delay > 0 {
							select {
							case <-ctx.Done():
								return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-time.After(delay):
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) || ctx.Err() != nil {
						return llm.CompletionResponse{}, err
					}
					if attempt < policy.Config.MaxAttempts {
						reason := llmerrors.TypeOf(err).String()
						recorder.IncRetry(next.GetModelName(), reason)
						logger.Warn("🔁 %s attempt %d/%d failed (%s): %v",
							next.GetModelName(), attempt, policy.Config.MaxAttempts, reason, err)
					}
				}

				if policy.Config.MaxAttempts == 1 {
					return llm.CompletionResponse{}, lastErr
				}
				return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
			},
			next.GetModelName,
		)
	}
}
