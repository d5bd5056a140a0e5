// Package logging dumps the request behind unusable provider replies.
package logging

import (
	"context"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
	"github.com/Flagro/holosophos-erc3/pkg/logx"
)

const maxLoggedMessage = 10000

// EmptyResponseLoggingMiddleware logs the full request when the provider returns an
// empty reply or refuses, then passes the error through unchanged.
func EmptyResponseLoggingMiddleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm-middleware")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) || llmerrors.Is(err, llmerrors.ErrorTypeRefusal) {
					logRequest(logger, next.GetModelName(), req, err)
				}
				return resp, err //nolint:wrapcheck // pass through
			},
			next.GetModelName,
		)
	}
}

//nolint:gocritic // request passed by value like the client contract
func logRequest(logger *logx.Logger, model string, req llm.CompletionRequest, err error) {
	logger.Error("🚨 UNUSABLE RESPONSE FROM %s: %v", model, err)
	logger.Error("================================================================================")
	for i := range req.Messages {
		msg := &req.Messages[i]
		content := msg.Content
		if len(msg.ToolCalls) > 0 {
			content = llm.FlattenToolCall(*msg)
		}
		logger.Error("Message [%d] Role: %s, Content: %s", i, msg.Role, llmerrors.Truncate(content, maxLoggedMessage))
	}
	logger.Error("================================================================================")
	logger.Error("🔍 Request Details:")
	logger.Error("  - Schema: %s", req.Schema.Name)
	logger.Error("  - Max Tokens: %d", req.MaxTokens)
	logger.Error("🚨 END UNUSABLE RESPONSE DEBUG")
}
