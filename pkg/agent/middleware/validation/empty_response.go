// Package validation rejects replies that carry no structured document.
package validation

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
)

// EmptyResponseMiddleware turns a successful call with blank or null content into an
// ErrorTypeEmptyResponse error, which retry treats as final.
func EmptyResponseMiddleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err //nolint:wrapcheck // pass through
				}
				if isEmpty(resp.Content) {
					return resp, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
						"empty structured response from "+next.GetModelName())
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}
}

func isEmpty(content json.RawMessage) bool {
	trimmed := bytes.TrimSpace(content)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}
