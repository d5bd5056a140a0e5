package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
)

type observation struct {
	model            string
	prompt, complete int
	success          bool
	errorType        string
}

type fakeRecorder struct {
	observed []observation
	retries  int
}

func (f *fakeRecorder) ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorType string, _ time.Duration) {
	f.observed = append(f.observed, observation{model, promptTokens, completionTokens, success, errorType})
}

func (f *fakeRecorder) IncRetry(_, _ string) { f.retries++ }

func client(resp llm.CompletionResponse, err error) llm.LLMClient {
	return llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) { return resp, err },
		func() string { return "gpt-4o" },
	)
}

func TestMiddlewareUsesProviderUsage(t *testing.T) {
	rec := &fakeRecorder{}
	resp := llm.CompletionResponse{
		Content: []byte(`{}`),
		Usage:   llm.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
	}
	wrapped := Middleware(rec, nil, nil)(client(resp, nil))

	out, err := wrapped.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, 150, out.Usage.TotalTokens)
	require.Len(t, rec.observed, 1)
	assert.Equal(t, observation{"gpt-4o", 120, 30, true, ""}, rec.observed[0])
}

func TestMiddlewareEstimatesMissingUsage(t *testing.T) {
	rec := &fakeRecorder{}
	resp := llm.CompletionResponse{Content: []byte(`{"current_state":"looking up employees"}`)}
	wrapped := Middleware(rec, nil, nil)(client(resp, nil))

	req := llm.CompletionRequest{Messages: []llm.CompletionMessage{llm.NewUserMessage("List every employee in the sales department")}}
	out, err := wrapped.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Positive(t, out.Usage.PromptTokens)
	assert.Positive(t, out.Usage.CompletionTokens)
	assert.Equal(t, out.Usage.PromptTokens+out.Usage.CompletionTokens, out.Usage.TotalTokens)
}

func TestMiddlewareClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", context.DeadlineExceeded, "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"rate limit", llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down"), "rate_limit"},
		{"plain", errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			_, err := Middleware(rec, nil, nil)(client(llm.CompletionResponse{}, tt.err)).
				Complete(context.Background(), llm.CompletionRequest{})
			assert.ErrorIs(t, err, tt.err)
			require.Len(t, rec.observed, 1)
			assert.False(t, rec.observed[0].success)
			assert.Equal(t, tt.want, rec.observed[0].errorType)
		})
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveRequest("gpt-4o", 100, 20, true, "", time.Second)
	rec.ObserveRequest("gpt-4o", 0, 0, false, "timeout", time.Second)
	rec.IncRetry("gpt-4o", "rate_limit")

	assert.InDelta(t, 1, testutil.ToFloat64(rec.requestsTotal.WithLabelValues("gpt-4o", "success", "")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.requestsTotal.WithLabelValues("gpt-4o", "error", "timeout")), 0.001)
	assert.InDelta(t, 100, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("gpt-4o", "prompt")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.retriesTotal.WithLabelValues("gpt-4o", "rate_limit")), 0.001)
}

func TestNopRecorder(t *testing.T) {
	rec := Nop()
	rec.ObserveRequest("m", 1, 1, true, "", time.Millisecond)
	rec.IncRetry("m", "x")
}
