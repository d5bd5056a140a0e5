package agent

import (
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/agent/internal/llmimpl/anthropic"
	"github.com/Flagro/holosophos-erc3/pkg/agent/internal/llmimpl/google"
	"github.com/Flagro/holosophos-erc3/pkg/agent/internal/llmimpl/ollama"
	"github.com/Flagro/holosophos-erc3/pkg/agent/internal/llmimpl/openaiofficial"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/middleware/logging"
	"github.com/Flagro/holosophos-erc3/pkg/agent/middleware/metrics"
	"github.com/Flagro/holosophos-erc3/pkg/agent/middleware/resilience/retry"
	"github.com/Flagro/holosophos-erc3/pkg/agent/middleware/resilience/timeout"
	"github.com/Flagro/holosophos-erc3/pkg/agent/middleware/validation"
	"github.com/Flagro/holosophos-erc3/pkg/config"
	"github.com/Flagro/holosophos-erc3/pkg/logx"
)

// NewStructuredClient creates the provider client for the configured model and wraps it
// with the middleware chain. A nil recorder disables request metrics.
func NewStructuredClient(cfg *config.Config, recorder metrics.Recorder) (llm.LLMClient, error) {
	provider, err := cfg.Provider()
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", cfg.Agent.Model, err)
	}
	raw, err := newProviderClient(provider, cfg)
	if err != nil {
		return nil, err
	}
	return WrapClient(raw, cfg, recorder), nil
}

func newProviderClient(provider string, cfg *config.Config) (llm.LLMClient, error) {
	llmCfg := llm.LLMConfig{
		ModelName: cfg.Agent.Model,
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.Agent.MaxCompletionTokens,
	}

	if provider == config.ProviderOllama {
		if llmCfg.BaseURL == "" {
			host, err := config.GetAPIKey(provider)
			if err != nil {
				return nil, err
			}
			llmCfg.BaseURL = host
		}
		return ollama.NewOllamaClient(llmCfg)
	}

	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}
	llmCfg.APIKey = apiKey

	switch provider {
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClient(llmCfg)
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClient(llmCfg)
	case config.ProviderGoogle:
		return google.NewGeminiClient(llmCfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// WrapClient applies the middleware chain to raw:
// Metrics -> EmptyResponseLogging -> Retry -> Timeout -> Validation -> raw.
// The timeout bounds each attempt; validation classifies empty replies before retry
// and metrics see them.
func WrapClient(raw llm.LLMClient, cfg *config.Config, recorder metrics.Recorder) llm.LLMClient {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	logger := logx.NewLogger("llm")
	policy := retry.NewPolicy(retry.FromConfig(cfg.LLM.Retry), nil)

	return llm.Chain(raw,
		metrics.Middleware(recorder, nil, logger),
		logging.EmptyResponseLoggingMiddleware(logger),
		retry.Middleware(policy, recorder, logger),
		timeout.Middleware(cfg.LLM.RequestTimeout),
		validation.EmptyResponseMiddleware(),
	)
}
