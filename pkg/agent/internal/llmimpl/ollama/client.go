// Package ollama implements structured completions on a local Ollama server using
// JSON-schema constrained output.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
)

// DefaultHost is used when no host URL is configured.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.LLMClient.
type Client struct {
	client    *api.Client
	model     string
	maxTokens int
}

// NewOllamaClient creates a client for cfg.BaseURL (the Ollama host). Model names may
// carry an "ollama:" prefix.
func NewOllamaClient(cfg llm.LLMConfig) (*Client, error) {
	if err := cfg.Validate(true); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	host := cfg.BaseURL
	if host == "" {
		host = DefaultHost
	}
	parsedURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host %q: %w", host, err)
	}
	return &Client{
		client:    api.NewClient(parsedURL, http.DefaultClient),
		model:     strings.TrimPrefix(cfg.ModelName, "ollama:"),
		maxTokens: cfg.MaxTokens,
	}, nil
}

//nolint:gocritic // CompletionRequest passed by value per interface
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if in.Schema.Schema == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "ollama: request has no response schema")
	}
	messages, err := convertMessagesToOllama(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}
	format, err := json.Marshal(in.Schema.Schema)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "encode response schema")
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}
	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Format:   format,
		Options: map[string]any{
			"num_predict": maxTokens,
		},
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if strings.TrimSpace(response.Message.Content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
			fmt.Sprintf("Ollama returned no content (done_reason=%s)", response.DoneReason))
	}

	return llm.CompletionResponse{
		Content: []byte(response.Message.Content),
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
			TotalTokens:      response.PromptEvalCount + response.EvalCount,
		},
		StopReason: response.DoneReason,
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// convertMessagesToOllama converts the conversation to Ollama chat messages. Tool calls
// are flattened to text because the history refers to tools the request does not declare.
func convertMessagesToOllama(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem, llm.RoleUser:
			result = append(result, api.Message{Role: string(msg.Role), Content: msg.Content})
		case llm.RoleAssistant:
			result = append(result, api.Message{Role: "assistant", Content: llm.FlattenToolCall(*msg)})
		case llm.RoleTool:
			result = append(result, api.Message{Role: "user", Content: llm.FlattenToolResult(*msg)})
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	return result, nil
}

// classifyError converts Ollama errors to our error types.
func classifyError(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch statusErr := any(e).(type) {
		case api.StatusError:
			if statusErr.StatusCode == http.StatusNotFound {
				return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
			}
			return llmerrors.Classify(err, statusErr.StatusCode)
		case *api.StatusError:
			return llmerrors.Classify(err, statusErr.StatusCode)
		}
	}
	if msg := err.Error(); strings.Contains(msg, "model") && strings.Contains(msg, "not found") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
	}
	return llmerrors.Classify(err, 0)
}
