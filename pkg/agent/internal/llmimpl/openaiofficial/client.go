// Package openaiofficial implements structured completions on the OpenAI Chat
// Completions API with strict json_schema response formats.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
	"github.com/Flagro/holosophos-erc3/pkg/config"
)

// OfficialClient wraps the official OpenAI Go client to implement llm.LLMClient.
type OfficialClient struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOfficialClient creates a raw client; middleware is applied at a higher level.
// SDK-level retries are disabled so that retrying stays a middleware decision.
func NewOfficialClient(cfg llm.LLMConfig) (*OfficialClient, error) {
	if err := cfg.Validate(false); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OfficialClient{
		client:    openai.NewClient(opts...),
		model:     cfg.ModelName,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// convertMessages maps the conversation onto chat messages. Assistant tool calls and
// tool results keep their ids so the API can pair them.
func convertMessages(messages []llm.CompletionMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llm.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case llm.RoleAssistant:
			assistant := &openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)}
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case llm.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}

// capTokens caps the request to the model's known output limit.
func capTokens(model string, requested int) int {
	if info, ok := config.GetModelInfo(model); ok && info.MaxOutputTokens > 0 && requested > info.MaxOutputTokens {
		return info.MaxOutputTokens
	}
	return requested
}

//nolint:gocritic // request passed by value per interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if in.Schema.Schema == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "openai: request has no response schema")
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(o.model),
		Messages:            convertMessages(in.Messages),
		MaxCompletionTokens: openai.Int(int64(capTokens(o.model, maxTokens))),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        in.Schema.Name,
					Description: openai.String(in.Schema.Description),
					Schema:      in.Schema.Schema.ToMap(),
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "openai: no choices in response")
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeRefusal, "openai refused: "+choice.Message.Refusal)
	}
	if choice.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
			fmt.Sprintf("openai: empty content (finish_reason=%s)", choice.FinishReason))
	}

	return llm.CompletionResponse{
		Content: []byte(choice.Message.Content),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		StopReason: choice.FinishReason,
	}, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llmerrors.Classify(err, apiErr.StatusCode)
	}
	return llmerrors.Classify(err, 0)
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}
