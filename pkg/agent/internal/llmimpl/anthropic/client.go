// Package anthropic implements structured completions on the Claude Messages API by
// forcing a single tool whose input schema is the response schema.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient.
type ClaudeClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int
}

// NewClaudeClient creates a raw client; middleware is applied at a higher level.
func NewClaudeClient(cfg llm.LLMConfig) (*ClaudeClient, error) {
	if err := cfg.Validate(false); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ClaudeClient{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.ModelName),
		maxTokens: cfg.MaxTokens,
	}, nil
}

// toolName derives the forced tool name from the schema name ("NextStep" -> "next_step").
func toolName(schemaName string) string {
	var b strings.Builder
	for i, r := range schemaName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ensureAlternation prepares messages for Anthropic API requirements:
//  1. system messages move to the top-level system parameter
//  2. assistant tool calls and tool results are flattened to text
//  3. consecutive non-assistant messages merge into one user message
//  4. the sequence starts and ends with a user message
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var userParts []string
	flush := func() {
		if len(userParts) > 0 {
			alternating = append(alternating, llm.CompletionMessage{Role: llm.RoleUser, Content: strings.Join(userParts, "\n\n")})
			userParts = nil
		}
	}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case llm.RoleAssistant:
			flush()
			alternating = append(alternating, llm.CompletionMessage{Role: llm.RoleAssistant, Content: llm.FlattenToolCall(*msg)})
		case llm.RoleTool:
			userParts = append(userParts, llm.FlattenToolResult(*msg))
		default:
			userParts = append(userParts, msg.Content)
		}
	}
	flush()

	if len(alternating) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	for i := range alternating {
		if i > 0 && alternating[i].Role == alternating[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, alternating[i].Role)
		}
	}
	if alternating[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", alternating[0].Role)
	}
	if last := alternating[len(alternating)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}
	return strings.Join(systemParts, "\n\n"), alternating, nil
}

// inputSchema converts the response schema into the forced tool's input schema.
// additionalProperties travels as an extra field.
func inputSchema(schema llm.ResponseSchema) anthropic.ToolInputSchemaParam {
	doc := schema.Schema.ToMap()
	out := anthropic.ToolInputSchemaParam{
		Properties: doc["properties"],
		Required:   schema.Schema.Required,
	}
	if closed, ok := doc["additionalProperties"]; ok {
		out.ExtraFields = map[string]any{"additionalProperties": closed}
	}
	return out
}

//nolint:gocritic // CompletionRequest passed by value per interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if in.Schema.Schema == nil || in.Schema.Schema.Type != "object" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "anthropic: response schema must be an object")
	}
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		block := anthropic.NewTextBlock(alternating[i].Content)
		if alternating[i].Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	name := toolName(in.Schema.Name)
	tool := anthropic.ToolUnionParamOfTool(inputSchema(in.Schema), name)
	if in.Schema.Description != "" && tool.OfTool != nil {
		tool.OfTool.Description = anthropic.String(in.Schema.Description)
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: int64(maxTokens),
		Tools:     []anthropic.ToolUnionParam{tool},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: name},
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type != "tool_use" {
			continue
		}
		toolUse := block.AsToolUse()
		if toolUse.Name != name {
			continue
		}
		return llm.CompletionResponse{
			Content: toolUse.Input,
			Usage: llm.Usage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
			StopReason: string(resp.StopReason),
		}, nil
	}

	if resp.StopReason == "refusal" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeRefusal, "Claude refused the request")
	}
	return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
		fmt.Sprintf("Claude returned no %s tool call (stop_reason=%s)", name, resp.StopReason))
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to our structured error types.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llmerrors.Classify(err, apiErr.StatusCode)
	}
	return llmerrors.Classify(err, 0)
}
