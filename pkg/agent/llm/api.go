// Package llm defines the provider-neutral structured completion contract.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/tools"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
	// RoleTool carries the result of an earlier assistant tool call.
	RoleTool CompletionRole = "tool"
)

// DefaultMaxTokens caps a single structured completion.
const DefaultMaxTokens = 10000

// ToolCall is an action the assistant asked for in an earlier turn.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object
}

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Role       CompletionRole
	Content    string
	ToolCalls  []ToolCall // assistant only
	ToolCallID string     // tool only
	ToolName   string     // tool only
}

// ResponseSchema names the JSON schema the reply must conform to.
type ResponseSchema struct {
	Name        string
	Description string
	Schema      *tools.Property
}

// CompletionRequest asks for a single schema-constrained reply.
type CompletionRequest struct {
	Messages  []CompletionMessage
	Schema    ResponseSchema
	MaxTokens int
}

// Usage reports provider token accounting for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse carries the raw JSON document produced under the schema.
type CompletionResponse struct {
	Content    json.RawMessage
	Usage      Usage
	StopReason string
}

// LLMClient produces structured completions.
type LLMClient interface { //nolint:revive // name kept across providers
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
	GetModelName() string
}

// NewCompletionRequest creates a request with the default token limit.
func NewCompletionRequest(messages []CompletionMessage, schema ResponseSchema) CompletionRequest {
	return CompletionRequest{
		Messages:  messages,
		Schema:    schema,
		MaxTokens: DefaultMaxTokens,
	}
}

func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewToolResultMessage answers the assistant tool call with the given id.
func NewToolResultMessage(callID, name, content string) CompletionMessage {
	return CompletionMessage{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: name}
}

// FlattenToolCall renders an assistant message and its tool calls as plain text for
// providers whose chat history cannot carry foreign tool calls.
func FlattenToolCall(msg CompletionMessage) string {
	text := msg.Content
	for _, tc := range msg.ToolCalls {
		if text != "" {
			text += "\n"
		}
		text += fmt.Sprintf("[%s] %s %s", tc.ID, tc.Name, tc.Arguments)
	}
	return text
}

// FlattenToolResult renders a tool message as plain text.
func FlattenToolResult(msg CompletionMessage) string {
	return fmt.Sprintf("[%s result] %s", msg.ToolCallID, msg.Content)
}

// LLMConfig represents configuration for a provider client.
type LLMConfig struct { //nolint:revive // name kept across providers
	APIKey    string
	ModelName string
	BaseURL   string
	MaxTokens int
}

// Validate validates the provider configuration. Providers that need no key pass keyless=true.
func (c *LLMConfig) Validate(keyless bool) error {
	if !keyless && c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	return nil
}
