// Package contextmgr holds the append-only conversation log of a single task.
package contextmgr

import (
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
)

// Role identifies the author of an entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall records the action an assistant entry requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Entry is one message of the conversation.
type Entry struct {
	Role       Role
	Content    string
	ToolCall   *ToolCall // assistant entries that requested an action
	ToolCallID string    // tool entries
	ToolName   string    // tool entries
}

// TokenCounter estimates the size of a text.
type TokenCounter interface {
	CountTokens(text string) int
}

// ContextManager is the append-only log. Entries are never edited or removed.
type ContextManager struct {
	entries []Entry
}

// NewContextManager creates an empty log.
func NewContextManager() *ContextManager {
	return &ContextManager{entries: make([]Entry, 0, 8)}
}

// Append adds an entry at the end of the log.
func (cm *ContextManager) Append(entry Entry) {
	if entry.ToolCall != nil {
		tc := *entry.ToolCall
		entry.ToolCall = &tc
	}
	cm.entries = append(cm.entries, entry)
}

// AddMessage stores a plain role/content pair.
func (cm *ContextManager) AddMessage(role Role, content string) {
	cm.Append(Entry{Role: role, Content: content})
}

// AddAssistantToolCall records the assistant's step text and the action it requested.
func (cm *ContextManager) AddAssistantToolCall(content string, call ToolCall) {
	cm.Append(Entry{Role: RoleAssistant, Content: content, ToolCall: &call})
}

// AddToolResult records the outcome of the call with callID.
func (cm *ContextManager) AddToolResult(callID, toolName, content string) {
	cm.Append(Entry{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: toolName})
}

// Entries returns the log in insertion order. The result is a copy.
func (cm *ContextManager) Entries() []Entry {
	result := make([]Entry, len(cm.entries))
	for i, e := range cm.entries {
		if e.ToolCall != nil {
			tc := *e.ToolCall
			e.ToolCall = &tc
		}
		result[i] = e
	}
	return result
}

func (cm *ContextManager) Len() int {
	return len(cm.entries)
}

// CountTokens estimates the size of the whole log.
func (cm *ContextManager) CountTokens(counter TokenCounter) int {
	total := 0
	for i := range cm.entries {
		e := &cm.entries[i]
		total += counter.CountTokens(string(e.Role)) + counter.CountTokens(e.Content)
		if e.ToolCall != nil {
			total += counter.CountTokens(e.ToolCall.Name) + counter.CountTokens(e.ToolCall.Arguments)
		}
	}
	return total
}

// ToMessages converts entries into provider-neutral completion messages.
func ToMessages(entries []Entry) []llm.CompletionMessage {
	messages := make([]llm.CompletionMessage, 0, len(entries))
	for i := range entries {
		messages = append(messages, entries[i].ToMessage())
	}
	return messages
}

// ToMessage converts one entry.
func (e *Entry) ToMessage() llm.CompletionMessage {
	msg := llm.CompletionMessage{
		Role:       llm.CompletionRole(e.Role),
		Content:    e.Content,
		ToolCallID: e.ToolCallID,
		ToolName:   e.ToolName,
	}
	if e.ToolCall != nil {
		msg.ToolCalls = []llm.ToolCall{{ID: e.ToolCall.ID, Name: e.ToolCall.Name, Arguments: e.ToolCall.Arguments}}
	}
	return msg
}

func (e *Entry) String() string {
	switch {
	case e.ToolCall != nil:
		return fmt.Sprintf("%s: %s -> %s(%s)", e.Role, e.Content, e.ToolCall.Name, e.ToolCall.ID)
	case e.ToolCallID != "":
		return fmt.Sprintf("%s[%s]: %s", e.Role, e.ToolCallID, e.Content)
	default:
		return fmt.Sprintf("%s: %s", e.Role, e.Content)
	}
}
