package contextmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
)

type charCounter struct{}

func (charCounter) CountTokens(text string) int { return len(text) }

func seeded() *ContextManager {
	cm := NewContextManager()
	cm.AddMessage(RoleSystem, "You are a corporate assistant")
	cm.AddMessage(RoleUser, "Fire nobody")
	return cm
}

func TestAppendPreservesOrder(t *testing.T) {
	cm := seeded()
	cm.AddAssistantToolCall("list staff", ToolCall{ID: "step_1", Name: "list_employees", Arguments: "{}"})
	cm.AddToolResult("step_1", "list_employees", `{"total":0}`)

	entries := cm.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, 4, cm.Len())
	assert.Equal(t, RoleSystem, entries[0].Role)
	assert.Equal(t, RoleUser, entries[1].Role)
	assert.Equal(t, RoleAssistant, entries[2].Role)
	assert.Equal(t, "step_1", entries[2].ToolCall.ID)
	assert.Equal(t, RoleTool, entries[3].Role)
	assert.Equal(t, "step_1", entries[3].ToolCallID)
	assert.Equal(t, "list_employees", entries[3].ToolName)
}

func TestEntriesReturnsCopy(t *testing.T) {
	cm := seeded()
	cm.AddAssistantToolCall("x", ToolCall{ID: "step_1", Name: "a"})

	entries := cm.Entries()
	entries[0].Content = "tampered"
	entries[2].ToolCall.ID = "tampered"
	_ = append(entries, Entry{Role: RoleUser})

	again := cm.Entries()
	assert.Equal(t, "You are a corporate assistant", again[0].Content)
	assert.Equal(t, "step_1", again[2].ToolCall.ID)
	assert.Equal(t, 3, cm.Len())
}

func TestAppendCopiesToolCall(t *testing.T) {
	cm := NewContextManager()
	call := &ToolCall{ID: "step_1"}
	cm.Append(Entry{Role: RoleAssistant, ToolCall: call})
	call.ID = "changed"

	assert.Equal(t, "step_1", cm.Entries()[0].ToolCall.ID)
}

func TestCountTokens(t *testing.T) {
	cm := NewContextManager()
	cm.AddMessage(RoleUser, "abc")
	cm.AddAssistantToolCall("de", ToolCall{Name: "f", Arguments: "{}"})

	// "user"+"abc" + "assistant"+"de" + "f"+"{}"
	assert.Equal(t, 4+3+9+2+1+2, cm.CountTokens(charCounter{}))
}

func TestToMessages(t *testing.T) {
	cm := seeded()
	cm.AddAssistantToolCall("list staff", ToolCall{ID: "step_1", Name: "list_employees", Arguments: "{}"})
	cm.AddToolResult("step_1", "list_employees", "ok")

	msgs := ToMessages(cm.Entries())
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, []llm.ToolCall{{ID: "step_1", Name: "list_employees", Arguments: "{}"}}, msgs[2].ToolCalls)
	assert.Equal(t, llm.RoleTool, msgs[3].Role)
	assert.Equal(t, "step_1", msgs[3].ToolCallID)
	assert.Empty(t, msgs[1].ToolCalls)
}

func TestEntryString(t *testing.T) {
	call := Entry{Role: RoleAssistant, Content: "go", ToolCall: &ToolCall{ID: "step_2", Name: "assign_task"}}
	result := Entry{Role: RoleTool, Content: "done", ToolCallID: "step_2"}
	plain := Entry{Role: RoleUser, Content: "hi"}

	assert.Equal(t, "assistant: go -> assign_task(step_2)", call.String())
	assert.Equal(t, "tool[step_2]: done", result.String())
	assert.Equal(t, "user: hi", plain.String())
}
