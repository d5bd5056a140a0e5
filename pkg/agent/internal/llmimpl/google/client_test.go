package google

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
	"github.com/Flagro/holosophos-erc3/pkg/tools"
)

func TestNewGeminiClient(t *testing.T) {
	client, err := NewGeminiClient(llm.LLMConfig{APIKey: "k", ModelName: "gemini-2.5-flash", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", client.GetModelName())

	_, err = NewGeminiClient(llm.LLMConfig{ModelName: "gemini-2.5-flash", MaxTokens: 100})
	assert.Error(t, err)
}

func TestConvertMessagesToGemini(t *testing.T) {
	contents, system, err := convertMessagesToGemini([]llm.CompletionMessage{
		llm.NewSystemMessage("You are helpful"),
		llm.NewSystemMessage("And concise"),
		llm.NewUserMessage("task"),
		{Role: llm.RoleAssistant, Content: "look up", ToolCalls: []llm.ToolCall{{ID: "step_1", Name: "list_projects", Arguments: `{}`}}},
		llm.NewToolResultMessage("step_1", "list_projects", `{"projects":[]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "You are helpful\n\nAnd concise", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "look up\n[step_1] list_projects {}", contents[1].Parts[0].Text)
	assert.Equal(t, "[step_1 result] {\"projects\":[]}", contents[2].Parts[0].Text)
}

func TestConvertMessagesMergesSameRole(t *testing.T) {
	contents, _, err := convertMessagesToGemini([]llm.CompletionMessage{
		llm.NewUserMessage("a"),
		llm.NewUserMessage("b"),
	})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Len(t, contents[0].Parts, 2)
}

func TestConvertMessagesErrors(t *testing.T) {
	_, _, err := convertMessagesToGemini(nil)
	assert.ErrorContains(t, err, "cannot be empty")

	_, _, err = convertMessagesToGemini([]llm.CompletionMessage{llm.NewSystemMessage("only")})
	assert.ErrorContains(t, err, "at least one non-system")
}

func TestConvertPropertyToGeminiSchema(t *testing.T) {
	prop := tools.Object("decision",
		tools.Field{Name: "plan", Property: tools.Array("", tools.String("")).Bounded(1, 5)},
		tools.Field{Name: "note", Property: tools.String("").Optional()},
		tools.Field{Name: "function", Property: tools.OneOf("",
			tools.Object("", tools.Field{Name: "tool", Property: tools.Enum("", "list_projects")}),
			tools.Object("", tools.Field{Name: "tool", Property: tools.Enum("", "report_completion")}),
		)},
	)

	schema := convertPropertyToGeminiSchema(prop)
	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"plan", "note", "function"}, schema.Required)
	assert.Equal(t, []string{"plan", "note", "function"}, schema.PropertyOrdering)

	plan := schema.Properties["plan"]
	assert.Equal(t, genai.TypeArray, plan.Type)
	require.NotNil(t, plan.MinItems)
	assert.Equal(t, int64(1), *plan.MinItems)
	assert.Equal(t, int64(5), *plan.MaxItems)

	note := schema.Properties["note"]
	require.NotNil(t, note.Nullable)
	assert.True(t, *note.Nullable)

	fn := schema.Properties["function"]
	require.Len(t, fn.AnyOf, 2)
	assert.Equal(t, []string{"list_projects"}, fn.AnyOf[0].Properties["tool"].Enum)
}

func TestCompleteUsesResponseSchema(t *testing.T) {
	var path string
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"current_state\":\"ready\"}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 4, "totalTokenCount": 16}
		}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewGeminiClient(llm.LLMConfig{APIKey: "k", ModelName: "gemini-2.5-flash", BaseURL: server.URL, MaxTokens: 100})
	require.NoError(t, err)

	schema := llm.ResponseSchema{Name: "NextStep", Schema: tools.Object("", tools.Field{Name: "current_state", Property: tools.String("")})}
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("task")}, schema))
	require.NoError(t, err)
	assert.JSONEq(t, `{"current_state":"ready"}`, string(resp.Content))
	assert.Equal(t, llm.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16}, resp.Usage)
	assert.True(t, strings.HasSuffix(path, "gemini-2.5-flash:generateContent"), path)
	assert.Contains(t, body, "application/json")
	assert.Contains(t, body, "current_state")
}

func TestCompleteWithoutSchema(t *testing.T) {
	client, err := NewGeminiClient(llm.LLMConfig{APIKey: "k", ModelName: "gemini-2.5-flash", MaxTokens: 100})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), llm.CompletionRequest{})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
}
