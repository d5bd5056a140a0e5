package nextstep

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
	"github.com/Flagro/holosophos-erc3/pkg/contextmgr"
	"github.com/Flagro/holosophos-erc3/pkg/tools"
)

type lookupAction struct {
	EmployeeID string `json:"employee_id"`
	Limit      *int   `json:"limit,omitempty"`
}

func (*lookupAction) Kind() ActionKind { return "lookup" }

type testCatalog struct{}

func (testCatalog) Variants() []Variant {
	return []Variant{{
		Kind:        "lookup",
		Description: "Look someone up",
		Fields: []tools.Field{
			{Name: "employee_id", Property: tools.String("")},
			{Name: "limit", Property: tools.Integer("").Optional()},
		},
		New: func() Action { return &lookupAction{} },
	}}
}

const completionReply = `{
	"current_state": "done",
	"plan_remaining_steps_brief": ["report"],
	"task_completed": true,
	"function": {"tool": "report_completion", "completed_steps_laconic": ["a", "b"], "code": "completed"}
}`

func TestBuildSchema(t *testing.T) {
	doc := BuildSchema(testCatalog{}).ToMap()

	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, false, doc["additionalProperties"])
	assert.Equal(t, []string{"current_state", "plan_remaining_steps_brief", "task_completed", "function"}, doc["required"])

	props := doc["properties"].(map[string]any)
	plan := props["plan_remaining_steps_brief"].(map[string]any)
	assert.Equal(t, 1, plan["minItems"])
	assert.Equal(t, 5, plan["maxItems"])

	options := props["function"].(map[string]any)["anyOf"].([]any)
	require.Len(t, options, 2)
	report := options[0].(map[string]any)
	assert.Equal(t, []string{"tool", "completed_steps_laconic", "code"}, report["required"])
	tag := report["properties"].(map[string]any)["tool"].(map[string]any)
	assert.Equal(t, []any{"report_completion"}, tag["enum"])

	lookup := options[1].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, []string{"integer", "null"}, lookup["limit"].(map[string]any)["type"])
}

func TestBuildSchemaMarshalsToJSON(t *testing.T) {
	data, err := json.Marshal(BuildSchema(nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"anyOf"`)
	assert.Contains(t, string(data), `"report_completion"`)
}

func TestParseDecisionCompletion(t *testing.T) {
	d, err := ParseDecision([]byte(completionReply), testCatalog{})
	require.NoError(t, err)

	report, ok := d.Report()
	require.True(t, ok)
	assert.Equal(t, CodeCompleted, report.Code)
	assert.Equal(t, []string{"a", "b"}, report.CompletedSteps)
	assert.Equal(t, "report", d.NextStep())
	assert.True(t, d.TaskCompleted)
}

func TestParseDecisionAction(t *testing.T) {
	raw := `{"current_state":"","plan_remaining_steps_brief":["look up","then report"],"task_completed":false,
		"function":{"tool":"lookup","employee_id":"e-1","limit":3}}`

	d, err := ParseDecision([]byte(raw), testCatalog{})
	require.NoError(t, err)

	action, ok := d.Function.(*lookupAction)
	require.True(t, ok)
	assert.Equal(t, "e-1", action.EmployeeID)
	require.NotNil(t, action.Limit)
	assert.Equal(t, 3, *action.Limit)
	assert.Equal(t, "look up", d.NextStep())
	_, terminal := d.Report()
	assert.False(t, terminal)
}

func TestParseDecisionNullOptional(t *testing.T) {
	raw := `{"current_state":"","plan_remaining_steps_brief":["x"],"task_completed":false,
		"function":{"tool":"lookup","employee_id":"e-1","limit":null}}`

	d, err := ParseDecision([]byte(raw), testCatalog{})
	require.NoError(t, err)
	assert.Nil(t, d.Function.(*lookupAction).Limit)
}

func TestParseDecisionNonConformant(t *testing.T) {
	cases := map[string]string{
		"not json":        `plain text`,
		"empty plan":      `{"current_state":"","plan_remaining_steps_brief":[],"task_completed":false,"function":{"tool":"lookup","employee_id":"e"}}`,
		"long plan":       `{"current_state":"","plan_remaining_steps_brief":["1","2","3","4","5","6"],"task_completed":false,"function":{"tool":"lookup","employee_id":"e"}}`,
		"missing fn":      `{"current_state":"","plan_remaining_steps_brief":["1"],"task_completed":false}`,
		"unknown field":   `{"current_state":"","plan_remaining_steps_brief":["1"],"task_completed":false,"extra":1,"function":{"tool":"lookup","employee_id":"e"}}`,
		"no tag":          `{"current_state":"","plan_remaining_steps_brief":["1"],"task_completed":false,"function":{"employee_id":"e"}}`,
		"unknown tag":     `{"current_state":"","plan_remaining_steps_brief":["1"],"task_completed":false,"function":{"tool":"fire_everyone"}}`,
		"unknown arg":     `{"current_state":"","plan_remaining_steps_brief":["1"],"task_completed":false,"function":{"tool":"lookup","employee_id":"e","salary":1}}`,
		"wrong arg type":  `{"current_state":"","plan_remaining_steps_brief":["1"],"task_completed":false,"function":{"tool":"lookup","employee_id":true}}`,
		"fractional int":  `{"current_state":"","plan_remaining_steps_brief":["1"],"task_completed":false,"function":{"tool":"lookup","employee_id":"e","limit":2.5}}`,
		"bad report code": `{"current_state":"","plan_remaining_steps_brief":["1"],"task_completed":true,"function":{"tool":"report_completion","completed_steps_laconic":[],"code":"maybe"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDecision([]byte(raw), testCatalog{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchemaNonConformance)
		})
	}
}

func TestMarshalArguments(t *testing.T) {
	limit := 2
	args, err := MarshalArguments(&lookupAction{EmployeeID: "e-9", Limit: &limit})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tool":"lookup","employee_id":"e-9","limit":2}`, args)

	args, err = MarshalArguments(&lookupAction{EmployeeID: "e-9"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tool":"lookup","employee_id":"e-9"}`, args)
}

type fakeClient struct {
	content []byte
	err     error
	usage   llm.Usage
	got     llm.CompletionRequest
}

func (f *fakeClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	f.got = req
	if f.err != nil {
		return llm.CompletionResponse{}, f.err
	}
	return llm.CompletionResponse{Content: f.content, Usage: f.usage}, nil
}

func (f *fakeClient) GetModelName() string { return "gpt-4o" }

func conversation() []contextmgr.Entry {
	cm := contextmgr.NewContextManager()
	cm.AddMessage(contextmgr.RoleSystem, "system")
	cm.AddMessage(contextmgr.RoleUser, "task")
	return cm.Entries()
}

func TestRequestStep(t *testing.T) {
	client := &fakeClient{content: []byte(completionReply), usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}
	r := NewRequester(client, testCatalog{}, nil)

	step, err := r.RequestStep(context.Background(), conversation(), 777)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", step.Model)
	assert.Equal(t, 15, step.Usage.TotalTokens)
	assert.GreaterOrEqual(t, step.Duration.Nanoseconds(), int64(0))
	_, ok := step.Decision.Report()
	assert.True(t, ok)

	assert.Equal(t, 777, client.got.MaxTokens)
	assert.Equal(t, SchemaName, client.got.Schema.Name)
	require.Len(t, client.got.Messages, 2)
	assert.Equal(t, llm.RoleUser, client.got.Messages[1].Role)
}

func TestRequestStepDefaultsMaxTokens(t *testing.T) {
	client := &fakeClient{content: []byte(completionReply)}
	_, err := NewRequester(client, testCatalog{}, nil).RequestStep(context.Background(), conversation(), 0)
	require.NoError(t, err)
	assert.Equal(t, llm.DefaultMaxTokens, client.got.MaxTokens)
}

func TestRequestStepErrors(t *testing.T) {
	transport := &fakeClient{err: llmerrors.NewError(llmerrors.ErrorTypeTransient, "502")}
	_, err := NewRequester(transport, testCatalog{}, nil).RequestStep(context.Background(), conversation(), 0)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeTransient))

	plain := &fakeClient{err: errors.New("dial tcp: refused")}
	_, err = NewRequester(plain, testCatalog{}, nil).RequestStep(context.Background(), conversation(), 0)
	assert.ErrorIs(t, err, ErrTransport)

	refusal := &fakeClient{err: llmerrors.NewError(llmerrors.ErrorTypeRefusal, "cannot help")}
	_, err = NewRequester(refusal, testCatalog{}, nil).RequestStep(context.Background(), conversation(), 0)
	assert.ErrorIs(t, err, ErrSchemaNonConformance)
	assert.NotErrorIs(t, err, ErrTransport)

	garbage := &fakeClient{content: []byte(`{"oops":true}`)}
	_, err = NewRequester(garbage, testCatalog{}, nil).RequestStep(context.Background(), conversation(), 0)
	assert.ErrorIs(t, err, ErrSchemaNonConformance)
}
