package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/steploop"
	"github.com/Flagro/holosophos-erc3/pkg/config"
	"github.com/Flagro/holosophos-erc3/pkg/contextmgr"
	"github.com/Flagro/holosophos-erc3/pkg/corporate"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
	"github.com/Flagro/holosophos-erc3/pkg/session"
	"github.com/Flagro/holosophos-erc3/pkg/telemetry"
)

// directoryAPI implements only ListEmployees; other calls panic and are recovered by
// the dispatcher.
type directoryAPI struct {
	corporate.API
	taskID string
	calls  int
}

func (d *directoryAPI) ListEmployees(context.Context, *corporate.ListEmployeesRequest) (*corporate.ListEmployeesResponse, error) {
	d.calls++
	return &corporate.ListEmployeesResponse{Employees: []corporate.EmployeeSummary{{ID: "e1", Name: "Alice"}}, Total: 1}, nil
}

type replayRequester struct {
	decisions []*nextstep.Decision
	seen      [][]contextmgr.Entry
}

func (r *replayRequester) RequestStep(_ context.Context, entries []contextmgr.Entry, _ int) (*nextstep.Step, error) {
	r.seen = append(r.seen, entries)
	d := r.decisions[min(len(r.seen)-1, len(r.decisions)-1)]
	return &nextstep.Step{
		Decision: d,
		Usage:    llm.Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
		Duration: time.Second,
		Model:    "gpt-4o",
	}, nil
}

func listDecision() *nextstep.Decision {
	return &nextstep.Decision{
		CurrentState:       "need the directory",
		PlanRemainingSteps: []string{"list employees"},
		Function:           &corporate.ListEmployeesRequest{Limit: 10},
	}
}

func doneDecision() *nextstep.Decision {
	return &nextstep.Decision{
		PlanRemainingSteps: []string{"report"},
		TaskCompleted:      true,
		Function:           &nextstep.CompletionReport{CompletedSteps: []string{"listed"}, Code: nextstep.CodeCompleted},
	}
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(RunnerConfig{})
	assert.Error(t, err)
	_, err = NewRunner(RunnerConfig{Requester: &replayRequester{}})
	assert.Error(t, err)
}

func TestRunTaskSeedsConversationAndDispatches(t *testing.T) {
	req := &replayRequester{decisions: []*nextstep.Decision{listDecision(), doneDecision()}}
	apis := map[string]*directoryAPI{}
	totals := telemetry.NewAggregator()

	runner, err := NewRunner(RunnerConfig{
		Requester: req,
		API: func(taskID string) corporate.API {
			api := &directoryAPI{taskID: taskID}
			apis[taskID] = api
			return api
		},
		Totals: totals,
		Agent:  config.DefaultConfig().Agent,
	})
	require.NoError(t, err)

	outcome, err := runner.RunTask(context.Background(), session.Task{TaskID: "t1", SpecID: "s1", Text: "Who works here?"})
	require.NoError(t, err)
	assert.Equal(t, steploop.OutcomeCompleted, outcome.Kind)
	assert.Equal(t, 1, outcome.Turns)
	assert.Equal(t, 1, apis["t1"].calls)

	require.Len(t, req.seen, 2)
	first := req.seen[0]
	require.Len(t, first, 2)
	assert.Equal(t, contextmgr.RoleSystem, first[0].Role)
	assert.Equal(t, corporate.SystemPrompt, first[0].Content)
	assert.Equal(t, "Who works here?", first[1].Content)
	assert.JSONEq(t, `{"employees":[{"id":"e1","name":"Alice"}],"total":1}`, req.seen[1][3].Content)

	task := totals.Task("t1")
	require.NotNil(t, task)
	assert.Equal(t, 2, task.Requests)
	assert.Equal(t, 3000, task.TotalTokens)
}

func TestRunTaskUsesFreshConversationPerTask(t *testing.T) {
	req := &replayRequester{decisions: []*nextstep.Decision{doneDecision()}}
	runner, err := NewRunner(RunnerConfig{
		Requester: req,
		API:       func(taskID string) corporate.API { return &directoryAPI{taskID: taskID} },
		Agent:     config.AgentConfig{MaxTurns: 5, SystemPrompt: "custom prompt"},
	})
	require.NoError(t, err)

	for _, id := range []string{"t1", "t2"} {
		_, err := runner.RunTask(context.Background(), session.Task{TaskID: id, Text: "task " + id})
		require.NoError(t, err)
	}
	require.Len(t, req.seen, 2)
	assert.Len(t, req.seen[1], 2)
	assert.Equal(t, "custom prompt", req.seen[1][0].Content)
	assert.Equal(t, "task t2", req.seen[1][1].Content)
}

func TestRunTaskUnimplementedActionBecomesTransportError(t *testing.T) {
	req := &replayRequester{decisions: []*nextstep.Decision{
		{PlanRemainingSteps: []string{"report"}, Function: &corporate.GetBudgetReportRequest{Department: "R&D"}},
		doneDecision(),
	}}
	runner, err := NewRunner(RunnerConfig{
		Requester: req,
		API:       func(taskID string) corporate.API { return &directoryAPI{taskID: taskID} },
		Agent:     config.AgentConfig{MaxTurns: 5},
	})
	require.NoError(t, err)

	outcome, err := runner.RunTask(context.Background(), session.Task{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, steploop.OutcomeCompleted, outcome.Kind)
	assert.Contains(t, req.seen[1][3].Content, "Error: ")
}

type turnCounter struct {
	steploop.NopObserver
	turns int
}

func (c *turnCounter) TurnStarted(int, string) { c.turns++ }

func TestRunTaskFansOutToTaskTrace(t *testing.T) {
	req := &replayRequester{decisions: []*nextstep.Decision{listDecision(), doneDecision()}}
	shared := &turnCounter{}
	traces := map[string]*turnCounter{}

	runner, err := NewRunner(RunnerConfig{
		Requester: req,
		API:       func(taskID string) corporate.API { return &directoryAPI{taskID: taskID} },
		Observer:  shared,
		Trace: func(taskID string) steploop.Observer {
			c := &turnCounter{}
			traces[taskID] = c
			return c
		},
		Agent: config.AgentConfig{MaxTurns: 5},
	})
	require.NoError(t, err)

	_, err = runner.RunTask(context.Background(), session.Task{TaskID: "t9"})
	require.NoError(t, err)
	assert.Equal(t, 2, shared.turns)
	require.Contains(t, traces, "t9")
	assert.Equal(t, 2, traces["t9"].turns)
}
