package session

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flagro/holosophos-erc3/pkg/agent/steploop"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
	"github.com/Flagro/holosophos-erc3/pkg/persistence"
)

type fakePlatform struct {
	tasks     []Task
	started   []string
	completed []string
	submitted bool
	evals     map[string]*Eval
	startErr  error
}

func (p *fakePlatform) StartSession(context.Context, StartRequest) (string, error) {
	return "ses-1", nil
}

func (p *fakePlatform) SessionStatus(context.Context, string) (*Status, error) {
	return &Status{SessionID: "ses-1", Tasks: p.tasks}, nil
}

func (p *fakePlatform) StartTask(_ context.Context, task Task) error {
	p.started = append(p.started, task.TaskID)
	return p.startErr
}

func (p *fakePlatform) CompleteTask(_ context.Context, task Task) (*TaskResult, error) {
	p.completed = append(p.completed, task.TaskID)
	return &TaskResult{Eval: p.evals[task.TaskID]}, nil
}

func (p *fakePlatform) SubmitSession(context.Context, string) error {
	p.submitted = true
	return nil
}

// runnerFunc adapts a function to TaskRunner.
type runnerFunc func(ctx context.Context, task Task) (steploop.Outcome, error)

func (f runnerFunc) RunTask(ctx context.Context, task Task) (steploop.Outcome, error) {
	return f(ctx, task)
}

func completed(turns int) steploop.Outcome {
	return steploop.Outcome{
		Kind:   steploop.OutcomeCompleted,
		Report: &nextstep.CompletionReport{Code: nextstep.CodeCompleted},
		Turns:  turns,
	}
}

func twoTasks() []Task {
	return []Task{
		{TaskID: "t1", SpecID: "s1", Text: "Find Alice"},
		{TaskID: "t2", SpecID: "s2", Text: "Create Apollo"},
	}
}

func TestRunPrintsTraceAndSubmits(t *testing.T) {
	platform := &fakePlatform{
		tasks: twoTasks(),
		evals: map[string]*Eval{"t1": {Score: 1, Logs: "found\nall good"}},
	}
	runner := runnerFunc(func(_ context.Context, task Task) (steploop.Outcome, error) {
		if task.TaskID == "t2" {
			return steploop.Outcome{Kind: steploop.OutcomeRequestError, Err: errors.New("transport_error: boom")}, nil
		}
		return completed(2), nil
	})
	var out bytes.Buffer

	summary, err := NewDriver(platform, runner, nil, &out).Run(context.Background(), Config{StartRequest: StartRequest{Benchmark: "corporate"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2"}, platform.started)
	assert.Equal(t, []string{"t1", "t2"}, platform.completed)
	assert.True(t, platform.submitted)
	assert.Equal(t, &Summary{SessionID: "ses-1", Tasks: 2, Attempted: 2, Failed: 1, Score: 1, Submitted: true}, summary)

	text := out.String()
	assert.Contains(t, text, "Session has 2 tasks\n")
	assert.Contains(t, text, "========================================\nStarting Task: t1 (s1): Find Alice\n")
	assert.Contains(t, text, "\nSCORE: 1\n  found\n  all good\n")
	assert.Contains(t, text, "Error running agent: transport_error: boom\n")
	assert.Contains(t, text, "✓ Session ses-1 completed and submitted!")
}

func TestRunnerErrorDoesNotStopSession(t *testing.T) {
	platform := &fakePlatform{tasks: twoTasks()}
	calls := 0
	runner := runnerFunc(func(context.Context, Task) (steploop.Outcome, error) {
		calls++
		return steploop.Outcome{}, errors.New("no executor")
	})
	var out bytes.Buffer

	summary, err := NewDriver(platform, runner, nil, &out).Run(context.Background(), Config{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, summary.Failed)
	assert.True(t, platform.submitted)
}

func TestStartTaskFailureSkipsRunner(t *testing.T) {
	platform := &fakePlatform{tasks: twoTasks()[:1], startErr: errors.New("already started")}
	runner := runnerFunc(func(context.Context, Task) (steploop.Outcome, error) {
		t.Fatal("runner must not be called")
		return steploop.Outcome{}, nil
	})
	var out bytes.Buffer

	summary, err := NewDriver(platform, runner, nil, &out).Run(context.Background(), Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, platform.completed)
	assert.Contains(t, out.String(), "Error running agent: already started")
}

func TestCancelledSessionIsNotSubmitted(t *testing.T) {
	platform := &fakePlatform{tasks: twoTasks()}
	ctx, cancel := context.WithCancel(context.Background())
	runner := runnerFunc(func(context.Context, Task) (steploop.Outcome, error) {
		cancel()
		return completed(1), nil
	})
	var out bytes.Buffer

	summary, err := NewDriver(platform, runner, nil, &out).Run(ctx, Config{})
	assert.ErrorIs(t, err, steploop.ErrGracefulShutdown)
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, []string{"t1"}, platform.completed, "the interrupted task is still completed")
	assert.False(t, platform.submitted)
}

func TestRunsAreRecorded(t *testing.T) {
	db, err := persistence.InitializeDatabase(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := persistence.NewDatabaseOperations(db, "")

	platform := &fakePlatform{
		tasks: twoTasks(),
		evals: map[string]*Eval{"t1": {Score: 0.5}},
	}
	runner := runnerFunc(func(_ context.Context, task Task) (steploop.Outcome, error) {
		if task.TaskID == "t2" {
			return steploop.Outcome{Kind: steploop.OutcomeExhausted, Turns: 20}, nil
		}
		return completed(3), nil
	})
	var out bytes.Buffer

	_, err = NewDriver(platform, runner, store, &out).Run(context.Background(), Config{Model: "gpt-4o"})
	require.NoError(t, err)

	s, err := store.GetSession()
	require.NoError(t, err)
	assert.Equal(t, "ses-1", s.ID)
	assert.Equal(t, "gpt-4o", s.Model)
	assert.NotNil(t, s.SubmittedAt)

	runs, err := store.ListTaskRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, persistence.OutcomeCompleted, runs[0].Outcome)
	assert.Equal(t, 3, runs[0].Turns)
	require.NotNil(t, runs[0].Score)
	assert.InDelta(t, 0.5, *runs[0].Score, 1e-9)
	assert.Equal(t, persistence.OutcomeExhausted, runs[1].Outcome)
	assert.Equal(t, 20, runs[1].Turns)
}

func TestStoredOutcome(t *testing.T) {
	failed := steploop.Outcome{Kind: steploop.OutcomeCompleted, Report: &nextstep.CompletionReport{Code: nextstep.CodeFailed}}
	assert.Equal(t, persistence.OutcomeCompleted, storedOutcome(completed(1)))
	assert.Equal(t, persistence.OutcomeFailed, storedOutcome(failed))
	assert.Equal(t, persistence.OutcomeExhausted, storedOutcome(steploop.Outcome{Kind: steploop.OutcomeExhausted}))
	assert.Equal(t, persistence.OutcomeError, storedOutcome(steploop.Outcome{Kind: steploop.OutcomeShutdown}))
}
