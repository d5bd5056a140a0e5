package agent

import (
	"context"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/agent/steploop"
	"github.com/Flagro/holosophos-erc3/pkg/config"
	"github.com/Flagro/holosophos-erc3/pkg/contextmgr"
	"github.com/Flagro/holosophos-erc3/pkg/corporate"
	"github.com/Flagro/holosophos-erc3/pkg/dispatch"
	"github.com/Flagro/holosophos-erc3/pkg/logx"
	"github.com/Flagro/holosophos-erc3/pkg/session"
	"github.com/Flagro/holosophos-erc3/pkg/telemetry"
)

// CorporateAPIFactory returns the corporate API bound to a task.
type CorporateAPIFactory func(taskID string) corporate.API

// TaskObserverFactory returns an observer scoped to one task.
type TaskObserverFactory func(taskID string) steploop.Observer

// RunnerConfig collects the collaborators of a Runner. Everything except Requester and
// API is optional.
type RunnerConfig struct {
	Requester      steploop.Requester
	API            CorporateAPIFactory
	Sink           telemetry.Sink
	Observer       steploop.Observer
	Trace          TaskObserverFactory
	Totals         *telemetry.Aggregator
	HistoryCounter contextmgr.TokenCounter
	Agent          config.AgentConfig
}

// Runner solves corporate tasks one after another.
type Runner struct {
	cfg    RunnerConfig
	sink   telemetry.Sink
	prompt string
	logger *logx.Logger
}

var _ session.TaskRunner = (*Runner)(nil)

// NewRunner validates cfg and creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Requester == nil {
		return nil, fmt.Errorf("requester cannot be nil")
	}
	if cfg.API == nil {
		return nil, fmt.Errorf("corporate API factory cannot be nil")
	}
	sinks := []telemetry.Sink{cfg.Sink}
	if cfg.Totals != nil {
		sinks = append(sinks, cfg.Totals)
	}
	prompt := cfg.Agent.SystemPrompt
	if prompt == "" {
		prompt = corporate.SystemPrompt
	}
	return &Runner{
		cfg:    cfg,
		sink:   telemetry.Multi(sinks...),
		prompt: prompt,
		logger: logx.NewLogger("agent"),
	}, nil
}

// RunTask seeds a fresh conversation with the system prompt and the task text, binds
// the corporate executor to the task and runs the step loop.
func (r *Runner) RunTask(ctx context.Context, task session.Task) (steploop.Outcome, error) {
	executor := corporate.NewExecutor(r.cfg.API(task.TaskID))
	disp, err := dispatch.NewDispatcher(executor, corporate.Catalog{}, logx.NewLogger("dispatch"))
	if err != nil {
		return steploop.Outcome{}, fmt.Errorf("bind corporate executor: %w", err)
	}

	cm := contextmgr.NewContextManager()
	cm.AddMessage(contextmgr.RoleSystem, r.prompt)
	cm.AddMessage(contextmgr.RoleUser, task.Text)

	r.logger.Info("🔄 Starting task %s (%s)", task.TaskID, task.SpecID)
	observer := r.cfg.Observer
	if r.cfg.Trace != nil {
		observer = steploop.Observers(observer, r.cfg.Trace(task.TaskID))
	}
	loop := steploop.New(r.cfg.Requester, disp, r.sink, observer, logx.NewLogger("steploop"))
	outcome := loop.Run(ctx, cm, steploop.Config{
		TaskID:           task.TaskID,
		MaxTurns:         r.cfg.Agent.MaxTurns,
		MaxTokens:        r.cfg.Agent.MaxCompletionTokens,
		MaxHistoryTokens: r.cfg.Agent.MaxHistoryTokens,
		HistoryCounter:   r.cfg.HistoryCounter,
	})
	r.logSummary(task.TaskID, outcome)
	return outcome, nil
}

func (r *Runner) logSummary(taskID string, outcome steploop.Outcome) {
	var totals *telemetry.TaskTotals
	if r.cfg.Totals != nil {
		totals = r.cfg.Totals.Task(taskID)
	}
	if totals == nil {
		r.logger.Info("✅ Task %s ended %s after %d turns", taskID, outcome.Kind, outcome.Turns)
		return
	}
	r.logger.Info("✅ Task %s ended %s after %d turns: %d requests, %d tokens, $%.4f in %.3gs",
		taskID, outcome.Kind, outcome.Turns, totals.Requests, totals.TotalTokens, totals.CostUSD, totals.Duration.Seconds())
}
