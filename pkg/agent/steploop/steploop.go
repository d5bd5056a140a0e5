// Package steploop drives a task: one structured decision per turn, one dispatched
// action per decision, until a completion report or the turn budget ends it.
package steploop

import (
	"context"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/config"
	"github.com/Flagro/holosophos-erc3/pkg/contextmgr"
	"github.com/Flagro/holosophos-erc3/pkg/dispatch"
	"github.com/Flagro/holosophos-erc3/pkg/logx"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
	"github.com/Flagro/holosophos-erc3/pkg/telemetry"
)

// DefaultMaxTurns bounds a task when Config.MaxTurns is unset.
const DefaultMaxTurns = 20

// Requester obtains one decision for the conversation so far.
type Requester interface {
	RequestStep(ctx context.Context, entries []contextmgr.Entry, maxOutputTokens int) (*nextstep.Step, error)
}

// Dispatcher executes a non-terminal action. It never fails.
type Dispatcher interface {
	Dispatch(ctx context.Context, action nextstep.Action) dispatch.Outcome
}

// Config bounds one run.
type Config struct {
	TaskID    string
	MaxTurns  int
	MaxTokens int // per decision

	// MaxHistoryTokens logs a warning once the conversation grows past it. The
	// conversation is never truncated. Zero or a nil HistoryCounter disables the check.
	MaxHistoryTokens int
	HistoryCounter   contextmgr.TokenCounter
}

// StepLoop owns no per-task state; a single instance can run tasks one after another.
type StepLoop struct {
	requester  Requester
	dispatcher Dispatcher
	sink       telemetry.Sink
	observer   Observer
	logger     *logx.Logger
}

// New creates a loop. A nil sink, observer or logger is replaced by a no-op default.
func New(requester Requester, dispatcher Dispatcher, sink telemetry.Sink, observer Observer, logger *logx.Logger) *StepLoop {
	if sink == nil {
		sink = telemetry.Nop()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = logx.NewLogger("steploop")
	}
	return &StepLoop{
		requester:  requester,
		dispatcher: dispatcher,
		sink:       sink,
		observer:   observer,
		logger:     logger,
	}
}

// CallID is the tool call id of the action chosen in turn (0-based).
func CallID(turn int) string {
	return fmt.Sprintf("step_%d", turn+1)
}

// Run drives cm, which must already hold the system prompt and the task, to a terminal
// state. Each dispatched action appends exactly two entries: the assistant entry with
// the tool call and the tool entry with its outcome. A completion report appends nothing.
func (sl *StepLoop) Run(ctx context.Context, cm *contextmgr.ContextManager, cfg Config) Outcome {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	ctx = logx.WithComponent(ctx, "steploop")
	historyWarned := false

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			sl.logger.Warn("⏹️  Task %s stopped before turn %d: %v", cfg.TaskID, turn+1, err)
			return Outcome{Kind: OutcomeShutdown, Err: fmt.Errorf("%w: %w", ErrGracefulShutdown, err), Turns: turn}
		}
		callID := CallID(turn)
		sl.observer.TurnStarted(turn, callID)

		if !historyWarned && cfg.MaxHistoryTokens > 0 && cfg.HistoryCounter != nil {
			if n := cm.CountTokens(cfg.HistoryCounter); n > cfg.MaxHistoryTokens {
				sl.logger.Warn("⚠️  Task %s history is ~%d tokens, above the %d budget", cfg.TaskID, n, cfg.MaxHistoryTokens)
				historyWarned = true
			}
		}

		step, err := sl.requester.RequestStep(ctx, cm.Entries(), cfg.MaxTokens)
		if err != nil {
			sl.logger.Error("❌ Task %s turn %d: %v", cfg.TaskID, turn+1, err)
			return Outcome{Kind: OutcomeRequestError, Err: err, Turns: turn}
		}
		sl.record(ctx, cfg.TaskID, step)

		decision := step.Decision
		sl.observer.ActionChosen(turn, decision)

		if report, ok := decision.Report(); ok {
			sl.logger.Info("🏁 Task %s finished with %s after %d turns", cfg.TaskID, report.Code, turn)
			sl.observer.Completed(report, turn)
			return Outcome{Kind: OutcomeCompleted, Report: report, Turns: turn}
		}

		action := decision.Function
		args, err := nextstep.MarshalArguments(action)
		if err != nil {
			return Outcome{Kind: OutcomeRequestError, Err: fmt.Errorf("%w: %w", nextstep.ErrSchemaNonConformance, err), Turns: turn}
		}
		cm.AddAssistantToolCall(decision.NextStep(), contextmgr.ToolCall{
			ID:        callID,
			Name:      string(action.Kind()),
			Arguments: args,
		})

		outcome := sl.dispatcher.Dispatch(ctx, action)
		logx.Debug(ctx, "steploop", "%s %s -> %s", callID, action.Kind(), outcome.Kind)
		cm.AddToolResult(callID, string(action.Kind()), outcome.Payload)
		sl.observer.ActionFinished(turn, outcome)
	}

	sl.logger.Warn("⚠️  Task %s exhausted its %d turns", cfg.TaskID, maxTurns)
	sl.observer.Exhausted(maxTurns)
	return Outcome{Kind: OutcomeExhausted, Turns: maxTurns}
}

// record reports usage. Sink failures never affect the run.
func (sl *StepLoop) record(ctx context.Context, taskID string, step *nextstep.Step) {
	rec := telemetry.Record{
		TaskID:   taskID,
		Model:    config.ModelTag(step.Model),
		RawModel: step.Model,
		Duration: step.Duration,
		Usage:    step.Usage,
	}
	if err := sl.sink.Record(ctx, rec); err != nil {
		sl.logger.Warn("telemetry for task %s: %v", taskID, err)
	}
}
