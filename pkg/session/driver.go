package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Flagro/holosophos-erc3/pkg/agent/steploop"
	"github.com/Flagro/holosophos-erc3/pkg/logx"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
	"github.com/Flagro/holosophos-erc3/pkg/persistence"
)

// Store records the session and its task runs. *persistence.DatabaseOperations
// implements it.
type Store interface {
	BindSession(s *persistence.Session) error
	StartTaskRun(taskID, specID string) (string, error)
	FinishTaskRun(runID, outcome string, turns int, runErr string) error
	RecordScore(runID string, score float64) error
	MarkSessionSubmitted() error
}

// Config describes the session to run.
type Config struct {
	StartRequest
	Model string
}

// Summary is the result of a session run.
type Summary struct {
	SessionID string
	Tasks     int
	Attempted int
	Failed    int
	Score     float64
	Submitted bool
}

// Driver runs every task of a session in order. Failures of a task never stop the session.
type Driver struct {
	platform Platform
	runner   TaskRunner
	store    Store
	out      io.Writer
	logger   *logx.Logger
}

// NewDriver creates a driver printing the session trace to out (stdout when nil).
// store may be nil.
func NewDriver(platform Platform, runner TaskRunner, store Store, out io.Writer) *Driver {
	if out == nil {
		out = os.Stdout
	}
	return &Driver{
		platform: platform,
		runner:   runner,
		store:    store,
		out:      out,
		logger:   logx.NewLogger("session"),
	}
}

// Run opens a session, solves its tasks and submits it. A cancelled context stops the
// session before the next task; the session is then left unsubmitted.
func (d *Driver) Run(ctx context.Context, cfg Config) (*Summary, error) {
	sessionID, err := d.platform.StartSession(ctx, cfg.StartRequest)
	if err != nil {
		return nil, err
	}
	summary := &Summary{SessionID: sessionID}

	if d.store != nil {
		err := d.store.BindSession(&persistence.Session{
			ID:        sessionID,
			Benchmark: cfg.Benchmark,
			Workspace: cfg.Workspace,
			Name:      cfg.Name,
			Model:     cfg.Model,
			StartedAt: time.Now(),
		})
		if err != nil {
			d.logger.Warn("⚠️  Session %s will not be recorded: %v", sessionID, err)
			d.store = nil
		}
	}

	status, err := d.platform.SessionStatus(ctx, sessionID)
	if err != nil {
		return summary, err
	}
	summary.Tasks = len(status.Tasks)
	fmt.Fprintf(d.out, "Session has %d tasks\n", len(status.Tasks))

	for _, task := range status.Tasks {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("⏹️  Session %s interrupted after %d of %d tasks", sessionID, summary.Attempted, summary.Tasks)
			return summary, fmt.Errorf("%w: %w", steploop.ErrGracefulShutdown, err)
		}
		d.runTask(ctx, task, summary)
	}

	if err := d.platform.SubmitSession(ctx, sessionID); err != nil {
		return summary, err
	}
	summary.Submitted = true
	if d.store != nil {
		if err := d.store.MarkSessionSubmitted(); err != nil {
			d.logger.Warn("record submission: %v", err)
		}
	}
	fmt.Fprintf(d.out, "\n✓ Session %s completed and submitted!\n", sessionID)
	return summary, nil
}

func (d *Driver) runTask(ctx context.Context, task Task, summary *Summary) {
	fmt.Fprintln(d.out, strings.Repeat("=", 40))
	fmt.Fprintf(d.out, "Starting Task: %s (%s): %s\n", task.TaskID, task.SpecID, task.Text)
	summary.Attempted++

	runID := d.startRun(task)

	if err := d.platform.StartTask(ctx, task); err != nil {
		fmt.Fprintf(d.out, "Error running agent: %v\n", err)
		summary.Failed++
		d.finishRun(runID, persistence.OutcomeError, 0, err)
		return
	}

	outcome, err := d.runner.RunTask(ctx, task)
	stored := storedOutcome(outcome)
	if err != nil {
		stored = persistence.OutcomeError
	} else {
		err = outcome.Err
	}
	if err != nil {
		fmt.Fprintf(d.out, "Error running agent: %v\n", err)
	}
	if stored != persistence.OutcomeCompleted {
		summary.Failed++
	}
	d.finishRun(runID, stored, outcome.Turns, err)

	// The task is completed even after a failure or an interrupt so the platform
	// can score what was done.
	result, cerr := d.platform.CompleteTask(context.WithoutCancel(ctx), task)
	if cerr != nil {
		fmt.Fprintf(d.out, "Error completing task: %v\n", cerr)
		return
	}
	if result.Eval != nil {
		summary.Score += result.Eval.Score
		fmt.Fprintf(d.out, "\nSCORE: %s\n%s\n", formatScore(result.Eval.Score), indent(result.Eval.Logs, "  "))
		if d.store != nil && runID != "" {
			if err := d.store.RecordScore(runID, result.Eval.Score); err != nil {
				d.logger.Warn("record score of %s: %v", task.TaskID, err)
			}
		}
	}
}

func (d *Driver) startRun(task Task) string {
	if d.store == nil {
		return ""
	}
	runID, err := d.store.StartTaskRun(task.TaskID, task.SpecID)
	if err != nil {
		d.logger.Warn("record start of %s: %v", task.TaskID, err)
		return ""
	}
	return runID
}

func (d *Driver) finishRun(runID, outcome string, turns int, runErr error) {
	if d.store == nil || runID == "" {
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	if err := d.store.FinishTaskRun(runID, outcome, turns, msg); err != nil {
		d.logger.Warn("record outcome of run %s: %v", runID, err)
	}
}

func storedOutcome(outcome steploop.Outcome) string {
	switch outcome.Kind {
	case steploop.OutcomeCompleted:
		if outcome.Report != nil && outcome.Report.Code == nextstep.CodeCompleted {
			return persistence.OutcomeCompleted
		}
		return persistence.OutcomeFailed
	case steploop.OutcomeExhausted:
		return persistence.OutcomeExhausted
	default:
		return persistence.OutcomeError
	}
}

func formatScore(score float64) string {
	return fmt.Sprintf("%g", score)
}

// indent prefixes every non-empty line of s.
func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
