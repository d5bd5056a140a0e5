package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const timeFormat = "2006-01-02T15:04:05.000Z"

// ErrNotFound is returned when a queried row does not exist.
var ErrNotFound = errors.New("not found")

// DatabaseOperations scopes every write to one session.
type DatabaseOperations struct {
	db        *sql.DB
	sessionID string
}

// NewDatabaseOperations binds db to sessionID.
func NewDatabaseOperations(db *sql.DB, sessionID string) *DatabaseOperations {
	return &DatabaseOperations{db: db, sessionID: sessionID}
}

func (ops *DatabaseOperations) SessionID() string {
	return ops.sessionID
}

// BindSession rebinds the instance to s.ID and records the session. It is used when
// the session id is only known after the platform opened the session.
func (ops *DatabaseOperations) BindSession(s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("bind session: empty session id")
	}
	ops.sessionID = s.ID
	return ops.UpsertSession(s)
}

// UpsertSession records the session this instance is bound to.
func (ops *DatabaseOperations) UpsertSession(s *Session) error {
	_, err := ops.db.Exec(`
		INSERT INTO sessions (id, benchmark, workspace, name, model)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			benchmark = excluded.benchmark,
			workspace = excluded.workspace,
			name = excluded.name,
			model = excluded.model`,
		ops.sessionID, s.Benchmark, s.Workspace, s.Name, s.Model)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", ops.sessionID, err)
	}
	return nil
}

// MarkSessionSubmitted stamps the submission time.
func (ops *DatabaseOperations) MarkSessionSubmitted() error {
	res, err := ops.db.Exec(`UPDATE sessions SET submitted_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeFormat), ops.sessionID)
	if err != nil {
		return fmt.Errorf("mark session %s submitted: %w", ops.sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", ops.sessionID, ErrNotFound)
	}
	return nil
}

// GetSession loads the bound session.
func (ops *DatabaseOperations) GetSession() (*Session, error) {
	var (
		s           Session
		startedAt   string
		submittedAt sql.NullString
	)
	err := ops.db.QueryRow(`
		SELECT id, benchmark, workspace, name, model, started_at, submitted_at
		FROM sessions WHERE id = ?`, ops.sessionID).
		Scan(&s.ID, &s.Benchmark, &s.Workspace, &s.Name, &s.Model, &startedAt, &submittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", ops.sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", ops.sessionID, err)
	}
	s.StartedAt = parseTime(startedAt)
	if submittedAt.Valid {
		t := parseTime(submittedAt.String)
		s.SubmittedAt = &t
	}
	return &s, nil
}

// StartTaskRun inserts a running task row and returns its id.
func (ops *DatabaseOperations) StartTaskRun(taskID, specID string) (string, error) {
	id := uuid.NewString()
	_, err := ops.db.Exec(`
		INSERT INTO task_runs (id, session_id, task_id, spec_id, outcome)
		VALUES (?, ?, ?, ?, ?)`,
		id, ops.sessionID, taskID, specID, OutcomeRunning)
	if err != nil {
		return "", fmt.Errorf("start task run %s: %w", taskID, err)
	}
	return id, nil
}

// FinishTaskRun records how the run ended.
func (ops *DatabaseOperations) FinishTaskRun(runID, outcome string, turns int, runErr string) error {
	res, err := ops.db.Exec(`
		UPDATE task_runs SET outcome = ?, turns = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		outcome, turns, runErr, time.Now().UTC().Format(timeFormat), runID)
	if err != nil {
		return fmt.Errorf("finish task run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// RecordScore stores the platform evaluation score of a run.
func (ops *DatabaseOperations) RecordScore(runID string, score float64) error {
	if _, err := ops.db.Exec(`UPDATE task_runs SET score = ? WHERE id = ?`, score, runID); err != nil {
		return fmt.Errorf("record score for %s: %w", runID, err)
	}
	return nil
}

// ListTaskRuns returns the session's runs in start order.
func (ops *DatabaseOperations) ListTaskRuns() ([]TaskRun, error) {
	rows, err := ops.db.Query(`
		SELECT id, session_id, task_id, spec_id, outcome, turns, error, score, started_at, finished_at
		FROM task_runs WHERE session_id = ? ORDER BY started_at, rowid`, ops.sessionID)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []TaskRun
	for rows.Next() {
		var (
			r          TaskRun
			score      sql.NullFloat64
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TaskID, &r.SpecID, &r.Outcome, &r.Turns, &r.Error,
			&score, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		if score.Valid {
			r.Score = &score.Float64
		}
		r.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			t := parseTime(finishedAt.String)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task runs: %w", err)
	}
	return runs, nil
}

// InsertLLMCall stores one call. An empty ID is generated.
func (ops *DatabaseOperations) InsertLLMCall(call *LLMCall) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	_, err := ops.db.Exec(`
		INSERT INTO llm_calls (id, session_id, task_id, model, duration_ms, prompt_tokens, completion_tokens, total_tokens, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID, ops.sessionID, call.TaskID, call.Model, call.Duration.Milliseconds(),
		call.PromptTokens, call.CompletionTokens, call.TotalTokens, call.CostUSD)
	if err != nil {
		return fmt.Errorf("insert llm call for task %s: %w", call.TaskID, err)
	}
	return nil
}

// GetTaskUsage sums the calls recorded for taskID in this session.
func (ops *DatabaseOperations) GetTaskUsage(taskID string) (*TaskUsage, error) {
	var (
		u          TaskUsage
		durationMs int64
	)
	err := ops.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_usd), 0), COALESCE(SUM(duration_ms), 0)
		FROM llm_calls WHERE session_id = ? AND task_id = ?`, ops.sessionID, taskID).
		Scan(&u.Calls, &u.PromptTokens, &u.CompletionTokens, &u.TotalTokens, &u.CostUSD, &durationMs)
	if err != nil {
		return nil, fmt.Errorf("task usage %s: %w", taskID, err)
	}
	u.Duration = time.Duration(durationMs) * time.Millisecond
	return &u, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
