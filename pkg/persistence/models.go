package persistence

import "time"

// Task run outcomes stored in task_runs.outcome.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

// Session is one benchmark session.
type Session struct {
	StartedAt   time.Time
	SubmittedAt *time.Time
	ID          string
	Benchmark   string
	Workspace   string
	Name        string
	Model       string
}

// TaskRun is one task attempted within a session.
type TaskRun struct {
	StartedAt  time.Time
	FinishedAt *time.Time
	Score      *float64
	ID         string
	SessionID  string
	TaskID     string
	SpecID     string
	Outcome    string
	Error      string
	Turns      int
}

// LLMCall is the usage of one structured completion.
type LLMCall struct {
	ID               string
	TaskID           string
	Model            string
	Duration         time.Duration
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
}

// TaskUsage aggregates the calls of one task.
type TaskUsage struct {
	Calls            int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
	Duration         time.Duration
}
