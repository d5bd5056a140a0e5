// Package session drives a benchmark session: every task of the session is started,
// handed to the agent, completed and scored, then the session is submitted.
package session

import (
	"context"

	"github.com/Flagro/holosophos-erc3/pkg/agent/steploop"
)

// Task is one benchmark task.
type Task struct {
	TaskID string `json:"task_id"`
	SpecID string `json:"spec_id"`
	Text   string `json:"task_text"`
	Status string `json:"status,omitempty"`
}

// StartRequest describes the session to open.
type StartRequest struct {
	Benchmark    string `json:"benchmark"`
	Workspace    string `json:"workspace"`
	Name         string `json:"name"`
	Architecture string `json:"architecture"`
}

// Status lists the tasks of a session.
type Status struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status,omitempty"`
	Tasks     []Task `json:"tasks"`
}

// Eval is the platform's verdict on a completed task.
type Eval struct {
	Score float64 `json:"score"`
	Logs  string  `json:"logs"`
}

// TaskResult is returned when a task is completed. Eval is nil when the platform
// does not score the task immediately.
type TaskResult struct {
	Eval *Eval `json:"eval,omitempty"`
}

// Platform is the benchmark API.
type Platform interface {
	StartSession(ctx context.Context, req StartRequest) (string, error)
	SessionStatus(ctx context.Context, sessionID string) (*Status, error)
	StartTask(ctx context.Context, task Task) error
	CompleteTask(ctx context.Context, task Task) (*TaskResult, error)
	SubmitSession(ctx context.Context, sessionID string) error
}

// TaskRunner solves one task. A returned error means the task could not be attempted;
// failures inside the attempt are reported through the outcome.
type TaskRunner interface {
	RunTask(ctx context.Context, task Task) (steploop.Outcome, error)
}
