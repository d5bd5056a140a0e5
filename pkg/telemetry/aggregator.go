package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/Flagro/holosophos-erc3/pkg/config"
)

// TaskTotals is the accumulated usage of one task.
type TaskTotals struct {
	TaskID           string
	Requests         int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
	Duration         time.Duration
}

// Aggregator keeps in-memory totals per task for end-of-task summaries.
type Aggregator struct {
	tasks map[string]*TaskTotals
	mu    sync.RWMutex
}

func NewAggregator() *Aggregator {
	return &Aggregator{tasks: make(map[string]*TaskTotals)}
}

func (a *Aggregator) Record(_ context.Context, rec Record) error {
	if rec.TaskID == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.tasks[rec.TaskID]
	if !ok {
		t = &TaskTotals{TaskID: rec.TaskID}
		a.tasks[rec.TaskID] = t
	}
	t.Requests++
	t.PromptTokens += rec.Usage.PromptTokens
	t.CompletionTokens += rec.Usage.CompletionTokens
	t.TotalTokens += rec.Usage.TotalTokens
	t.CostUSD += config.CalculateCost(rec.RawModel, rec.Usage.PromptTokens, rec.Usage.CompletionTokens)
	t.Duration += rec.Duration
	return nil
}

// Task returns a copy of the totals for taskID, or nil if nothing was recorded.
func (a *Aggregator) Task(taskID string) *TaskTotals {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if t, ok := a.tasks[taskID]; ok {
		c := *t
		return &c
	}
	return nil
}

// Session sums every task.
func (a *Aggregator) Session() TaskTotals {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var sum TaskTotals
	for _, t := range a.tasks {
		sum.Requests += t.Requests
		sum.PromptTokens += t.PromptTokens
		sum.CompletionTokens += t.CompletionTokens
		sum.TotalTokens += t.TotalTokens
		sum.CostUSD += t.CostUSD
		sum.Duration += t.Duration
	}
	return sum
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = make(map[string]*TaskTotals)
}
