// Package metrics exposes the process metrics and reads task totals back from a
// Prometheus server that scraped them.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// TaskMetrics is the token and cost total of one task.
type TaskMetrics struct {
	TaskID           string  `json:"task_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
	Decisions        int64   `json:"decisions"`
}

// QueryService queries a Prometheus server.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service for prometheusURL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// scalar runs query and returns the first sample, or 0 for an empty result.
func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetTaskMetrics sums the usage of taskID across models.
func (q *QueryService) GetTaskMetrics(ctx context.Context, taskID string) (*TaskMetrics, error) {
	return q.taskMetrics(ctx, taskID, fmt.Sprintf("task_id=%q", taskID))
}

func (q *QueryService) taskMetrics(ctx context.Context, taskID, selector string) (*TaskMetrics, error) {
	metrics := &TaskMetrics{TaskID: taskID}

	prompt, err := q.scalar(ctx, fmt.Sprintf(`sum(nextstep_task_tokens_total{%s, type="prompt"})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	metrics.PromptTokens = int64(prompt)

	completion, err := q.scalar(ctx, fmt.Sprintf(`sum(nextstep_task_tokens_total{%s, type="completion"})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	metrics.CompletionTokens = int64(completion)
	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

	cost, err := q.scalar(ctx, fmt.Sprintf(`sum(nextstep_task_cost_usd_total{%s})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	metrics.TotalCost = cost

	decisions, err := q.scalar(ctx, fmt.Sprintf(`sum(nextstep_task_decisions_total{%s})`, selector))
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	metrics.Decisions = int64(decisions)

	return metrics, nil
}

// GetTaskMetricsByModel breaks the usage of taskID down by model.
func (q *QueryService) GetTaskMetricsByModel(ctx context.Context, taskID string) (map[string]*TaskMetrics, error) {
	modelsQuery := fmt.Sprintf(`group by (model) (nextstep_task_tokens_total{task_id=%q})`, taskID)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	result := make(map[string]*TaskMetrics, len(models))
	for _, modelName := range models {
		metrics, err := q.taskMetrics(ctx, taskID, fmt.Sprintf("task_id=%q, model=%q", taskID, modelName))
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", modelName, err)
		}
		result[modelName] = metrics
	}
	return result, nil
}
