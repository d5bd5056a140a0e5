package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Flagro/holosophos-erc3/pkg/config"
)

// PrometheusSink exports per-task token usage, cost and decision latency.
type PrometheusSink struct {
	tokens   *prometheus.CounterVec
	cost     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	steps    *prometheus.CounterVec
}

// NewPrometheusSink registers the task metrics with reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nextstep_task_tokens_total",
				Help: "Tokens consumed by decision requests",
			},
			[]string{"model", "task_id", "type"}, // type: prompt|completion
		),
		cost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nextstep_task_cost_usd_total",
				Help: "Estimated cost of decision requests in USD",
			},
			[]string{"model", "task_id"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nextstep_decision_duration_seconds",
				Help:    "Wall-clock time of a decision request",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"model"},
		),
		steps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nextstep_task_decisions_total",
				Help: "Decisions received per task",
			},
			[]string{"model", "task_id"},
		),
	}
}

func (s *PrometheusSink) Record(_ context.Context, rec Record) error {
	s.tokens.WithLabelValues(rec.Model, rec.TaskID, "prompt").Add(float64(rec.Usage.PromptTokens))
	s.tokens.WithLabelValues(rec.Model, rec.TaskID, "completion").Add(float64(rec.Usage.CompletionTokens))
	if cost := config.CalculateCost(rec.RawModel, rec.Usage.PromptTokens, rec.Usage.CompletionTokens); cost > 0 {
		s.cost.WithLabelValues(rec.Model, rec.TaskID).Add(cost)
	}
	s.duration.WithLabelValues(rec.Model).Observe(rec.Duration.Seconds())
	s.steps.WithLabelValues(rec.Model, rec.TaskID).Inc()
	return nil
}
