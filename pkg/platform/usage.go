package platform

import (
	"context"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/telemetry"
)

var _ telemetry.Sink = (*Client)(nil)

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type logLLMRequest struct {
	TaskID      string  `json:"task_id"`
	Model       string  `json:"model"`
	DurationSec float64 `json:"duration_sec"`
	Usage       usage   `json:"usage"`
}

// Record implements telemetry.Sink by reporting the call to the platform's usage log.
// The model is sent in provider/model form.
func (c *Client) Record(ctx context.Context, rec telemetry.Record) error {
	return c.LogLLM(ctx, rec)
}

func (c *Client) LogLLM(ctx context.Context, rec telemetry.Record) error {
	body := logLLMRequest{
		TaskID:      rec.TaskID,
		Model:       rec.Model,
		DurationSec: rec.Duration.Seconds(),
		Usage: usage{
			PromptTokens:     rec.Usage.PromptTokens,
			CompletionTokens: rec.Usage.CompletionTokens,
			TotalTokens:      rec.Usage.TotalTokens,
		},
	}
	if err := c.post(ctx, "/core/log_llm", body, nil); err != nil {
		return fmt.Errorf("log llm usage for %s: %w", rec.TaskID, err)
	}
	return nil
}
