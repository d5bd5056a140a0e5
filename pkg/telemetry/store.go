package telemetry

import (
	"context"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/config"
	"github.com/Flagro/holosophos-erc3/pkg/persistence"
)

// CallStore persists usage rows.
type CallStore interface {
	InsertLLMCall(call *persistence.LLMCall) error
}

// StoreSink writes each record to the llm_calls table.
type StoreSink struct {
	store CallStore
}

func NewStoreSink(store CallStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Record(_ context.Context, rec Record) error {
	call := &persistence.LLMCall{
		TaskID:           rec.TaskID,
		Model:            rec.Model,
		Duration:         rec.Duration,
		PromptTokens:     rec.Usage.PromptTokens,
		CompletionTokens: rec.Usage.CompletionTokens,
		TotalTokens:      rec.Usage.TotalTokens,
		CostUSD:          config.CalculateCost(rec.RawModel, rec.Usage.PromptTokens, rec.Usage.CompletionTokens),
	}
	if err := s.store.InsertLLMCall(call); err != nil {
		return fmt.Errorf("store llm call for %s: %w", rec.TaskID, err)
	}
	return nil
}
