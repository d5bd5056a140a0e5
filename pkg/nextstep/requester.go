package nextstep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Flagro/holosophos-erc3/pkg/agent/llm"
	"github.com/Flagro/holosophos-erc3/pkg/agent/llmerrors"
	"github.com/Flagro/holosophos-erc3/pkg/contextmgr"
	"github.com/Flagro/holosophos-erc3/pkg/logx"
)

// ErrTransport marks a provider call that failed before a reply could be decoded.
var ErrTransport = errors.New("transport_error")

// Step is a decoded decision with the accounting of the call that produced it.
type Step struct {
	Decision *Decision
	Usage    llm.Usage
	Duration time.Duration
	Model    string
}

// Requester asks a structured-output client for one Decision per call. It never retries.
type Requester struct {
	client  llm.LLMClient
	catalog Catalog
	schema  llm.ResponseSchema
	logger  *logx.Logger
}

// NewRequester binds client to the decision schema of catalog.
func NewRequester(client llm.LLMClient, catalog Catalog, logger *logx.Logger) *Requester {
	if logger == nil {
		logger = logx.NewLogger("nextstep")
	}
	return &Requester{
		client:  client,
		catalog: catalog,
		schema: llm.ResponseSchema{
			Name:        SchemaName,
			Description: "The single next step toward finishing the task",
			Schema:      BuildSchema(catalog),
		},
		logger: logger,
	}
}

// Schema returns the response schema sent with every request.
func (r *Requester) Schema() llm.ResponseSchema {
	return r.schema
}

// RequestStep sends the conversation and decodes the reply. Decode failures and model
// refusals wrap ErrSchemaNonConformance, any other provider failure wraps ErrTransport.
func (r *Requester) RequestStep(ctx context.Context, entries []contextmgr.Entry, maxOutputTokens int) (*Step, error) {
	req := llm.NewCompletionRequest(contextmgr.ToMessages(entries), r.schema)
	if maxOutputTokens > 0 {
		req.MaxTokens = maxOutputTokens
	}

	model := r.client.GetModelName()
	r.logger.Debug("🔄 Requesting %s from '%s' with %d messages", SchemaName, model, len(req.Messages))
	start := time.Now()
	resp, err := r.client.Complete(ctx, req)
	duration := time.Since(start)
	if err != nil {
		switch llmerrors.TypeOf(err) {
		case llmerrors.ErrorTypeRefusal, llmerrors.ErrorTypeEmptyResponse:
			return nil, fmt.Errorf("%w: %w", ErrSchemaNonConformance, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
	r.logger.Debug("✅ %s received in %.3gs (stop: %s)", SchemaName, duration.Seconds(), resp.StopReason)

	decision, err := ParseDecision(resp.Content, r.catalog)
	if err != nil {
		r.logger.Debug("non-conformant reply: %s", llmerrors.Truncate(string(resp.Content), 500))
		return nil, err
	}
	return &Step{Decision: decision, Usage: resp.Usage, Duration: duration, Model: model}, nil
}
