package nextstep

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/Flagro/holosophos-erc3/pkg/tools"
)

const (
	// SchemaName names the response schema sent to providers.
	SchemaName = "NextStep"

	MinPlanSteps = 1
	MaxPlanSteps = 5
)

// ErrSchemaNonConformance marks a model reply that does not match the decision schema.
var ErrSchemaNonConformance = errors.New("decision does not conform to schema")

func variants(catalog Catalog) []Variant {
	out := []Variant{reportVariant()}
	if catalog != nil {
		out = append(out, catalog.Variants()...)
	}
	return out
}

// BuildSchema returns the decision schema for catalog. The function field accepts the
// completion report followed by every catalog variant.
func BuildSchema(catalog Catalog) *tools.Property {
	all := variants(catalog)
	options := make([]*tools.Property, 0, len(all))
	for _, v := range all {
		fields := append([]tools.Field{{Name: "tool", Property: tools.Enum("", string(v.Kind))}}, v.Fields...)
		options = append(options, tools.Object(v.Description, fields...))
	}

	return tools.Object("",
		tools.Field{Name: "current_state", Property: tools.String("What is known so far")},
		tools.Field{Name: "plan_remaining_steps_brief", Property: tools.Array("Remaining steps, the first one is executed now", tools.String("")).Bounded(MinPlanSteps, MaxPlanSteps)},
		tools.Field{Name: "task_completed", Property: tools.Boolean("")},
		tools.Field{Name: "function", Property: tools.OneOf("Next action, or report_completion to finish", options...)},
	)
}

type rawDecision struct {
	CurrentState       string          `json:"current_state"`
	PlanRemainingSteps []string        `json:"plan_remaining_steps_brief"`
	TaskCompleted      bool            `json:"task_completed"`
	Function           json.RawMessage `json:"function"`
}

func nonConformant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaNonConformance, fmt.Sprintf(format, args...))
}

// ParseDecision decodes a model reply. Every failure wraps ErrSchemaNonConformance.
func ParseDecision(raw []byte, catalog Catalog) (*Decision, error) {
	var rd rawDecision
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rd); err != nil {
		return nil, nonConformant("%v", err)
	}
	if n := len(rd.PlanRemainingSteps); n < MinPlanSteps || n > MaxPlanSteps {
		return nil, nonConformant("plan_remaining_steps_brief has %d steps, want %d..%d", n, MinPlanSteps, MaxPlanSteps)
	}
	if len(rd.Function) == 0 || bytes.Equal(rd.Function, []byte("null")) {
		return nil, nonConformant("function is missing")
	}

	action, err := decodeAction(rd.Function, catalog)
	if err != nil {
		return nil, err
	}
	return &Decision{
		CurrentState:       rd.CurrentState,
		PlanRemainingSteps: rd.PlanRemainingSteps,
		TaskCompleted:      rd.TaskCompleted,
		Function:           action,
	}, nil
}

func decodeAction(raw json.RawMessage, catalog Catalog) (Action, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, nonConformant("function: %v", err)
	}
	tag, _ := fields["tool"].(string)
	if tag == "" {
		return nil, nonConformant("function has no tool tag")
	}
	delete(fields, "tool")

	for _, v := range variants(catalog) {
		if string(v.Kind) != tag {
			continue
		}
		action := v.New()
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:     "json",
			ErrorUnused: true,
			Result:      action,
		})
		if err != nil {
			return nil, fmt.Errorf("build decoder for %s: %w", tag, err)
		}
		if err := decoder.Decode(fields); err != nil {
			return nil, nonConformant("%s: %v", tag, err)
		}
		if val, ok := action.(Validator); ok {
			if err := val.Validate(); err != nil {
				return nil, nonConformant("%s: %v", tag, err)
			}
		}
		return action, nil
	}
	return nil, nonConformant("unknown tool %q", tag)
}
