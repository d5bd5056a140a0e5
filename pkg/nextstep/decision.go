// Package nextstep defines the typed "next step" a model emits each turn and requests it
// from a structured-output provider.
package nextstep

import (
	"encoding/json"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/tools"
)

// ActionKind is the variant tag carried in the "tool" field of a decision's function.
type ActionKind string

// KindReportCompletion tags the terminal CompletionReport variant.
const KindReportCompletion ActionKind = "report_completion"

// Action is one variant of the decision's function union.
type Action interface {
	Kind() ActionKind
}

// Validator is implemented by variants with constraints the decoder cannot express.
type Validator interface {
	Validate() error
}

// CompletionCode is the final status of a task.
type CompletionCode string

const (
	CodeCompleted CompletionCode = "completed"
	CodeFailed    CompletionCode = "failed"
)

// CompletionReport ends the task.
type CompletionReport struct {
	CompletedSteps []string       `json:"completed_steps_laconic"`
	Code           CompletionCode `json:"code"`
}

func (*CompletionReport) Kind() ActionKind { return KindReportCompletion }

func (r *CompletionReport) Validate() error {
	switch r.Code {
	case CodeCompleted, CodeFailed:
		return nil
	default:
		return fmt.Errorf("code must be %q or %q, got %q", CodeCompleted, CodeFailed, r.Code)
	}
}

// Variant describes one action of a catalog: its tag, schema fields and a constructor
// for the struct the arguments decode into.
type Variant struct {
	Kind        ActionKind
	Description string
	Fields      []tools.Field
	New         func() Action
}

// Catalog supplies the action variants a model may request besides the completion report.
type Catalog interface {
	Variants() []Variant
}

func reportVariant() Variant {
	return Variant{
		Kind:        KindReportCompletion,
		Description: "Report that the task is finished, successfully or not",
		Fields: []tools.Field{
			{Name: "completed_steps_laconic", Property: tools.Array("Steps done, one short line each", tools.String(""))},
			{Name: "code", Property: tools.Enum("Final status", string(CodeCompleted), string(CodeFailed))},
		},
		New: func() Action { return &CompletionReport{} },
	}
}

// Decision is one model turn.
type Decision struct {
	CurrentState       string
	PlanRemainingSteps []string
	TaskCompleted      bool
	Function           Action
}

// NextStep is the first remaining plan step. It is the only plan step that drives the loop.
func (d *Decision) NextStep() string {
	if len(d.PlanRemainingSteps) == 0 {
		return ""
	}
	return d.PlanRemainingSteps[0]
}

// Report returns the completion report when the decision is terminal.
func (d *Decision) Report() (*CompletionReport, bool) {
	r, ok := d.Function.(*CompletionReport)
	return r, ok
}

// MarshalArguments renders an action as the JSON object the model produced, tag included.
func MarshalArguments(action Action) (string, error) {
	data, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("marshal %s arguments: %w", action.Kind(), err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("marshal %s arguments: %w", action.Kind(), err)
	}
	fields["tool"] = string(action.Kind())
	out, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal %s arguments: %w", action.Kind(), err)
	}
	return string(out), nil
}
