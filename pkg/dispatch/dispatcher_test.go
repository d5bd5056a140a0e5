package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
)

type budgetRequest struct {
	Department string `json:"department"`
}

func (*budgetRequest) Kind() nextstep.ActionKind { return "get_budget_report" }

type budgetReport struct {
	Department string   `json:"department"`
	Remaining  float64  `json:"remaining,omitempty"`
	Notes      []string `json:"notes,omitempty"`
}

type executorFunc func(ctx context.Context, action nextstep.Action) (any, error)

func (f executorFunc) Execute(ctx context.Context, action nextstep.Action) (any, error) {
	return f(ctx, action)
}

type listingExecutor struct {
	executorFunc
	kinds []nextstep.ActionKind
}

func (l listingExecutor) Kinds() []nextstep.ActionKind { return l.kinds }

type catalog []nextstep.ActionKind

func (c catalog) Variants() []nextstep.Variant {
	out := make([]nextstep.Variant, 0, len(c))
	for _, k := range c {
		out = append(out, nextstep.Variant{Kind: k})
	}
	return out
}

func newDispatcher(t *testing.T, fn executorFunc) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(fn, nil, nil)
	require.NoError(t, err)
	return d
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "success", KindSuccess.String())
	assert.Equal(t, "application_error", KindApplicationError.String())
	assert.Equal(t, "transport_error", KindTransportError.String())
	assert.Equal(t, "unknown(9)", OutcomeKind(9).String())
}

func TestDispatchSuccessOmitsUnsetFields(t *testing.T) {
	d := newDispatcher(t, func(_ context.Context, action nextstep.Action) (any, error) {
		req := action.(*budgetRequest)
		return &budgetReport{Department: req.Department}, nil
	})

	out := d.Dispatch(context.Background(), &budgetRequest{Department: "sales"})

	assert.Equal(t, KindSuccess, out.Kind)
	assert.False(t, out.IsError())
	assert.JSONEq(t, `{"department":"sales"}`, out.Payload)
}

type rawReport struct {
	budgetReport
	raw json.RawMessage
}

func (r *rawReport) RawJSON() json.RawMessage { return r.raw }

func TestDispatchPassesRawResultThrough(t *testing.T) {
	body := `{
		"department": "sales",
		"remaining": 0,
		"warnings": ["freeze next quarter"]
	}`
	d := newDispatcher(t, func(context.Context, nextstep.Action) (any, error) {
		return &rawReport{budgetReport: budgetReport{Department: "sales"}, raw: json.RawMessage(body)}, nil
	})

	out := d.Dispatch(context.Background(), &budgetRequest{})

	require.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, `{"department":"sales","remaining":0,"warnings":["freeze next quarter"]}`, out.Payload)
}

func TestDispatchRawResultWithoutBodyFallsBackToStruct(t *testing.T) {
	d := newDispatcher(t, func(context.Context, nextstep.Action) (any, error) {
		return &rawReport{budgetReport: budgetReport{Department: "sales"}}, nil
	})

	out := d.Dispatch(context.Background(), &budgetRequest{})
	assert.JSONEq(t, `{"department":"sales"}`, out.Payload)
}

func TestDispatchDoesNotEscapeHTML(t *testing.T) {
	d := newDispatcher(t, func(context.Context, nextstep.Action) (any, error) {
		return &budgetReport{Department: "R&D <core>"}, nil
	})

	out := d.Dispatch(context.Background(), &budgetRequest{})
	assert.Equal(t, `{"department":"R&D <core>"}`, out.Payload)
}

func TestDispatchNilResult(t *testing.T) {
	d := newDispatcher(t, func(context.Context, nextstep.Action) (any, error) {
		var report *budgetReport
		return report, nil
	})

	out := d.Dispatch(context.Background(), &budgetRequest{})
	assert.Equal(t, Outcome{Kind: KindSuccess, Payload: "{}"}, out)
}

func TestDispatchApplicationError(t *testing.T) {
	d := newDispatcher(t, func(context.Context, nextstep.Action) (any, error) {
		return nil, fmt.Errorf("call: %w", &ApplicationError{Code: "budget", Detail: "insufficient budget"})
	})

	out := d.Dispatch(context.Background(), &budgetRequest{})
	assert.Equal(t, Outcome{Kind: KindApplicationError, Payload: "insufficient budget"}, out)
	assert.True(t, out.IsError())
}

func TestDispatchTransportError(t *testing.T) {
	d := newDispatcher(t, func(context.Context, nextstep.Action) (any, error) {
		return nil, errors.New("connection refused")
	})

	out := d.Dispatch(context.Background(), &budgetRequest{})
	assert.Equal(t, Outcome{Kind: KindTransportError, Payload: "Error: connection refused"}, out)
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := newDispatcher(t, func(context.Context, nextstep.Action) (any, error) {
		panic("executor exploded")
	})

	out := d.Dispatch(context.Background(), &budgetRequest{})
	assert.Equal(t, KindTransportError, out.Kind)
	assert.Equal(t, "Error: panic: executor exploded", out.Payload)
}

func TestDispatchUnencodableResult(t *testing.T) {
	d := newDispatcher(t, func(context.Context, nextstep.Action) (any, error) {
		return map[string]any{"ch": make(chan int)}, nil
	})

	out := d.Dispatch(context.Background(), &budgetRequest{})
	assert.Equal(t, KindTransportError, out.Kind)
	assert.Contains(t, out.Payload, "Error: encode result")
}

func TestDispatchRejectsCompletionReport(t *testing.T) {
	called := false
	d := newDispatcher(t, func(context.Context, nextstep.Action) (any, error) {
		called = true
		return nil, nil
	})

	out := d.Dispatch(context.Background(), &nextstep.CompletionReport{Code: nextstep.CodeCompleted})
	assert.Equal(t, KindTransportError, out.Kind)
	assert.False(t, called)

	out = d.Dispatch(context.Background(), nil)
	assert.Equal(t, KindTransportError, out.Kind)
}

func TestNewDispatcherChecksCoverage(t *testing.T) {
	exec := listingExecutor{
		executorFunc: func(context.Context, nextstep.Action) (any, error) { return nil, nil },
		kinds:        []nextstep.ActionKind{"get_budget_report"},
	}

	_, err := NewDispatcher(exec, catalog{"get_budget_report"}, nil)
	require.NoError(t, err)

	_, err = NewDispatcher(exec, catalog{"get_budget_report", "assign_task"}, nil)
	assert.ErrorIs(t, err, ErrUnhandledAction)
	assert.Contains(t, err.Error(), "assign_task")

	_, err = NewDispatcher(nil, nil, nil)
	assert.Error(t, err)
}

func TestApplicationErrorMessage(t *testing.T) {
	assert.Equal(t, "not_found: no such employee", (&ApplicationError{Code: "not_found", Detail: "no such employee"}).Error())
	assert.Equal(t, "no such employee", (&ApplicationError{Detail: "no such employee"}).Error())
}
