// Package dispatch executes a model-requested action and folds every result or failure
// into a single Outcome.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/Flagro/holosophos-erc3/pkg/logx"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
)

// OutcomeKind classifies how an action ended.
type OutcomeKind int

const (
	// KindSuccess carries the serialized result.
	KindSuccess OutcomeKind = iota
	// KindApplicationError carries the domain error detail the executor reported.
	KindApplicationError
	// KindTransportError carries "Error: <text>" for any other failure.
	KindTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindApplicationError:
		return "application_error"
	case KindTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the result of one dispatch. Payload becomes the tool entry content.
type Outcome struct {
	Kind    OutcomeKind
	Payload string
}

// IsError reports whether the action failed.
func (o Outcome) IsError() bool {
	return o.Kind != KindSuccess
}

// ApplicationError is a domain failure reported by the action executor.
type ApplicationError struct {
	Code   string
	Detail string
}

func (e *ApplicationError) Error() string {
	if e.Code == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// ErrUnhandledAction is returned when no executor handler exists for an action kind.
var ErrUnhandledAction = errors.New("unhandled action")

// Executor performs actions against the external system.
type Executor interface {
	Execute(ctx context.Context, action nextstep.Action) (any, error)
}

// KindLister is implemented by executors that can enumerate the kinds they handle.
type KindLister interface {
	Kinds() []nextstep.ActionKind
}

type Dispatcher struct {
	executor Executor
	logger   *logx.Logger
}

// NewDispatcher wraps executor. When the executor lists its kinds, every catalog variant
// must be among them.
func NewDispatcher(executor Executor, catalog nextstep.Catalog, logger *logx.Logger) (*Dispatcher, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if logger == nil {
		logger = logx.NewLogger("dispatch")
	}
	if lister, ok := executor.(KindLister); ok && catalog != nil {
		handled := make(map[nextstep.ActionKind]bool)
		for _, k := range lister.Kinds() {
			handled[k] = true
		}
		for _, v := range catalog.Variants() {
			if !handled[v.Kind] {
				return nil, fmt.Errorf("%w: %s", ErrUnhandledAction, v.Kind)
			}
		}
	}
	return &Dispatcher{executor: executor, logger: logger}, nil
}

// Dispatch executes action. It never returns an error and never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, action nextstep.Action) (out Outcome) {
	if action == nil {
		return transportOutcome(fmt.Errorf("%w: nil action", ErrUnhandledAction))
	}
	if action.Kind() == nextstep.KindReportCompletion {
		return transportOutcome(fmt.Errorf("%w: %s is terminal", ErrUnhandledAction, action.Kind()))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic executing %s: %v\n%s", action.Kind(), r, debug.Stack())
			out = transportOutcome(fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := d.executor.Execute(ctx, action)
	if err != nil {
		var appErr *ApplicationError
		if errors.As(err, &appErr) {
			logx.Debug(ctx, "dispatch", "%s application error %s: %s", action.Kind(), appErr.Code, appErr.Detail)
			return Outcome{Kind: KindApplicationError, Payload: appErr.Detail}
		}
		d.logger.Warn("%s failed: %v", action.Kind(), err)
		return transportOutcome(err)
	}

	payload, err := marshalResult(result)
	if err != nil {
		return transportOutcome(err)
	}
	return Outcome{Kind: KindSuccess, Payload: payload}
}

func transportOutcome(err error) Outcome {
	return Outcome{Kind: KindTransportError, Payload: "Error: " + err.Error()}
}

// RawResult is a result that carries the exact JSON it was received as.
type RawResult interface {
	RawJSON() json.RawMessage
}

// marshalResult serializes a result. A RawResult body is passed through compacted;
// otherwise unset fields are dropped through omitempty tags. HTML characters are
// not escaped.
func marshalResult(result any) (string, error) {
	if result == nil {
		return "{}", nil
	}
	if v := reflect.ValueOf(result); v.Kind() == reflect.Pointer && v.IsNil() {
		return "{}", nil
	}
	if r, ok := result.(RawResult); ok {
		if raw := r.RawJSON(); len(bytes.TrimSpace(raw)) > 0 {
			var buf bytes.Buffer
			if err := json.Compact(&buf, raw); err != nil {
				return "", fmt.Errorf("compact result: %w", err)
			}
			return buf.String(), nil
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	data := bytes.TrimRight(buf.Bytes(), "\n")
	if string(data) == "null" {
		return "{}", nil
	}
	return string(data), nil
}
