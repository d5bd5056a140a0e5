package steploop

import (
	"errors"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
)

// ErrGracefulShutdown indicates the loop stopped at a turn boundary because its
// context was cancelled.
var ErrGracefulShutdown = errors.New("graceful shutdown requested")

// OutcomeKind categorizes how a task run ended.
type OutcomeKind int

const (
	// OutcomeCompleted: the model emitted a completion report. Report is set.
	OutcomeCompleted OutcomeKind = iota

	// OutcomeExhausted: the turn budget ran out without a completion report.
	// This is a normal ending, not an error.
	OutcomeExhausted

	// OutcomeRequestError: a decision could not be obtained. Err wraps
	// nextstep.ErrSchemaNonConformance or nextstep.ErrTransport.
	OutcomeRequestError

	// OutcomeShutdown: the context was cancelled between turns. Err wraps ErrGracefulShutdown.
	OutcomeShutdown
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "Completed"
	case OutcomeExhausted:
		return "Exhausted"
	case OutcomeRequestError:
		return "RequestError"
	case OutcomeShutdown:
		return "Shutdown"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the terminal state of one task run.
type Outcome struct {
	Kind   OutcomeKind
	Report *nextstep.CompletionReport // OutcomeCompleted only
	Err    error                      // OutcomeRequestError and OutcomeShutdown

	// Turns is the number of actions dispatched. A completion report is not counted.
	Turns int
}
