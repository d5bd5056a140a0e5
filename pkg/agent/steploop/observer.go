package steploop

import (
	"github.com/Flagro/holosophos-erc3/pkg/dispatch"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
)

// Observer follows a run turn by turn. Calls happen on the loop goroutine.
type Observer interface {
	TurnStarted(turn int, callID string)
	ActionChosen(turn int, decision *nextstep.Decision)
	ActionFinished(turn int, outcome dispatch.Outcome)
	Completed(report *nextstep.CompletionReport, turns int)
	Exhausted(turns int)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) TurnStarted(int, string) {}
func (NopObserver) ActionChosen(int, *nextstep.Decision) {}
func (NopObserver) ActionFinished(int, dispatch.Outcome) {}
func (NopObserver) Completed(*nextstep.CompletionReport, int) {}
func (NopObserver) Exhausted(int) {}

// Observers fans events out to every non-nil observer in order.
func Observers(observers ...Observer) Observer {
	var list multiObserver
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	if len(list) == 0 {
		return NopObserver{}
	}
	if len(list) == 1 {
		return list[0]
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) TurnStarted(turn int, callID string) {
	for _, o := range m {
		o.TurnStarted(turn, callID)
	}
}

func (m multiObserver) ActionChosen(turn int, decision *nextstep.Decision) {
	for _, o := range m {
		o.ActionChosen(turn, decision)
	}
}

func (m multiObserver) ActionFinished(turn int, outcome dispatch.Outcome) {
	for _, o := range m {
		o.ActionFinished(turn, outcome)
	}
}

func (m multiObserver) Completed(report *nextstep.CompletionReport, turns int) {
	for _, o := range m {
		o.Completed(report, turns)
	}
}

func (m multiObserver) Exhausted(turns int) {
	for _, o := range m {
		o.Exhausted(turns)
	}
}
