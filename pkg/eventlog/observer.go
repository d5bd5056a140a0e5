package eventlog

import (
	"encoding/json"

	"github.com/Flagro/holosophos-erc3/pkg/agent/steploop"
	"github.com/Flagro/holosophos-erc3/pkg/dispatch"
	"github.com/Flagro/holosophos-erc3/pkg/logx"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
)

// ForTask returns an observer that traces one task's run. Write failures are logged
// and never stop the run.
func (w *Writer) ForTask(taskID string) steploop.Observer {
	return &taskObserver{w: w, taskID: taskID, logger: logx.NewLogger("eventlog")}
}

type taskObserver struct {
	w      *Writer
	taskID string
	callID string
	logger *logx.Logger
}

var _ steploop.Observer = (*taskObserver)(nil)

func (o *taskObserver) write(ev *Event) {
	ev.TaskID = o.taskID
	if err := o.w.Write(ev); err != nil {
		o.logger.Warn("Failed to trace %s for task %s: %v", ev.Type, o.taskID, err)
	}
}

func (o *taskObserver) TurnStarted(turn int, callID string) {
	o.callID = callID
	o.write(&Event{Type: EventTurnStarted, Turn: turn, CallID: callID})
}

func (o *taskObserver) ActionChosen(turn int, decision *nextstep.Decision) {
	ev := &Event{
		Type:     EventActionChosen,
		Turn:     turn,
		CallID:   o.callID,
		State:    decision.CurrentState,
		NextStep: decision.NextStep(),
	}
	if decision.Function != nil {
		ev.Kind = string(decision.Function.Kind())
		if args, err := json.Marshal(decision.Function); err == nil {
			ev.Arguments = args
		}
	}
	o.write(ev)
}

func (o *taskObserver) ActionFinished(turn int, outcome dispatch.Outcome) {
	o.write(&Event{
		Type:    EventActionFinished,
		Turn:    turn,
		CallID:  o.callID,
		Outcome: outcome.Kind.String(),
		Payload: outcome.Payload,
	})
}

func (o *taskObserver) Completed(report *nextstep.CompletionReport, turns int) {
	o.write(&Event{
		Type:  EventCompleted,
		Turn:  turns,
		Code:  string(report.Code),
		Steps: report.CompletedSteps,
	})
}

func (o *taskObserver) Exhausted(turns int) {
	o.write(&Event{Type: EventExhausted, Turn: turns})
}
