// Package eventlog records step-loop decisions as JSONL with daily file rotation.
package eventlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a step-loop event.
type EventType string

const (
	EventTurnStarted    EventType = "turn_started"
	EventActionChosen   EventType = "action_chosen"
	EventActionFinished EventType = "action_finished"
	EventCompleted      EventType = "completed"
	EventExhausted      EventType = "exhausted"
)

// Event is one line of the trace.
type Event struct {
	Time      time.Time       `json:"time"`
	TaskID    string          `json:"task_id"`
	Type      EventType       `json:"type"`
	Turn      int             `json:"turn"`
	CallID    string          `json:"call_id,omitempty"`
	State     string          `json:"current_state,omitempty"`
	NextStep  string          `json:"next_step,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Outcome   string          `json:"outcome,omitempty"`
	Payload   string          `json:"payload,omitempty"`
	Code      string          `json:"code,omitempty"`
	Steps     []string        `json:"steps,omitempty"`
}

func (e *Event) toJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return data, nil
}
