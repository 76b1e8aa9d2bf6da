package events

import (
	"fmt"

	"github.com/codewandler/concierge-go/audio"
	"github.com/codewandler/concierge-go/tool"
)

// Event is one inbound event of a live channel. The concrete types form a
// closed set consumed by a single session handler.
type Event interface {
	event()
}

// OpenedEvent signals that the remote side accepted the setup.
type OpenedEvent struct{}

type ContentEvent struct {
	Audio        []audio.Blob
	Text         string
	Transcript   string
	TurnComplete bool
}

type ToolCallEvent struct {
	Calls []tool.Call
}

type ToolCallCancelledEvent struct {
	IDs []string
}

type InterruptedEvent struct{}

// GoAwayEvent announces that the remote side will close the channel soon.
type GoAwayEvent struct {
	TimeLeft string
}

type ClosedEvent struct {
	Reason string
}

type ErroredEvent struct {
	Err error
}

func (OpenedEvent) event()            {}
func (ContentEvent) event()           {}
func (ToolCallEvent) event()          {}
func (ToolCallCancelledEvent) event() {}
func (InterruptedEvent) event()       {}
func (GoAwayEvent) event()            {}
func (ClosedEvent) event()            {}
func (ErroredEvent) event()           {}

// Translate maps a server message to events. An interruption is emitted before
// any content of the same message so stale audio is dropped first.
func Translate(msg *ServerMessage) []Event {
	var out []Event

	if msg.Error != nil {
		out = append(out, ErroredEvent{Err: msg.Error})
	}

	if msg.SetupComplete != nil {
		out = append(out, OpenedEvent{})
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			out = append(out, InterruptedEvent{})
		}

		evt := ContentEvent{
			Audio:        sc.Audio(),
			Text:         sc.Text(),
			TurnComplete: sc.TurnComplete,
		}
		if sc.OutputTranscription != nil {
			evt.Transcript = sc.OutputTranscription.Text
		}
		if len(evt.Audio) > 0 || evt.Text != "" || evt.Transcript != "" || evt.TurnComplete {
			out = append(out, evt)
		}
	}

	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		out = append(out, ToolCallEvent{Calls: msg.ToolCall.FunctionCalls})
	}

	if msg.ToolCallCancellation != nil {
		out = append(out, ToolCallCancelledEvent{IDs: msg.ToolCallCancellation.IDs})
	}

	if msg.GoAway != nil {
		out = append(out, GoAwayEvent{TimeLeft: msg.GoAway.TimeLeft})
	}

	return out
}

// Decode parses a raw server frame into events.
func Decode(data []byte) ([]Event, error) {
	msg, err := Parse[ServerMessage](data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server message: %w", err)
	}
	return Translate(msg), nil
}
