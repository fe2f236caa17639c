// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import "context"

// EventType discriminates stream events. The values are wire-stable;
// transport adapters serialize them verbatim.
type EventType string

const (
	// EventToken carries one fragment of assistant text.
	EventToken EventType = "token"

	// EventToolStart announces a tool invocation.
	EventToolStart EventType = "tool_start"

	// EventToolEnd reports a tool invocation's outcome.
	EventToolEnd EventType = "tool_end"

	// EventProgress relays a free-form status string from a running
	// tool. The core never interprets the payload.
	EventProgress EventType = "custom"

	// EventDone terminates a successful execution.
	EventDone EventType = "done"

	// EventError terminates a failed execution.
	EventError EventType = "error"
)

// Terminal reports whether the event type ends the stream.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// StreamEvent is one event of an execution's outward stream. It is a
// tagged union: Type selects which fields are meaningful.
type StreamEvent struct {
	// Type discriminates the union.
	Type EventType `json:"type"`

	// Token is the text fragment (token events).
	Token string `json:"token,omitempty"`

	// ToolName and InvocationID identify a tool call (tool_start,
	// tool_end, and progress events raised by that tool).
	ToolName     string `json:"tool_name,omitempty"`
	InvocationID string `json:"invocation_id,omitempty"`

	// Arguments is the call's raw JSON argument object (tool_start).
	Arguments string `json:"arguments,omitempty"`

	// Success and Summary describe the outcome (tool_end).
	Success bool   `json:"success,omitempty"`
	Summary string `json:"summary,omitempty"`

	// Message is the progress payload (custom) or error text (error).
	Message string `json:"message,omitempty"`

	// Answer is the final assistant response (done).
	Answer string `json:"answer,omitempty"`

	// Code is the stable error code (error events).
	Code string `json:"code,omitempty"`
}

// Stream is the ordered event channel of one execution.
//
// Description:
//
//	A single producer goroutine (the executor) emits events in the order
//	they occur; consumers range over Events() and observe exactly that
//	order. The stream ends with one terminal done or error event and is
//	then closed. When the execution is cancelled mid-flight, the stream
//	closes without a terminal event; a severed stream is the documented
//	abnormal-termination signal.
//
// Thread Safety:
//
//	One producer, any number of sequential reads from one consumer.
//	Emit methods must only be called from the producing goroutine.
type Stream struct {
	ch       chan StreamEvent
	ctx      context.Context
	terminal bool
}

// newStream creates a stream bound to the execution's context.
func newStream(ctx context.Context, buffer int) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{
		ch:  make(chan StreamEvent, buffer),
		ctx: ctx,
	}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan StreamEvent {
	return s.ch
}

// emit delivers one event in order. Delivery blocks until the consumer
// keeps up or the execution is cancelled; a cancelled execution simply
// stops emitting.
func (s *Stream) emit(ev StreamEvent) {
	if s.terminal {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
	}
}

// Token emits one assistant text fragment.
func (s *Stream) Token(fragment string) {
	s.emit(StreamEvent{Type: EventToken, Token: fragment})
}

// ToolStart announces a tool invocation.
func (s *Stream) ToolStart(invocationID, toolName, arguments string) {
	s.emit(StreamEvent{
		Type:         EventToolStart,
		ToolName:     toolName,
		InvocationID: invocationID,
		Arguments:    arguments,
	})
}

// ToolEnd reports a tool invocation's outcome.
func (s *Stream) ToolEnd(invocationID, toolName string, success bool, summary string) {
	s.emit(StreamEvent{
		Type:         EventToolEnd,
		ToolName:     toolName,
		InvocationID: invocationID,
		Success:      success,
		Summary:      summary,
	})
}

// Progress relays a status string from a running tool.
func (s *Stream) Progress(invocationID, toolName, message string) {
	s.emit(StreamEvent{
		Type:         EventProgress,
		ToolName:     toolName,
		InvocationID: invocationID,
		Message:      message,
	})
}

// Done emits the terminal success event and closes the stream.
func (s *Stream) Done(answer string) {
	s.emit(StreamEvent{Type: EventDone, Answer: answer})
	s.close()
}

// Error emits the terminal failure event and closes the stream.
func (s *Stream) Error(err error) {
	s.emit(StreamEvent{Type: EventError, Code: errorCode(err), Message: err.Error()})
	s.close()
}

// CloseAbnormal closes the stream without a terminal event. Used on
// cancellation.
func (s *Stream) CloseAbnormal() {
	s.close()
}

func (s *Stream) close() {
	if s.terminal {
		return
	}
	s.terminal = true
	close(s.ch)
}
