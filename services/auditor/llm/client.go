// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm abstracts the language-model provider behind a streaming
// chat interface with tool calling.
//
// The agent core depends only on Provider; the OpenAI-compatible adapter
// in this package is one implementation, and the scripted provider gives
// tests deterministic multi-round conversations without a network.
package llm

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianAudit/services/auditor/tools"
)

// ErrUnavailable indicates the provider could not be reached or returned
// a transport-level failure before producing a completion.
var ErrUnavailable = errors.New("llm provider unavailable")

// Role is a conversation role understood by chat providers.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleTool carries a tool observation back to the model, paired to
	// the originating call by ToolCallID.
	RoleTool Role = "tool"
)

// Message is one turn of a provider conversation.
type Message struct {
	// Role is the speaker.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// ToolCalls are the calls requested in an assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID pairs a tool observation to the call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call identifier.
	ID string `json:"id"`

	// Name is the tool to invoke.
	Name string `json:"name"`

	// Arguments is the raw JSON argument object.
	Arguments string `json:"arguments"`
}

// ChatRequest is one streaming chat call.
type ChatRequest struct {
	// Messages is the conversation so far, oldest first.
	Messages []Message

	// Tools is the tool catalog offered to the model.
	Tools []tools.Definition

	// Model overrides the provider's default model when non-empty.
	Model string

	// Temperature controls sampling (provider default when 0).
	Temperature float32

	// MaxTokens bounds the completion length (provider default when 0).
	MaxTokens int
}

// Completion is the final result of one streaming chat call.
type Completion struct {
	// Content is the full assistant text (the concatenation of all
	// streamed fragments).
	Content string

	// ToolCalls are the tool invocations the model requested, if any.
	ToolCalls []ToolCall

	// FinishReason is the provider's stop reason ("stop", "tool_calls",
	// "length", ...).
	FinishReason string

	// PromptTokens and CompletionTokens are usage figures when the
	// provider reports them.
	PromptTokens     int
	CompletionTokens int
}

// TokenSink receives assistant text fragments as the provider produces
// them. Called from the provider's streaming goroutine; implementations
// must not block for long.
type TokenSink func(fragment string)

// Provider is a streaming chat language model with tool calling.
//
// Thread Safety: Implementations must be safe for concurrent use across
// sessions.
type Provider interface {
	// Name identifies the provider for logging and metrics.
	Name() string

	// ChatStream runs one chat call, relaying assistant text fragments
	// to onToken as they arrive, and returns the assembled completion.
	//
	// Inputs:
	//   ctx - Context for cancellation.
	//   req - The conversation, tool catalog, and sampling options.
	//   onToken - Fragment sink. May be nil when streaming is not needed.
	//
	// Outputs:
	//   *Completion - The assembled completion.
	//   error - ErrUnavailable (wrapped) on transport failure; the
	//           context error on cancellation.
	ChatStream(ctx context.Context, req ChatRequest, onToken TokenSink) (*Completion, error)
}
