// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the orchestration core of the audit service:
// sessions, the bounded reasoning loop, the event stream, and the
// conversation manager façade that transports call into.
//
// One session is one conversation. Each Send runs one execution: the
// reasoning loop alternates model calls and tool invocations until the
// model answers in plain text, the iteration bound trips, or the caller
// cancels. Everything the client sees travels over a single ordered
// event stream per execution.
package agent

import (
	"time"

	"github.com/AleutianAI/AleutianAudit/services/auditor/llm"
)

// HistoryEntry is one turn of a session's conversation history.
type HistoryEntry struct {
	// Role is the speaker: user, assistant, system, or tool.
	Role llm.Role `json:"role"`

	// Content is the turn text. For tool turns this is the observation
	// fed back to the model.
	Content string `json:"content"`

	// ToolCalls are the calls requested in an assistant turn.
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID pairs a tool turn to the call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// CreatedAt is when the turn was appended.
	CreatedAt time.Time `json:"created_at"`
}

// Config bounds and tunes the reasoning loop.
type Config struct {
	// MaxIterations is the hard bound on reasoning cycles per execution.
	// Mandatory: an execution that exceeds it fails with
	// ErrRecursionLimitExceeded.
	MaxIterations int

	// SystemPrompt is prepended to every provider conversation.
	SystemPrompt string

	// Model overrides the provider's default model when non-empty.
	Model string

	// Temperature is the sampling temperature (provider default when 0).
	Temperature float32

	// StreamBuffer is the event channel capacity.
	StreamBuffer int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 100,
		SystemPrompt:  defaultSystemPrompt,
		StreamBuffer:  64,
	}
}

// defaultSystemPrompt frames the assessment task for the model. Tool
// ordering is taught by the missing-context failures, not enforced here.
const defaultSystemPrompt = `You are a security auditor performing an automated vulnerability assessment.

Work methodically: clone the repository, open an analysis, build the index,
explore and search the code, validate every suspected vulnerability against
the actual source, record confirmed findings with concrete evidence, and
finish by generating the report. Only record findings you have verified.
When a tool fails because required context is missing, perform the setup
step it names and retry.`

// RunResult summarizes one completed execution.
type RunResult struct {
	// FinalAnswer is the model's closing plain-text response.
	FinalAnswer string

	// Iterations is how many reasoning cycles ran.
	Iterations int

	// ToolInvocations is how many tool calls were dispatched.
	ToolInvocations int

	// Duration is wall-clock execution time.
	Duration time.Duration
}
