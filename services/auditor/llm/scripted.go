// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedRound is one pre-written model turn for the scripted provider.
type ScriptedRound struct {
	// Content is the assistant text, streamed one rune fragment at a
	// time unless ChunkSize says otherwise.
	Content string

	// ToolCalls are the tool invocations this turn requests.
	ToolCalls []ToolCall

	// Err aborts the round with this error instead of completing.
	Err error

	// ChunkSize controls fragment size in runes (1 if zero).
	ChunkSize int
}

// ScriptedProvider replays pre-written rounds in order. It exists for
// tests: a multi-round tool-calling conversation becomes deterministic
// and needs no network.
//
// Thread Safety: Safe for concurrent use; rounds are consumed under a
// mutex in call order.
type ScriptedProvider struct {
	mu     sync.Mutex
	rounds []ScriptedRound
	calls  int

	// Requests records every request seen, for assertions.
	Requests []ChatRequest
}

// NewScriptedProvider creates a provider that replays the given rounds.
func NewScriptedProvider(rounds ...ScriptedRound) *ScriptedProvider {
	return &ScriptedProvider{rounds: rounds}
}

// Name identifies the provider.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Calls returns how many rounds have been consumed.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// ChatStream replays the next round.
func (p *ScriptedProvider) ChatStream(ctx context.Context, req ChatRequest, onToken TokenSink) (*Completion, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	if p.calls >= len(p.rounds) {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: script exhausted after %d rounds", ErrUnavailable, len(p.rounds))
	}
	round := p.rounds[p.calls]
	p.calls++
	p.mu.Unlock()

	if round.Err != nil {
		return nil, round.Err
	}

	chunk := round.ChunkSize
	if chunk <= 0 {
		chunk = 1
	}

	runes := []rune(round.Content)
	for i := 0; i < len(runes); i += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := i + chunk
		if end > len(runes) {
			end = len(runes)
		}
		if onToken != nil {
			onToken(string(runes[i:end]))
		}
	}

	finish := "stop"
	if len(round.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &Completion{
		Content:      round.Content,
		ToolCalls:    round.ToolCalls,
		FinishReason: finish,
	}, nil
}
