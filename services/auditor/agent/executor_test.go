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

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianAudit/services/auditor/llm"
	"github.com/AleutianAI/AleutianAudit/services/auditor/tools"
)

// fakeTool is a minimal tool for loop tests.
type fakeTool struct {
	name    string
	phase   tools.Phase
	execute func(ctx context.Context, params map[string]any, env *tools.Env) (*tools.Result, error)
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Definition() tools.Definition {
	return tools.Definition{
		Name:       f.name,
		Usage:      "test tool",
		Parameters: map[string]tools.ParamDef{},
		Phase:      f.phase,
	}
}

func (f *fakeTool) Execute(ctx context.Context, params map[string]any, env *tools.Env) (*tools.Result, error) {
	if f.execute != nil {
		return f.execute(ctx, params, env)
	}
	return &tools.Result{Success: true, OutputText: f.name + " ran"}, nil
}

// newTestExecutor wires an executor over a scripted provider and the
// given tools.
func newTestExecutor(t *testing.T, provider llm.Provider, maxIterations int, toolset ...tools.Tool) *Executor {
	t.Helper()
	registry := tools.NewRegistry()
	for _, tool := range toolset {
		registry.Register(tool)
	}
	cfg := DefaultConfig()
	cfg.MaxIterations = maxIterations
	executor, err := NewExecutor(provider, registry, tools.NewDispatcher(registry, nil), cfg)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	return executor
}

func runExecution(t *testing.T, executor *Executor, session *Session, message string) ([]StreamEvent, *RunResult, error) {
	t.Helper()
	stream := newStream(context.Background(), 1024)
	result, err := executor.Execute(context.Background(), session, message, stream)
	return collect(stream), result, err
}

func TestExecutor_Construction(t *testing.T) {
	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry, nil)
	provider := llm.NewScriptedProvider()

	if _, err := NewExecutor(nil, registry, dispatcher, DefaultConfig()); !errors.Is(err, ErrNilProvider) {
		t.Errorf("nil provider: got %v", err)
	}
	if _, err := NewExecutor(provider, nil, dispatcher, DefaultConfig()); !errors.Is(err, ErrNilRegistry) {
		t.Errorf("nil registry: got %v", err)
	}
	cfg := DefaultConfig()
	cfg.MaxIterations = 0
	if _, err := NewExecutor(provider, registry, dispatcher, cfg); err == nil {
		t.Error("zero iteration bound accepted")
	}
}

func TestExecutor_DirectAnswer(t *testing.T) {
	provider := llm.NewScriptedProvider(
		llm.ScriptedRound{Content: "No repository given; nothing to assess."},
	)
	executor := newTestExecutor(t, provider, 10)
	session := NewSession("tester")

	events, result, err := runExecution(t, executor, session, "hello")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Iterations != 1 || result.ToolInvocations != 0 {
		t.Errorf("RunResult = %+v", result)
	}

	// Token events reassemble into exactly the assistant content.
	var sb strings.Builder
	for _, ev := range events {
		if ev.Type == EventToken {
			sb.WriteString(ev.Token)
		}
	}
	if sb.String() != "No repository given; nothing to assess." {
		t.Errorf("Reassembled tokens = %q", sb.String())
	}
	last := events[len(events)-1]
	if last.Type != EventDone || last.Answer != "No repository given; nothing to assess." {
		t.Errorf("Terminal event = %+v", last)
	}

	history := session.History()
	if len(history) != 2 || history[0].Role != llm.RoleUser || history[1].Role != llm.RoleAssistant {
		t.Errorf("History roles = %+v", history)
	}
}

func TestExecutor_ToolCallCycle(t *testing.T) {
	provider := llm.NewScriptedProvider(
		llm.ScriptedRound{
			Content: "Cloning the repository first.",
			ToolCalls: []llm.ToolCall{
				{ID: "call-1", Name: "clone_repository", Arguments: `{}`},
			},
		},
		llm.ScriptedRound{Content: "Clone finished; the tree looks small."},
	)
	cloned := false
	executor := newTestExecutor(t, provider, 10, &fakeTool{
		name:  "clone_repository",
		phase: tools.PhaseSetup,
		execute: func(ctx context.Context, params map[string]any, env *tools.Env) (*tools.Result, error) {
			cloned = true
			env.Progress("Cloning...")
			return &tools.Result{Success: true, OutputText: "Cloned to /tmp/x"}, nil
		},
	})
	session := NewSession("tester")

	events, result, err := runExecution(t, executor, session, "assess https://example.com/r.git")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !cloned {
		t.Fatal("Tool body never ran")
	}
	if result.Iterations != 2 || result.ToolInvocations != 1 {
		t.Errorf("RunResult = %+v", result)
	}

	// tool_start precedes progress precedes tool_end, and interstitial
	// narration tokens arrive before the tool events of their cycle.
	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	idx := func(want EventType) int {
		for i, typ := range types {
			if typ == want {
				return i
			}
		}
		return -1
	}
	if !(idx(EventToolStart) < idx(EventProgress) && idx(EventProgress) < idx(EventToolEnd)) {
		t.Errorf("Tool event order wrong: %v", types)
	}
	if types[len(types)-1] != EventDone {
		t.Errorf("Last event = %q", types[len(types)-1])
	}

	// The observation is paired to the model's call id.
	history := session.History()
	if len(history) != 4 {
		t.Fatalf("History length = %d, want 4", len(history))
	}
	if history[2].Role != llm.RoleTool || history[2].ToolCallID != "call-1" {
		t.Errorf("Observation turn = %+v", history[2])
	}
	if !strings.Contains(history[2].Content, "Cloned to /tmp/x") {
		t.Errorf("Observation content = %q", history[2].Content)
	}

	// The second provider call saw the observation.
	second := provider.Requests[1]
	found := false
	for _, m := range second.Messages {
		if m.Role == llm.RoleTool && m.ToolCallID == "call-1" {
			found = true
		}
	}
	if !found {
		t.Error("Second request missing the tool observation")
	}
}

func TestExecutor_IterationBound(t *testing.T) {
	// The model never answers: every round demands another tool call.
	loopRound := llm.ScriptedRound{
		ToolCalls: []llm.ToolCall{{ID: "c", Name: "noop", Arguments: `{}`}},
	}
	provider := llm.NewScriptedProvider(loopRound, loopRound, loopRound, loopRound, loopRound)
	executor := newTestExecutor(t, provider, 3, &fakeTool{name: "noop", phase: tools.PhaseExploration})
	session := NewSession("tester")

	events, result, err := runExecution(t, executor, session, "loop forever")
	if result != nil {
		t.Errorf("Expected nil result, got %+v", result)
	}
	if !errors.Is(err, ErrRecursionLimitExceeded) {
		t.Fatalf("Expected ErrRecursionLimitExceeded, got %v", err)
	}
	if provider.Calls() != 3 {
		t.Errorf("Provider called %d times, want 3", provider.Calls())
	}

	last := events[len(events)-1]
	if last.Type != EventError || last.Code != CodeRecursionLimit {
		t.Errorf("Terminal event = %+v", last)
	}
}

func TestExecutor_ToolFailureIsObservation(t *testing.T) {
	t.Run("panic does not kill the loop", func(t *testing.T) {
		provider := llm.NewScriptedProvider(
			llm.ScriptedRound{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "crash", Arguments: `{}`}}},
			llm.ScriptedRound{Content: "That tool crashed; moving on."},
		)
		executor := newTestExecutor(t, provider, 10, &fakeTool{
			name:  "crash",
			phase: tools.PhaseExploration,
			execute: func(ctx context.Context, params map[string]any, env *tools.Env) (*tools.Result, error) {
				panic("index out of range")
			},
		})
		session := NewSession("tester")

		events, result, err := runExecution(t, executor, session, "go")
		if err != nil {
			t.Fatalf("Loop died on tool panic: %v", err)
		}
		if result.FinalAnswer != "That tool crashed; moving on." {
			t.Errorf("FinalAnswer = %q", result.FinalAnswer)
		}
		for _, ev := range events {
			if ev.Type == EventToolEnd && ev.Success {
				t.Error("Panicked tool reported success")
			}
		}
		history := session.History()
		if !strings.Contains(history[2].Content, "panicked") {
			t.Errorf("Observation = %q", history[2].Content)
		}
	})

	t.Run("unknown tool name is an observation", func(t *testing.T) {
		provider := llm.NewScriptedProvider(
			llm.ScriptedRound{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "hallucinated", Arguments: `{}`}}},
			llm.ScriptedRound{Content: "My mistake."},
		)
		executor := newTestExecutor(t, provider, 10, &fakeTool{name: "real_tool", phase: tools.PhaseSetup})
		session := NewSession("tester")

		_, _, err := runExecution(t, executor, session, "go")
		if err != nil {
			t.Fatalf("Loop died on unknown tool: %v", err)
		}
		if !strings.Contains(session.History()[2].Content, "real_tool") {
			t.Error("Observation does not list the available tools")
		}
	})

	t.Run("unparseable arguments are an observation", func(t *testing.T) {
		provider := llm.NewScriptedProvider(
			llm.ScriptedRound{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "noop", Arguments: `{broken`}}},
			llm.ScriptedRound{Content: "Retrying with valid JSON."},
		)
		ran := false
		executor := newTestExecutor(t, provider, 10, &fakeTool{
			name:  "noop",
			phase: tools.PhaseExploration,
			execute: func(ctx context.Context, params map[string]any, env *tools.Env) (*tools.Result, error) {
				ran = true
				return &tools.Result{Success: true, OutputText: "ok"}, nil
			},
		})
		session := NewSession("tester")

		_, _, err := runExecution(t, executor, session, "go")
		if err != nil {
			t.Fatalf("Loop died on bad arguments: %v", err)
		}
		if ran {
			t.Error("Tool body ran despite unparseable arguments")
		}
	})
}

func TestExecutor_ProviderFailure(t *testing.T) {
	provider := llm.NewScriptedProvider() // exhausted immediately: ErrUnavailable
	executor := newTestExecutor(t, provider, 10)
	session := NewSession("tester")

	events, _, err := runExecution(t, executor, session, "go")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Expected ErrProviderUnavailable, got %v", err)
	}
	last := events[len(events)-1]
	if last.Type != EventError || last.Code != CodeProviderFailure {
		t.Errorf("Terminal event = %+v", last)
	}
}

func TestExecutor_Cancellation(t *testing.T) {
	provider := llm.NewScriptedProvider(
		llm.ScriptedRound{Content: "never reached"},
	)
	executor := newTestExecutor(t, provider, 10)
	session := NewSession("tester")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream := newStream(ctx, 64)

	_, err := executor.Execute(ctx, session, "go", stream)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	// Severed stream: closed without a terminal event.
	for ev := range stream.Events() {
		if ev.Type.Terminal() {
			t.Errorf("Terminal event %q on a cancelled execution", ev.Type)
		}
	}
}
