// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

// stubTool is a configurable tool for dispatcher tests.
type stubTool struct {
	name    string
	def     Definition
	execute func(ctx context.Context, params map[string]any, env *Env) (*Result, error)
	calls   int
}

func (s *stubTool) Name() string { return s.name }

func (s *stubTool) Definition() Definition { return s.def }

func (s *stubTool) Execute(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
	s.calls++
	if s.execute != nil {
		return s.execute(ctx, params, env)
	}
	return &Result{Success: true, OutputText: "ok"}, nil
}

func newStubTool(name string, params map[string]ParamDef) *stubTool {
	return &stubTool{
		name: name,
		def: Definition{
			Name:       name,
			Usage:      "stub tool for tests",
			Parameters: params,
			Phase:      PhaseExploration,
		},
	}
}

func newTestEnv() *Env {
	return &Env{
		Context:  NewExecutionContext(),
		Progress: func(string) {},
	}
}

func TestDispatcher_UnknownTool(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newStubTool("read_file", nil))
	dispatcher := NewDispatcher(registry, nil)

	result, err := dispatcher.Invoke(context.Background(),
		&Invocation{ToolName: "no_such_tool"}, newTestEnv())
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Success {
		t.Error("Expected failed result for unknown tool")
	}
	if result.Kind != FailureUnknownTool {
		t.Errorf("Expected kind %q, got %q", FailureUnknownTool, result.Kind)
	}
	// The failure message lists the catalog so the model can self-correct.
	if !strings.Contains(result.Error, "read_file") {
		t.Errorf("Expected available tools in error, got: %s", result.Error)
	}
}

func TestDispatcher_Validation(t *testing.T) {
	params := map[string]ParamDef{
		"path":  {Type: ParamTypeString, Required: true, MinLength: 1},
		"limit": {Type: ParamTypeInt, Minimum: floatPtr(1), Maximum: floatPtr(50)},
		"mode":  {Type: ParamTypeString, Enum: []any{"fast", "full"}},
	}

	t.Run("missing required parameter does not execute body", func(t *testing.T) {
		tool := newStubTool("scan", params)
		registry := NewRegistry()
		registry.Register(tool)
		dispatcher := NewDispatcher(registry, nil)

		result, err := dispatcher.Invoke(context.Background(),
			&Invocation{ToolName: "scan", Parameters: map[string]any{"limit": 10.0}},
			newTestEnv())
		if err != nil {
			t.Fatalf("Invoke returned error: %v", err)
		}
		if result.Success || result.Kind != FailureInvalidArguments {
			t.Errorf("Expected invalid_arguments failure, got success=%v kind=%q",
				result.Success, result.Kind)
		}
		if !strings.Contains(result.Error, "path") {
			t.Errorf("Expected offending parameter name in error, got: %s", result.Error)
		}
		if tool.calls != 0 {
			t.Errorf("Tool body ran %d times despite validation failure", tool.calls)
		}
	})

	t.Run("wrong type rejected", func(t *testing.T) {
		tool := newStubTool("scan", params)
		registry := NewRegistry()
		registry.Register(tool)
		dispatcher := NewDispatcher(registry, nil)

		result, _ := dispatcher.Invoke(context.Background(),
			&Invocation{ToolName: "scan", Parameters: map[string]any{"path": 42.0}},
			newTestEnv())
		if result.Kind != FailureInvalidArguments {
			t.Errorf("Expected invalid_arguments, got %q", result.Kind)
		}
	})

	t.Run("numeric bounds enforced", func(t *testing.T) {
		tool := newStubTool("scan", params)
		registry := NewRegistry()
		registry.Register(tool)
		dispatcher := NewDispatcher(registry, nil)

		result, _ := dispatcher.Invoke(context.Background(),
			&Invocation{ToolName: "scan", Parameters: map[string]any{"path": "a", "limit": 99.0}},
			newTestEnv())
		if result.Kind != FailureInvalidArguments {
			t.Errorf("Expected invalid_arguments for out-of-range limit, got %q", result.Kind)
		}
	})

	t.Run("enum enforced", func(t *testing.T) {
		tool := newStubTool("scan", params)
		registry := NewRegistry()
		registry.Register(tool)
		dispatcher := NewDispatcher(registry, nil)

		result, _ := dispatcher.Invoke(context.Background(),
			&Invocation{ToolName: "scan", Parameters: map[string]any{"path": "a", "mode": "turbo"}},
			newTestEnv())
		if result.Kind != FailureInvalidArguments {
			t.Errorf("Expected invalid_arguments for bad enum value, got %q", result.Kind)
		}
	})

	t.Run("unknown extra parameters tolerated", func(t *testing.T) {
		tool := newStubTool("scan", params)
		registry := NewRegistry()
		registry.Register(tool)
		dispatcher := NewDispatcher(registry, nil)

		result, _ := dispatcher.Invoke(context.Background(),
			&Invocation{ToolName: "scan", Parameters: map[string]any{"path": "a", "verbose": true}},
			newTestEnv())
		if !result.Success {
			t.Errorf("Expected success with extra parameter, got: %s", result.Error)
		}
	})
}

func TestDispatcher_Defaults(t *testing.T) {
	tool := newStubTool("search", map[string]ParamDef{
		"query": {Type: ParamTypeString, Required: true},
		"limit": {Type: ParamTypeInt, Default: 10},
	})
	var seen map[string]any
	tool.execute = func(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
		seen = params
		return &Result{Success: true, OutputText: "ok"}, nil
	}
	registry := NewRegistry()
	registry.Register(tool)
	dispatcher := NewDispatcher(registry, nil)

	original := map[string]any{"query": "sql injection"}
	if _, err := dispatcher.Invoke(context.Background(),
		&Invocation{ToolName: "search", Parameters: original}, newTestEnv()); err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if seen["limit"] != 10 {
		t.Errorf("Expected default limit 10, got %v", seen["limit"])
	}
	if _, ok := original["limit"]; ok {
		t.Error("Invoke mutated the caller's parameter map")
	}
}

func TestDispatcher_PanicRecovery(t *testing.T) {
	tool := newStubTool("explode", nil)
	tool.execute = func(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
		panic("boom")
	}
	registry := NewRegistry()
	registry.Register(tool)
	dispatcher := NewDispatcher(registry, nil)

	result, err := dispatcher.Invoke(context.Background(),
		&Invocation{ToolName: "explode"}, newTestEnv())
	if err != nil {
		t.Fatalf("Panic escaped the dispatcher: %v", err)
	}
	if result.Success || result.Kind != FailurePanic {
		t.Errorf("Expected panic failure, got success=%v kind=%q", result.Success, result.Kind)
	}
	if !strings.Contains(result.Error, "boom") {
		t.Errorf("Expected panic value in error, got: %s", result.Error)
	}
}

func TestDispatcher_MissingContext(t *testing.T) {
	tool := newStubTool("needs_repo", nil)
	tool.execute = func(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
		if _, err := env.Context.RepositoryPath(); err != nil {
			return nil, err
		}
		return &Result{Success: true, OutputText: "ok"}, nil
	}
	registry := NewRegistry()
	registry.Register(tool)
	dispatcher := NewDispatcher(registry, nil)

	env := newTestEnv()
	result, err := dispatcher.Invoke(context.Background(),
		&Invocation{ToolName: "needs_repo"}, env)
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Kind != FailureMissingContext {
		t.Errorf("Expected missing_context, got %q", result.Kind)
	}

	// After the setup step the same call succeeds.
	env.Context.SetRepository(t.TempDir(), "https://example.com/repo.git")
	result, _ = dispatcher.Invoke(context.Background(),
		&Invocation{ToolName: "needs_repo"}, env)
	if !result.Success {
		t.Errorf("Expected success after context set, got: %s", result.Error)
	}
}

func TestDispatcher_ExecutionError(t *testing.T) {
	tool := newStubTool("flaky", nil)
	tool.execute = func(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
		return nil, fmt.Errorf("connection refused")
	}
	registry := NewRegistry()
	registry.Register(tool)
	dispatcher := NewDispatcher(registry, nil)

	result, err := dispatcher.Invoke(context.Background(),
		&Invocation{ToolName: "flaky"}, newTestEnv())
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Kind != FailureExecution {
		t.Errorf("Expected execution failure, got %q", result.Kind)
	}
}

func TestDispatcher_Truncation(t *testing.T) {
	tool := newStubTool("verbose", nil)
	tool.execute = func(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
		return &Result{Success: true, OutputText: strings.Repeat("x", 500)}, nil
	}
	registry := NewRegistry()
	registry.Register(tool)
	opts := DispatcherOptions{DefaultTimeout: time.Minute, MaxOutputChars: 100}
	dispatcher := NewDispatcher(registry, &opts)

	result, err := dispatcher.Invoke(context.Background(),
		&Invocation{ToolName: "verbose"}, newTestEnv())
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if !result.Truncated {
		t.Error("Expected truncated result")
	}
	if !strings.HasSuffix(result.OutputText, "[truncated]") {
		t.Errorf("Expected truncation marker, got suffix: %q",
			result.OutputText[len(result.OutputText)-20:])
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	tool := newStubTool("slow", nil)
	tool.def.Timeout = 20 * time.Millisecond
	tool.execute = func(ctx context.Context, params map[string]any, env *Env) (*Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &Result{Success: true, OutputText: "too late"}, nil
		}
	}
	registry := NewRegistry()
	registry.Register(tool)
	dispatcher := NewDispatcher(registry, nil)

	result, err := dispatcher.Invoke(context.Background(),
		&Invocation{ToolName: "slow"}, newTestEnv())
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if result.Success {
		t.Error("Expected failure from timed-out tool")
	}
	if result.Kind != FailureExecution {
		t.Errorf("Expected execution failure, got %q", result.Kind)
	}
}

func TestDispatcher_RecordsInvocation(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newStubTool("quick", nil))
	dispatcher := NewDispatcher(registry, nil)

	inv := &Invocation{ToolName: "quick"}
	result, err := dispatcher.Invoke(context.Background(), inv, newTestEnv())
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if inv.ID == "" {
		t.Error("Expected invocation ID to be assigned")
	}
	if inv.Result != result {
		t.Error("Expected result attached to invocation")
	}
	if inv.CompletedAt.Before(inv.StartedAt) {
		t.Error("CompletedAt precedes StartedAt")
	}
}

func TestResult_Summary(t *testing.T) {
	t.Run("first line only", func(t *testing.T) {
		r := &Result{Success: true, OutputText: "line one\nline two"}
		if got := r.Summary(); got != "line one" {
			t.Errorf("Summary() = %q", got)
		}
	})

	t.Run("failure prefixed", func(t *testing.T) {
		r := Failed(FailureExecution, "it broke")
		if got := r.Summary(); got != "error: it broke" {
			t.Errorf("Summary() = %q", got)
		}
	})

	t.Run("long line clipped", func(t *testing.T) {
		r := &Result{Success: true, OutputText: strings.Repeat("a", 300)}
		got := r.Summary()
		if len(got) != 203 || !strings.HasSuffix(got, "...") {
			t.Errorf("Summary() length %d, suffix %q", len(got), got[len(got)-3:])
		}
	})
}
