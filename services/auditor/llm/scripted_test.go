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
	"errors"
	"strings"
	"testing"
)

func TestScriptedProvider_Replay(t *testing.T) {
	provider := NewScriptedProvider(
		ScriptedRound{Content: "first"},
		ScriptedRound{
			Content:   "second",
			ToolCalls: []ToolCall{{ID: "c1", Name: "read_file", Arguments: `{}`}},
		},
	)

	var tokens []string
	completion, err := provider.ChatStream(context.Background(), ChatRequest{}, func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("First round failed: %v", err)
	}
	if completion.Content != "first" || completion.FinishReason != "stop" {
		t.Errorf("Completion = %+v", completion)
	}
	if strings.Join(tokens, "") != "first" {
		t.Errorf("Tokens = %v", tokens)
	}

	completion, err = provider.ChatStream(context.Background(), ChatRequest{}, nil)
	if err != nil {
		t.Fatalf("Second round failed: %v", err)
	}
	if completion.FinishReason != "tool_calls" || len(completion.ToolCalls) != 1 {
		t.Errorf("Completion = %+v", completion)
	}
	if provider.Calls() != 2 {
		t.Errorf("Calls() = %d", provider.Calls())
	}
}

func TestScriptedProvider_Exhaustion(t *testing.T) {
	provider := NewScriptedProvider(ScriptedRound{Content: "only"})

	if _, err := provider.ChatStream(context.Background(), ChatRequest{}, nil); err != nil {
		t.Fatalf("First round failed: %v", err)
	}
	_, err := provider.ChatStream(context.Background(), ChatRequest{}, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable on exhaustion, got %v", err)
	}
}

func TestScriptedProvider_ErrRound(t *testing.T) {
	boom := errors.New("boom")
	provider := NewScriptedProvider(ScriptedRound{Err: boom})

	_, err := provider.ChatStream(context.Background(), ChatRequest{}, nil)
	if !errors.Is(err, boom) {
		t.Errorf("Expected scripted error, got %v", err)
	}
}

func TestScriptedProvider_ChunkSize(t *testing.T) {
	provider := NewScriptedProvider(ScriptedRound{Content: "abcdef", ChunkSize: 4})

	var tokens []string
	if _, err := provider.ChatStream(context.Background(), ChatRequest{}, func(tok string) {
		tokens = append(tokens, tok)
	}); err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "abcd" || tokens[1] != "ef" {
		t.Errorf("Tokens = %v", tokens)
	}
}

func TestScriptedProvider_RecordsRequests(t *testing.T) {
	provider := NewScriptedProvider(ScriptedRound{Content: "ok"})

	req := ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hello"}}}
	if _, err := provider.ChatStream(context.Background(), req, nil); err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if len(provider.Requests) != 1 || provider.Requests[0].Messages[0].Content != "hello" {
		t.Errorf("Requests = %+v", provider.Requests)
	}
}
