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
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianAudit/services/auditor/llm"
)

func TestSession_Acquire(t *testing.T) {
	session := NewSession("owner")

	if err := session.TryAcquire(); err != nil {
		t.Fatalf("First TryAcquire failed: %v", err)
	}
	if err := session.TryAcquire(); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Second TryAcquire: got %v, want ErrSessionBusy", err)
	}

	session.ReleaseRun()
	if err := session.TryAcquire(); err != nil {
		t.Errorf("TryAcquire after release failed: %v", err)
	}
}

func TestSession_End(t *testing.T) {
	session := NewSession("owner")
	released := 0
	session.ExecContext().OnRelease(func() error { released++; return nil })

	if err := session.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if !session.Ended() {
		t.Error("Ended() = false after End")
	}
	if released != 1 {
		t.Errorf("Release hooks ran %d times, want 1", released)
	}

	// Idempotent: no second release.
	if err := session.End(); err != nil {
		t.Errorf("Second End returned %v", err)
	}
	if released != 1 {
		t.Errorf("Release hooks ran %d times after double End", released)
	}

	if err := session.TryAcquire(); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("TryAcquire on ended session: got %v", err)
	}
}

func TestSession_HistoryIsolation(t *testing.T) {
	session := NewSession("owner")
	session.Append(HistoryEntry{Role: llm.RoleUser, Content: "hi"})

	history := session.History()
	history[0].Content = "mutated"

	if session.History()[0].Content != "hi" {
		t.Error("History() exposed internal state")
	}
}

func TestSession_ProviderMessages(t *testing.T) {
	session := NewSession("owner")
	session.Append(HistoryEntry{Role: llm.RoleUser, Content: "check this repo"})
	session.Append(HistoryEntry{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "c1", Name: "clone_repository"}},
	})
	session.Append(HistoryEntry{Role: llm.RoleTool, Content: "cloned", ToolCallID: "c1"})

	messages := session.providerMessages("You are an auditor.")
	if len(messages) != 4 {
		t.Fatalf("Messages = %d, want 4", len(messages))
	}
	if messages[0].Role != llm.RoleSystem || messages[0].Content != "You are an auditor." {
		t.Errorf("System turn = %+v", messages[0])
	}
	if messages[3].ToolCallID != "c1" {
		t.Errorf("Tool turn = %+v", messages[3])
	}

	// No system prompt configured: history only.
	if got := session.providerMessages(""); len(got) != 3 {
		t.Errorf("Messages without system prompt = %d, want 3", len(got))
	}
}

func TestSessionRegistry(t *testing.T) {
	registry := NewSessionRegistry()

	a := registry.Create("alice")
	b := registry.Create("bob")
	if registry.Count() != 2 {
		t.Fatalf("Count() = %d", registry.Count())
	}

	// Distinct sessions never share execution context.
	if a.ExecContext() == b.ExecContext() {
		t.Error("Sessions share an execution context")
	}
	a.ExecContext().SetAnalysisID("an-a")
	if _, err := b.ExecContext().AnalysisID(); err == nil {
		t.Error("Analysis id leaked across sessions")
	}

	got, err := registry.Get(a.ID)
	if err != nil || got != a {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := registry.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get unknown id: got %v", err)
	}

	registry.Remove(a.ID)
	registry.Remove(a.ID) // idempotent
	if registry.Count() != 1 {
		t.Errorf("Count() = %d after removal", registry.Count())
	}
	if ids := registry.IDs(); len(ids) != 1 || ids[0] != b.ID {
		t.Errorf("IDs() = %v", ids)
	}
}
