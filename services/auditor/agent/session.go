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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAudit/services/auditor/llm"
	"github.com/AleutianAI/AleutianAudit/services/auditor/tools"
)

// Session is one conversation: identity, ordered history, and the
// execution context shared by the tools it invokes.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. At most one execution runs
//	at a time: TryAcquire gates Send.
type Session struct {
	// ID uniquely identifies the session.
	ID string

	// OwnerID identifies the principal that created the session.
	OwnerID string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	mu      sync.RWMutex
	history []HistoryEntry
	busy    bool
	ended   bool

	// execContext is the tool-visible mutable state, created with the
	// session and released when it ends.
	execContext *tools.ExecutionContext
}

// NewSession creates a session with a fresh id and empty history.
func NewSession(ownerID string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		CreatedAt:   time.Now().UTC(),
		execContext: tools.NewExecutionContext(),
	}
}

// ExecContext returns the session's execution context.
func (s *Session) ExecContext() *tools.ExecutionContext {
	return s.execContext
}

// Append appends one turn to the history.
func (s *Session) Append(entry HistoryEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
}

// History returns a copy of the conversation history, oldest first.
func (s *Session) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// MessageCount returns the number of history turns.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// TryAcquire claims the session for one execution.
//
// Outputs:
//
//	error - ErrSessionBusy if an execution is already running,
//	        ErrSessionEnded if the session has ended.
func (s *Session) TryAcquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	if s.busy {
		return ErrSessionBusy
	}
	s.busy = true
	return nil
}

// ReleaseRun returns the session to idle after an execution.
func (s *Session) ReleaseRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Busy reports whether an execution is running.
func (s *Session) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// End marks the session ended and releases its execution context.
// Idempotent: a second End is a no-op returning nil.
//
// Outputs:
//
//	error - The first release-hook error, if any.
func (s *Session) End() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	s.mu.Unlock()

	return s.execContext.Release()
}

// Ended reports whether the session has ended.
func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// providerMessages renders the history as a provider conversation, with
// the system prompt prepended.
func (s *Session) providerMessages(systemPrompt string) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]llm.Message, 0, len(s.history)+1)
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	for _, entry := range s.history {
		out = append(out, llm.Message{
			Role:       entry.Role,
			Content:    entry.Content,
			ToolCalls:  entry.ToolCalls,
			ToolCallID: entry.ToolCallID,
		})
	}
	return out
}
