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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAudit/services/auditor/observability"
)

// ConversationManager is the single façade transports call into. It owns
// the session registry and the executor; handlers never touch either
// directly.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent Sends to distinct sessions run
//	in parallel; a second Send to a busy session is rejected with
//	ErrSessionBusy.
type ConversationManager struct {
	sessions *SessionRegistry
	executor *Executor
	config   Config
	metrics  *observability.ConversationMetrics
	logger   *slog.Logger
}

// ManagerOption customizes a ConversationManager.
type ManagerOption func(*ConversationManager)

// WithMetrics overrides the metric set (tests pass a private registry).
func WithMetrics(m *observability.ConversationMetrics) ManagerOption {
	return func(cm *ConversationManager) {
		cm.metrics = m
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(cm *ConversationManager) {
		cm.logger = logger
	}
}

// NewConversationManager creates the façade.
//
// Inputs:
//
//	executor - The reasoning loop executor. Must not be nil.
//	config - Loop configuration (also used for greeting and stream sizing).
//
// Outputs:
//
//	*ConversationManager - The manager.
//	error - Non-nil if executor is nil.
func NewConversationManager(executor *Executor, config Config, opts ...ManagerOption) (*ConversationManager, error) {
	if executor == nil {
		return nil, errors.New("executor must not be nil")
	}
	cm := &ConversationManager{
		sessions: NewSessionRegistry(),
		executor: executor,
		config:   config,
		metrics:  observability.DefaultMetrics,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm, nil
}

// SessionInfo is the session summary returned by Start and Info.
type SessionInfo struct {
	// SessionID identifies the session.
	SessionID string `json:"session_id"`

	// OwnerID is the creating principal.
	OwnerID string `json:"owner_id"`

	// CreatedAt is the creation time.
	CreatedAt time.Time `json:"created_at"`

	// MessageCount is the number of history turns.
	MessageCount int `json:"message_count"`

	// Busy reports whether an execution is running.
	Busy bool `json:"busy"`

	// Greeting is the opening message (Start only).
	Greeting string `json:"greeting,omitempty"`
}

// Start creates a new session and returns its identity with a greeting.
func (cm *ConversationManager) Start(ownerID string) SessionInfo {
	session := cm.sessions.Create(ownerID)
	cm.metrics.ActiveSessions.Inc()
	cm.logger.Info("Session started", "session_id", session.ID, "owner_id", ownerID)

	return SessionInfo{
		SessionID: session.ID,
		OwnerID:   session.OwnerID,
		CreatedAt: session.CreatedAt,
		Greeting: "Ready to assess a repository. Give me a repository URL and " +
			"I will clone it, search it for vulnerabilities, and report what I find.",
	}
}

// Info returns a session's summary.
func (cm *ConversationManager) Info(sessionID string) (SessionInfo, error) {
	session, err := cm.sessions.Get(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{
		SessionID:    session.ID,
		OwnerID:      session.OwnerID,
		CreatedAt:    session.CreatedAt,
		MessageCount: session.MessageCount(),
		Busy:         session.Busy(),
	}, nil
}

// Send runs one execution for a user message and returns its event
// stream.
//
// Description:
//
//	Resolves the session, claims it for one execution, and starts the
//	reasoning loop in a background goroutine. The returned stream emits
//	the execution's events in order and ends with done, error, or a
//	plain close on cancellation. The session is released when the
//	execution finishes.
//
// Inputs:
//
//	ctx - Governs the execution; cancelling it severs the stream.
//	sessionID - The target session.
//	message - The user message. Must be non-blank.
//
// Outputs:
//
//	*Stream - The execution's event stream.
//	error - ErrSessionNotFound, ErrSessionBusy, ErrSessionEnded, or
//	        ErrEmptyMessage. Loop failures arrive on the stream instead.
func (cm *ConversationManager) Send(ctx context.Context, sessionID, message string) (*Stream, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	session, err := cm.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.TryAcquire(); err != nil {
		return nil, err
	}

	stream := newStream(ctx, cm.config.StreamBuffer)

	go func() {
		defer session.ReleaseRun()

		result, err := cm.executor.Execute(ctx, session, message, stream)
		switch {
		case err == nil:
			cm.metrics.ExecutionsTotal.WithLabelValues("done").Inc()
			cm.metrics.IterationsPerExecution.Observe(float64(result.Iterations))
			cm.metrics.ExecutionDuration.Observe(result.Duration.Seconds())
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			cm.metrics.ExecutionsTotal.WithLabelValues("cancelled").Inc()
		default:
			cm.metrics.ExecutionsTotal.WithLabelValues("error").Inc()
		}
	}()

	return stream, nil
}

// SendAndWait runs one execution and blocks for the final answer.
//
// Description:
//
//	Convenience for non-streaming callers: drains the stream and
//	returns the done event's answer, or the error event as an error.
//
// Outputs:
//
//	string - The final answer.
//	error - A Send error, the streamed error event, or an error when
//	        the stream was severed without a terminal event.
func (cm *ConversationManager) SendAndWait(ctx context.Context, sessionID, message string) (string, error) {
	stream, err := cm.Send(ctx, sessionID, message)
	if err != nil {
		return "", err
	}

	terminal := false
	answer := ""
	var streamErr error
	for ev := range stream.Events() {
		switch ev.Type {
		case EventDone:
			terminal = true
			answer = ev.Answer
		case EventError:
			terminal = true
			streamErr = errorFromCode(ev.Code, ev.Message)
		}
	}
	if !terminal {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", errors.New("stream ended without a terminal event")
	}
	return answer, streamErr
}

// errorFromCode reconstructs a matchable sentinel from an error event so
// non-streaming callers can branch with errors.Is.
func errorFromCode(code, message string) error {
	switch code {
	case CodeRecursionLimit:
		return fmt.Errorf("%w: %s", ErrRecursionLimitExceeded, message)
	case CodeProviderFailure:
		return fmt.Errorf("%w: %s", ErrProviderUnavailable, message)
	default:
		return fmt.Errorf("%s: %s", code, message)
	}
}

// End ends a session: releases its resources and unregisters it.
// Idempotent; ending an unknown or already-ended session returns nil.
//
// Outputs:
//
//	error - The first resource-release failure, if any. The session is
//	        unregistered regardless.
func (cm *ConversationManager) End(sessionID string) error {
	session, err := cm.sessions.Get(sessionID)
	if err != nil {
		return nil
	}

	releaseErr := session.End()
	cm.sessions.Remove(sessionID)
	cm.metrics.ActiveSessions.Dec()
	cm.logger.Info("Session ended", "session_id", sessionID)

	if releaseErr != nil {
		return fmt.Errorf("release session resources: %w", releaseErr)
	}
	return nil
}

// Sessions exposes the registry for handlers that need listing.
func (cm *ConversationManager) Sessions() *SessionRegistry {
	return cm.sessions
}
