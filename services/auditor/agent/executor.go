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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAudit/services/auditor/llm"
	"github.com/AleutianAI/AleutianAudit/services/auditor/observability"
	"github.com/AleutianAI/AleutianAudit/services/auditor/tools"
)

// Executor runs the bounded reasoning loop for one session at a time.
//
// Description:
//
//	Each execution alternates model calls and tool invocations:
//
//	  1. Check cancellation and the iteration bound.
//	  2. Call the provider with the full history and tool catalog,
//	     streaming assistant text as token events.
//	  3. Append the assistant turn to history. No tool calls means the
//	     model has answered: emit done and stop.
//	  4. Otherwise dispatch every requested call through the tool
//	     dispatcher, fold each outcome (success or failure alike) back
//	     into history as a tool observation, and go to 1.
//
//	A tool failure is an observation, never a loop error; the model sees
//	it and decides what to do next. The only loop-level failures are the
//	iteration bound, provider unavailability, and cancellation.
//
// Thread Safety:
//
//	Safe for concurrent use across sessions; per-session serialization
//	is the session's TryAcquire.
type Executor struct {
	provider   llm.Provider
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	config     Config
	logger     *slog.Logger
}

// NewExecutor creates an executor.
//
// Inputs:
//
//	provider - The language model. Must not be nil.
//	registry - The tool registry. Must not be nil.
//	dispatcher - The tool dispatcher. Must not be nil.
//	config - Loop configuration. MaxIterations must be positive.
//
// Outputs:
//
//	*Executor - The executor.
//	error - Non-nil if a collaborator is missing or the bound invalid.
func NewExecutor(provider llm.Provider, registry *tools.Registry, dispatcher *tools.Dispatcher, config Config) (*Executor, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if registry == nil || dispatcher == nil {
		return nil, ErrNilRegistry
	}
	if config.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", config.MaxIterations)
	}
	return &Executor{
		provider:   provider,
		registry:   registry,
		dispatcher: dispatcher,
		config:     config,
		logger:     slog.Default(),
	}, nil
}

// Execute runs one reasoning execution for a user message.
//
// Description:
//
//	Appends the user turn, runs the loop, and emits the execution's
//	events on stream. The stream always ends: a done event on success,
//	an error event on loop failure, or a plain close (no terminal
//	event) on cancellation.
//
// Inputs:
//
//	ctx - Context for cancellation, checked between cycles.
//	session - The session. Caller must hold the session via TryAcquire.
//	message - The user message. Must be non-empty.
//	stream - The execution's event stream. Must not be nil.
//
// Outputs:
//
//	*RunResult - Summary of a successful execution.
//	error - The loop failure mirrored on the stream, or the context
//	        error on cancellation.
func (e *Executor) Execute(ctx context.Context, session *Session, message string, stream *Stream) (*RunResult, error) {
	start := time.Now()
	logger := e.logger.With("session_id", session.ID)

	session.Append(HistoryEntry{Role: llm.RoleUser, Content: message})

	toolDefs := e.registry.Definitions()
	invocations := 0

	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			logger.Info("Execution cancelled", "iteration", iteration)
			stream.CloseAbnormal()
			return nil, err
		}
		if iteration >= e.config.MaxIterations {
			err := fmt.Errorf("%w: %d iterations without a final answer",
				ErrRecursionLimitExceeded, e.config.MaxIterations)
			logger.Warn("Iteration bound tripped", "max_iterations", e.config.MaxIterations)
			stream.Error(err)
			return nil, err
		}

		req := llm.ChatRequest{
			Messages:    session.providerMessages(e.config.SystemPrompt),
			Tools:       toolDefs,
			Model:       e.config.Model,
			Temperature: e.config.Temperature,
		}
		completion, err := e.provider.ChatStream(ctx, req, stream.Token)
		if err != nil {
			if ctx.Err() != nil {
				stream.CloseAbnormal()
				return nil, ctx.Err()
			}
			if errors.Is(err, llm.ErrUnavailable) {
				err = fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
			logger.Error("Provider call failed", "iteration", iteration, "error", err)
			stream.Error(err)
			return nil, err
		}

		session.Append(HistoryEntry{
			Role:      llm.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		if len(completion.ToolCalls) == 0 {
			stream.Done(completion.Content)
			logger.Info("Execution complete",
				"iterations", iteration+1,
				"tool_invocations", invocations,
				"duration", time.Since(start),
			)
			return &RunResult{
				FinalAnswer:     completion.Content,
				Iterations:      iteration + 1,
				ToolInvocations: invocations,
				Duration:        time.Since(start),
			}, nil
		}

		for _, call := range completion.ToolCalls {
			result := e.dispatch(ctx, session, call, stream)
			invocations++

			session.Append(HistoryEntry{
				Role:       llm.RoleTool,
				Content:    result.OutputText,
				ToolCallID: call.ID,
			})
		}
	}
}

// dispatch runs one requested tool call and reports it on the stream.
func (e *Executor) dispatch(ctx context.Context, session *Session, call llm.ToolCall, stream *Stream) *tools.Result {
	invocationID := uuid.NewString()
	stream.ToolStart(invocationID, call.Name, call.Arguments)

	var params map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &params); err != nil {
			result := tools.Failed(tools.FailureInvalidArguments,
				fmt.Sprintf("arguments are not a JSON object: %v", err))
			stream.ToolEnd(invocationID, call.Name, false, result.Summary())
			return result
		}
	}
	if params == nil {
		params = map[string]any{}
	}

	env := &tools.Env{
		Context: session.ExecContext(),
		Progress: func(message string) {
			stream.Progress(invocationID, call.Name, message)
		},
	}
	inv := &tools.Invocation{
		ID:         invocationID,
		ToolName:   call.Name,
		Parameters: params,
	}

	result, err := e.dispatcher.Invoke(ctx, inv, env)
	if err != nil {
		// Dispatcher errors are programming mistakes; surface them as
		// observations too so the loop survives.
		result = tools.Failed(tools.FailureExecution, err.Error())
	}

	kind := "ok"
	if !result.Success {
		kind = string(result.Kind)
	}
	observability.DefaultMetrics.ToolInvocationsTotal.WithLabelValues(call.Name, kind).Inc()

	stream.ToolEnd(invocationID, call.Name, result.Success, result.Summary())
	return result
}
