// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianAudit/services/auditor/agent"
	"github.com/AleutianAI/AleutianAudit/services/auditor/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/auditor/observability"
)

var streamTracer = otel.Tracer("handlers.stream")

// keepAliveInterval paces SSE comment pings through load-balancer idle
// timeouts (AWS ALB and default Nginx cut idle connections at 60s).
const keepAliveInterval = 15 * time.Second

// StreamMessage handles POST /v1/conversations/:id/stream.
//
// # Description
//
// Streaming send: runs one execution and relays its event stream as SSE.
// The response ends with a done event and the [DONE] sentinel on success,
// an error event on loop failure, or a severed connection when the client
// disconnects mid-execution.
func (h *ConversationHandler) StreamMessage(c *gin.Context) {
	sessionID := c.Param("id")

	ctx, span := streamTracer.Start(c.Request.Context(), "ConversationHandler.StreamMessage",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
		),
	)
	defer span.End()

	// Step 1: Bind and validate the request before committing to SSE.
	var req datatypes.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Code:  "invalid_request",
			Error: "request body is not valid JSON",
		})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Code:  "invalid_request",
			Error: "request validation failed",
		})
		return
	}
	req.EnsureDefaults()
	span.SetAttributes(attribute.String("request_id", req.RequestID))

	// Step 2: Start the execution. Session errors are still plain JSON;
	// the response only becomes a stream once events can actually flow.
	stream, err := h.manager.Send(ctx, sessionID, req.Message)
	if err != nil {
		writeAgentError(c, err)
		return
	}

	// Step 3: Switch the response to SSE.
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Code:  agent.CodeInternal,
			Error: "streaming not supported",
		})
		return
	}

	// Step 4: Keep-alives from a side goroutine while events flow.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Step 5: Relay the execution's events in order.
	events := 0
	for ev := range stream.Events() {
		events++
		observability.DefaultMetrics.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()

		var werr error
		switch ev.Type {
		case agent.EventToken:
			werr = writer.WriteToken(ev.Token)
		case agent.EventToolStart:
			werr = writer.WriteToolStart(ev.InvocationID, ev.ToolName, ev.Arguments)
		case agent.EventToolEnd:
			werr = writer.WriteToolEnd(ev.InvocationID, ev.ToolName, ev.Success, ev.Summary)
		case agent.EventProgress:
			werr = writer.WriteProgress(ev.InvocationID, ev.ToolName, ev.Message)
		case agent.EventDone:
			werr = writer.WriteDone(sessionID, ev.Answer)
		case agent.EventError:
			werr = writer.WriteError(ev.Code, ev.Message)
		}
		if werr != nil {
			// Client gone. The execution keeps running against the
			// request context; gin cancels it when the handler returns.
			h.logger.Debug("SSE write failed, client disconnected",
				"session_id", sessionID, "error", werr)
			span.SetAttributes(attribute.Bool("client_disconnected", true))
			return
		}
	}

	span.SetAttributes(attribute.Int("events_relayed", events))
}
