// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the HTTP and websocket handlers of the audit
// service's conversation surface.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAudit/services/auditor/agent"
	"github.com/AleutianAI/AleutianAudit/services/auditor/datatypes"
)

// ConversationHandler serves the conversation lifecycle endpoints.
//
// # Thread Safety
//
// Safe for concurrent use; all state lives in the ConversationManager.
type ConversationHandler struct {
	manager *agent.ConversationManager
	logger  *slog.Logger
}

// NewConversationHandler creates the handler.
func NewConversationHandler(manager *agent.ConversationManager) *ConversationHandler {
	return &ConversationHandler{
		manager: manager,
		logger:  slog.Default(),
	}
}

// StartConversation handles POST /v1/conversations.
//
// # Description
//
// Creates a new session and returns its identity with a greeting.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req datatypes.StartConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Code:  "invalid_request",
				Error: "request body is not valid JSON",
			})
			return
		}
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Code:  "invalid_request",
			Error: "request validation failed",
		})
		return
	}

	info := h.manager.Start(req.OwnerID)
	c.JSON(http.StatusCreated, datatypes.ConversationResponse{
		SessionID: info.SessionID,
		OwnerID:   info.OwnerID,
		CreatedAt: info.CreatedAt,
		Greeting:  info.Greeting,
	})
}

// GetConversation handles GET /v1/conversations/:id.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	info, err := h.manager.Info(c.Param("id"))
	if err != nil {
		writeAgentError(c, err)
		return
	}
	c.JSON(http.StatusOK, datatypes.ConversationResponse{
		SessionID:    info.SessionID,
		OwnerID:      info.OwnerID,
		CreatedAt:    info.CreatedAt,
		MessageCount: info.MessageCount,
		Busy:         info.Busy,
	})
}

// EndConversation handles DELETE /v1/conversations/:id.
//
// # Description
//
// Ends the session and releases its resources. Ending an unknown or
// already-ended session succeeds: the operation is idempotent.
func (h *ConversationHandler) EndConversation(c *gin.Context) {
	if err := h.manager.End(c.Param("id")); err != nil {
		h.logger.Warn("Resource release failed on session end",
			"session_id", c.Param("id"), "error", err)
	}
	c.Status(http.StatusNoContent)
}

// SendMessage handles POST /v1/conversations/:id/messages.
//
// # Description
//
// Non-streaming send: runs the full execution and returns the final
// answer in one JSON body. Clients that want incremental events use the
// SSE or websocket endpoints instead.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	sessionID := c.Param("id")

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

	answer, err := h.manager.SendAndWait(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		writeAgentError(c, err)
		return
	}

	c.JSON(http.StatusOK, datatypes.FinalResponse{
		SessionID: sessionID,
		RequestID: req.RequestID,
		Answer:    answer,
	})
}

// writeAgentError maps a core error to an HTTP response with a sanitized
// body. Internal details stay in the logs.
func writeAgentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, agent.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Code:  agent.CodeSessionNotFound,
			Error: "session not found",
		})
	case errors.Is(err, agent.ErrSessionBusy):
		c.JSON(http.StatusConflict, datatypes.ErrorResponse{
			Code:  agent.CodeSessionBusy,
			Error: "session is already processing a message",
		})
	case errors.Is(err, agent.ErrSessionEnded):
		c.JSON(http.StatusGone, datatypes.ErrorResponse{
			Code:  agent.CodeSessionNotFound,
			Error: "session has ended",
		})
	case errors.Is(err, agent.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Code:  agent.CodeEmptyMessage,
			Error: "message must not be empty",
		})
	case errors.Is(err, agent.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{
			Code:  agent.CodeProviderFailure,
			Error: "model provider unavailable",
		})
	case errors.Is(err, agent.ErrRecursionLimitExceeded):
		c.JSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{
			Code:  agent.CodeRecursionLimit,
			Error: "agent exceeded its reasoning limit",
		})
	default:
		slog.Error("Unhandled conversation error", "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Code:  agent.CodeInternal,
			Error: "internal error",
		})
	}
}
