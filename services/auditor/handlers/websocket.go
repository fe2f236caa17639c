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
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianAudit/services/auditor/agent"
	"github.com/AleutianAI/AleutianAudit/services/auditor/datatypes"
)

// wsUpgrader upgrades conversation connections. Origin checking is left
// to the deployment's reverse proxy, matching the SSE endpoints.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsWriteWait bounds a single websocket write.
const wsWriteWait = 10 * time.Second

// WebSocketConversation handles GET /v1/conversations/:id/ws.
//
// # Description
//
// Full-duplex variant of the stream endpoint. The client sends
// SendMessageRequest frames; for each one the server replays the
// execution's events as StreamEvent frames with the same hash chain as
// the SSE transport. The chain spans the whole connection, not one
// execution. A close frame or read error ends the loop; the session
// itself stays alive until the client ends it.
func (h *ConversationHandler) WebSocketConversation(c *gin.Context) {
	sessionID := c.Param("id")

	if _, err := h.manager.Info(sessionID); err != nil {
		writeAgentError(c, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	chain := newEventChain()

	for {
		var req datatypes.SendMessageRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WebSocket closed", "session_id", sessionID, "error", err)
			}
			return
		}
		if err := req.Validate(); err != nil {
			h.writeWSEvent(conn, chain, datatypes.StreamEvent{
				Type:  "error",
				Code:  "invalid_request",
				Error: "request validation failed",
			})
			continue
		}
		req.EnsureDefaults()

		stream, err := h.manager.Send(c.Request.Context(), sessionID, req.Message)
		if err != nil {
			h.writeWSEvent(conn, chain, wsErrorEvent(err))
			continue
		}

		for ev := range stream.Events() {
			if !h.writeWSEvent(conn, chain, toWireEvent(sessionID, ev)) {
				return
			}
		}
	}
}

// writeWSEvent stamps the chain metadata and writes one frame. Returns
// false when the connection is gone.
func (h *ConversationHandler) writeWSEvent(conn *websocket.Conn, chain *eventChain, ev datatypes.StreamEvent) bool {
	chain.stamp(&ev)
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("WebSocket write failed", "error", err)
		return false
	}
	return true
}

// eventChain carries the hash chain across a websocket connection.
type eventChain struct {
	prevHash string
}

func newEventChain() *eventChain {
	return &eventChain{}
}

// stamp populates Id, CreatedAt, PrevHash, and Hash in place.
func (c *eventChain) stamp(ev *datatypes.StreamEvent) {
	ev.Id = uuid.New().String()
	ev.CreatedAt = time.Now().UnixMilli()
	ev.PrevHash = c.prevHash
	ev.Hash = computeEventHash(*ev)
	c.prevHash = ev.Hash
}

// toWireEvent converts a core stream event to the wire shape.
func toWireEvent(sessionID string, ev agent.StreamEvent) datatypes.StreamEvent {
	out := datatypes.StreamEvent{
		Type:         string(ev.Type),
		Content:      ev.Token,
		ToolName:     ev.ToolName,
		InvocationID: ev.InvocationID,
		Arguments:    ev.Arguments,
		Success:      ev.Success,
		Summary:      ev.Summary,
		Message:      ev.Message,
		Answer:       ev.Answer,
	}
	if ev.Type == agent.EventError {
		out.Error = ev.Message
		out.Message = ""
		out.Code = ev.Code
	}
	if ev.Type == agent.EventDone {
		out.SessionId = sessionID
	}
	return out
}

// wsErrorEvent maps a Send error to an error frame with a sanitized
// message.
func wsErrorEvent(err error) datatypes.StreamEvent {
	code := agent.CodeInternal
	switch {
	case errors.Is(err, agent.ErrSessionNotFound):
		code = agent.CodeSessionNotFound
	case errors.Is(err, agent.ErrSessionBusy):
		code = agent.CodeSessionBusy
	case errors.Is(err, agent.ErrSessionEnded):
		code = agent.CodeSessionNotFound
	case errors.Is(err, agent.ErrEmptyMessage):
		code = agent.CodeEmptyMessage
	}
	return datatypes.StreamEvent{
		Type:  "error",
		Code:  code,
		Error: "message rejected",
	}
}
