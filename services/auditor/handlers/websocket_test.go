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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/auditor/agent"
	"github.com/AleutianAI/AleutianAudit/services/auditor/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/auditor/llm"
)

// dialWS connects to the conversation websocket of a live test server.
func dialWS(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/conversations/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilTerminal reads frames until a done or error event arrives.
func readUntilTerminal(t *testing.T, conn *websocket.Conn) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev datatypes.StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, ev)
		if ev.Type == "done" || ev.Type == "error" {
			return events
		}
	}
}

func newWSServer(t *testing.T, provider llm.Provider) (*httptest.Server, *agent.ConversationManager) {
	t.Helper()
	router, manager := newTestRouter(t, provider)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, manager
}

func TestWebSocketConversation(t *testing.T) {
	t.Run("full round trip with chained events", func(t *testing.T) {
		server, manager := newWSServer(t, llm.NewScriptedProvider(
			llm.ScriptedRound{Content: "Looks fine.", ChunkSize: 4},
		))
		info := manager.Start("alice")
		conn := dialWS(t, server, info.SessionID)

		require.NoError(t, conn.WriteJSON(datatypes.SendMessageRequest{Message: "assess it"}))
		events := readUntilTerminal(t, conn)

		var text string
		prev := ""
		for i, ev := range events {
			assert.Equal(t, prev, ev.PrevHash, "event %d prev hash", i)
			assert.NotEmpty(t, ev.Hash, "event %d hash", i)
			prev = ev.Hash
			if ev.Type == "token" {
				text += ev.Content
			}
		}
		assert.Equal(t, "Looks fine.", text)

		last := events[len(events)-1]
		assert.Equal(t, "done", last.Type)
		assert.Equal(t, info.SessionID, last.SessionId)
		assert.Equal(t, "Looks fine.", last.Answer)
	})

	t.Run("chain spans multiple messages", func(t *testing.T) {
		server, manager := newWSServer(t, llm.NewScriptedProvider(
			llm.ScriptedRound{Content: "first"},
			llm.ScriptedRound{Content: "second"},
		))
		info := manager.Start("alice")
		conn := dialWS(t, server, info.SessionID)

		require.NoError(t, conn.WriteJSON(datatypes.SendMessageRequest{Message: "one"}))
		first := readUntilTerminal(t, conn)
		require.NoError(t, conn.WriteJSON(datatypes.SendMessageRequest{Message: "two"}))
		second := readUntilTerminal(t, conn)

		// The first event of the second execution chains to the last of
		// the first: the chain covers the whole connection.
		assert.Equal(t, first[len(first)-1].Hash, second[0].PrevHash)
	})

	t.Run("invalid frame yields error event and keeps the connection", func(t *testing.T) {
		server, manager := newWSServer(t, llm.NewScriptedProvider(
			llm.ScriptedRound{Content: "after recovery"},
		))
		info := manager.Start("alice")
		conn := dialWS(t, server, info.SessionID)

		require.NoError(t, conn.WriteJSON(datatypes.SendMessageRequest{Message: ""}))
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev datatypes.StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, "error", ev.Type)
		assert.Equal(t, "invalid_request", ev.Code)

		// Connection survives: the next valid message runs normally.
		require.NoError(t, conn.WriteJSON(datatypes.SendMessageRequest{Message: "retry"}))
		events := readUntilTerminal(t, conn)
		assert.Equal(t, "done", events[len(events)-1].Type)
	})

	t.Run("unknown session rejected before upgrade", func(t *testing.T) {
		server, _ := newWSServer(t, llm.NewScriptedProvider())
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/conversations/unknown/ws"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
