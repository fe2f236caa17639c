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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAudit/services/auditor/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE serialization from HTTP response mechanics.
// Implementations handle the wire format (event: type\ndata: json\n\n)
// and populate each event's chain-of-custody metadata:
//
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 hash of event content
//   - PrevHash: hash of the previous event for chain verification
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; streaming handlers may
// emit keep-alives from a second goroutine.
type SSEWriter interface {
	// WriteEvent writes a single event, populating chain metadata.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteToken writes one assistant text fragment.
	WriteToken(content string) error

	// WriteToolStart announces a tool invocation.
	WriteToolStart(invocationID, toolName, arguments string) error

	// WriteToolEnd reports a tool invocation's outcome.
	WriteToolEnd(invocationID, toolName string, success bool, summary string) error

	// WriteProgress relays a status string from a running tool.
	WriteProgress(invocationID, toolName, message string) error

	// WriteError writes an error event. The message must already be
	// sanitized; internal details never reach the client.
	WriteError(code, errMsg string) error

	// WriteDone writes the terminal done event followed by the [DONE]
	// sentinel line. Nothing may be written after it.
	WriteDone(sessionID, answer string) error

	// WriteKeepAlive sends an SSE comment to keep the connection alive
	// through load-balancer idle timeouts. Comments do not enter the
	// hash chain.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
//
// # Thread Safety
//
// Thread-safe via mutex; the hash chain stays intact across concurrent
// writes.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - SSEWriter: Ready to write events.
//   - error: Non-nil if the ResponseWriter cannot flush.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// WriteEvent writes a single SSE event and flushes immediately.
func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeEventLocked(event)
}

func (w *sseWriter) writeEventLocked(event datatypes.StreamEvent) error {
	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// computeEventHash computes the SHA-256 hash of an event's content.
// Hash must be empty when called; every content field participates so the
// chain covers text, tool outcomes, and timestamps alike.
func computeEventHash(event datatypes.StreamEvent) string {
	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s|%t|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.ToolName,
		event.InvocationID,
		event.Arguments,
		event.Success,
		event.Summary,
		event.Message,
		event.Answer,
		event.Error,
		event.SessionId,
	)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// WriteToken writes one assistant text fragment.
func (w *sseWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    "token",
		Content: content,
	})
}

// WriteToolStart announces a tool invocation.
func (w *sseWriter) WriteToolStart(invocationID, toolName, arguments string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:         "tool_start",
		ToolName:     toolName,
		InvocationID: invocationID,
		Arguments:    arguments,
	})
}

// WriteToolEnd reports a tool invocation's outcome.
func (w *sseWriter) WriteToolEnd(invocationID, toolName string, success bool, summary string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:         "tool_end",
		ToolName:     toolName,
		InvocationID: invocationID,
		Success:      success,
		Summary:      summary,
	})
}

// WriteProgress relays a tool status string.
func (w *sseWriter) WriteProgress(invocationID, toolName, message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:         "custom",
		ToolName:     toolName,
		InvocationID: invocationID,
		Message:      message,
	})
}

// WriteError writes an error event.
func (w *sseWriter) WriteError(code, errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  "error",
		Code:  code,
		Error: errMsg,
	})
}

// WriteDone writes the terminal done event and the [DONE] sentinel.
func (w *sseWriter) WriteDone(sessionID, answer string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.writeEventLocked(datatypes.StreamEvent{
		Type:      "done",
		SessionId: sessionID,
		Answer:    answer,
	})
	if err != nil {
		return err
	}

	if _, err := fmt.Fprint(w.writer, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write sentinel: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteKeepAlive sends an SSE comment line.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures response headers for SSE streaming. Must be
// called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Compile-time interface check.
var _ SSEWriter = (*sseWriter)(nil)
