// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the wire types of the audit service's HTTP
// and websocket surface.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a user message.
	// Byte length, not rune count: the limit guards memory, not prose.
	MaxMessageContentBytes = 32 * 1024 // 32KB
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// conversationValidate is the validator instance for this package.
// Initialized in init() with custom validators.
var conversationValidate *validator.Validate

func init() {
	conversationValidate = validator.New()
	_ = conversationValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the message size limit in bytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Request Types
// =============================================================================

// StartConversationRequest creates a new conversation session.
type StartConversationRequest struct {
	// OwnerID identifies the creating principal. Optional; anonymous
	// sessions get an empty owner.
	OwnerID string `json:"owner_id" validate:"omitempty,max=128"`
}

// Validate validates the request fields.
func (r *StartConversationRequest) Validate() error {
	return conversationValidate.Struct(r)
}

// SendMessageRequest submits one user message to a session.
//
// # Fields
//
//   - RequestID: Unique identifier for this request (UUID v4), used for
//     tracing and audit logging. Generated server-side when absent.
//   - Timestamp: Unix milliseconds (UTC) when the request was created.
//   - Message: The user message. 1 byte minimum, 32KB maximum.
type SendMessageRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp int64  `json:"timestamp" validate:"omitempty,gt=0"`
	Message   string `json:"message" validate:"required,min=1,maxbytes"`
}

// Validate validates the request fields.
func (r *SendMessageRequest) Validate() error {
	return conversationValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp when absent.
func (r *SendMessageRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// =============================================================================
// Response Types
// =============================================================================

// ConversationResponse is the session summary returned by the lifecycle
// endpoints.
type ConversationResponse struct {
	SessionID    string    `json:"session_id"`
	OwnerID      string    `json:"owner_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Busy         bool      `json:"busy"`
	Greeting     string    `json:"greeting,omitempty"`
}

// FinalResponse is the non-streaming answer shape.
type FinalResponse struct {
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
	Answer    string `json:"answer"`
}

// ErrorResponse is the uniform error body.
//
// Code is a stable machine-readable value; Error is sanitized text with
// no internal details.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// =============================================================================
// Stream Event Wire Type
// =============================================================================

// StreamEvent is the outward event shape shared by the SSE and websocket
// transports.
//
// # Description
//
// Every event carries chain-of-custody metadata: a UUID, a creation
// timestamp in Unix milliseconds, a SHA-256 hash of its content, and the
// hash of the previous event. Clients can verify that the stream was
// neither reordered nor tampered with.
//
// Type takes the values token, tool_start, tool_end, custom, done, and
// error; the remaining fields are populated per type.
type StreamEvent struct {
	// Id is a UUID v4 for ordering and deduplication.
	Id string `json:"id"`

	// Type discriminates the event.
	Type string `json:"type"`

	// CreatedAt is Unix milliseconds.
	CreatedAt int64 `json:"created_at"`

	// Hash is the SHA-256 of this event's content.
	Hash string `json:"hash"`

	// PrevHash chains to the previous event.
	PrevHash string `json:"prev_hash"`

	// Content is the text fragment (token events).
	Content string `json:"content,omitempty"`

	// ToolName and InvocationID identify a tool call.
	ToolName     string `json:"tool_name,omitempty"`
	InvocationID string `json:"invocation_id,omitempty"`

	// Arguments is the raw JSON argument object (tool_start).
	Arguments string `json:"arguments,omitempty"`

	// Success and Summary describe a tool outcome (tool_end).
	Success bool   `json:"success,omitempty"`
	Summary string `json:"summary,omitempty"`

	// Message is the progress payload (custom events).
	Message string `json:"message,omitempty"`

	// Answer is the final assistant response (done events).
	Answer string `json:"answer,omitempty"`

	// Error and Code describe a failure (error events).
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`

	// SessionId identifies the session (done events).
	SessionId string `json:"session_id,omitempty"`
}
