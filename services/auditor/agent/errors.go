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

import "errors"

// Sentinel errors for the agent core. Callers match with errors.Is; the
// stream surface maps them to error-event codes in errorCode.
var (
	// ErrSessionNotFound indicates the session id does not resolve.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy indicates the session is already running an
	// execution. A second Send is rejected, not queued.
	ErrSessionBusy = errors.New("session is busy")

	// ErrSessionEnded indicates the session was ended and released.
	ErrSessionEnded = errors.New("session has ended")

	// ErrEmptyMessage indicates a blank user message.
	ErrEmptyMessage = errors.New("message must not be empty")

	// ErrRecursionLimitExceeded indicates the reasoning loop hit its
	// iteration bound without producing a final answer.
	ErrRecursionLimitExceeded = errors.New("recursion limit exceeded")

	// ErrProviderUnavailable indicates the language model could not be
	// reached.
	ErrProviderUnavailable = errors.New("model provider unavailable")

	// ErrNilProvider indicates executor construction without a provider.
	ErrNilProvider = errors.New("provider must not be nil")

	// ErrNilRegistry indicates executor construction without a registry.
	ErrNilRegistry = errors.New("tool registry must not be nil")
)

// Error codes carried on error stream events. Stable wire values; clients
// branch on these, not on message text.
const (
	CodeSessionNotFound = "session_not_found"
	CodeSessionBusy     = "session_busy"
	CodeEmptyMessage    = "empty_message"
	CodeRecursionLimit  = "recursion_limit_exceeded"
	CodeProviderFailure = "provider_unavailable"
	CodeInternal        = "internal"
)

// errorCode maps a core error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrSessionBusy):
		return CodeSessionBusy
	case errors.Is(err, ErrEmptyMessage):
		return CodeEmptyMessage
	case errors.Is(err, ErrRecursionLimitExceeded):
		return CodeRecursionLimit
	case errors.Is(err, ErrProviderUnavailable):
		return CodeProviderFailure
	default:
		return CodeInternal
	}
}
