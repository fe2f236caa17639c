// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSendMessageRequest_Validate(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		req := SendMessageRequest{
			RequestID: uuid.NewString(),
			Timestamp: 1735689600000,
			Message:   "assess https://example.com/repo.git",
		}
		assert.NoError(t, req.Validate())
	})

	t.Run("message required", func(t *testing.T) {
		req := SendMessageRequest{}
		assert.Error(t, req.Validate())
	})

	t.Run("message at the byte limit", func(t *testing.T) {
		req := SendMessageRequest{Message: strings.Repeat("a", MaxMessageContentBytes)}
		assert.NoError(t, req.Validate())
	})

	t.Run("message over the byte limit", func(t *testing.T) {
		req := SendMessageRequest{Message: strings.Repeat("a", MaxMessageContentBytes+1)}
		assert.Error(t, req.Validate())
	})

	t.Run("multibyte runes count as bytes", func(t *testing.T) {
		// Each rune is 3 bytes; a third of the limit in runes exceeds it.
		req := SendMessageRequest{Message: strings.Repeat("日", MaxMessageContentBytes/3+1)}
		assert.Error(t, req.Validate())
	})

	t.Run("malformed request id rejected", func(t *testing.T) {
		req := SendMessageRequest{RequestID: "not-a-uuid", Message: "hi"}
		assert.Error(t, req.Validate())
	})

	t.Run("negative timestamp rejected", func(t *testing.T) {
		req := SendMessageRequest{Timestamp: -5, Message: "hi"}
		assert.Error(t, req.Validate())
	})
}

func TestSendMessageRequest_EnsureDefaults(t *testing.T) {
	req := SendMessageRequest{Message: "hello"}
	req.EnsureDefaults()

	assert.NotEmpty(t, req.RequestID)
	_, err := uuid.Parse(req.RequestID)
	assert.NoError(t, err)
	assert.Positive(t, req.Timestamp)

	// Provided values survive.
	fixed := SendMessageRequest{RequestID: uuid.NewString(), Timestamp: 42, Message: "hello"}
	id := fixed.RequestID
	fixed.EnsureDefaults()
	assert.Equal(t, id, fixed.RequestID)
	assert.Equal(t, int64(42), fixed.Timestamp)
}

func TestStartConversationRequest_Validate(t *testing.T) {
	assert.NoError(t, (&StartConversationRequest{}).Validate())
	assert.NoError(t, (&StartConversationRequest{OwnerID: "alice"}).Validate())
	assert.Error(t, (&StartConversationRequest{OwnerID: strings.Repeat("x", 129)}).Validate())
}
