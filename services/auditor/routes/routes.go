// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianAudit/services/auditor/handlers"
)

// SetupRoutes registers the audit service's HTTP surface.
func SetupRoutes(router *gin.Engine, conversations *handlers.ConversationHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		conv := v1.Group("/conversations")
		{
			conv.POST("", conversations.StartConversation)
			conv.GET("/:id", conversations.GetConversation)
			conv.DELETE("/:id", conversations.EndConversation)
			conv.POST("/:id/messages", conversations.SendMessage)
			conv.POST("/:id/stream", conversations.StreamMessage)
			conv.GET("/:id/ws", conversations.WebSocketConversation)
		}
	}
}
