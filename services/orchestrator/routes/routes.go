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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianCharter/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianCharter/services/protocol/orchestrator"
)

// SetupRoutes registers the charter API on the router.
func SetupRoutes(router *gin.Engine, orch *orchestrator.Orchestrator) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/questions", handlers.ListQuestionSets())

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", handlers.CreateSession(orch))
			sessions.GET("/:sessionId", handlers.GetSession(orch))
			sessions.POST("/:sessionId/stage", handlers.RunStage(orch))
			sessions.POST("/:sessionId/advance", handlers.AdvanceSession(orch))
			sessions.POST("/:sessionId/pause", handlers.PauseSession(orch))
			sessions.POST("/:sessionId/resume", handlers.ResumeSession(orch))
			sessions.POST("/:sessionId/recover", handlers.RecoverSession(orch))
			sessions.GET("/:sessionId/charter", handlers.GetCharter(orch))
			sessions.DELETE("/:sessionId", handlers.AbandonSession(orch))
		}
	}
}
