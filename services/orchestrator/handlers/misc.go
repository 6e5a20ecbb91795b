// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	api "github.com/AleutianAI/AleutianCharter/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/stages"
)

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListQuestionSets handles GET /v1/questions: the full interview script
// plus its fingerprint, so clients can verify which protocol version the
// server is running.
func ListQuestionSets() gin.HandlerFunc {
	return func(c *gin.Context) {
		sets, err := stages.LoadQuestionSets()
		if err != nil {
			slog.Error("failed to load question sets", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load question sets"})
			return
		}
		fingerprint, err := stages.Fingerprint()
		if err != nil {
			slog.Error("failed to fingerprint question sets", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fingerprint question sets"})
			return
		}

		resp := api.QuestionSetsResponse{Fingerprint: fingerprint}
		for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
			resp.Stages = append(resp.Stages, sets[stage])
		}
		c.JSON(http.StatusOK, resp)
	}
}
