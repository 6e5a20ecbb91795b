// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gin handlers for the charter HTTP API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	api "github.com/AleutianAI/AleutianCharter/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/conversation"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/orchestrator"
	"github.com/AleutianAI/AleutianCharter/services/protocol/storage"
)

// preparedAnswers adapts a RunStageRequest answer map to the conversation
// engine's response provider. Attempt n gets the nth prepared answer; once
// the prepared answers run out, the last one is repeated.
type preparedAnswers map[string][]string

func (p preparedAnswers) Respond(ctx context.Context, questionID, question string, attempt int) (string, error) {
	attempts, ok := p[questionID]
	if !ok || len(attempts) == 0 {
		return "", errors.New("no answer submitted for question " + questionID)
	}
	idx := attempt - 1
	if idx >= len(attempts) {
		idx = len(attempts) - 1
	}
	return attempts[idx], nil
}

// CreateSession handles POST /v1/sessions.
func CreateSession(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, err := orch.CreateSession(c.Request.Context(), req.Owner)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}
		c.JSON(http.StatusCreated, api.CreateSessionResponse{
			SessionID:    session.ID,
			CurrentStage: session.CurrentStage,
			StageName:    datatypes.StageNames[session.CurrentStage],
			Status:       string(session.Status),
		})
	}
}

// RunStage handles POST /v1/sessions/:sessionId/stage.
func RunStage(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		var req api.RunStageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var provider conversation.ResponseProvider = preparedAnswers(req.Answers)
		result, err := orch.RunStage(c.Request.Context(), sessionID, provider)
		if err != nil {
			writeSessionError(c, sessionID, err)
			return
		}

		session, err := orch.GetSessionState(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("failed to reload session after stage", "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		c.JSON(http.StatusOK, api.RunStageResponse{
			SessionID:    sessionID,
			Result:       result,
			CurrentStage: session.CurrentStage,
			Status:       string(session.Status),
		})
	}
}

// AdvanceSession handles POST /v1/sessions/:sessionId/advance. It retries
// the stage gate on the answers already stored for the current stage; no
// new questions are asked.
func AdvanceSession(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		result, err := orch.Advance(c.Request.Context(), sessionID)
		if err != nil {
			writeSessionError(c, sessionID, err)
			return
		}

		session, err := orch.GetSessionState(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("failed to reload session after advance", "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		c.JSON(http.StatusOK, api.RunStageResponse{
			SessionID:    sessionID,
			Result:       result,
			CurrentStage: session.CurrentStage,
			Status:       string(session.Status),
		})
	}
}

// GetSession handles GET /v1/sessions/:sessionId.
func GetSession(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		session, err := orch.GetSessionState(c.Request.Context(), sessionID)
		if err != nil {
			writeSessionError(c, sessionID, err)
			return
		}
		c.JSON(http.StatusOK, api.NewSessionStateResponse(session))
	}
}

// PauseSession handles POST /v1/sessions/:sessionId/pause.
func PauseSession(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		session, err := orch.Pause(c.Request.Context(), sessionID)
		if err != nil {
			writeSessionError(c, sessionID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": string(session.Status)})
	}
}

// ResumeSession handles POST /v1/sessions/:sessionId/resume.
func ResumeSession(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		session, err := orch.Resume(c.Request.Context(), sessionID)
		if err != nil {
			writeSessionError(c, sessionID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": string(session.Status)})
	}
}

// RecoverSession handles POST /v1/sessions/:sessionId/recover. It restores
// the session record from its most recent checkpoint snapshot.
func RecoverSession(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		session, err := orch.Recover(c.Request.Context(), sessionID)
		if err != nil {
			writeSessionError(c, sessionID, err)
			return
		}
		slog.Info("session recovered via API", "sessionId", sessionID, "stage", session.CurrentStage)
		c.JSON(http.StatusOK, api.NewSessionStateResponse(session))
	}
}

// AbandonSession handles DELETE /v1/sessions/:sessionId.
func AbandonSession(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		session, err := orch.Abandon(c.Request.Context(), sessionID)
		if err != nil {
			writeSessionError(c, sessionID, err)
			return
		}
		slog.Info("session abandoned via API", "sessionId", sessionID)
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": string(session.Status)})
	}
}

// GetCharter handles GET /v1/sessions/:sessionId/charter.
func GetCharter(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		charter, err := orch.GenerateCharter(c.Request.Context(), sessionID)
		if err != nil {
			writeSessionError(c, sessionID, err)
			return
		}
		c.JSON(http.StatusOK, api.CharterResponse{SessionID: sessionID, Charter: charter})
	}
}

// writeSessionError maps domain errors to HTTP statuses.
func writeSessionError(c *gin.Context, sessionID string, err error) {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "session_id": sessionID})
	case errors.Is(err, orchestrator.ErrSessionNotActive),
		errors.Is(err, orchestrator.ErrSessionTerminal),
		errors.Is(err, orchestrator.ErrSessionNotPaused),
		errors.Is(err, orchestrator.ErrStageNotRun),
		errors.Is(err, orchestrator.ErrNoCheckpoint),
		errors.Is(err, orchestrator.ErrNotCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "session_id": sessionID})
	default:
		slog.Error("session operation failed", "sessionId", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "session_id": sessionID})
	}
}
