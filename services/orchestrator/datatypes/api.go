// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the HTTP API request and response shapes for
// the charter service.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/orchestrator"
	"github.com/AleutianAI/AleutianCharter/services/protocol/stages"
)

var validate = validator.New()

// CreateSessionRequest starts a new interview session.
type CreateSessionRequest struct {
	// Owner identifies the proposer. Required.
	Owner string `json:"owner" validate:"required,min=1,max=256"`
}

// Validate checks the request beyond JSON decoding.
func (r *CreateSessionRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid create session request: %w", err)
	}
	return nil
}

// CreateSessionResponse returns the new session.
type CreateSessionResponse struct {
	SessionID    string `json:"session_id"`
	CurrentStage int    `json:"current_stage"`
	StageName    string `json:"stage_name"`
	Status       string `json:"status"`
}

// RunStageRequest submits answers for the session's current stage.
//
// Answers are keyed by question ID. Each value is the ordered list of
// responses to use per attempt; when the quality loop asks a follow-up
// beyond the prepared answers, the last one is repeated. Answer strings
// may be blank: completeness belongs to the stage gate, which reports
// the gap instead of rejecting the submission.
type RunStageRequest struct {
	Answers map[string][]string `json:"answers" validate:"required,min=1,dive,required,min=1"`
}

// Validate checks the request beyond JSON decoding.
func (r *RunStageRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid run stage request: %w", err)
	}
	return nil
}

// RunStageResponse reports the stage outcome.
type RunStageResponse struct {
	SessionID string                    `json:"session_id"`
	Result    *orchestrator.StageResult `json:"result"`

	// CurrentStage is the session's stage after this call.
	CurrentStage int    `json:"current_stage"`
	Status       string `json:"status"`
}

// SessionStateResponse is the session read model.
type SessionStateResponse struct {
	SessionID    string                              `json:"session_id"`
	Owner        string                              `json:"owner"`
	CurrentStage int                                 `json:"current_stage"`
	StageName    string                              `json:"stage_name"`
	Status       string                              `json:"status"`
	Deliverables []*datatypes.StageDeliverable       `json:"deliverables,omitempty"`
	Consistency  *datatypes.ConsistencyReport        `json:"consistency,omitempty"`
	Decision     *datatypes.GovernanceDecisionRecord `json:"decision,omitempty"`
}

// NewSessionStateResponse projects a session into the API read model.
func NewSessionStateResponse(s *datatypes.Session) SessionStateResponse {
	resp := SessionStateResponse{
		SessionID:    s.ID,
		Owner:        s.Owner,
		CurrentStage: s.CurrentStage,
		StageName:    datatypes.StageNames[s.CurrentStage],
		Status:       string(s.Status),
		Consistency:  s.Consistency,
		Decision:     s.Decision,
	}
	for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
		if d := s.Deliverable(stage); d != nil {
			resp.Deliverables = append(resp.Deliverables, d)
		}
	}
	return resp
}

// CharterResponse carries the rendered charter document.
type CharterResponse struct {
	SessionID string `json:"session_id"`
	Charter   string `json:"charter"`
}

// QuestionSetsResponse lists the interview script and its fingerprint.
type QuestionSetsResponse struct {
	Fingerprint string                `json:"fingerprint"`
	Stages      []*stages.QuestionSet `json:"stages"`
}
