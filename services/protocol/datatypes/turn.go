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

import "time"

// MaxAttempts is the hard cap on attempts for a single question.
const MaxAttempts = 3

// AcceptScore is the minimum quality score for a response to be accepted.
const AcceptScore = 7

// TurnOutcome is the terminal outcome of a conversation turn.
type TurnOutcome string

const (
	// OutcomeAccepted means an attempt scored at or above AcceptScore.
	OutcomeAccepted TurnOutcome = "accepted"

	// OutcomeEscalated means no attempt reached AcceptScore within
	// MaxAttempts; the best-scoring response was kept and the turn is
	// flagged for later surfacing to the user.
	OutcomeEscalated TurnOutcome = "escalated"
)

// AttemptRecord captures one response attempt and its quality assessment.
// All attempts are retained for audit; nothing is silently dropped.
type AttemptRecord struct {
	// AttemptNumber is 1-based.
	AttemptNumber int `json:"attempt_number"`

	// Question is the question text shown for this attempt. The first
	// attempt uses the template question; later attempts use the selected
	// follow-up.
	Question string `json:"question"`

	// Response is the raw response text.
	Response string `json:"response"`

	// Score is the quality score 0-10 for this attempt.
	Score int `json:"score"`

	// Issues lists the quality issues the evaluator found.
	Issues []string `json:"issues,omitempty"`
}

// ConversationTurn is one question-and-answer exchange, possibly spanning
// multiple attempts. Immutable once Outcome is set.
type ConversationTurn struct {
	// StageIndex is the stage this turn belongs to.
	StageIndex int `json:"stage_index"`

	// QuestionID identifies the question template that started the turn.
	QuestionID string `json:"question_id"`

	// Question is the original question text.
	Question string `json:"question"`

	// Response is the accepted (or best-effort) response text.
	Response string `json:"response"`

	// BestScore is the highest score across all attempts.
	BestScore int `json:"best_score"`

	// Attempts records every attempt in order. Never more than MaxAttempts.
	Attempts []AttemptRecord `json:"attempts"`

	// Outcome is the terminal outcome.
	Outcome TurnOutcome `json:"outcome"`

	// CompletedAt is when the turn reached its terminal outcome.
	CompletedAt time.Time `json:"completed_at"`
}

// QualityAssessment is the evaluator's verdict on one question/response
// pair. Produced fresh per attempt; never mutated.
type QualityAssessment struct {
	// Score is the integer quality score, 0-10.
	Score int `json:"score"`

	// IsAcceptable is true iff Score >= AcceptScore.
	IsAcceptable bool `json:"is_acceptable"`

	// Issues lists concrete problems with the response.
	Issues []string `json:"issues,omitempty"`

	// FollowUps lists candidate follow-up questions, best first.
	FollowUps []string `json:"follow_ups,omitempty"`

	// Fallback is true when the evaluator could not reach the LLM and
	// returned the conservative default assessment.
	Fallback bool `json:"fallback,omitempty"`
}

// StageContext is the read-only context handed to the evaluator and the
// conversation engine: which stage is being interviewed and what earlier
// stages already produced.
type StageContext struct {
	// SessionID identifies the session, for logging and tracing.
	SessionID string `json:"session_id"`

	// StageIndex is the stage being interviewed.
	StageIndex int `json:"stage_index"`

	// StageName is the human-readable stage name.
	StageName string `json:"stage_name"`

	// Prior holds deliverables from already-validated stages, keyed by
	// stage index. Read-only.
	Prior map[int]*StageDeliverable `json:"prior,omitempty"`
}
