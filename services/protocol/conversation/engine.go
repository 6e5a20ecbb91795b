// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation drives a single interview question through a
// bounded quality-validation loop.
//
// Each question gets at most three attempts. A response scoring at or above
// the acceptance threshold ends the turn as accepted; otherwise the first
// suggested follow-up becomes the next question. After the third failing
// attempt the turn is escalated and the best-scoring response is kept —
// escalation is a quality flag, not a hard failure, and every attempt is
// retained for audit.
//
// The loop is an explicit state machine with an attempt counter, not
// recursion, so the three-attempt bound is trivially provable.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/evaluator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("charter.conversation")

var turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "charter_conversation_turns_total",
	Help: "Completed conversation turns by outcome",
}, []string{"outcome"})

// ResponseProvider obtains a response for a posed question. How responses
// are obtained (terminal form, HTTP request body, test script) is outside
// the engine's concern.
type ResponseProvider interface {
	// Respond returns the response text for the given question. attempt is
	// 1-based. An error aborts the turn.
	Respond(ctx context.Context, questionID, question string, attempt int) (string, error)
}

// ResponseProviderFunc adapts a function to the ResponseProvider interface.
type ResponseProviderFunc func(ctx context.Context, questionID, question string, attempt int) (string, error)

// Respond implements ResponseProvider.
func (f ResponseProviderFunc) Respond(ctx context.Context, questionID, question string, attempt int) (string, error) {
	return f(ctx, questionID, question, attempt)
}

// Engine runs the per-question quality loop.
//
// Thread Safety: the engine is stateless between calls and safe for
// concurrent use across sessions.
type Engine struct {
	evaluator evaluator.Evaluator
	sm        *StateMachine
	logger    *slog.Logger
}

// NewEngine creates a conversation engine bound to a quality evaluator.
func NewEngine(eval evaluator.Evaluator) (*Engine, error) {
	if eval == nil {
		return nil, fmt.Errorf("evaluator must not be nil")
	}
	return &Engine{
		evaluator: eval,
		sm:        NewStateMachine(),
		logger:    slog.Default(),
	}, nil
}

// RunTurn drives one question to a terminal outcome.
//
// Description:
//
//	Runs the bounded quality loop: obtain response, score it, then accept,
//	re-ask with the first suggested follow-up, or escalate with the
//	best-scoring attempt. All attempts are recorded on the returned turn.
//
// Inputs:
//
//	ctx - Context for cancellation. Pausing a session is cooperative: the
//	      caller simply does not invoke RunTurn for the next question.
//	questionID - Identifier of the question template.
//	question - The question text. Must not be empty.
//	stageCtx - Read-only stage context for the evaluator.
//	provider - Source of response text.
//
// Outputs:
//
//	*datatypes.ConversationTurn - The completed, immutable turn record.
//	error - Only for provider failure, context cancellation, or misuse;
//	        low quality is never an error.
func (e *Engine) RunTurn(ctx context.Context, questionID, question string, stageCtx datatypes.StageContext, provider ResponseProvider) (*datatypes.ConversationTurn, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: provider must not be nil", ErrNoResponse)
	}

	ctx, span := tracer.Start(ctx, "conversation.Engine.RunTurn")
	defer span.End()
	span.SetAttributes(
		attribute.Int("stage", stageCtx.StageIndex),
		attribute.String("question_id", questionID),
	)

	turn := &datatypes.ConversationTurn{
		StageIndex: stageCtx.StageIndex,
		QuestionID: questionID,
		Question:   question,
	}

	state := StateAwaitingResponse
	currentQuestion := question
	bestIdx := -1

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		response, err := provider.Respond(ctx, questionID, currentQuestion, attempt)
		if err != nil {
			return nil, fmt.Errorf("%w: attempt %d: %v", ErrNoResponse, attempt, err)
		}

		state, err = e.sm.Transition(state, StateValidating)
		if err != nil {
			return nil, err
		}

		assessment := e.evaluator.Evaluate(ctx, currentQuestion, response, stageCtx)
		record := datatypes.AttemptRecord{
			AttemptNumber: attempt,
			Question:      currentQuestion,
			Response:      response,
			Score:         assessment.Score,
			Issues:        assessment.Issues,
		}
		turn.Attempts = append(turn.Attempts, record)

		if bestIdx < 0 || record.Score > turn.Attempts[bestIdx].Score {
			bestIdx = len(turn.Attempts) - 1
		}

		switch {
		case assessment.IsAcceptable:
			state, err = e.sm.Transition(state, StateAccepted)
			if err != nil {
				return nil, err
			}
			e.finish(turn, datatypes.OutcomeAccepted, bestIdx)
			span.SetAttributes(attribute.String("outcome", string(turn.Outcome)), attribute.Int("attempts", attempt))
			return turn, nil

		case attempt == datatypes.MaxAttempts:
			state, err = e.sm.Transition(state, StateEscalated)
			if err != nil {
				return nil, err
			}
			e.finish(turn, datatypes.OutcomeEscalated, bestIdx)
			e.logger.Warn("turn escalated after max attempts",
				slog.String("session_id", stageCtx.SessionID),
				slog.String("question_id", questionID),
				slog.Int("best_score", turn.BestScore),
			)
			span.SetAttributes(attribute.String("outcome", string(turn.Outcome)), attribute.Int("attempts", attempt))
			return turn, nil
		}

		state, err = e.sm.Transition(state, StateNextAttempt)
		if err != nil {
			return nil, err
		}
		currentQuestion = nextQuestion(question, assessment)
		state, err = e.sm.Transition(state, StateAwaitingResponse)
		if err != nil {
			return nil, err
		}
	}
}

// finish stamps the terminal fields. The stored response is the best
// attempt's, which for accepted turns is the accepting attempt and for
// escalated turns is the highest-scoring of the three.
func (e *Engine) finish(turn *datatypes.ConversationTurn, outcome datatypes.TurnOutcome, bestIdx int) {
	best := turn.Attempts[bestIdx]
	turn.Response = best.Response
	turn.BestScore = best.Score
	turn.Outcome = outcome
	turn.CompletedAt = time.Now()
	turnsTotal.WithLabelValues(string(outcome)).Inc()
}

// nextQuestion selects the follow-up for the next attempt: the first
// suggested follow-up, deterministically. If the evaluator suggested none
// (including the fallback assessment), the original question is re-asked
// verbatim.
func nextQuestion(original string, assessment *datatypes.QualityAssessment) string {
	for _, f := range assessment.FollowUps {
		if strings.TrimSpace(f) != "" {
			return f
		}
	}
	return original
}
