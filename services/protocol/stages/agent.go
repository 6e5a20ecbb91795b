// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianCharter/services/protocol/conversation"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

var tracer = otel.Tracer("charter.stages")

// Agent drives one interview stage: it asks the stage's scripted questions
// through the conversation engine, then assembles the deliverable from the
// accepted answers.
//
// Thread Safety: stateless between calls; safe for concurrent sessions.
type Agent struct {
	sets   map[int]*QuestionSet
	engine *conversation.Engine
	logger *slog.Logger
}

// NewAgent creates a stage agent over the embedded question sets.
func NewAgent(engine *conversation.Engine) (*Agent, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine must not be nil")
	}
	sets, err := LoadQuestionSets()
	if err != nil {
		return nil, fmt.Errorf("load question sets: %w", err)
	}
	return &Agent{sets: sets, engine: engine, logger: slog.Default()}, nil
}

// Questions returns the question set for a stage, or nil if out of range.
func (a *Agent) Questions(stage int) *QuestionSet {
	return a.sets[stage]
}

// RunStage asks every question in the stage's script and assembles the
// deliverable.
//
// Inputs:
//
//	ctx - Context for cancellation; checked between questions.
//	stageCtx - Session context including prior-stage deliverables.
//	provider - Source of proposer responses.
//
// Outputs:
//
//	[]ConversationTurn - One completed turn per scripted question.
//	*StageDeliverable - The assembled deliverable. Gate validation is the
//	                    caller's responsibility.
//	error - Non-nil on cancellation or provider failure; partial turns are
//	        returned alongside the error for checkpointing.
func (a *Agent) RunStage(ctx context.Context, stageCtx datatypes.StageContext, provider conversation.ResponseProvider) ([]datatypes.ConversationTurn, *datatypes.StageDeliverable, error) {
	set, ok := a.sets[stageCtx.StageIndex]
	if !ok {
		return nil, nil, fmt.Errorf("stage index %d out of range", stageCtx.StageIndex)
	}
	build, ok := builders[stageCtx.StageIndex]
	if !ok {
		return nil, nil, fmt.Errorf("no builder for stage %d", stageCtx.StageIndex)
	}

	ctx, span := tracer.Start(ctx, "stages.RunStage")
	defer span.End()
	span.SetAttributes(
		attribute.Int("stage", stageCtx.StageIndex),
		attribute.String("session_id", stageCtx.SessionID),
	)

	var turns []datatypes.ConversationTurn
	for _, q := range set.Questions {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return turns, nil, err
		}

		turn, err := a.engine.RunTurn(ctx, q.ID, q.Text, stageCtx, provider)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "turn failed")
			return turns, nil, fmt.Errorf("stage %d question %s: %w", stageCtx.StageIndex, q.ID, err)
		}
		turns = append(turns, *turn)

		if turn.Outcome == datatypes.OutcomeEscalated {
			a.logger.Warn("question escalated",
				slog.String("session_id", stageCtx.SessionID),
				slog.Int("stage", stageCtx.StageIndex),
				slog.String("question_id", q.ID),
				slog.Int("best_score", turn.BestScore))
		}
	}

	deliverable := build(turns)
	return turns, deliverable, nil
}
