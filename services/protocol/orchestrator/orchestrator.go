// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator coordinates the five-stage interview protocol: it
// owns session lifecycle, runs stage agents, enforces stage gates and
// checkpoints, and closes a session with the consistency check and the
// governance decision.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianCharter/services/protocol/consistency"
	"github.com/AleutianAI/AleutianCharter/services/protocol/conversation"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/gate"
	"github.com/AleutianAI/AleutianCharter/services/protocol/governance"
	"github.com/AleutianAI/AleutianCharter/services/protocol/render"
	"github.com/AleutianAI/AleutianCharter/services/protocol/stages"
	"github.com/AleutianAI/AleutianCharter/services/protocol/storage"
)

var tracer = otel.Tracer("charter.orchestrator")

// StageResult reports one RunStage call.
type StageResult struct {
	// StageIndex is the stage that ran.
	StageIndex int `json:"stage_index"`

	// Turns holds the completed conversation turns.
	Turns []datatypes.ConversationTurn `json:"turns"`

	// Deliverable is the assembled stage record, validated or not.
	Deliverable *datatypes.StageDeliverable `json:"deliverable"`

	// Gate is the gate verdict for the deliverable.
	Gate gate.Result `json:"gate"`

	// Advanced is true when the gate passed and the checkpoint was
	// written, moving the session to the next stage.
	Advanced bool `json:"advanced"`

	// Consistency is the cross-stage report, set only after the fifth
	// stage's gate passes. Contradictions hold the session open.
	Consistency *datatypes.ConsistencyReport `json:"consistency,omitempty"`

	// Completed is true when this stage was the fifth and the session
	// closed with a governance decision.
	Completed bool `json:"completed"`

	// Decision is set only when Completed is true.
	Decision *datatypes.GovernanceDecisionRecord `json:"decision,omitempty"`
}

// Orchestrator drives interview sessions end to end.
//
// Thread Safety: safe for concurrent sessions. Concurrent calls against the
// same session are last-writer-wins at the repository; callers should
// serialize per session.
type Orchestrator struct {
	repo    storage.Repository
	agent   *stages.Agent
	gate    *gate.Validator
	checker *consistency.Checker
	logger  *slog.Logger
}

// New wires an orchestrator from its collaborators. repo, agent, gate and
// checker are all required.
func New(repo storage.Repository, agent *stages.Agent, gv *gate.Validator, checker *consistency.Checker) (*Orchestrator, error) {
	if repo == nil {
		return nil, fmt.Errorf("repo must not be nil")
	}
	if agent == nil {
		return nil, fmt.Errorf("agent must not be nil")
	}
	if gv == nil {
		return nil, fmt.Errorf("gate validator must not be nil")
	}
	if checker == nil {
		return nil, fmt.Errorf("consistency checker must not be nil")
	}
	return &Orchestrator{
		repo:    repo,
		agent:   agent,
		gate:    gv,
		checker: checker,
		logger:  slog.Default(),
	}, nil
}

// CreateSession starts a new interview session at stage 1.
func (o *Orchestrator) CreateSession(ctx context.Context, owner string) (*datatypes.Session, error) {
	now := time.Now().UTC()
	session := &datatypes.Session{
		ID:           uuid.NewString(),
		Owner:        owner,
		CurrentStage: datatypes.FirstStage,
		Status:       datatypes.StatusInProgress,
		Deliverables: make(map[int]*datatypes.StageDeliverable),
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := o.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save new session: %w", err)
	}

	sessionsCreated.Inc()
	o.logger.Info("session created",
		slog.String("session_id", session.ID),
		slog.String("owner", owner))
	return session, nil
}

// GetSessionState loads a session's current state.
func (o *Orchestrator) GetSessionState(ctx context.Context, sessionID string) (*datatypes.Session, error) {
	return o.repo.GetSession(ctx, sessionID)
}

// RunStage runs the session's current stage: every scripted question goes
// through the conversation quality loop, the deliverable is assembled and
// gated, and on a passed gate the checkpoint is written and the session
// advances. After stage 5 passes, the consistency check and the governance
// decision close the session.
//
// A failed gate is not an error: the result carries the missing fields and
// the session stays at the same stage for another RunStage call. Likewise
// a stage 5 consistency contradiction keeps the session in_progress with
// the contradictions in the result and no governance decision.
//
// Outputs:
//
//	*StageResult - The stage outcome. Non-nil whenever error is nil.
//	error - Protocol violations (inactive session), provider failures, or
//	        persistence failures. ErrCheckpointFailed means the gate
//	        passed but the session did not advance.
func (o *Orchestrator) RunStage(ctx context.Context, sessionID string, provider conversation.ResponseProvider) (*StageResult, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.RunStage")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	session, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load session")
		return nil, err
	}
	if session.Status != datatypes.StatusInProgress {
		err := fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, sessionID, session.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inactive session")
		return nil, err
	}

	stageIndex := session.CurrentStage
	span.SetAttributes(attribute.Int("stage", stageIndex))

	stageCtx := datatypes.StageContext{
		SessionID:  session.ID,
		StageIndex: stageIndex,
		StageName:  datatypes.StageNames[stageIndex],
		Prior:      priorDeliverables(session, stageIndex),
	}

	turns, deliverable, err := o.agent.RunStage(ctx, stageCtx, provider)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage run failed")
		return nil, err
	}
	session.Turns = append(session.Turns, turns...)
	// Keep the unvalidated deliverable so the caller can inspect it after
	// a failed gate; the next RunStage at this stage replaces it.
	session.Deliverables[stageIndex] = deliverable
	session.LastActiveAt = time.Now().UTC()

	result := &StageResult{
		StageIndex:  stageIndex,
		Turns:       turns,
		Deliverable: deliverable,
	}
	if err := o.gateAndAdvance(ctx, session, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "advance failed")
		if errors.Is(err, ErrCheckpointFailed) {
			return result, err
		}
		return nil, err
	}

	if result.Advanced {
		o.logger.Info("stage completed",
			slog.String("session_id", session.ID),
			slog.Int("stage", stageIndex),
			slog.Bool("advanced", result.Advanced),
			slog.Bool("completed", result.Completed))
	}
	return result, nil
}

// Advance re-validates the stored deliverable for the session's current
// stage and, on a passing gate, writes the checkpoint and moves the
// session forward. RunStage does this implicitly; Advance exists to retry
// a gate on the same answers, for example after the gate's coherence
// review was degraded by an unavailable gateway.
//
// Outputs:
//
//	*StageResult - Gate verdict plus advancement outcome. The Turns field
//	               is empty; no questions are asked.
//	error - ErrStageNotRun when the current stage was never run,
//	        ErrSessionNotActive for paused or terminal sessions, or
//	        persistence failures.
func (o *Orchestrator) Advance(ctx context.Context, sessionID string) (*StageResult, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Advance")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	session, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load session")
		return nil, err
	}
	if session.Status != datatypes.StatusInProgress {
		err := fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, sessionID, session.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inactive session")
		return nil, err
	}

	stageIndex := session.CurrentStage
	span.SetAttributes(attribute.Int("stage", stageIndex))
	deliverable := session.Deliverable(stageIndex)
	if deliverable == nil {
		err := fmt.Errorf("%w: stage %d of session %s", ErrStageNotRun, stageIndex, sessionID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage not run")
		return nil, err
	}

	session.LastActiveAt = time.Now().UTC()
	result := &StageResult{
		StageIndex:  stageIndex,
		Deliverable: deliverable,
	}
	if err := o.gateAndAdvance(ctx, session, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "advance failed")
		if errors.Is(err, ErrCheckpointFailed) {
			return result, err
		}
		return nil, err
	}
	return result, nil
}

// gateAndAdvance validates the current stage's deliverable and, when the
// gate passes, writes the checkpoint and advances the session (or closes
// it after the fifth stage). The session is persisted in every non-error
// outcome. A failed gate is not an error.
func (o *Orchestrator) gateAndAdvance(ctx context.Context, session *datatypes.Session, result *StageResult) error {
	stageIndex := session.CurrentStage
	deliverable := session.Deliverables[stageIndex]

	verdict, err := o.gate.Validate(ctx, stageIndex, deliverable)
	if err != nil {
		return fmt.Errorf("stage gate: %w", err)
	}
	result.Gate = verdict

	if !verdict.CanProceed {
		stageGates.WithLabelValues("failed").Inc()
		o.logger.Info("stage gate failed",
			slog.String("session_id", session.ID),
			slog.Int("stage", stageIndex),
			slog.Any("missing", verdict.Missing))
		if err := o.repo.SaveSession(ctx, session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return nil
	}

	stageGates.WithLabelValues("passed").Inc()
	deliverable.Validated = true

	// The final stage must also survive the cross-stage consistency check
	// before the session may close. Contradictions are a validation
	// outcome, not an error: the session stays in_progress with the
	// report stored, and no governance decision is made.
	if stageIndex == datatypes.LastStage {
		report, err := o.checker.Check(ctx, session.Deliverables)
		if err != nil {
			return fmt.Errorf("consistency check: %w", err)
		}
		session.Consistency = report
		result.Consistency = report
		if !report.IsConsistent {
			consistencyChecks.WithLabelValues("failed").Inc()
			o.logger.Info("consistency check failed",
				slog.String("session_id", session.ID),
				slog.Any("contradictions", report.Contradictions))
			return o.repo.SaveSession(ctx, session)
		}
		consistencyChecks.WithLabelValues("passed").Inc()
	}

	// The checkpoint must be durable before the session may advance.
	cp, err := buildCheckpoint(session, stageIndex)
	if err != nil {
		return err
	}
	if err := o.repo.AppendCheckpoint(ctx, session.ID, cp); err != nil {
		// Persist the turns and deliverable, unvalidated, so Advance can
		// retry the gate without repeating the interview. The stage is
		// not advanced.
		deliverable.Validated = false
		if saveErr := o.repo.SaveSession(ctx, session); saveErr != nil {
			o.logger.Error("failed to save session after checkpoint failure",
				slog.String("session_id", session.ID),
				slog.Any("error", saveErr))
		}
		return fmt.Errorf("%w: stage %d: %v", ErrCheckpointFailed, stageIndex, err)
	}
	session.Checkpoints = append(session.Checkpoints, cp)

	if stageIndex < datatypes.LastStage {
		session.CurrentStage = stageIndex + 1
		result.Advanced = true
	} else {
		o.closeSession(session, result)
	}

	return o.repo.SaveSession(ctx, session)
}

// closeSession finishes a consistent session: the deterministic
// governance decision is stored and the session becomes terminal. Callers
// must have run the consistency check first.
func (o *Orchestrator) closeSession(session *datatypes.Session, result *StageResult) {
	var entries []datatypes.EthicalRiskEntry
	if d := session.Deliverable(datatypes.LastStage); d != nil && d.Risks != nil {
		entries = d.Risks.Entries
	}
	decision := governance.Decide(entries)
	decision.DecidedAt = time.Now().UTC()
	session.Decision = &decision
	session.Status = datatypes.StatusCompleted
	session.CurrentStage = datatypes.LastStage

	result.Advanced = true
	result.Completed = true
	result.Decision = &decision

	decisions.WithLabelValues(string(decision.Decision)).Inc()
	o.logger.Info("session completed",
		slog.String("session_id", session.ID),
		slog.String("decision", string(decision.Decision)))
}

// Pause suspends an in-progress session between stages.
func (o *Orchestrator) Pause(ctx context.Context, sessionID string) (*datatypes.Session, error) {
	return o.setStatus(ctx, sessionID, datatypes.StatusInProgress, datatypes.StatusPaused)
}

// Resume reactivates a paused session at its current stage.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*datatypes.Session, error) {
	session, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminal, sessionID)
	}
	if session.Status != datatypes.StatusPaused {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotPaused, sessionID, session.Status)
	}
	session.Status = datatypes.StatusInProgress
	session.LastActiveAt = time.Now().UTC()
	if err := o.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// Recover replaces a session's stored record with its most recent
// checkpoint snapshot. The restored session sits at the checkpointed stage
// with that stage's deliverable validated, so Advance can re-gate and move
// it forward. Terminal sessions cannot be recovered.
func (o *Orchestrator) Recover(ctx context.Context, sessionID string) (*datatypes.Session, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Recover")
	defer span.End()

	session, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminal, sessionID)
	}

	cps, err := o.repo.ListCheckpoints(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(cps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoint, sessionID)
	}
	latest := cps[len(cps)-1]

	var restored datatypes.Session
	if err := json.Unmarshal(latest.Snapshot, &restored); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode checkpoint snapshot")
		return nil, fmt.Errorf("decode checkpoint snapshot: %w", err)
	}
	restored.Checkpoints = session.Checkpoints
	restored.Status = datatypes.StatusInProgress
	restored.LastActiveAt = time.Now().UTC()

	if err := o.repo.SaveSession(ctx, &restored); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	o.logger.Info("session recovered from checkpoint",
		slog.String("session_id", sessionID),
		slog.Int("stage", latest.StageIndex),
		slog.Time("checkpointed_at", latest.CreatedAt))
	return &restored, nil
}

// Abandon terminates a session permanently. Completed sessions cannot be
// abandoned.
func (o *Orchestrator) Abandon(ctx context.Context, sessionID string) (*datatypes.Session, error) {
	session, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminal, sessionID)
	}
	session.Status = datatypes.StatusAbandoned
	session.LastActiveAt = time.Now().UTC()
	if err := o.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	o.logger.Info("session abandoned", slog.String("session_id", sessionID))
	return session, nil
}

// GenerateCharter renders the final charter document for a completed
// session.
func (o *Orchestrator) GenerateCharter(ctx context.Context, sessionID string) (string, error) {
	session, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Status != datatypes.StatusCompleted {
		return "", fmt.Errorf("%w: session %s is %s", ErrNotCompleted, sessionID, session.Status)
	}
	return render.Charter(session)
}

func (o *Orchestrator) setStatus(ctx context.Context, sessionID string, from, to datatypes.SessionStatus) (*datatypes.Session, error) {
	session, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminal, sessionID)
	}
	if session.Status != from {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, sessionID, session.Status)
	}
	session.Status = to
	session.LastActiveAt = time.Now().UTC()
	if err := o.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func priorDeliverables(session *datatypes.Session, before int) map[int]*datatypes.StageDeliverable {
	prior := make(map[int]*datatypes.StageDeliverable)
	for stage, d := range session.Deliverables {
		if stage < before && d.Validated {
			prior[stage] = d
		}
	}
	return prior
}

// buildCheckpoint snapshots the whole session as of the passed gate, before
// the stage pointer moves. Earlier checkpoints are omitted from the snapshot
// so each one stands alone.
func buildCheckpoint(session *datatypes.Session, stageIndex int) (datatypes.Checkpoint, error) {
	snap := *session
	snap.Checkpoints = nil
	snapshot, err := json.Marshal(&snap)
	if err != nil {
		return datatypes.Checkpoint{}, fmt.Errorf("encode checkpoint snapshot: %w", err)
	}
	return datatypes.Checkpoint{
		ID:         uuid.NewString(),
		StageIndex: stageIndex,
		GatePassed: true,
		Snapshot:   snapshot,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
