// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCharter/services/protocol/consistency"
	"github.com/AleutianAI/AleutianCharter/services/protocol/conversation"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/gate"
	"github.com/AleutianAI/AleutianCharter/services/protocol/stages"
	"github.com/AleutianAI/AleutianCharter/services/protocol/storage"
)

// passingEvaluator accepts every response immediately.
type passingEvaluator struct{}

func (passingEvaluator) Evaluate(ctx context.Context, question, response string, stageCtx datatypes.StageContext) *datatypes.QualityAssessment {
	return &datatypes.QualityAssessment{Score: 9, IsAcceptable: true}
}

// scriptedProvider answers by question ID.
type scriptedProvider map[string]string

func (p scriptedProvider) Respond(ctx context.Context, questionID, question string, attempt int) (string, error) {
	if answer, ok := p[questionID]; ok {
		return answer, nil
	}
	return "no answer prepared", nil
}

// fullInterview answers every stage completely and consistently.
func fullInterview() scriptedProvider {
	return scriptedProvider{
		"p1_statement":    "Classify support tickets by urgency so the queue is worked in risk order.",
		"p1_archetype":    "classification",
		"p1_inputs":       "ticket_text:text, product:categorical",
		"p1_outputs":      "urgency:categorical",
		"p1_stakeholders": "support agents, customers",
		"p1_impact":       "medium stakes, human in the loop",

		"m1_metrics":    "name=F1 target=0.85 alignment=balances missed urgent tickets against noise features=ticket_text",
		"m2_guardrails": "per-region recall within 5% of global",

		"d1_sources":    "name=ticket archive access=internal features=ticket_text,product",
		"d2_dimensions": "completeness=4, accuracy=3, consistency=4, timeliness=3, validity=4, uniqueness=5",
		"d3_notes":      "tickets before 2023 lack product tags",

		"u1_personas": "name=triage lead access=internal needs=ordered queue each morning",
		"u2_workflow": "agents see the label inside the existing ticket view",

		"r1_risks": "principle=fairness severity=3 likelihood=2 description=regional bias mitigations=bias audit:0.3\n" +
			"principle=transparency severity=2 likelihood=2 description=opaque labels mitigations=explanations:0.4\n" +
			"principle=privacy severity=2 likelihood=2 description=ticket text holds PII mitigations=redaction:0.5\n" +
			"principle=accountability severity=2 likelihood=1 description=unclear ownership mitigations=named owner:0.5\n" +
			"principle=safety severity=2 likelihood=2 description=urgent ticket missed mitigations=human fallback:0.5",
		"r2_review": "quarterly ethics board review with stop authority",
	}
}

func newTestOrchestrator(t *testing.T, repo storage.Repository) *Orchestrator {
	engine, err := conversation.NewEngine(passingEvaluator{})
	require.NoError(t, err)
	agent, err := stages.NewAgent(engine)
	require.NoError(t, err)
	o, err := New(repo, agent, gate.NewValidator(nil), consistency.NewChecker(nil))
	require.NoError(t, err)
	return o
}

func TestFullSessionLifecycle(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()
	provider := fullInterview()

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)
	assert.Equal(t, datatypes.FirstStage, session.CurrentStage)
	assert.Equal(t, datatypes.StatusInProgress, session.Status)

	for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
		result, err := o.RunStage(ctx, session.ID, provider)
		require.NoError(t, err, "stage %d", stage)
		assert.Equal(t, stage, result.StageIndex)
		assert.True(t, result.Gate.CanProceed, "stage %d gate: missing=%v concerns=%v",
			stage, result.Gate.Missing, result.Gate.Concerns)
		assert.True(t, result.Advanced)
		assert.Equal(t, stage == datatypes.LastStage, result.Completed)
	}

	final, err := o.GetSessionState(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, final.Status)
	require.NotNil(t, final.Decision)
	assert.False(t, final.Decision.DecidedAt.IsZero())
	require.NotNil(t, final.Consistency)
	assert.True(t, final.Consistency.IsConsistent)

	// All five checkpoints are durable.
	cps, err := repo.ListCheckpoints(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, cps, datatypes.LastStage)

	charter, err := o.GenerateCharter(ctx, session.ID)
	require.NoError(t, err)
	assert.Contains(t, charter, "# AI Project Charter")
	assert.Contains(t, charter, string(final.Decision.Decision))
}

func TestFailedGateHoldsStage(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	provider := fullInterview()
	provider["p1_stakeholders"] = "" // structural gap the gate must catch

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	result, err := o.RunStage(ctx, session.ID, provider)
	require.NoError(t, err)
	assert.False(t, result.Gate.CanProceed)
	assert.Contains(t, result.Gate.Missing, "stakeholders")
	assert.False(t, result.Advanced)

	got, err := o.GetSessionState(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStage)
	require.NotNil(t, got.Deliverable(1))
	assert.False(t, got.Deliverable(1).Validated)

	// A corrected rerun passes and advances.
	provider["p1_stakeholders"] = "support agents"
	result, err = o.RunStage(ctx, session.ID, provider)
	require.NoError(t, err)
	assert.True(t, result.Advanced)

	got, err = o.GetSessionState(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStage)
	assert.True(t, got.Deliverable(1).Validated)
}

func TestInconsistentSessionStaysOpen(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	// A regression metric against a classification problem contradicts
	// across stages while passing every per-stage gate.
	provider := fullInterview()
	provider["m1_metrics"] = "name=RMSE target=0.5 alignment=error magnitude features=ticket_text"

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	var result *StageResult
	for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
		result, err = o.RunStage(ctx, session.ID, provider)
		require.NoError(t, err, "stage %d", stage)
		require.True(t, result.Gate.CanProceed, "stage %d gate: %+v", stage, result.Gate)
	}

	assert.False(t, result.Advanced)
	assert.False(t, result.Completed)
	assert.Nil(t, result.Decision)
	require.NotNil(t, result.Consistency)
	assert.False(t, result.Consistency.IsConsistent)
	assert.NotEmpty(t, result.Consistency.Contradictions)

	got, err := o.GetSessionState(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusInProgress, got.Status)
	assert.Equal(t, datatypes.LastStage, got.CurrentStage)
	assert.Nil(t, got.Decision)
	require.NotNil(t, got.Consistency)
	assert.False(t, got.Consistency.IsConsistent)

	// No stage 5 checkpoint and no charter for a contradicted session.
	cps, err := repo.ListCheckpoints(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, cps, datatypes.LastStage-1)

	_, err = o.GenerateCharter(ctx, session.ID)
	require.ErrorIs(t, err, ErrNotCompleted)
}

func TestAdvanceWithoutRunFails(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	_, err = o.Advance(ctx, session.ID)
	require.ErrorIs(t, err, ErrStageNotRun)
}

func TestAdvanceRegatesStoredDeliverable(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	provider := fullInterview()
	provider["p1_stakeholders"] = ""

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	result, err := o.RunStage(ctx, session.ID, provider)
	require.NoError(t, err)
	require.False(t, result.Gate.CanProceed)

	// The same answers fail the gate again; the session holds.
	result, err = o.Advance(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, result.Gate.CanProceed)
	assert.Contains(t, result.Gate.Missing, "stakeholders")
	assert.False(t, result.Advanced)
	assert.Empty(t, result.Turns)

	got, err := o.GetSessionState(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStage)
}

// checkpointFailRepo fails the first `failures` checkpoint appends, or
// every append when failures is zero.
type checkpointFailRepo struct {
	storage.Repository
	failures int
	calls    int
}

func (r *checkpointFailRepo) AppendCheckpoint(ctx context.Context, sessionID string, cp datatypes.Checkpoint) error {
	r.calls++
	if r.failures == 0 || r.calls <= r.failures {
		return errors.New("disk full")
	}
	return r.Repository.AppendCheckpoint(ctx, sessionID, cp)
}

func TestCheckpointFailureBlocksAdvance(t *testing.T) {
	repo := &checkpointFailRepo{Repository: storage.NewMemoryRepository()}
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	_, err = o.RunStage(ctx, session.ID, fullInterview())
	require.ErrorIs(t, err, ErrCheckpointFailed)

	got, err := o.GetSessionState(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStage, "session must not advance past an unwritten checkpoint")
}

func TestAdvanceRetriesAfterCheckpointFailure(t *testing.T) {
	repo := &checkpointFailRepo{Repository: storage.NewMemoryRepository(), failures: 1}
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	_, err = o.RunStage(ctx, session.ID, fullInterview())
	require.ErrorIs(t, err, ErrCheckpointFailed)

	// The answers survived the failed write, so the gate can be retried
	// without another interview.
	result, err := o.Advance(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, result.Advanced)

	got, err := o.GetSessionState(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentStage)
	require.Len(t, got.Checkpoints, 1)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	paused, err := o.Pause(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusPaused, paused.Status)

	// A paused session cannot run stages.
	_, err = o.RunStage(ctx, session.ID, fullInterview())
	require.ErrorIs(t, err, ErrSessionNotActive)

	resumed, err := o.Resume(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusInProgress, resumed.Status)
	assert.Equal(t, 1, resumed.CurrentStage)

	// Resuming an active session is a protocol violation.
	_, err = o.Resume(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionNotPaused)
}

func TestRecoverRestoresLatestCheckpoint(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()
	provider := fullInterview()

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)
	for stage := 1; stage <= 2; stage++ {
		_, err = o.RunStage(ctx, session.ID, provider)
		require.NoError(t, err, "stage %d", stage)
	}

	// Each checkpoint snapshot carries the full session state, not just
	// the stage deliverable.
	cps, err := repo.ListCheckpoints(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	var snap datatypes.Session
	require.NoError(t, json.Unmarshal(cps[1].Snapshot, &snap))
	assert.Equal(t, session.ID, snap.ID)
	require.NotNil(t, snap.Deliverable(1))
	require.NotNil(t, snap.Deliverable(2))
	assert.True(t, snap.Deliverable(2).Validated)

	// Wreck the live record, then restore it from the checkpoint.
	wrecked, err := o.GetSessionState(ctx, session.ID)
	require.NoError(t, err)
	wrecked.CurrentStage = 1
	wrecked.Deliverables = nil
	require.NoError(t, repo.SaveSession(ctx, wrecked))

	restored, err := o.Recover(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.CurrentStage)
	assert.Equal(t, datatypes.StatusInProgress, restored.Status)
	require.NotNil(t, restored.Deliverable(2))
	assert.True(t, restored.Deliverable(2).Validated)

	// The recovered stage re-gates through Advance and moves on.
	result, err := o.Advance(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, result.Advanced)

	got, err := o.GetSessionState(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentStage)
}

func TestRecoverWithoutCheckpoint(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	_, err = o.Recover(ctx, session.ID)
	require.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestAbandonIsTerminal(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	_, err = o.Abandon(ctx, session.ID)
	require.NoError(t, err)

	_, err = o.RunStage(ctx, session.ID, fullInterview())
	require.ErrorIs(t, err, ErrSessionNotActive)

	_, err = o.Resume(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionTerminal)

	_, err = o.Abandon(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionTerminal)
}

func TestCharterRequiresCompletion(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	_, err = o.GenerateCharter(ctx, session.ID)
	require.ErrorIs(t, err, ErrNotCompleted)
}

func TestHaltOnCriticalRisk(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)
	ctx := context.Background()

	provider := fullInterview()
	provider["r1_risks"] = "principle=fairness severity=5 likelihood=5 description=systemic exclusion mitigations=none:0\n" +
		"principle=transparency severity=2 likelihood=2 description=opaque mitigations=explanations:0.4\n" +
		"principle=privacy severity=2 likelihood=2 description=PII mitigations=redaction:0.5\n" +
		"principle=accountability severity=2 likelihood=1 description=ownership mitigations=owner:0.5\n" +
		"principle=safety severity=2 likelihood=2 description=missed urgency mitigations=fallback:0.5"

	session, err := o.CreateSession(ctx, "researcher")
	require.NoError(t, err)

	var result *StageResult
	for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
		result, err = o.RunStage(ctx, session.ID, provider)
		require.NoError(t, err)
		require.True(t, result.Gate.CanProceed, "stage %d", stage)
	}
	require.NotNil(t, result.Decision)
	assert.Equal(t, datatypes.DecisionHalt, result.Decision.Decision)
}

func TestSessionNotFound(t *testing.T) {
	repo := storage.NewMemoryRepository()
	o := newTestOrchestrator(t, repo)

	_, err := o.RunStage(context.Background(), "missing", fullInterview())
	require.ErrorIs(t, err, storage.ErrSessionNotFound)
}
