// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/AleutianAI/AleutianCharter/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/consistency"
	"github.com/AleutianAI/AleutianCharter/services/protocol/conversation"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/gate"
	"github.com/AleutianAI/AleutianCharter/services/protocol/orchestrator"
	"github.com/AleutianAI/AleutianCharter/services/protocol/stages"
	"github.com/AleutianAI/AleutianCharter/services/protocol/storage"
)

type passingEvaluator struct{}

func (passingEvaluator) Evaluate(ctx context.Context, question, response string, stageCtx datatypes.StageContext) *datatypes.QualityAssessment {
	return &datatypes.QualityAssessment{Score: 9, IsAcceptable: true}
}

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	engine, err := conversation.NewEngine(passingEvaluator{})
	require.NoError(t, err)
	agent, err := stages.NewAgent(engine)
	require.NoError(t, err)
	orch, err := orchestrator.New(storage.NewMemoryRepository(), agent,
		gate.NewValidator(nil), consistency.NewChecker(nil))
	require.NoError(t, err)

	router := gin.New()
	router.GET("/health", HealthCheck)
	router.GET("/v1/questions", ListQuestionSets())
	router.POST("/v1/sessions", CreateSession(orch))
	router.GET("/v1/sessions/:sessionId", GetSession(orch))
	router.POST("/v1/sessions/:sessionId/stage", RunStage(orch))
	router.POST("/v1/sessions/:sessionId/advance", AdvanceSession(orch))
	router.POST("/v1/sessions/:sessionId/pause", PauseSession(orch))
	router.POST("/v1/sessions/:sessionId/recover", RecoverSession(orch))
	router.POST("/v1/sessions/:sessionId/resume", ResumeSession(orch))
	router.GET("/v1/sessions/:sessionId/charter", GetCharter(orch))
	router.DELETE("/v1/sessions/:sessionId", AbandonSession(orch))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func stageAnswers() map[string]map[string][]string {
	return map[string]map[string][]string{
		"1": {
			"p1_statement":    {"Classify support tickets by urgency so the queue is worked in risk order."},
			"p1_archetype":    {"classification"},
			"p1_inputs":       {"ticket_text:text, product:categorical"},
			"p1_outputs":      {"urgency:categorical"},
			"p1_stakeholders": {"support agents, customers"},
			"p1_impact":       {"medium stakes, human in the loop"},
		},
		"2": {
			"m1_metrics":    {"name=F1 target=0.85 alignment=balances missed urgent tickets against noise features=ticket_text"},
			"m2_guardrails": {"per-region recall within 5% of global"},
		},
		"3": {
			"d1_sources":    {"name=ticket archive access=internal features=ticket_text,product"},
			"d2_dimensions": {"completeness=4, accuracy=3, consistency=4, timeliness=3, validity=4, uniqueness=5"},
			"d3_notes":      {"tickets before 2023 lack product tags"},
		},
		"4": {
			"u1_personas": {"name=triage lead access=internal needs=ordered queue each morning"},
			"u2_workflow": {"agents see the label inside the existing ticket view"},
		},
		"5": {
			"r1_risks": {"principle=fairness severity=3 likelihood=2 description=regional bias mitigations=bias audit:0.3\n" +
				"principle=transparency severity=2 likelihood=2 description=opaque labels mitigations=explanations:0.4\n" +
				"principle=privacy severity=2 likelihood=2 description=PII in tickets mitigations=redaction:0.5\n" +
				"principle=accountability severity=2 likelihood=1 description=unclear ownership mitigations=named owner:0.5\n" +
				"principle=safety severity=2 likelihood=2 description=missed urgent ticket mitigations=human fallback:0.5"},
			"r2_review": {"quarterly ethics board review with stop authority"},
		},
	}
}

func TestSessionAPILifecycle(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", api.CreateSessionRequest{Owner: "researcher"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created api.CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, 1, created.CurrentStage)

	answers := stageAnswers()
	for _, stage := range []string{"1", "2", "3", "4", "5"} {
		w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionID+"/stage",
			api.RunStageRequest{Answers: answers[stage]})
		require.Equal(t, http.StatusOK, w.Code, "stage %s: %s", stage, w.Body.String())

		var resp api.RunStageResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Result)
		assert.True(t, resp.Result.Gate.CanProceed, "stage %s gate: %+v", stage, resp.Result.Gate)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/sessions/"+created.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state api.SessionStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "completed", state.Status)
	require.NotNil(t, state.Decision)
	assert.Len(t, state.Deliverables, 5)

	w = doJSON(t, router, http.MethodGet, "/v1/sessions/"+created.SessionID+"/charter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var charter api.CharterResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &charter))
	assert.Contains(t, charter.Charter, "# AI Project Charter")
}

func TestCreateSessionValidation(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", api.CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/sessions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunStageUnknownSession(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/v1/sessions/missing/stage",
		api.RunStageRequest{Answers: map[string][]string{"p1_statement": {"x"}}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdvanceBeforeStageRunConflicts(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", api.CreateSessionRequest{Owner: "researcher"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionID+"/advance", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdvanceRetriesGate(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", api.CreateSessionRequest{Owner: "researcher"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Incomplete answers fail the gate; the deliverable is stored.
	answers := stageAnswers()["1"]
	answers["p1_stakeholders"] = []string{""}
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionID+"/stage",
		api.RunStageRequest{Answers: answers})
	require.Equal(t, http.StatusOK, w.Code)
	var resp api.RunStageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Result.Gate.CanProceed)

	// Advance re-gates the same answers and still holds the stage.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionID+"/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Result.Gate.CanProceed)
	assert.Equal(t, 1, resp.CurrentStage)
}

func TestRecoverSession(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", api.CreateSessionRequest{Owner: "researcher"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Before any checkpoint exists, recovery conflicts.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionID+"/recover", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionID+"/stage",
		api.RunStageRequest{Answers: stageAnswers()["1"]})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionID+"/recover", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var state api.SessionStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "in_progress", state.Status)
	assert.Equal(t, 1, state.CurrentStage, "restored to the checkpointed stage")
}

func TestRunStageEmptyAnswers(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/v1/sessions/missing/stage", api.RunStageRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPauseResumeAndConflicts(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", api.CreateSessionRequest{Owner: "researcher"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.SessionID

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/pause", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Running a stage on a paused session conflicts.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/stage",
		api.RunStageRequest{Answers: stageAnswers()["1"]})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/resume", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Resuming an active session conflicts.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+id+"/resume", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Charter before completion conflicts.
	w = doJSON(t, router, http.MethodGet, "/v1/sessions/"+id+"/charter", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Abandoning twice conflicts.
	w = doJSON(t, router, http.MethodDelete, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListQuestionSets(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/questions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.QuestionSetsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Fingerprint, 64)
	assert.Len(t, resp.Stages, 5)
}

func TestPreparedAnswersRepeatsLastAttempt(t *testing.T) {
	p := preparedAnswers{"q1": {"first", "second"}}

	got, err := p.Respond(context.Background(), "q1", "?", 1)
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = p.Respond(context.Background(), "q1", "?", 3)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	_, err = p.Respond(context.Background(), "q2", "?", 1)
	require.Error(t, err)
}
