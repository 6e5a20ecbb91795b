// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCharter/services/llm"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/governance"
)

type staticClient struct {
	reply string
	err   error
}

func (s *staticClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return s.reply, s.err
}

func completeProblem() *datatypes.ProblemStatement {
	return &datatypes.ProblemStatement{
		Statement:     "Classify support tickets by urgency.",
		TaskArchetype: datatypes.ArchetypeClassification,
		Inputs:        []datatypes.IOField{{Name: "ticket_text", Kind: datatypes.IOText}},
		Outputs:       []datatypes.IOField{{Name: "urgency", Kind: datatypes.IOCategorical}},
		Stakeholders:  []string{"support agents"},
		Impact:        datatypes.ImpactMedium,
	}
}

func TestValidateStage1Complete(t *testing.T) {
	v := NewValidator(nil)
	res, err := v.Validate(context.Background(), 1, &datatypes.StageDeliverable{
		StageIndex: 1,
		Problem:    completeProblem(),
	})
	require.NoError(t, err)
	assert.True(t, res.CanProceed)
	assert.Empty(t, res.Missing)
}

func TestValidateStage1MissingFields(t *testing.T) {
	v := NewValidator(nil)
	p := completeProblem()
	p.Statement = "  "
	p.Stakeholders = nil
	res, err := v.Validate(context.Background(), 1, &datatypes.StageDeliverable{StageIndex: 1, Problem: p})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.Contains(t, res.Missing, "statement")
	assert.Contains(t, res.Missing, "stakeholders")
}

func TestValidateStage1ArchetypeMismatch(t *testing.T) {
	v := NewValidator(nil)
	p := completeProblem()
	p.TaskArchetype = datatypes.ArchetypeRegression // but output stays categorical
	res, err := v.Validate(context.Background(), 1, &datatypes.StageDeliverable{StageIndex: 1, Problem: p})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.Empty(t, res.Missing)
	require.Len(t, res.Concerns, 1)
	assert.Contains(t, res.Concerns[0], "regression")
}

func TestValidateStage1RankingAcceptsAnyOutput(t *testing.T) {
	v := NewValidator(nil)
	p := completeProblem()
	p.TaskArchetype = datatypes.ArchetypeRanking
	res, err := v.Validate(context.Background(), 1, &datatypes.StageDeliverable{StageIndex: 1, Problem: p})
	require.NoError(t, err)
	assert.True(t, res.CanProceed)
}

func TestValidateStage2(t *testing.T) {
	v := NewValidator(nil)

	res, err := v.Validate(context.Background(), 2, &datatypes.StageDeliverable{StageIndex: 2})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.Contains(t, res.Missing, "metrics")

	res, err = v.Validate(context.Background(), 2, &datatypes.StageDeliverable{
		StageIndex: 2,
		Metrics: &datatypes.MetricAlignment{Metrics: []datatypes.MetricSpec{
			{Name: "F1", Alignment: "balances precision and recall for triage"},
			{Name: "AUC", Alignment: ""},
		}},
	})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.Equal(t, []string{"metrics[1].alignment"}, res.Missing)
}

func TestValidateStage3RequiresAllSixDimensions(t *testing.T) {
	v := NewValidator(nil)
	dims := map[string]int{}
	for _, d := range datatypes.QualityDimensions {
		dims[d] = 4
	}
	delete(dims, "timeliness")
	delete(dims, "uniqueness")

	res, err := v.Validate(context.Background(), 3, &datatypes.StageDeliverable{
		StageIndex: 3,
		Scorecard: &datatypes.DataQualityScorecard{
			Sources:    []datatypes.DataSource{{Name: "ticket archive", AccessLevel: datatypes.AccessInternal}},
			Dimensions: dims,
		},
	})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.ElementsMatch(t, []string{"timeliness", "uniqueness"}, res.Missing)
}

func TestValidateStage3ScoreOutOfRange(t *testing.T) {
	v := NewValidator(nil)
	dims := map[string]int{}
	for _, d := range datatypes.QualityDimensions {
		dims[d] = 3
	}
	dims["accuracy"] = 9
	res, err := v.Validate(context.Background(), 3, &datatypes.StageDeliverable{
		StageIndex: 3,
		Scorecard: &datatypes.DataQualityScorecard{
			Sources:    []datatypes.DataSource{{Name: "archive"}},
			Dimensions: dims,
		},
	})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.Empty(t, res.Missing)
	require.Len(t, res.Concerns, 1)
	assert.Contains(t, res.Concerns[0], "accuracy")
}

func TestValidateStage4(t *testing.T) {
	v := NewValidator(nil)
	res, err := v.Validate(context.Background(), 4, &datatypes.StageDeliverable{
		StageIndex: 4,
		Users: &datatypes.UserContext{Personas: []datatypes.Persona{
			{Name: "triage lead", AccessLevel: datatypes.AccessInternal},
			{Name: " "},
		}},
	})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.Contains(t, res.Missing, "personas[1].name")
	assert.Contains(t, res.Missing, "personas[1].access_level")
}

func TestValidateStage5PrincipleCoverage(t *testing.T) {
	v := NewValidator(nil)
	entries := []datatypes.EthicalRiskEntry{
		{Principle: datatypes.PrincipleFairness, Severity: 3, Likelihood: 2},
		{Principle: datatypes.PrinciplePrivacy, Severity: 2, Likelihood: 2},
	}
	entries = governance.Recompute(entries)

	res, err := v.Validate(context.Background(), 5, &datatypes.StageDeliverable{
		StageIndex: 5,
		Risks:      &datatypes.EthicalRiskReport{Entries: entries},
	})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.Len(t, res.Missing, 3)
	for _, m := range res.Missing {
		assert.Contains(t, m, "risk entry for principle")
	}
}

func TestValidateStage5Complete(t *testing.T) {
	v := NewValidator(nil)
	var entries []datatypes.EthicalRiskEntry
	for _, p := range datatypes.AllPrinciples {
		entries = append(entries, datatypes.EthicalRiskEntry{Principle: p, Severity: 2, Likelihood: 2})
	}
	entries = governance.Recompute(entries)

	res, err := v.Validate(context.Background(), 5, &datatypes.StageDeliverable{
		StageIndex: 5,
		Risks:      &datatypes.EthicalRiskReport{Entries: entries},
	})
	require.NoError(t, err)
	assert.True(t, res.CanProceed)
}

func TestValidateStage5UncomputedResidual(t *testing.T) {
	v := NewValidator(nil)
	var entries []datatypes.EthicalRiskEntry
	for _, p := range datatypes.AllPrinciples {
		entries = append(entries, datatypes.EthicalRiskEntry{Principle: p, Severity: 2, Likelihood: 2})
	}
	// residuals deliberately not recomputed
	res, err := v.Validate(context.Background(), 5, &datatypes.StageDeliverable{
		StageIndex: 5,
		Risks:      &datatypes.EthicalRiskReport{Entries: entries},
	})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.NotEmpty(t, res.Concerns)
}

func TestValidateMisuse(t *testing.T) {
	v := NewValidator(nil)

	_, err := v.Validate(context.Background(), 0, &datatypes.StageDeliverable{})
	require.Error(t, err)

	_, err = v.Validate(context.Background(), 1, nil)
	require.Error(t, err)

	_, err = v.Validate(context.Background(), 1, &datatypes.StageDeliverable{StageIndex: 2})
	require.Error(t, err)
}

func TestValidateRunsCoherenceReview(t *testing.T) {
	v := NewValidator(&staticClient{reply: "NO. The impact level understates the stakes."})
	res, err := v.Validate(context.Background(), 1, &datatypes.StageDeliverable{
		StageIndex: 1,
		Problem:    completeProblem(),
	})
	require.NoError(t, err)
	assert.True(t, res.CanProceed, "coherence review is advisory")
	require.Len(t, res.Concerns, 1)
	assert.True(t, strings.HasPrefix(res.Concerns[0], "coherence review:"))
}

func TestValidateSkipsCoherenceReviewOnStructuralFailure(t *testing.T) {
	v := NewValidator(&staticClient{err: errors.New("connection refused")})
	p := completeProblem()
	p.Statement = ""
	res, err := v.Validate(context.Background(), 1, &datatypes.StageDeliverable{StageIndex: 1, Problem: p})
	require.NoError(t, err)
	assert.False(t, res.CanProceed)
	assert.Empty(t, res.Concerns, "gateway is not consulted until the structure holds")
}

func TestReviewCoherenceDegrades(t *testing.T) {
	v := NewValidator(&staticClient{err: errors.New("connection refused")})
	concern := v.ReviewCoherence(context.Background(), 1, "summary text")
	assert.Contains(t, concern, "manual review")
}

func TestReviewCoherenceVerdicts(t *testing.T) {
	yes := NewValidator(&staticClient{reply: "YES. Reads coherently."})
	assert.Equal(t, "", yes.ReviewCoherence(context.Background(), 2, "summary"))

	no := NewValidator(&staticClient{reply: "NO. The metric contradicts the stated goal."})
	concern := no.ReviewCoherence(context.Background(), 2, "summary")
	assert.True(t, strings.HasPrefix(concern, "coherence review:"))

	disabled := NewValidator(nil)
	assert.Equal(t, "", disabled.ReviewCoherence(context.Background(), 2, "summary"))
}
