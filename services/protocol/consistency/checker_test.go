// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package consistency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCharter/services/llm"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

type staticClient struct {
	reply string
	err   error
	calls int
}

func (s *staticClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	s.calls++
	return s.reply, s.err
}

func classificationDeliverables() map[int]*datatypes.StageDeliverable {
	return map[int]*datatypes.StageDeliverable{
		1: {StageIndex: 1, Problem: &datatypes.ProblemStatement{
			Statement:     "Classify loan applications.",
			TaskArchetype: datatypes.ArchetypeClassification,
			Impact:        datatypes.ImpactHigh,
		}},
		2: {StageIndex: 2, Metrics: &datatypes.MetricAlignment{Metrics: []datatypes.MetricSpec{
			{Name: "F1", Alignment: "balanced errors", RequiredFeatures: []string{"income", "credit_history"}},
		}}},
		3: {StageIndex: 3, Scorecard: &datatypes.DataQualityScorecard{Sources: []datatypes.DataSource{
			{Name: "loan book", AccessLevel: datatypes.AccessRestricted, Features: []string{"income", "credit_history", "region"}},
		}}},
		4: {StageIndex: 4, Users: &datatypes.UserContext{Personas: []datatypes.Persona{
			{Name: "underwriter", AccessLevel: datatypes.AccessRestricted},
		}}},
		5: {StageIndex: 5, Risks: &datatypes.EthicalRiskReport{Entries: []datatypes.EthicalRiskEntry{
			{Principle: datatypes.PrincipleFairness, Severity: 4, Likelihood: 3},
		}}},
	}
}

func TestCheckConsistentSession(t *testing.T) {
	c := NewChecker(nil)
	report, err := c.Check(context.Background(), classificationDeliverables())
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
	assert.Empty(t, report.Contradictions)
	assert.Empty(t, report.ManualReviewFlags)
	assert.False(t, report.CheckedAt.IsZero())
}

func TestMetricArchetypeMismatch(t *testing.T) {
	c := NewChecker(nil)
	d := classificationDeliverables()
	d[2].Metrics.Metrics = append(d[2].Metrics.Metrics,
		datatypes.MetricSpec{Name: "RMSE", Alignment: "error size"})

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, report.IsConsistent)
	require.Len(t, report.Contradictions, 1)
	assert.Contains(t, report.Contradictions[0], "RMSE")
	assert.Contains(t, report.Contradictions[0], "classification")
}

func TestMetricTableIsCaseInsensitive(t *testing.T) {
	c := NewChecker(nil)
	d := classificationDeliverables()
	d[2].Metrics.Metrics[0].Name = "f1"

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
}

func TestUnknownMetricFlagsManualReviewWithoutClient(t *testing.T) {
	c := NewChecker(nil)
	d := classificationDeliverables()
	d[2].Metrics.Metrics[0].Name = "bespoke harm index"

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
	require.Len(t, report.ManualReviewFlags, 1)
	assert.Contains(t, report.ManualReviewFlags[0], "bespoke harm index")
}

func TestUnknownMetricFlagsManualReviewOnGatewayError(t *testing.T) {
	client := &staticClient{err: errors.New("connection refused")}
	c := NewChecker(client)
	d := classificationDeliverables()
	d[2].Metrics.Metrics[0].Name = "bespoke harm index"

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
	assert.Len(t, report.ManualReviewFlags, 1)
	assert.Equal(t, 1, client.calls)
}

func TestUnknownMetricAcceptedOnLLMYes(t *testing.T) {
	c := NewChecker(&staticClient{reply: "YES"})
	d := classificationDeliverables()
	d[2].Metrics.Metrics[0].Name = "balanced accuracy"

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
	assert.Empty(t, report.ManualReviewFlags)
}

func TestUnknownMetricRejectedOnLLMNo(t *testing.T) {
	c := NewChecker(&staticClient{reply: "NO"})
	d := classificationDeliverables()
	d[2].Metrics.Metrics[0].Name = "lap time"

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, report.IsConsistent)
	require.Len(t, report.Contradictions, 1)
	assert.Contains(t, report.Contradictions[0], "lap time")
}

func TestRequiredFeatureMissingFromSources(t *testing.T) {
	c := NewChecker(nil)
	d := classificationDeliverables()
	d[2].Metrics.Metrics[0].RequiredFeatures = append(
		d[2].Metrics.Metrics[0].RequiredFeatures, "employment_length")

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, report.IsConsistent)
	require.Len(t, report.Contradictions, 1)
	assert.Contains(t, report.Contradictions[0], "employment_length")
}

func TestPersonaAccessBelowSource(t *testing.T) {
	c := NewChecker(nil)
	d := classificationDeliverables()
	d[4].Users.Personas = append(d[4].Users.Personas,
		datatypes.Persona{Name: "marketing analyst", AccessLevel: datatypes.AccessInternal})

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, report.IsConsistent)
	require.Len(t, report.Contradictions, 1)
	assert.Contains(t, report.Contradictions[0], "marketing analyst")
	assert.Contains(t, report.Contradictions[0], "loan book")
}

func TestHighImpactLowSeverity(t *testing.T) {
	c := NewChecker(nil)
	d := classificationDeliverables()
	d[5].Risks.Entries = []datatypes.EthicalRiskEntry{
		{Principle: datatypes.PrincipleFairness, Severity: 2, Likelihood: 3},
		{Principle: datatypes.PrinciplePrivacy, Severity: 1, Likelihood: 2},
	}

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, report.IsConsistent)
	require.Len(t, report.Contradictions, 1)
	assert.Contains(t, report.Contradictions[0], "high impact")
}

func TestHighImpactRuleSkippedForMediumImpact(t *testing.T) {
	c := NewChecker(nil)
	d := classificationDeliverables()
	d[1].Problem.Impact = datatypes.ImpactMedium
	d[5].Risks.Entries = []datatypes.EthicalRiskEntry{
		{Principle: datatypes.PrincipleFairness, Severity: 1, Likelihood: 1},
	}

	report, err := c.Check(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
}

func TestMissingDeliverablesAreSkipped(t *testing.T) {
	c := NewChecker(nil)
	report, err := c.Check(context.Background(), map[int]*datatypes.StageDeliverable{})
	require.NoError(t, err)
	assert.True(t, report.IsConsistent)
}
