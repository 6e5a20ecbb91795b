// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package consistency cross-checks the five stage deliverables after the
// final gate passes.
//
// The checks are deterministic predicates over the structured deliverables.
// The LLM gateway is consulted only for metric names absent from the known
// table; when it is unavailable the metric is flagged for manual review
// rather than failing the check.
package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianCharter/services/llm"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

var tracer = otel.Tracer("charter.consistency")

// metricArchetypes maps well-known metric names (lowercased) to the task
// archetypes they measure. A metric may fit more than one archetype.
var metricArchetypes = map[string][]datatypes.TaskArchetype{
	"accuracy":   {datatypes.ArchetypeClassification},
	"precision":  {datatypes.ArchetypeClassification},
	"recall":     {datatypes.ArchetypeClassification},
	"f1":         {datatypes.ArchetypeClassification},
	"auc":        {datatypes.ArchetypeClassification, datatypes.ArchetypeRanking},
	"log loss":   {datatypes.ArchetypeClassification},
	"rmse":       {datatypes.ArchetypeRegression},
	"mae":        {datatypes.ArchetypeRegression},
	"mape":       {datatypes.ArchetypeRegression},
	"r2":         {datatypes.ArchetypeRegression},
	"ndcg":       {datatypes.ArchetypeRanking},
	"mrr":        {datatypes.ArchetypeRanking},
	"map":        {datatypes.ArchetypeRanking},
	"bleu":       {datatypes.ArchetypeGeneration},
	"rouge":      {datatypes.ArchetypeGeneration},
	"perplexity": {datatypes.ArchetypeGeneration},
	"silhouette": {datatypes.ArchetypeClustering},
}

// Checker runs the cross-stage consistency pass. A nil client disables the
// LLM fallback for unknown metric names; those metrics are then flagged for
// manual review.
//
// Thread Safety: stateless; safe for concurrent use.
type Checker struct {
	client llm.LLMClient
	logger *slog.Logger
}

// NewChecker creates a consistency checker.
func NewChecker(client llm.LLMClient) *Checker {
	return &Checker{client: client, logger: slog.Default()}
}

// Check runs all cross-stage predicates over a session's deliverables and
// returns the report. Missing deliverables are skipped per-predicate rather
// than treated as contradictions; the stage gates own completeness.
func (c *Checker) Check(ctx context.Context, deliverables map[int]*datatypes.StageDeliverable) (*datatypes.ConsistencyReport, error) {
	ctx, span := tracer.Start(ctx, "consistency.Check")
	defer span.End()

	report := &datatypes.ConsistencyReport{CheckedAt: time.Now().UTC()}

	var (
		problem   *datatypes.ProblemStatement
		metrics   *datatypes.MetricAlignment
		scorecard *datatypes.DataQualityScorecard
		users     *datatypes.UserContext
		risks     *datatypes.EthicalRiskReport
	)
	if d := deliverables[1]; d != nil {
		problem = d.Problem
	}
	if d := deliverables[2]; d != nil {
		metrics = d.Metrics
	}
	if d := deliverables[3]; d != nil {
		scorecard = d.Scorecard
	}
	if d := deliverables[4]; d != nil {
		users = d.Users
	}
	if d := deliverables[5]; d != nil {
		risks = d.Risks
	}

	c.checkMetricArchetype(ctx, report, problem, metrics)
	c.checkRequiredFeatures(report, metrics, scorecard)
	c.checkPersonaAccess(report, users, scorecard)
	c.checkImpactSeverity(report, problem, risks)

	report.IsConsistent = len(report.Contradictions) == 0
	span.SetAttributes(
		attribute.Bool("consistent", report.IsConsistent),
		attribute.Int("contradictions", len(report.Contradictions)),
		attribute.Int("manual_review_flags", len(report.ManualReviewFlags)),
	)
	return report, nil
}

// checkMetricArchetype verifies every stage 2 metric measures the stage 1
// archetype. Unknown metric names go to the LLM; if that fails they are
// flagged for manual review.
func (c *Checker) checkMetricArchetype(ctx context.Context, report *datatypes.ConsistencyReport, problem *datatypes.ProblemStatement, metrics *datatypes.MetricAlignment) {
	if problem == nil || metrics == nil {
		return
	}
	for _, m := range metrics.Metrics {
		name := strings.ToLower(strings.TrimSpace(m.Name))
		if name == "" {
			continue
		}
		archetypes, known := metricArchetypes[name]
		if known {
			if !containsArchetype(archetypes, problem.TaskArchetype) {
				report.Contradictions = append(report.Contradictions, fmt.Sprintf(
					"metric %q does not measure a %s task", m.Name, problem.TaskArchetype))
			}
			continue
		}
		switch c.askMetricFit(ctx, m.Name, problem.TaskArchetype) {
		case verdictNo:
			report.Contradictions = append(report.Contradictions, fmt.Sprintf(
				"metric %q does not measure a %s task", m.Name, problem.TaskArchetype))
		case verdictUnknown:
			report.ManualReviewFlags = append(report.ManualReviewFlags, fmt.Sprintf(
				"metric %q is not recognized; verify it fits a %s task", m.Name, problem.TaskArchetype))
		}
	}
}

// checkRequiredFeatures verifies every feature a stage 2 metric requires is
// provided by some stage 3 data source.
func (c *Checker) checkRequiredFeatures(report *datatypes.ConsistencyReport, metrics *datatypes.MetricAlignment, scorecard *datatypes.DataQualityScorecard) {
	if metrics == nil || scorecard == nil {
		return
	}
	available := make(map[string]bool)
	for _, src := range scorecard.Sources {
		for _, f := range src.Features {
			available[strings.ToLower(strings.TrimSpace(f))] = true
		}
	}
	for _, m := range metrics.Metrics {
		for _, f := range m.RequiredFeatures {
			if !available[strings.ToLower(strings.TrimSpace(f))] {
				report.Contradictions = append(report.Contradictions, fmt.Sprintf(
					"metric %q requires feature %q, which no declared data source provides", m.Name, f))
			}
		}
	}
}

// checkPersonaAccess verifies no stage 4 persona's access level is below the
// most restrictive stage 3 data source it would be exposed to.
func (c *Checker) checkPersonaAccess(report *datatypes.ConsistencyReport, users *datatypes.UserContext, scorecard *datatypes.DataQualityScorecard) {
	if users == nil || scorecard == nil {
		return
	}
	maxRank := 0
	strictest := ""
	for _, src := range scorecard.Sources {
		if r := datatypes.AccessRank(src.AccessLevel); r > maxRank {
			maxRank = r
			strictest = src.Name
		}
	}
	for _, p := range users.Personas {
		if datatypes.AccessRank(p.AccessLevel) < maxRank {
			report.Contradictions = append(report.Contradictions, fmt.Sprintf(
				"persona %q (%s access) cannot be exposed to source %q", p.Name, p.AccessLevel, strictest))
		}
	}
}

// checkImpactSeverity flags a high-impact system whose risk report rates
// every severity at 2 or below. That pattern reads as under-assessment.
func (c *Checker) checkImpactSeverity(report *datatypes.ConsistencyReport, problem *datatypes.ProblemStatement, risks *datatypes.EthicalRiskReport) {
	if problem == nil || risks == nil || problem.Impact != datatypes.ImpactHigh {
		return
	}
	if len(risks.Entries) == 0 {
		return
	}
	for _, e := range risks.Entries {
		if e.Severity > 2 {
			return
		}
	}
	report.Contradictions = append(report.Contradictions,
		"problem declares high impact but every risk severity is rated 2 or below")
}

type verdict int

const (
	verdictYes verdict = iota
	verdictNo
	verdictUnknown
)

// askMetricFit asks the LLM whether an unrecognized metric measures the
// given archetype. Any gateway failure returns verdictUnknown.
func (c *Checker) askMetricFit(ctx context.Context, metric string, archetype datatypes.TaskArchetype) verdict {
	if c.client == nil {
		return verdictUnknown
	}
	prompt := fmt.Sprintf(
		"Is %q a standard evaluation metric for a %s machine-learning task? Answer exactly YES or NO.",
		metric, archetype)

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	raw, err := c.client.Generate(callCtx, prompt, llm.GenerationParams{})
	if err != nil {
		c.logger.Warn("metric fit review unavailable",
			slog.String("metric", metric), slog.String("error", err.Error()))
		return verdictUnknown
	}
	switch answer := strings.ToUpper(strings.TrimSpace(raw)); {
	case strings.HasPrefix(answer, "YES"):
		return verdictYes
	case strings.HasPrefix(answer, "NO"):
		return verdictNo
	default:
		return verdictUnknown
	}
}

func containsArchetype(list []datatypes.TaskArchetype, a datatypes.TaskArchetype) bool {
	for _, v := range list {
		if v == a {
			return true
		}
	}
	return false
}
