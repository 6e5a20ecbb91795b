// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate validates stage deliverables before the session may advance.
//
// Each stage has a fixed checklist of required fields plus one or two
// stage-specific semantic rules. Structural checks are pure and
// deterministic; the optional coherence review consults the LLM gateway at
// most once per gate and degrades to a concern, never a failure, when the
// gateway is unavailable.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCharter/services/llm"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

// Result is the gate verdict for one stage deliverable.
type Result struct {
	// CanProceed is true if every required field is present and every
	// semantic rule passed.
	CanProceed bool `json:"can_proceed"`

	// Missing lists required fields that are absent or empty.
	Missing []string `json:"missing,omitempty"`

	// Concerns lists non-blocking observations, including semantic-review
	// degradation notes.
	Concerns []string `json:"concerns,omitempty"`
}

// Validator runs stage-gate checks. The zero client disables the optional
// LLM coherence review; structural rules never need it.
//
// Thread Safety: stateless; safe for concurrent use across sessions.
type Validator struct {
	client llm.LLMClient
	logger *slog.Logger
}

// NewValidator creates a gate validator. client may be nil to run purely
// structural validation.
func NewValidator(client llm.LLMClient) *Validator {
	return &Validator{client: client, logger: slog.Default()}
}

// Validate checks a stage deliverable against its stage's rules.
//
// Inputs:
//
//	ctx - Context for the optional LLM coherence review.
//	stageIndex - The stage being gated, 1-5.
//	deliverable - The assembled deliverable. Must not be nil.
//
// Outputs:
//
//	Result - The gate verdict. CanProceed is false on any missing field or
//	         failed semantic rule.
//	error - Only for misuse (bad stage index, nil or mismatched
//	        deliverable); validation failure is a Result, not an error.
func (v *Validator) Validate(ctx context.Context, stageIndex int, deliverable *datatypes.StageDeliverable) (Result, error) {
	if stageIndex < datatypes.FirstStage || stageIndex > datatypes.LastStage {
		return Result{}, fmt.Errorf("stage index %d out of range", stageIndex)
	}
	if deliverable == nil {
		return Result{}, fmt.Errorf("deliverable must not be nil")
	}
	if deliverable.StageIndex != stageIndex {
		return Result{}, fmt.Errorf("deliverable is for stage %d, not %d", deliverable.StageIndex, stageIndex)
	}

	var res Result
	switch stageIndex {
	case 1:
		res = v.validateProblem(deliverable.Problem)
	case 2:
		res = v.validateMetrics(deliverable.Metrics)
	case 3:
		res = v.validateScorecard(deliverable.Scorecard)
	case 4:
		res = v.validateUsers(deliverable.Users)
	case 5:
		res = v.validateRisks(deliverable.Risks)
	}

	res.CanProceed = len(res.Missing) == 0 && res.CanProceed

	// One optional LLM coherence pass once the structure holds. Its
	// outcome is a concern, never a blocker.
	if res.CanProceed {
		if concern := v.ReviewCoherence(ctx, stageIndex, summarize(deliverable)); concern != "" {
			res.Concerns = append(res.Concerns, concern)
		}
	}
	return res, nil
}

// summarize flattens a deliverable into the short text handed to the
// coherence review.
func summarize(d *datatypes.StageDeliverable) string {
	var b strings.Builder
	switch {
	case d.Problem != nil:
		p := d.Problem
		fmt.Fprintf(&b, "problem: %s\narchetype: %s\nimpact: %s\nstakeholders: %s\n",
			p.Statement, p.TaskArchetype, p.Impact, strings.Join(p.Stakeholders, ", "))
	case d.Metrics != nil:
		for _, m := range d.Metrics.Metrics {
			fmt.Fprintf(&b, "metric %s (target %s): %s\n", m.Name, m.Target, m.Alignment)
		}
	case d.Scorecard != nil:
		for _, s := range d.Scorecard.Sources {
			fmt.Fprintf(&b, "source %s (%s access)\n", s.Name, s.AccessLevel)
		}
		fmt.Fprintf(&b, "notes: %s\n", d.Scorecard.Notes)
	case d.Users != nil:
		for _, p := range d.Users.Personas {
			fmt.Fprintf(&b, "persona %s (%s access): %s\n", p.Name, p.AccessLevel, p.Needs)
		}
		fmt.Fprintf(&b, "workflow: %s\n", d.Users.UsagePattern)
	case d.Risks != nil:
		for _, e := range d.Risks.Entries {
			fmt.Fprintf(&b, "risk %s (severity %d, likelihood %d): %s\n",
				e.Principle, e.Severity, e.Likelihood, e.Description)
		}
	}
	return b.String()
}

// validateProblem applies stage 1 rules: required fields plus structural
// consistency between the declared task archetype and the declared outputs.
func (v *Validator) validateProblem(p *datatypes.ProblemStatement) Result {
	res := Result{CanProceed: true}
	if p == nil {
		return Result{Missing: []string{"problem statement"}}
	}
	if strings.TrimSpace(p.Statement) == "" {
		res.Missing = append(res.Missing, "statement")
	}
	if !validArchetype(p.TaskArchetype) {
		res.Missing = append(res.Missing, "task_archetype")
	}
	if len(p.Inputs) == 0 {
		res.Missing = append(res.Missing, "inputs")
	}
	if len(p.Outputs) == 0 {
		res.Missing = append(res.Missing, "outputs")
	}
	if len(p.Stakeholders) == 0 {
		res.Missing = append(res.Missing, "stakeholders")
	}
	if p.Impact == "" {
		res.Missing = append(res.Missing, "impact")
	}

	// Semantic rule: archetype must be structurally consistent with the
	// declared outputs.
	if validArchetype(p.TaskArchetype) && len(p.Outputs) > 0 {
		if !archetypeConsistent(p.TaskArchetype, p.Outputs) {
			res.CanProceed = false
			res.Concerns = append(res.Concerns, fmt.Sprintf(
				"declared archetype %q is inconsistent with declared output kinds", p.TaskArchetype))
		}
	}
	return res
}

// validateMetrics applies stage 2 rules: at least one metric, each with a
// name and an alignment rationale.
func (v *Validator) validateMetrics(m *datatypes.MetricAlignment) Result {
	res := Result{CanProceed: true}
	if m == nil || len(m.Metrics) == 0 {
		return Result{Missing: []string{"metrics"}}
	}
	for i, metric := range m.Metrics {
		if strings.TrimSpace(metric.Name) == "" {
			res.Missing = append(res.Missing, fmt.Sprintf("metrics[%d].name", i))
		}
		if strings.TrimSpace(metric.Alignment) == "" {
			res.Missing = append(res.Missing, fmt.Sprintf("metrics[%d].alignment", i))
		}
	}
	return res
}

// validateScorecard applies stage 3 rules: every one of the six quality
// dimensions must carry a 1-5 score, and at least one source is declared.
func (v *Validator) validateScorecard(s *datatypes.DataQualityScorecard) Result {
	res := Result{CanProceed: true}
	if s == nil {
		return Result{Missing: []string{"data quality scorecard"}}
	}
	if len(s.Sources) == 0 {
		res.Missing = append(res.Missing, "sources")
	}
	for _, dim := range datatypes.QualityDimensions {
		score, ok := s.Dimensions[dim]
		if !ok {
			res.Missing = append(res.Missing, dim)
			continue
		}
		if score < 1 || score > 5 {
			res.CanProceed = false
			res.Concerns = append(res.Concerns, fmt.Sprintf("dimension %q score %d out of 1-5 range", dim, score))
		}
	}
	return res
}

// validateUsers applies stage 4 rules: at least one persona, each with a
// name and an access level.
func (v *Validator) validateUsers(u *datatypes.UserContext) Result {
	res := Result{CanProceed: true}
	if u == nil || len(u.Personas) == 0 {
		return Result{Missing: []string{"personas"}}
	}
	for i, p := range u.Personas {
		if strings.TrimSpace(p.Name) == "" {
			res.Missing = append(res.Missing, fmt.Sprintf("personas[%d].name", i))
		}
		if p.AccessLevel == "" {
			res.Missing = append(res.Missing, fmt.Sprintf("personas[%d].access_level", i))
		}
	}
	return res
}

// validateRisks applies stage 5 rules: every ethics principle must have at
// least one risk entry with a computed residual value.
func (v *Validator) validateRisks(r *datatypes.EthicalRiskReport) Result {
	res := Result{CanProceed: true}
	if r == nil || len(r.Entries) == 0 {
		return Result{Missing: []string{"risk entries"}}
	}

	covered := make(map[datatypes.EthicsPrinciple]bool)
	for i, e := range r.Entries {
		if e.Severity < 1 || e.Severity > 5 || e.Likelihood < 1 || e.Likelihood > 5 {
			res.CanProceed = false
			res.Concerns = append(res.Concerns, fmt.Sprintf("entries[%d]: severity/likelihood out of 1-5 range", i))
			continue
		}
		if e.ResidualLevel == "" {
			res.CanProceed = false
			res.Concerns = append(res.Concerns, fmt.Sprintf("entries[%d]: residual not computed", i))
			continue
		}
		covered[e.Principle] = true
	}

	var uncovered []string
	for _, p := range datatypes.AllPrinciples {
		if !covered[p] {
			uncovered = append(uncovered, string(p))
		}
	}
	sort.Strings(uncovered)
	for _, p := range uncovered {
		res.Missing = append(res.Missing, fmt.Sprintf("risk entry for principle %q", p))
	}
	return res
}

// ReviewCoherence runs the optional one-shot LLM coherence review for a
// stage and returns a concern string, or "" when the deliverable reads
// coherently. Gateway unavailability degrades to a manual-review concern.
func (v *Validator) ReviewCoherence(ctx context.Context, stageIndex int, summary string) string {
	if v.client == nil || strings.TrimSpace(summary) == "" {
		return ""
	}
	prompt := fmt.Sprintf(
		"Does the following stage %d (%s) record read as internally coherent? Answer exactly YES or NO followed by one sentence.\n\n%s",
		stageIndex, datatypes.StageNames[stageIndex], summary)

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	raw, err := v.client.Generate(callCtx, prompt, llm.GenerationParams{})
	if err != nil {
		v.logger.Warn("gate coherence review unavailable",
			slog.Int("stage", stageIndex), slog.String("error", err.Error()))
		return "automated coherence review unavailable; flag for manual review"
	}
	answer := strings.ToUpper(strings.TrimSpace(raw))
	if strings.HasPrefix(answer, "NO") {
		return "coherence review: " + strings.TrimSpace(raw)
	}
	return ""
}

func validArchetype(a datatypes.TaskArchetype) bool {
	for _, v := range datatypes.ValidArchetypes {
		if a == v {
			return true
		}
	}
	return false
}

// archetypeConsistent applies the structural archetype/output rule:
// classification needs a categorical output, regression a continuous one,
// generation a text output. Ranking and clustering accept any output kinds.
func archetypeConsistent(a datatypes.TaskArchetype, outputs []datatypes.IOField) bool {
	hasKind := func(kind datatypes.IOKind) bool {
		for _, o := range outputs {
			if o.Kind == kind {
				return true
			}
		}
		return false
	}
	switch a {
	case datatypes.ArchetypeClassification:
		return hasKind(datatypes.IOCategorical)
	case datatypes.ArchetypeRegression:
		return hasKind(datatypes.IOContinuous)
	case datatypes.ArchetypeGeneration:
		return hasKind(datatypes.IOText)
	default:
		return true
	}
}
