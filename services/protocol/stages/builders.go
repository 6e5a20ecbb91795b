// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/governance"
)

// A builder assembles a stage deliverable from the stage's completed turns.
// Builders never fail: answers that cannot be parsed leave gaps in the
// deliverable for the stage gate to flag.
type builder func(turns []datatypes.ConversationTurn) *datatypes.StageDeliverable

// builders is the fixed per-stage builder table.
var builders = map[int]builder{
	1: buildProblem,
	2: buildMetrics,
	3: buildScorecard,
	4: buildUsers,
	5: buildRisks,
}

// answers maps question IDs to their accepted (or best escalated) responses.
func answers(turns []datatypes.ConversationTurn) map[string]string {
	out := make(map[string]string, len(turns))
	for _, t := range turns {
		out[t.QuestionID] = t.Response
	}
	return out
}

// escalations lists the question IDs whose turns ended escalated.
func escalations(turns []datatypes.ConversationTurn) []string {
	var out []string
	for _, t := range turns {
		if t.Outcome == datatypes.OutcomeEscalated {
			out = append(out, t.QuestionID)
		}
	}
	return out
}

func newDeliverable(stage int, turns []datatypes.ConversationTurn) *datatypes.StageDeliverable {
	return &datatypes.StageDeliverable{
		StageIndex:  stage,
		Escalations: escalations(turns),
		CompletedAt: time.Now().UTC(),
	}
}

func buildProblem(turns []datatypes.ConversationTurn) *datatypes.StageDeliverable {
	a := answers(turns)
	d := newDeliverable(1, turns)

	impact := a["p1_impact"]
	p := &datatypes.ProblemStatement{
		Statement:     strings.TrimSpace(a["p1_statement"]),
		TaskArchetype: parseArchetype(a["p1_archetype"]),
		Inputs:        parseIOFields(a["p1_inputs"]),
		Outputs:       parseIOFields(a["p1_outputs"]),
		Stakeholders:  parseList(a["p1_stakeholders"]),
		Impact:        parseImpact(impact),
	}
	lower := strings.ToLower(impact)
	switch {
	case strings.Contains(lower, "human in the loop") || strings.Contains(lower, "human review"):
		p.AutomatedDecision = false
	case strings.Contains(lower, "automated") || strings.Contains(lower, "without a human"):
		p.AutomatedDecision = true
	}
	d.Problem = p
	return d
}

func buildMetrics(turns []datatypes.ConversationTurn) *datatypes.StageDeliverable {
	a := answers(turns)
	d := newDeliverable(2, turns)

	m := &datatypes.MetricAlignment{}
	for _, line := range parseLines(a["m1_metrics"]) {
		if spec, ok := parseMetricSpec(line); ok {
			m.Metrics = append(m.Metrics, spec)
		}
	}
	if g := strings.TrimSpace(a["m2_guardrails"]); !strings.EqualFold(g, "none") &&
		!strings.HasPrefix(strings.ToLower(g), "none") {
		for _, line := range parseLines(g) {
			if spec, ok := parseMetricSpec(line); ok {
				m.Guardrails = append(m.Guardrails, spec)
			}
		}
	}
	d.Metrics = m
	return d
}

// parseMetricSpec reads one metric line, either in key=value form or as a
// bare metric name.
func parseMetricSpec(line string) (datatypes.MetricSpec, bool) {
	kv := parseKV(line, []string{"name", "target", "alignment", "features"})
	spec := datatypes.MetricSpec{
		Name:             kv["name"],
		Target:           kv["target"],
		Alignment:        kv["alignment"],
		RequiredFeatures: parseList(kv["features"]),
	}
	if spec.Name == "" && len(kv) == 0 {
		spec.Name = strings.TrimSpace(line)
	}
	return spec, spec.Name != ""
}

func buildScorecard(turns []datatypes.ConversationTurn) *datatypes.StageDeliverable {
	a := answers(turns)
	d := newDeliverable(3, turns)

	s := &datatypes.DataQualityScorecard{
		Dimensions: make(map[string]int),
		Notes:      strings.TrimSpace(a["d3_notes"]),
	}
	for _, line := range parseLines(a["d1_sources"]) {
		kv := parseKV(line, []string{"name", "access", "features"})
		src := datatypes.DataSource{
			Name:        kv["name"],
			AccessLevel: parseAccessLevel(kv["access"]),
			Features:    parseList(kv["features"]),
		}
		if src.Name == "" && len(kv) == 0 {
			src.Name = strings.TrimSpace(line)
		}
		if src.Name != "" {
			s.Sources = append(s.Sources, src)
		}
	}
	for _, item := range parseList(a["d2_dimensions"]) {
		dim, score, found := strings.Cut(item, "=")
		if !found {
			continue
		}
		dim = strings.ToLower(strings.TrimSpace(dim))
		for _, known := range datatypes.QualityDimensions {
			if dim == known {
				s.Dimensions[known] = parseScore(score)
				break
			}
		}
	}
	d.Scorecard = s
	return d
}

func buildUsers(turns []datatypes.ConversationTurn) *datatypes.StageDeliverable {
	a := answers(turns)
	d := newDeliverable(4, turns)

	u := &datatypes.UserContext{
		UsagePattern: strings.TrimSpace(a["u2_workflow"]),
	}
	for _, line := range parseLines(a["u1_personas"]) {
		kv := parseKV(line, []string{"name", "access", "needs"})
		p := datatypes.Persona{
			Name:        kv["name"],
			AccessLevel: parseAccessLevel(kv["access"]),
			Needs:       kv["needs"],
		}
		if p.Name == "" && len(kv) == 0 {
			p.Name = strings.TrimSpace(line)
		}
		if p.Name != "" {
			u.Personas = append(u.Personas, p)
		}
	}
	d.Users = u
	return d
}

func buildRisks(turns []datatypes.ConversationTurn) *datatypes.StageDeliverable {
	a := answers(turns)
	d := newDeliverable(5, turns)

	r := &datatypes.EthicalRiskReport{
		ReviewNotes: strings.TrimSpace(a["r2_review"]),
	}
	for _, line := range parseLines(a["r1_risks"]) {
		kv := parseKV(line, []string{"principle", "severity", "likelihood", "description", "mitigations"})
		if len(kv) == 0 {
			continue
		}
		entry := datatypes.EthicalRiskEntry{
			Principle:   parsePrinciple(kv["principle"]),
			Description: kv["description"],
			Severity:    parseScore(kv["severity"]),
			Likelihood:  parseScore(kv["likelihood"]),
			Mitigations: parseMitigations(kv["mitigations"]),
		}
		r.Entries = append(r.Entries, entry)
	}
	r.Entries = governance.Recompute(r.Entries)
	d.Risks = r
	return d
}
