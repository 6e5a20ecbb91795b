// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package governance computes residual risk and the final go/no-go decision
// from a project's ethical risk entries.
//
// Everything in this package is pure and deterministic: identical inputs
// always yield identical outputs, and no function has side effects. The
// orchestrator calls Decide exactly once per session, after the consistency
// check passes.
package governance

import (
	"fmt"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

// Residual score thresholds. Severity and likelihood are each 1-5, so raw
// scores span 1-25; the 0.95 effectiveness cap keeps every residual at or
// above 5% of its raw score.
const (
	mediumThreshold   = 4.0
	highThreshold     = 10.0
	criticalThreshold = 17.0
)

// ComputeResidual returns the residual risk score for one entry:
//
//	residual = severity * likelihood * (1 - min(sum(effectiveness), 0.95))
//
// Severity and likelihood are clamped to 1-5 and effectiveness values below
// zero are ignored, so the function is total over arbitrary inputs.
func ComputeResidual(entry datatypes.EthicalRiskEntry) float64 {
	severity := clamp(entry.Severity, 1, 5)
	likelihood := clamp(entry.Likelihood, 1, 5)

	var effectiveness float64
	for _, m := range entry.Mitigations {
		if m.Effectiveness > 0 {
			effectiveness += m.Effectiveness
		}
	}
	if effectiveness > datatypes.MitigationEffectivenessCap {
		effectiveness = datatypes.MitigationEffectivenessCap
	}

	return float64(severity*likelihood) * (1 - effectiveness)
}

// LevelFor buckets a residual score into LOW/MEDIUM/HIGH/CRITICAL.
func LevelFor(residual float64) datatypes.ResidualLevel {
	switch {
	case residual >= criticalThreshold:
		return datatypes.ResidualCritical
	case residual >= highThreshold:
		return datatypes.ResidualHigh
	case residual >= mediumThreshold:
		return datatypes.ResidualMedium
	default:
		return datatypes.ResidualLow
	}
}

// Recompute returns a copy of the entries with ResidualScore and
// ResidualLevel derived from severity, likelihood and mitigations. Residual
// values are never hand-set; this is the only place they are written.
func Recompute(entries []datatypes.EthicalRiskEntry) []datatypes.EthicalRiskEntry {
	out := make([]datatypes.EthicalRiskEntry, len(entries))
	for i, e := range entries {
		e.ResidualScore = ComputeResidual(e)
		e.ResidualLevel = LevelFor(e.ResidualScore)
		out[i] = e
	}
	return out
}

// Decide maps a set of risk entries to a governance decision.
//
// Rules, evaluated in order:
//  1. Any CRITICAL residual, or any HIGH residual on the safety principle,
//     halts the project.
//  2. Two or more HIGH residuals go to the governance committee.
//  3. Exactly one HIGH residual requires revision.
//  4. All MEDIUM or below, with at least one MEDIUM, proceeds with
//     monitoring.
//  5. All LOW proceeds.
//
// Residuals are recomputed from the raw severity/likelihood/mitigation
// values before the rules run, so callers cannot influence the outcome by
// pre-setting residual fields.
func Decide(entries []datatypes.EthicalRiskEntry) datatypes.GovernanceDecisionRecord {
	residuals := Recompute(entries)

	var (
		highCount  int
		hasMedium  bool
		ruleFired  string
		decision   datatypes.GovernanceDecision
		haltReason string
	)

	for _, e := range residuals {
		switch e.ResidualLevel {
		case datatypes.ResidualCritical:
			haltReason = fmt.Sprintf("critical residual risk on %s (%.1f)", e.Principle, e.ResidualScore)
		case datatypes.ResidualHigh:
			if e.Principle == datatypes.PrincipleSafety && haltReason == "" {
				haltReason = fmt.Sprintf("high residual safety risk (%.1f)", e.ResidualScore)
			}
			highCount++
		case datatypes.ResidualMedium:
			hasMedium = true
		}
	}

	switch {
	case haltReason != "":
		decision = datatypes.DecisionHalt
		ruleFired = haltReason
	case highCount >= 2:
		decision = datatypes.DecisionSubmitToCommittee
		ruleFired = fmt.Sprintf("%d high residual risks require committee review", highCount)
	case highCount == 1:
		decision = datatypes.DecisionRevise
		ruleFired = "one high residual risk requires revision"
	case hasMedium:
		decision = datatypes.DecisionProceedMonitoring
		ruleFired = "medium residual risks require monitoring"
	default:
		decision = datatypes.DecisionProceed
		ruleFired = "all residual risks low"
	}

	return datatypes.GovernanceDecisionRecord{
		Decision:  decision,
		Rationale: ruleFired,
		Residuals: residuals,
	}
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
