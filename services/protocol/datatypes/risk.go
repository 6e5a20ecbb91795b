// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// EthicsPrinciple is one of the five principles every stage 5 risk report
// must cover.
type EthicsPrinciple string

const (
	PrincipleFairness       EthicsPrinciple = "fairness"
	PrincipleTransparency   EthicsPrinciple = "transparency"
	PrinciplePrivacy        EthicsPrinciple = "privacy"
	PrincipleAccountability EthicsPrinciple = "accountability"
	PrincipleSafety         EthicsPrinciple = "safety"
)

// AllPrinciples lists the five ethics principles in canonical order.
var AllPrinciples = []EthicsPrinciple{
	PrincipleFairness,
	PrincipleTransparency,
	PrinciplePrivacy,
	PrincipleAccountability,
	PrincipleSafety,
}

// MitigationEffectivenessCap bounds the total credited mitigation
// effectiveness. No mitigation set eliminates more than 95% of a risk.
const MitigationEffectivenessCap = 0.95

// Mitigation is one mitigation strategy with its effectiveness rating.
type Mitigation struct {
	// Strategy describes the mitigation.
	Strategy string `json:"strategy"`

	// Effectiveness is the fraction of risk removed, in [0, 0.95].
	Effectiveness float64 `json:"effectiveness"`
}

// ResidualLevel buckets a residual risk score.
type ResidualLevel string

const (
	ResidualLow      ResidualLevel = "LOW"
	ResidualMedium   ResidualLevel = "MEDIUM"
	ResidualHigh     ResidualLevel = "HIGH"
	ResidualCritical ResidualLevel = "CRITICAL"
)

// EthicalRiskEntry is one identified risk against one principle.
// ResidualScore and ResidualLevel are derived deterministically from
// severity, likelihood and mitigations; they are never hand-set.
type EthicalRiskEntry struct {
	// Principle is the ethics principle this risk falls under.
	Principle EthicsPrinciple `json:"principle"`

	// Description is the plain-language risk description.
	Description string `json:"description,omitempty"`

	// Severity is the unmitigated impact, 1-5.
	Severity int `json:"severity"`

	// Likelihood is the unmitigated probability, 1-5.
	Likelihood int `json:"likelihood"`

	// Mitigations are the planned mitigation strategies.
	Mitigations []Mitigation `json:"mitigations,omitempty"`

	// ResidualScore is severity * likelihood * (1 - capped effectiveness).
	ResidualScore float64 `json:"residual_score"`

	// ResidualLevel buckets ResidualScore.
	ResidualLevel ResidualLevel `json:"residual_level"`
}

// GovernanceDecision is the final go/no-go outcome of the protocol.
type GovernanceDecision string

const (
	DecisionProceed           GovernanceDecision = "proceed"
	DecisionProceedMonitoring GovernanceDecision = "proceed_with_monitoring"
	DecisionRevise            GovernanceDecision = "revise"
	DecisionSubmitToCommittee GovernanceDecision = "submit_to_committee"
	DecisionHalt              GovernanceDecision = "halt"
)

// Rank orders decisions by severity: proceed < proceed_with_monitoring <
// revise < submit_to_committee < halt. Unknown decisions rank highest.
func (d GovernanceDecision) Rank() int {
	switch d {
	case DecisionProceed:
		return 0
	case DecisionProceedMonitoring:
		return 1
	case DecisionRevise:
		return 2
	case DecisionSubmitToCommittee:
		return 3
	case DecisionHalt:
		return 4
	default:
		return 5
	}
}

// GovernanceDecisionRecord stores the computed decision alongside the
// inputs that produced it. Written once at protocol completion.
type GovernanceDecisionRecord struct {
	// Decision is the computed governance decision.
	Decision GovernanceDecision `json:"decision"`

	// Rationale is a human-readable explanation of the rule that fired.
	Rationale string `json:"rationale"`

	// Residuals snapshots the per-entry residual levels at decision time.
	Residuals []EthicalRiskEntry `json:"residuals"`

	// DecidedAt is when the decision was computed.
	DecidedAt time.Time `json:"decided_at"`
}
