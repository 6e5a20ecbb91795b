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

// TaskArchetype classifies the modeling task declared in stage 1.
type TaskArchetype string

const (
	ArchetypeClassification TaskArchetype = "classification"
	ArchetypeRegression     TaskArchetype = "regression"
	ArchetypeRanking        TaskArchetype = "ranking"
	ArchetypeGeneration     TaskArchetype = "generation"
	ArchetypeClustering     TaskArchetype = "clustering"
)

// ValidArchetypes lists the accepted task archetypes.
var ValidArchetypes = []TaskArchetype{
	ArchetypeClassification,
	ArchetypeRegression,
	ArchetypeRanking,
	ArchetypeGeneration,
	ArchetypeClustering,
}

// IOKind classifies a declared input or output field.
type IOKind string

const (
	IOCategorical IOKind = "categorical"
	IOContinuous  IOKind = "continuous"
	IOText        IOKind = "text"
	IOImage       IOKind = "image"
	IOTimeseries  IOKind = "timeseries"
)

// IOField is one declared model input or output.
type IOField struct {
	Name string `json:"name"`
	Kind IOKind `json:"kind"`
}

// ImpactLevel describes the stakes of the decisions the system informs or
// automates, as declared in stage 1.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// ProblemStatement is the stage 1 deliverable payload.
type ProblemStatement struct {
	// Statement is the plain-language problem description.
	Statement string `json:"statement"`

	// TaskArchetype is the declared modeling task category.
	TaskArchetype TaskArchetype `json:"task_archetype"`

	// Inputs and Outputs declare the model's interface.
	Inputs  []IOField `json:"inputs"`
	Outputs []IOField `json:"outputs"`

	// Stakeholders lists who is affected by the system.
	Stakeholders []string `json:"stakeholders"`

	// Impact declares the stakes of decisions the system drives.
	Impact ImpactLevel `json:"impact"`

	// AutomatedDecision is true when the system acts without a human in
	// the loop.
	AutomatedDecision bool `json:"automated_decision"`
}

// MetricSpec is one success metric declared in stage 2.
type MetricSpec struct {
	// Name is the metric name, e.g. "F1" or "RMSE".
	Name string `json:"name"`

	// Target is the declared target value or range, free text.
	Target string `json:"target"`

	// Alignment explains how the metric addresses the declared problem.
	Alignment string `json:"alignment"`

	// RequiredFeatures lists the data features the metric depends on.
	RequiredFeatures []string `json:"required_features,omitempty"`
}

// MetricAlignment is the stage 2 deliverable payload.
type MetricAlignment struct {
	// Metrics are the primary success metrics.
	Metrics []MetricSpec `json:"metrics"`

	// Guardrails are metrics watched for regressions rather than targets.
	Guardrails []MetricSpec `json:"guardrails,omitempty"`
}

// QualityDimensions are the six data-quality dimensions every stage 3
// scorecard must score, each 1-5.
var QualityDimensions = []string{
	"completeness",
	"accuracy",
	"consistency",
	"timeliness",
	"validity",
	"uniqueness",
}

// AccessLevel orders data and persona access from most to least open.
type AccessLevel string

const (
	AccessPublic       AccessLevel = "public"
	AccessInternal     AccessLevel = "internal"
	AccessRestricted   AccessLevel = "restricted"
	AccessConfidential AccessLevel = "confidential"
)

// AccessRank returns a comparable rank for an access level; unknown levels
// rank highest so they are treated conservatively.
func AccessRank(l AccessLevel) int {
	switch l {
	case AccessPublic:
		return 0
	case AccessInternal:
		return 1
	case AccessRestricted:
		return 2
	case AccessConfidential:
		return 3
	default:
		return 4
	}
}

// DataSource is one declared data source in stage 3.
type DataSource struct {
	Name        string      `json:"name"`
	AccessLevel AccessLevel `json:"access_level"`
	Features    []string    `json:"features,omitempty"`
}

// DataQualityScorecard is the stage 3 deliverable payload.
type DataQualityScorecard struct {
	// Sources lists the declared data sources.
	Sources []DataSource `json:"sources"`

	// Dimensions maps each of the six quality dimensions to a 1-5 score.
	Dimensions map[string]int `json:"dimensions"`

	// Notes carries free-text caveats about the data plan.
	Notes string `json:"notes,omitempty"`
}

// Persona is one declared user persona in stage 4.
type Persona struct {
	Name        string      `json:"name"`
	AccessLevel AccessLevel `json:"access_level"`
	Needs       string      `json:"needs,omitempty"`
}

// UserContext is the stage 4 deliverable payload.
type UserContext struct {
	// Personas lists the declared user personas.
	Personas []Persona `json:"personas"`

	// UsagePattern describes how and when users interact with the system.
	UsagePattern string `json:"usage_pattern,omitempty"`

	// Environment describes the deployment environment.
	Environment string `json:"environment,omitempty"`
}

// EthicalRiskReport is the stage 5 deliverable payload.
type EthicalRiskReport struct {
	// Entries holds the per-principle risk entries.
	Entries []EthicalRiskEntry `json:"entries"`

	// ReviewNotes carries free-text governance notes.
	ReviewNotes string `json:"review_notes,omitempty"`
}

// StageDeliverable is one stage's structured record. Created once per
// stage; immutable after stage-gate approval.
type StageDeliverable struct {
	// StageIndex is the stage that produced this deliverable, 1-5.
	StageIndex int `json:"stage_index"`

	// Validated is set when the stage gate approved this deliverable.
	Validated bool `json:"validated"`

	// Escalations lists question IDs whose turns ended escalated; surfaced
	// to the user at charter time.
	Escalations []string `json:"escalations,omitempty"`

	// Exactly one payload field is non-nil, matching StageIndex.
	Problem   *ProblemStatement     `json:"problem,omitempty"`
	Metrics   *MetricAlignment      `json:"metrics,omitempty"`
	Scorecard *DataQualityScorecard `json:"scorecard,omitempty"`
	Users     *UserContext          `json:"users,omitempty"`
	Risks     *EthicalRiskReport    `json:"risks,omitempty"`

	// CompletedAt is when the stage agent finished assembling the record.
	CompletedAt time.Time `json:"completed_at"`
}
