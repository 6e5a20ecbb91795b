// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire and persistence types for the charter
// interview protocol: sessions, conversation turns, stage deliverables,
// ethical risk entries, and governance decisions.
//
// All types are plain serializable structs. Synchronization is the
// responsibility of the orchestrator; a session is driven by a single
// logical thread of control.
package datatypes

import (
	"fmt"
	"time"
)

// FirstStage and LastStage bound the fixed five-stage protocol.
const (
	FirstStage = 1
	LastStage  = 5
)

// StageNames maps stage index to its human-readable name.
var StageNames = map[int]string{
	1: "Problem Definition",
	2: "Metric Alignment",
	3: "Data Feasibility",
	4: "User Context",
	5: "Ethics & Governance",
}

// SessionStatus represents the lifecycle state of an interview session.
type SessionStatus string

const (
	// StatusInProgress is the working state for an active interview.
	StatusInProgress SessionStatus = "in_progress"

	// StatusCompleted means all five stages passed their gates and a
	// governance decision was recorded.
	StatusCompleted SessionStatus = "completed"

	// StatusAbandoned is a terminal state for sessions the owner gave up on.
	StatusAbandoned SessionStatus = "abandoned"

	// StatusPaused means the session is suspended between questions and can
	// be resumed from its last checkpoint.
	StatusPaused SessionStatus = "paused"
)

// IsTerminal returns true if no further stage work is possible.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Session is the full state of one charter interview.
//
// Invariants:
//   - CurrentStage only increases, one stage at a time.
//   - Deliverables[k] exists and Validated==true for every k < CurrentStage.
//   - Once a deliverable is validated it is never overwritten.
type Session struct {
	// ID is the unique session identifier (UUID).
	ID string `json:"id"`

	// Owner references the user who started the interview.
	Owner string `json:"owner"`

	// CurrentStage is the stage being interviewed, 1-5.
	CurrentStage int `json:"current_stage"`

	// Status is the session lifecycle state.
	Status SessionStatus `json:"status"`

	// Deliverables maps stage index to the stage's deliverable record.
	// Append-only: keys are never overwritten once validated.
	Deliverables map[int]*StageDeliverable `json:"deliverables"`

	// Turns is the ordered conversation-turn log across all stages.
	Turns []ConversationTurn `json:"turns"`

	// Checkpoints records the snapshots taken after each stage advance.
	Checkpoints []Checkpoint `json:"checkpoints"`

	// Consistency holds the cross-stage consistency report, set after the
	// final gate passes.
	Consistency *ConsistencyReport `json:"consistency,omitempty"`

	// Decision is the final governance decision, set once at completion.
	Decision *GovernanceDecisionRecord `json:"decision,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastActiveAt is when the session last changed.
	LastActiveAt time.Time `json:"last_active_at"`
}

// Deliverable returns the deliverable for a stage, or nil.
func (s *Session) Deliverable(stage int) *StageDeliverable {
	if s.Deliverables == nil {
		return nil
	}
	return s.Deliverables[stage]
}

// Validate checks structural session invariants.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id must not be empty")
	}
	if s.CurrentStage < FirstStage || s.CurrentStage > LastStage+1 {
		return fmt.Errorf("current_stage %d out of range", s.CurrentStage)
	}
	for stage := FirstStage; stage < s.CurrentStage && stage <= LastStage; stage++ {
		d := s.Deliverable(stage)
		if d == nil {
			return fmt.Errorf("stage %d precedes current_stage but has no deliverable", stage)
		}
		if !d.Validated {
			return fmt.Errorf("stage %d precedes current_stage but is not validated", stage)
		}
	}
	return nil
}

// ConsistencyReport is the outcome of the cross-stage consistency check.
type ConsistencyReport struct {
	// IsConsistent is true if no contradictions were found.
	IsConsistent bool `json:"is_consistent"`

	// Contradictions lists detected cross-stage contradictions.
	Contradictions []string `json:"contradictions,omitempty"`

	// ManualReviewFlags lists predicates that could not be evaluated
	// automatically and need a human look.
	ManualReviewFlags []string `json:"manual_review_flags,omitempty"`

	// CheckedAt is when the check ran.
	CheckedAt time.Time `json:"checked_at"`
}

// Checkpoint is a full snapshot of session state taken after a successful
// stage advance. Used only for resume, never for rollback of validated stages.
type Checkpoint struct {
	// ID is the unique checkpoint identifier (UUID).
	ID string `json:"id"`

	// StageIndex is the stage that was just completed.
	StageIndex int `json:"stage_index"`

	// GatePassed records whether stage-gate validation passed. Checkpoints
	// are only written on a pass, so this is true for durable checkpoints.
	GatePassed bool `json:"gate_passed"`

	// Snapshot is the serialized session state at checkpoint time.
	Snapshot []byte `json:"snapshot"`

	// CreatedAt is when the checkpoint was taken.
	CreatedAt time.Time `json:"created_at"`
}
