// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists interview sessions and their stage checkpoints.
//
// Two implementations are provided: an in-memory repository for tests and
// single-process use, and a BadgerDB-backed repository for durable local
// persistence. Both are safe for concurrent use.
package storage

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

var (
	// ErrSessionNotFound is returned when no session exists for an ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStageDataNotFound is returned when a session has no deliverable
	// for the requested stage.
	ErrStageDataNotFound = errors.New("stage data not found")
)

// Repository stores sessions and checkpoints.
//
// Thread Safety: implementations must be safe for concurrent use.
type Repository interface {
	// GetSession loads a session by ID. Returns ErrSessionNotFound if
	// absent.
	GetSession(ctx context.Context, id string) (*datatypes.Session, error)

	// SaveSession writes the full session record, replacing any prior
	// version.
	SaveSession(ctx context.Context, session *datatypes.Session) error

	// AppendCheckpoint durably records a stage checkpoint. The checkpoint
	// must be written before the session may advance past its stage.
	AppendCheckpoint(ctx context.Context, sessionID string, cp datatypes.Checkpoint) error

	// ListCheckpoints returns a session's checkpoints in append order.
	ListCheckpoints(ctx context.Context, sessionID string) ([]datatypes.Checkpoint, error)

	// GetStageData loads one stage deliverable from a session. Returns
	// ErrStageDataNotFound if the stage has not completed.
	GetStageData(ctx context.Context, sessionID string, stageIndex int) (*datatypes.StageDeliverable, error)

	// ListSessions returns the IDs of all stored sessions.
	ListSessions(ctx context.Context) ([]string, error)

	// Close releases underlying resources.
	Close() error
}
