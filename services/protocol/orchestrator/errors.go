// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import "errors"

var (
	// ErrSessionNotActive is returned when an operation needs an
	// in_progress session but the session is paused or terminal.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrSessionTerminal is returned when resuming or mutating a completed
	// or abandoned session.
	ErrSessionTerminal = errors.New("session is in a terminal state")

	// ErrSessionNotPaused is returned when resuming a session that is not
	// paused.
	ErrSessionNotPaused = errors.New("session is not paused")

	// ErrStageNotRun is returned by Advance when the current stage has no
	// stored deliverable to gate.
	ErrStageNotRun = errors.New("current stage has not been run")

	// ErrNoCheckpoint means a recovery was requested for a session that
	// has no durable checkpoint yet.
	ErrNoCheckpoint = errors.New("session has no checkpoint")

	// ErrCheckpointFailed wraps a checkpoint write failure. The session
	// does not advance past a stage whose checkpoint could not be written.
	ErrCheckpointFailed = errors.New("checkpoint write failed")

	// ErrNotCompleted is returned when a charter is requested for a
	// session that has not passed all five stage gates.
	ErrNotCompleted = errors.New("session is not completed")
)
